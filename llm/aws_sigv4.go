package llm

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// awsCredentials holds AWS authentication credentials for the Bedrock
// service selector.
type awsCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// signAWSRequest signs an HTTP request with AWS Signature Version 4.
// The now parameter allows deterministic signing in tests.
func signAWSRequest(req *http.Request, body []byte, creds awsCredentials, region, service string, now time.Time) {
	dateStamp := now.Format("20060102")
	amzDate := now.Format("20060102T150405Z")

	req.Header.Set("x-amz-date", amzDate)
	if creds.SessionToken != "" {
		req.Header.Set("x-amz-security-token", creds.SessionToken)
	}

	payloadHash := hexSHA256(body)
	req.Header.Set("x-amz-content-sha256", payloadHash)

	canonHeaders, signedHeaders := canonicalHeaders(req)

	canonicalRequest := strings.Join([]string{
		req.Method,
		sigV4Path(req.URL),
		sigV4Query(req.URL),
		canonHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := fmt.Sprintf("%s/%s/%s/aws4_request", dateStamp, region, service)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	key := []byte("AWS4" + creds.SecretAccessKey)
	for _, part := range []string{dateStamp, region, service, "aws4_request"} {
		key = hmacSHA256(key, []byte(part))
	}
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		creds.AccessKeyID, scope, signedHeaders, signature,
	))
}

func hexSHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// sigV4Escape percent-encodes everything outside the SigV4 unreserved
// set. Go's EscapedPath leaves characters like ':' bare and
// url.QueryEscape turns spaces into '+', both of which AWS rejects, so
// encoding is done explicitly.
func sigV4Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// sigV4Path re-encodes each path segment with the SigV4 unreserved set.
func sigV4Path(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		segments[i] = sigV4Escape(seg)
	}
	return strings.Join(segments, "/")
}

func sigV4Query(u *url.URL) string {
	params := u.Query()
	if len(params) == 0 {
		return ""
	}
	var parts []string
	for key, values := range params {
		for _, val := range values {
			parts = append(parts, sigV4Escape(key)+"="+sigV4Escape(val))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// canonicalHeaders returns the canonical headers block and the signed
// headers list. The host header lives on req.Host in Go, not in the
// header map.
func canonicalHeaders(req *http.Request) (string, string) {
	headers := map[string]string{}
	var names []string

	for name, values := range req.Header {
		lower := strings.ToLower(name)
		if lower == "authorization" {
			continue
		}
		headers[lower] = strings.TrimSpace(strings.Join(values, ","))
		names = append(names, lower)
	}

	if _, ok := headers["host"]; !ok {
		host := req.Host
		if host == "" {
			host = req.URL.Host
		}
		headers["host"] = host
		names = append(names, "host")
	}

	sort.Strings(names)

	var canonical strings.Builder
	for _, name := range names {
		canonical.WriteString(name)
		canonical.WriteByte(':')
		canonical.WriteString(headers[name])
		canonical.WriteByte('\n')
	}
	return canonical.String(), strings.Join(names, ";")
}
