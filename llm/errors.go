package llm

import "fmt"

// SDKError is the base error carried by every error in the taxonomy.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error { return e.Cause }

// NetworkError is a transport-level failure: connection errors, aborted
// requests, unreadable bodies. Retryable.
type NetworkError struct {
	SDKError
}

// TimeoutError is raised when a streamed chunk exceeds the per-chunk
// timeout. PartialText carries whatever text had accumulated, for
// diagnostics only. Retryable.
type TimeoutError struct {
	SDKError
	PartialText string
}

// ProviderError is a structured error payload returned by a provider
// API. Code drives retry remediation. Retryable.
type ProviderError struct {
	SDKError
	Provider   Provider
	Code       string
	StatusCode int
	// Raw is the decoded error payload as received.
	Raw map[string]interface{}
}

// RateLimitError is a ProviderError for HTTP 429 / rate-limit codes.
type RateLimitError struct {
	ProviderError
	// RetryAfter is the server-suggested delay in seconds, when sent.
	RetryAfter *float64
}

// AuthenticationError is a ProviderError for HTTP 401/403.
type AuthenticationError struct {
	ProviderError
}

// ServerError is a ProviderError for HTTP 5xx.
type ServerError struct {
	ProviderError
}

// InvalidRequestError is a ProviderError for HTTP 4xx other than
// authentication and rate limiting.
type InvalidRequestError struct {
	ProviderError
}

// ProtocolError is a hard failure of the response contract: missing
// content, unrecognized answer types, a response with neither text nor
// function call, a function name outside the allow-list, or malformed
// JSON in fully-accumulated function-call arguments. It aborts the
// current attempt; the outer retry loop may still try again.
type ProtocolError struct {
	SDKError
}

// ValidationError is a deterministic input error (unsupported mime type,
// unknown model). Never retried.
type ValidationError struct {
	SDKError
}

// ConfigurationError is missing or inconsistent provider configuration.
// Never retried.
type ConfigurationError struct {
	SDKError
}

// ExhaustionError is returned after all retry attempts are consumed.
type ExhaustionError struct {
	SDKError
	Attempts int
	// LastRaw is the last raw provider error payload, when one exists.
	LastRaw map[string]interface{}
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %s", e.Attempts, e.SDKError.Error())
}

// Provider error codes inspected by retry remediation.
const (
	codeContentPolicyViolation = "content_policy_violation"
	codeContentFilter          = "content_filter"
)

// retryable reports whether the retry controller should attempt the call
// again. Validation and configuration errors are deterministic input
// errors; everything else gets another attempt while budget remains.
func retryable(err error) bool {
	switch err.(type) {
	case *ValidationError, *ConfigurationError:
		return false
	}
	return true
}

// providerErrorCode extracts the provider error code, if err carries one.
func providerErrorCode(err error) string {
	switch e := err.(type) {
	case *ProviderError:
		return e.Code
	case *RateLimitError:
		return e.Code
	case *AuthenticationError:
		return e.Code
	case *ServerError:
		return e.Code
	case *InvalidRequestError:
		return e.Code
	}
	return ""
}

// providerErrorRaw extracts the raw provider error payload, if any.
func providerErrorRaw(err error) map[string]interface{} {
	switch e := err.(type) {
	case *ProviderError:
		return e.Raw
	case *RateLimitError:
		return e.Raw
	case *AuthenticationError:
		return e.Raw
	case *ServerError:
		return e.Raw
	case *InvalidRequestError:
		return e.Raw
	}
	return nil
}

// isRateLimit reports whether err classifies as a rate limit.
func isRateLimit(err error) bool {
	if _, ok := err.(*RateLimitError); ok {
		return true
	}
	switch providerErrorCode(err) {
	case "rate_limit_exceeded", "rate_limit_error", "overloaded_error":
		return true
	}
	return false
}

// errorFromStatusCode maps an HTTP status to the error taxonomy.
func errorFromStatusCode(status int, message string, provider Provider, code string, raw map[string]interface{}, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		Code:       code,
		StatusCode: status,
		Raw:        raw,
	}
	switch {
	case status == 401 || status == 403:
		return &AuthenticationError{ProviderError: pe}
	case status == 429:
		return &RateLimitError{ProviderError: pe, RetryAfter: retryAfter}
	case status >= 500:
		return &ServerError{ProviderError: pe}
	case status >= 400:
		return &InvalidRequestError{ProviderError: pe}
	}
	return &pe
}
