package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
)

// supportedImageMimeTypes are the mime types accepted when supplying raw
// image bytes to a provider.
var supportedImageMimeTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// ImageSource is the input to the image normalizer collaborator: a
// remote URL or inline bytes, plus the declared mime type.
type ImageSource struct {
	URL      string
	Data     []byte
	MimeType string
}

// ImageNormalizer is the external collaborator that turns an image
// source into base64-encoded PNG bytes resized to fit within 1024x1024
// without enlargement. The collaborator owns any source-format decoding
// prior to re-encoding.
type ImageNormalizer interface {
	NormalizeImage(ctx context.Context, src ImageSource) (string, error)
}

// fetchingNormalizer is the default ImageNormalizer. It fetches remote
// sources and validates mime types but performs no transcoding or
// resizing; hosts needing camera-native formats or strict payload caps
// supply their own collaborator.
type fetchingNormalizer struct {
	http *httpClient
}

func newFetchingNormalizer() *fetchingNormalizer {
	return &fetchingNormalizer{http: newHTTPClient()}
}

func (n *fetchingNormalizer) NormalizeImage(ctx context.Context, src ImageSource) (string, error) {
	if !supportedImageMimeTypes[src.MimeType] {
		return "", &ValidationError{SDKError: SDKError{
			Message: fmt.Sprintf("unsupported image mime type %q", src.MimeType),
		}}
	}

	data := src.Data
	if len(data) == 0 {
		if src.URL == "" {
			return "", &ValidationError{SDKError: SDKError{
				Message: "image source has neither URL nor data",
			}}
		}
		fetched, err := n.fetch(ctx, src.URL)
		if err != nil {
			return "", err
		}
		data = fetched
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

func (n *fetchingNormalizer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "failed to create image request", Cause: err}}
	}
	resp, err := n.http.Do(req)
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "image fetch failed", Cause: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{SDKError: SDKError{
			Message: fmt.Sprintf("image fetch returned HTTP %d", resp.StatusCode),
		}}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "failed to read image body", Cause: err}}
	}
	return data, nil
}
