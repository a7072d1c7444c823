package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

const defaultGroqBaseURL = "https://api.groq.com/openai"

// GroqConfig configures the Groq path. Groq speaks the OpenAI
// chat-completions wire format.
type GroqConfig struct {
	APIKey  string
	BaseURL string
}

// groqCall performs one non-streamed Groq attempt.
func (c *Client) groqCall(ctx context.Context, req GenericRequest) (*ParsedResponseMessage, error) {
	if c.cfg.Groq.APIKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "groq api key is required",
		}}
	}

	body, err := c.buildChatBody(ctx, req, false)
	if err != nil {
		return nil, err
	}

	base := c.cfg.Groq.BaseURL
	if base == "" {
		base = defaultGroqBaseURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", strings.TrimRight(base, "/")+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "failed to create request", Cause: err}}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Groq.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "request failed", Cause: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, buildErrorFromResponse(resp, ProviderGroq)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "failed to read response", Cause: err}}
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &raw); err != nil {
		return nil, &ProtocolError{SDKError: SDKError{
			Message: "failed to parse response JSON",
			Cause:   err,
		}}
	}

	return parseChatResponse(raw, req.functionNames())
}
