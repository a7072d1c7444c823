package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicAPIVersion     = "2023-06-01"
	bedrockAnthropicVersion = "bedrock-2023-05-31"
	anthropicMaxTokens      = 4096
)

// AnthropicConfig configures the Anthropic path.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	// Bedrock, when set, routes Anthropic calls through AWS Bedrock
	// instead of the direct API.
	Bedrock *BedrockConfig
	// Normalize controls how message sequences are repaired to satisfy
	// the API's alternation contract.
	Normalize NormalizeOptions
}

// BedrockConfig configures Anthropic models hosted on AWS Bedrock.
// The body format matches the Messages API, but authentication uses
// SigV4 and the model is addressed in the URL path.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	BaseURL         string
}

// anthropicCall performs one non-streamed Anthropic attempt, against
// either the direct Messages API or Bedrock.
func (c *Client) anthropicCall(ctx context.Context, req GenericRequest) (*ParsedResponseMessage, error) {
	bedrock := c.cfg.Anthropic.Bedrock

	body, err := c.buildAnthropicBody(ctx, req, bedrock != nil)
	if err != nil {
		return nil, err
	}

	var httpReq *http.Request
	if bedrock != nil {
		httpReq, err = c.newBedrockRequest(ctx, req.Model, body, bedrock)
	} else {
		httpReq, err = c.newAnthropicRequest(ctx, body)
	}
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "request failed", Cause: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, buildErrorFromResponse(resp, ProviderAnthropic)
	}

	return parseAnthropicResponse(resp.Body, req.functionNames())
}

func (c *Client) newAnthropicRequest(ctx context.Context, body []byte) (*http.Request, error) {
	if c.cfg.Anthropic.APIKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "anthropic api key is required",
		}}
	}
	base := c.cfg.Anthropic.BaseURL
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, "POST", strings.TrimRight(base, "/")+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "failed to create request", Cause: err}}
	}
	req.Header.Set("x-api-key", c.cfg.Anthropic.APIKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")
	return req, nil
}

func (c *Client) newBedrockRequest(ctx context.Context, model Model, body []byte, cfg *BedrockConfig) (*http.Request, error) {
	if cfg.Region == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "bedrock requires region and credentials",
		}}
	}
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", cfg.Region)
	}
	endpoint := strings.TrimRight(base, "/") + "/model/" + string(model) + "/invoke"
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "failed to create request", Cause: err}}
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")
	signAWSRequest(req, body, awsCredentials{
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
	}, cfg.Region, "bedrock", time.Now().UTC())
	return req, nil
}

// buildAnthropicBody translates a generic request to the Messages API
// shape. The message sequence is normalized first; the API rejects
// sequences violating its alternation contract.
func (c *Client) buildAnthropicBody(ctx context.Context, req GenericRequest, bedrock bool) ([]byte, error) {
	normalized := NormalizeMessages(req.Messages, c.cfg.Anthropic.Normalize)

	var messages []interface{}
	for _, msg := range normalized {
		translated, err := c.translateAnthropicMessage(ctx, msg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, translated)
	}

	body := map[string]interface{}{
		"messages":   messages,
		"max_tokens": anthropicMaxTokens,
	}

	if bedrock {
		// Bedrock addresses the model in the URL and versions in the body.
		body["anthropic_version"] = bedrockAnthropicVersion
	} else {
		body["model"] = string(req.Model)
	}

	if len(req.Functions) > 0 && req.FunctionCall != FunctionCallNone {
		var tools []interface{}
		for _, fd := range req.Functions {
			tools = append(tools, map[string]interface{}{
				"name":         fd.Name,
				"description":  fd.Description,
				"input_schema": fd.Parameters,
			})
		}
		body["tools"] = tools
		switch req.FunctionCall {
		case "", FunctionCallAuto:
			body["tool_choice"] = map[string]interface{}{"type": "auto"}
		default:
			body["tool_choice"] = map[string]interface{}{
				"type": "tool",
				"name": string(req.FunctionCall),
			}
		}
	}

	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}

	return json.Marshal(body)
}

func (c *Client) translateAnthropicMessage(ctx context.Context, msg GenericMessage) (map[string]interface{}, error) {
	var content []interface{}
	if msg.Content != "" {
		content = append(content, map[string]interface{}{
			"type": "text",
			"text": msg.Content,
		})
	}

	for _, f := range c.imageFiles(msg.Files) {
		// Anthropic only accepts inline data; remote sources go through
		// the normalizer collaborator.
		encoded, err := c.normalizeFile(ctx, f)
		if err != nil {
			return nil, err
		}
		content = append(content, map[string]interface{}{
			"type": "image",
			"source": map[string]interface{}{
				"type":       "base64",
				"media_type": "image/png",
				"data":       encoded,
			},
		})
	}

	if msg.FunctionCall != nil && msg.Role == RoleAssistant {
		content = append(content, map[string]interface{}{
			"type":  "tool_use",
			"id":    "call_" + uuid.NewString(),
			"name":  msg.FunctionCall.Name,
			"input": msg.FunctionCall.Arguments,
		})
	}

	if len(content) == 0 {
		content = append(content, map[string]interface{}{
			"type": "text",
			"text": "",
		})
	}

	return map[string]interface{}{
		"role":    string(msg.Role),
		"content": content,
	}, nil
}

// parseAnthropicResponse unwraps a Messages API envelope. A response
// with zero content blocks, or a block without a recognized type tag,
// is a protocol violation.
func parseAnthropicResponse(r io.Reader, allowedNames []string) (*ParsedResponseMessage, error) {
	bodyBytes, err := io.ReadAll(r)
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

	blocks, ok := raw["content"].([]interface{})
	if !ok || len(blocks) == 0 {
		return nil, &ProtocolError{SDKError: SDKError{
			Message: "response contains no content blocks",
		}}
	}

	out := &ParsedResponseMessage{Role: RoleAssistant}
	var text strings.Builder

	for _, b := range blocks {
		block, ok := b.(map[string]interface{})
		if !ok {
			return nil, &ProtocolError{SDKError: SDKError{Message: "malformed content block"}}
		}
		switch blockType, _ := block["type"].(string); blockType {
		case "text":
			if t, ok := block["text"].(string); ok {
				text.WriteString(t)
			}
		case "tool_use":
			if out.FunctionCall != nil {
				continue // only the first tool call is surfaced
			}
			name, _ := block["name"].(string)
			if !containsName(allowedNames, name) {
				return nil, &ProtocolError{SDKError: SDKError{
					Message: "model called unknown function " + name,
				}}
			}
			args, ok := block["input"].(map[string]interface{})
			if !ok {
				args = map[string]interface{}{}
			}
			out.FunctionCall = &FunctionCall{Name: name, Arguments: args}
		default:
			return nil, &ProtocolError{SDKError: SDKError{
				Message: fmt.Sprintf("unrecognized content block type %q", blockType),
			}}
		}
	}

	if t := text.String(); t != "" {
		out.Content = &t
	}
	if out.Content == nil && out.FunctionCall == nil {
		return nil, &ProtocolError{SDKError: SDKError{
			Message: "response has neither content nor a function call",
		}}
	}
	return out, nil
}
