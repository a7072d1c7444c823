package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultOpenAIBaseURL   = "https://api.openai.com"
	defaultAzureAPIVersion = "2024-02-01"
)

// OpenAIConfig configures the OpenAI-compatible path.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// Azure, when set, makes Azure the initial service for OpenAI
	// calls; the retry controller may switch to direct mid-loop.
	Azure *AzureConfig
}

// AzureConfig configures Azure OpenAI deployments.
type AzureConfig struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	// Deployments maps model identifiers to deployment names. Models
	// not in the map use the model identifier as the deployment name.
	Deployments map[string]string
}

// openAIStreamCall performs one streaming chat-completions attempt
// against the service currently selected by the retry state.
func (c *Client) openAIStreamCall(ctx context.Context, state *retryState, opts callOptions) (*ParsedResponseMessage, error) {
	body, err := c.buildChatBody(ctx, state.req, true)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithCancel(ctx)

	httpReq, err := c.newOpenAIRequest(cctx, state, body)
	if err != nil {
		cancel()
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		return nil, &NetworkError{SDKError: SDKError{Message: "request failed", Cause: err}}
	}

	if resp.StatusCode != http.StatusOK {
		defer cancel()
		defer resp.Body.Close()
		return nil, buildErrorFromResponse(resp, ProviderOpenAI)
	}

	return readStream(resp.Body, cancel, opts.chunkTimeout, state.req.functionNames(), c.logger)
}

func (c *Client) newOpenAIRequest(ctx context.Context, state *retryState, body []byte) (*http.Request, error) {
	if state.service == serviceAzure {
		az := c.cfg.OpenAI.Azure
		if az == nil || az.Endpoint == "" || az.APIKey == "" {
			return nil, &ConfigurationError{SDKError: SDKError{
				Message: "azure service selected but endpoint or api key missing",
			}}
		}
		deployment := az.Deployments[string(state.req.Model)]
		if deployment == "" {
			deployment = string(state.req.Model)
		}
		version := az.APIVersion
		if version == "" {
			version = defaultAzureAPIVersion
		}
		url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			strings.TrimRight(az.Endpoint, "/"), deployment, version)
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return nil, &NetworkError{SDKError: SDKError{Message: "failed to create request", Cause: err}}
		}
		req.Header.Set("api-key", az.APIKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	if c.cfg.OpenAI.APIKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "openai api key is required",
		}}
	}
	base := c.cfg.OpenAI.BaseURL
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, "POST", strings.TrimRight(base, "/")+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "failed to create request", Cause: err}}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.OpenAI.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// buildChatBody builds a chat-completions request body. Shared by the
// OpenAI and Groq paths.
func (c *Client) buildChatBody(ctx context.Context, req GenericRequest, stream bool) ([]byte, error) {
	body := map[string]interface{}{
		"model": string(req.Model),
	}

	var messages []interface{}
	for _, msg := range req.Messages {
		translated, err := c.translateChatMessage(ctx, msg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, translated)
	}
	body["messages"] = messages

	if len(req.Functions) > 0 {
		var functions []interface{}
		for _, fd := range req.Functions {
			functions = append(functions, map[string]interface{}{
				"name":        fd.Name,
				"description": fd.Description,
				"parameters":  fd.Parameters,
			})
		}
		body["functions"] = functions
	}

	if req.FunctionCall != "" {
		switch req.FunctionCall {
		case FunctionCallAuto, FunctionCallNone:
			body["function_call"] = string(req.FunctionCall)
		default:
			// A specific function name forces that call.
			body["function_call"] = map[string]interface{}{"name": string(req.FunctionCall)}
		}
	}

	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if stream {
		body["stream"] = true
	}

	return json.Marshal(body)
}

func (c *Client) translateChatMessage(ctx context.Context, msg GenericMessage) (map[string]interface{}, error) {
	out := map[string]interface{}{
		"role": string(msg.Role),
	}

	if msg.FunctionCall != nil && msg.Role == RoleAssistant {
		args, err := json.Marshal(msg.FunctionCall.Arguments)
		if err != nil {
			return nil, &ValidationError{SDKError: SDKError{
				Message: "unencodable function call arguments",
				Cause:   err,
			}}
		}
		out["function_call"] = map[string]interface{}{
			"name":      msg.FunctionCall.Name,
			"arguments": string(args),
		}
	}

	images := c.imageFiles(msg.Files)
	if len(images) == 0 {
		out["content"] = msg.Content
		return out, nil
	}

	parts := []interface{}{
		map[string]interface{}{"type": "text", "text": msg.Content},
	}
	for _, f := range images {
		if f.URL != "" {
			parts = append(parts, map[string]interface{}{
				"type":      "image_url",
				"image_url": map[string]interface{}{"url": f.URL},
			})
			continue
		}
		encoded, err := c.normalizeInline(ctx, f)
		if err != nil {
			return nil, err
		}
		parts = append(parts, map[string]interface{}{
			"type":      "image_url",
			"image_url": map[string]interface{}{"url": "data:image/png;base64," + encoded},
		})
	}
	out["content"] = parts
	return out, nil
}

// imageFiles filters attachments to images, dropping everything else
// with a warning. A non-image attachment is never an error.
func (c *Client) imageFiles(files []File) []File {
	var out []File
	for _, f := range files {
		if !f.IsImage() {
			c.logger.Warn("dropping unsupported attachment", "mime_type", f.MimeType)
			continue
		}
		out = append(out, f)
	}
	return out
}

// normalizeInline runs an inline attachment through the image
// normalizer collaborator, returning base64 PNG data.
func (c *Client) normalizeInline(ctx context.Context, f File) (string, error) {
	data, err := base64.StdEncoding.DecodeString(f.Data)
	if err != nil {
		return "", &ValidationError{SDKError: SDKError{
			Message: "attachment data is not valid base64",
			Cause:   err,
		}}
	}
	return c.images.NormalizeImage(ctx, ImageSource{Data: data, MimeType: f.MimeType})
}

// normalizeFile runs any image attachment (remote or inline) through
// the normalizer, for providers that only accept inline data.
func (c *Client) normalizeFile(ctx context.Context, f File) (string, error) {
	if f.URL != "" {
		return c.images.NormalizeImage(ctx, ImageSource{URL: f.URL, MimeType: f.MimeType})
	}
	return c.normalizeInline(ctx, f)
}

// parseChatResponse unwraps a non-streamed chat-completions envelope.
func parseChatResponse(raw map[string]interface{}, allowedNames []string) (*ParsedResponseMessage, error) {
	choices, ok := raw["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		return nil, &ProtocolError{SDKError: SDKError{
			Message: "response contains no choices",
		}}
	}
	choice, ok := choices[0].(map[string]interface{})
	if !ok {
		return nil, &ProtocolError{SDKError: SDKError{Message: "malformed choice"}}
	}
	message, ok := choice["message"].(map[string]interface{})
	if !ok {
		return nil, &ProtocolError{SDKError: SDKError{Message: "choice lacks a message"}}
	}

	out := &ParsedResponseMessage{Role: RoleAssistant}

	if text, ok := message["content"].(string); ok && text != "" {
		out.Content = &text
	}

	fc, _ := message["function_call"].(map[string]interface{})
	if fc == nil {
		if calls, ok := message["tool_calls"].([]interface{}); ok && len(calls) > 0 {
			if call, ok := calls[0].(map[string]interface{}); ok {
				fc, _ = call["function"].(map[string]interface{})
			}
		}
	}
	if fc != nil {
		name, _ := fc["name"].(string)
		if !containsName(allowedNames, name) {
			return nil, &ProtocolError{SDKError: SDKError{
				Message: "model called unknown function " + name,
			}}
		}
		args := map[string]interface{}{}
		if rawArgs, ok := fc["arguments"].(string); ok && rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return nil, &ProtocolError{SDKError: SDKError{
					Message: "malformed function call arguments: " + rawArgs,
					Cause:   err,
				}}
			}
		}
		out.FunctionCall = &FunctionCall{Name: name, Arguments: args}
	}

	if out.Content == nil && out.FunctionCall == nil {
		return nil, &ProtocolError{SDKError: SDKError{
			Message: "response has neither content nor a function call",
		}}
	}
	return out, nil
}
