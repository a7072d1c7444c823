package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultGoogleBaseURL = "https://generativelanguage.googleapis.com"

// GoogleConfig configures the Google Generative AI path.
type GoogleConfig struct {
	APIKey  string
	BaseURL string
}

// googleCall performs one non-streamed generateContent attempt.
func (c *Client) googleCall(ctx context.Context, req GenericRequest) (*ParsedResponseMessage, error) {
	if c.cfg.Google.APIKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "google api key is required",
		}}
	}

	body, err := c.buildGoogleBody(ctx, req)
	if err != nil {
		return nil, err
	}

	base := c.cfg.Google.BaseURL
	if base == "" {
		base = defaultGoogleBaseURL
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimRight(base, "/"), req.Model, c.cfg.Google.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "failed to create request", Cause: err}}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{SDKError: SDKError{Message: "request failed", Cause: err}}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, buildErrorFromResponse(resp, ProviderGoogle)
	}

	return parseGoogleResponse(resp.Body, req.functionNames())
}

func (c *Client) buildGoogleBody(ctx context.Context, req GenericRequest) ([]byte, error) {
	body := map[string]interface{}{}

	var systemParts []interface{}
	var contents []interface{}

	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			if msg.Content != "" {
				systemParts = append(systemParts, map[string]interface{}{"text": msg.Content})
			}
			continue
		}
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		parts, err := c.translateGoogleParts(ctx, msg)
		if err != nil {
			return nil, err
		}
		contents = append(contents, map[string]interface{}{
			"role":  role,
			"parts": parts,
		})
	}

	if len(systemParts) > 0 {
		body["systemInstruction"] = map[string]interface{}{"parts": systemParts}
	}
	body["contents"] = contents

	if len(req.Functions) > 0 && req.FunctionCall != FunctionCallNone {
		var decls []interface{}
		for _, fd := range req.Functions {
			decls = append(decls, map[string]interface{}{
				"name":        fd.Name,
				"description": fd.Description,
				"parameters":  fd.Parameters,
			})
		}
		body["tools"] = []interface{}{
			map[string]interface{}{"functionDeclarations": decls},
		}
		if req.FunctionCall != "" && req.FunctionCall != FunctionCallAuto {
			body["toolConfig"] = map[string]interface{}{
				"functionCallingConfig": map[string]interface{}{
					"mode":                 "ANY",
					"allowedFunctionNames": []string{string(req.FunctionCall)},
				},
			}
		}
	}

	if req.Temperature != nil {
		body["generationConfig"] = map[string]interface{}{
			"temperature": *req.Temperature,
		}
	}

	return json.Marshal(body)
}

func (c *Client) translateGoogleParts(ctx context.Context, msg GenericMessage) ([]interface{}, error) {
	var parts []interface{}
	if msg.Content != "" {
		parts = append(parts, map[string]interface{}{"text": msg.Content})
	}

	for _, f := range c.imageFiles(msg.Files) {
		// Google takes inline data; remote sources go through the
		// normalizer collaborator.
		encoded, err := c.normalizeFile(ctx, f)
		if err != nil {
			return nil, err
		}
		parts = append(parts, map[string]interface{}{
			"inlineData": map[string]interface{}{
				"mimeType": "image/png",
				"data":     encoded,
			},
		})
	}

	if msg.FunctionCall != nil && msg.Role == RoleAssistant {
		parts = append(parts, map[string]interface{}{
			"functionCall": map[string]interface{}{
				"name": msg.FunctionCall.Name,
				"args": msg.FunctionCall.Arguments,
			},
		})
	}

	if len(parts) == 0 {
		parts = append(parts, map[string]interface{}{"text": ""})
	}
	return parts, nil
}

// parseGoogleResponse unwraps a generateContent envelope. Function-call
// arguments arrive already structured and normalize directly to the
// common mapping shape.
func parseGoogleResponse(r io.Reader, allowedNames []string) (*ParsedResponseMessage, error) {
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

	candidates, ok := raw["candidates"].([]interface{})
	if !ok || len(candidates) == 0 {
		return nil, &ProtocolError{SDKError: SDKError{
			Message: "response contains no candidates",
		}}
	}
	candidate, ok := candidates[0].(map[string]interface{})
	if !ok {
		return nil, &ProtocolError{SDKError: SDKError{Message: "malformed candidate"}}
	}
	content, _ := candidate["content"].(map[string]interface{})
	parts, _ := content["parts"].([]interface{})

	out := &ParsedResponseMessage{Role: RoleAssistant}
	var text strings.Builder

	for _, p := range parts {
		part, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if t, ok := part["text"].(string); ok {
			text.WriteString(t)
			continue
		}
		if fc, ok := part["functionCall"].(map[string]interface{}); ok {
			if out.FunctionCall != nil {
				continue
			}
			name, _ := fc["name"].(string)
			if !containsName(allowedNames, name) {
				return nil, &ProtocolError{SDKError: SDKError{
					Message: "model called unknown function " + name,
				}}
			}
			args, ok := fc["args"].(map[string]interface{})
			if !ok {
				args = map[string]interface{}{}
			}
			out.FunctionCall = &FunctionCall{Name: name, Arguments: args}
			continue
		}
		return nil, &ProtocolError{SDKError: SDKError{
			Message: "candidate part lacks a recognized type",
		}}
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
