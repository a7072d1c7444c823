package llm

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// streamAccumulator folds parsed per-chunk records into accumulated text
// and accumulated function-call name and arguments. Name and arguments
// stream character-by-character across many records; accumulation is
// append-only and order-sensitive.
//
// Only the first tool-call slot (index 0) is tracked. Parallel tool
// calls in one response are a known limitation: slots beyond 0 are
// ignored, not mishandled.
type streamAccumulator struct {
	text    strings.Builder
	fnName  strings.Builder
	fnArgs  strings.Builder
	chunks  int
	skipped bool // logged once for ignored tool-call slots
	logger  *slog.Logger
}

func newStreamAccumulator(logger *slog.Logger) *streamAccumulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &streamAccumulator{logger: logger}
}

// ingest applies one parsed record. Records carrying a structured error
// payload fail the stream immediately with a provider classification;
// records with neither choices nor an error are tolerated (the first one
// is abnormal and logged, but the stream continues waiting).
func (a *streamAccumulator) ingest(record string) error {
	a.chunks++

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(record), &data); err != nil {
		return &ProtocolError{SDKError: SDKError{
			Message: "unparsable stream record",
			Cause:   err,
		}}
	}

	choices, hasChoices := data["choices"].([]interface{})
	if !hasChoices || len(choices) == 0 {
		if errPayload, ok := data["error"].(map[string]interface{}); ok {
			msg, _ := errPayload["message"].(string)
			if msg == "" {
				msg = "provider error in stream"
			}
			code, _ := errPayload["code"].(string)
			if code == "" {
				code, _ = errPayload["type"].(string)
			}
			return &ProviderError{
				SDKError: SDKError{Message: msg},
				Provider: ProviderOpenAI,
				Code:     code,
				Raw:      data,
			}
		}
		if a.chunks == 1 {
			a.logger.Warn("first stream record has no choices", "record", record)
		}
		return nil
	}

	choice, ok := choices[0].(map[string]interface{})
	if !ok {
		return nil
	}
	delta, ok := choice["delta"].(map[string]interface{})
	if !ok {
		return nil
	}

	if text, ok := delta["content"].(string); ok {
		a.text.WriteString(text)
	}

	if fc, ok := delta["function_call"].(map[string]interface{}); ok {
		a.appendCall(fc)
	}

	if calls, ok := delta["tool_calls"].([]interface{}); ok {
		for _, c := range calls {
			call, ok := c.(map[string]interface{})
			if !ok {
				continue
			}
			idx := 0.0
			if v, ok := call["index"].(float64); ok {
				idx = v
			}
			if idx != 0 {
				if !a.skipped {
					a.logger.Warn("ignoring parallel tool call", "index", int(idx))
					a.skipped = true
				}
				continue
			}
			if fn, ok := call["function"].(map[string]interface{}); ok {
				a.appendCall(fn)
			}
		}
	}

	return nil
}

func (a *streamAccumulator) appendCall(fn map[string]interface{}) {
	if name, ok := fn["name"].(string); ok {
		a.fnName.WriteString(name)
	}
	if args, ok := fn["arguments"].(string); ok {
		a.fnArgs.WriteString(args)
	}
}

// partialText returns whatever text has accumulated so far, for
// diagnostics on timeout.
func (a *streamAccumulator) partialText() string {
	return a.text.String()
}

// finalize consumes the accumulated state into a ParsedResponseMessage.
// Called exactly once, on the terminal sentinel. A JSON-parse failure of
// the fully-accumulated arguments is a hard failure at this point, as is
// a function name outside the allow-list or a response with neither text
// nor a function call.
func (a *streamAccumulator) finalize(allowedNames []string) (*ParsedResponseMessage, error) {
	msg := &ParsedResponseMessage{Role: RoleAssistant}

	if name := a.fnName.String(); name != "" {
		if !containsName(allowedNames, name) {
			return nil, &ProtocolError{SDKError: SDKError{
				Message: "model called unknown function " + name,
			}}
		}
		args := map[string]interface{}{}
		if raw := a.fnArgs.String(); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, &ProtocolError{SDKError: SDKError{
					Message: "malformed function call arguments: " + raw,
					Cause:   err,
				}}
			}
		}
		msg.FunctionCall = &FunctionCall{Name: name, Arguments: args}
	}

	if text := a.text.String(); text != "" {
		msg.Content = &text
	}

	if msg.Content == nil && msg.FunctionCall == nil {
		return nil, &ProtocolError{SDKError: SDKError{
			Message: "stream produced neither content nor a function call",
		}}
	}

	return msg, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
