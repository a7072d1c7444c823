package llm

import "strings"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// File is a single attachment. Exactly one of URL or Data is set.
type File struct {
	// MimeType is the declared media type, e.g. "image/png".
	MimeType string
	// URL is a remote reference to the file contents.
	URL string
	// Data holds inline base64-encoded file contents.
	Data string
}

// IsImage reports whether the declared mime type is image/*.
func (f File) IsImage() bool {
	return strings.HasPrefix(f.MimeType, "image/")
}

// FunctionCall is a normalized function invocation. Arguments arrive from
// the wire as a JSON-encoded string (OpenAI-compatible providers) or as
// already-structured data (Anthropic, Google); both forms normalize here.
type FunctionCall struct {
	Name      string
	Arguments map[string]interface{}
}

// FunctionDef describes one callable function offered to the model.
type FunctionDef struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object.
	Parameters map[string]interface{}
}

// GenericMessage is one turn in a conversation.
type GenericMessage struct {
	Role    Role
	Content string
	// Files are optional attachments, in order.
	Files []File
	// FunctionCall records a prior function invocation by the assistant.
	FunctionCall *FunctionCall
}

// FunctionCallDirective controls whether the model may call functions.
type FunctionCallDirective string

const (
	// FunctionCallAuto lets the model decide.
	FunctionCallAuto FunctionCallDirective = "auto"
	// FunctionCallNone forbids function calls.
	FunctionCallNone FunctionCallDirective = "none"
)

// GenericRequest is the provider-agnostic request shape. It is never
// mutated by the library; the retry controller and translators work on
// copies.
type GenericRequest struct {
	Model        Model
	Messages     []GenericMessage
	Functions    []FunctionDef
	FunctionCall FunctionCallDirective
	Temperature  *float64
}

// clone returns a copy safe for mutation across retry attempts. Message
// and function slices are copied shallowly; remediation only rewrites
// whole elements, never their internals.
func (r GenericRequest) clone() GenericRequest {
	out := r
	out.Messages = make([]GenericMessage, len(r.Messages))
	copy(out.Messages, r.Messages)
	out.Functions = make([]FunctionDef, len(r.Functions))
	copy(out.Functions, r.Functions)
	if r.Temperature != nil {
		t := *r.Temperature
		out.Temperature = &t
	}
	return out
}

// functionNames returns the allow-list of callable function names.
func (r GenericRequest) functionNames() []string {
	names := make([]string, 0, len(r.Functions))
	for _, f := range r.Functions {
		names = append(names, f.Name)
	}
	return names
}

// ParsedResponseMessage is the normalized response shape. At least one of
// Content and FunctionCall is always non-nil; a response with neither is
// a protocol violation and is never returned.
type ParsedResponseMessage struct {
	Role         Role
	Content      *string
	FunctionCall *FunctionCall
}

// Text returns the content, or "" when the response carried none.
func (m *ParsedResponseMessage) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}
