package llm

import "strings"

// The Anthropic Messages API enforces a strict turn-taking contract:
// messages must alternate user/assistant, start with user, and carry no
// system role. NormalizeMessages repairs an arbitrary sequence to
// satisfy it.

// placeholderContent is the minimal content used for synthesized
// messages.
const placeholderContent = "..."

// mergeSeparator joins content blocks when consecutive same-role
// messages are merged.
const mergeSeparator = "\n\n"

// systemWrapperOpen and systemWrapperClose frame folded system content
// inside the leading user message.
const (
	systemWrapperOpen  = "<system>\n"
	systemWrapperClose = "\n</system>"
)

// AlternationMode selects how consecutive same-role messages are
// repaired.
type AlternationMode int

const (
	// MergeConsecutive concatenates same-role runs into one message,
	// joining content with a separator marker.
	MergeConsecutive AlternationMode = iota
	// InsertPlaceholders inserts a synthetic opposite-role message
	// between same-role neighbors.
	InsertPlaceholders
)

// SystemHandling selects what happens to system-role messages.
type SystemHandling int

const (
	// FoldSystem folds system content into a leading user message,
	// wrapped in an explicit framing marker.
	FoldSystem SystemHandling = iota
	// DropSystem discards system messages.
	DropSystem
)

// NormalizeOptions configures NormalizeMessages.
type NormalizeOptions struct {
	Alternation AlternationMode
	System      SystemHandling
}

// NormalizeMessages returns a sequence satisfying the alternation and
// boundary-role invariants: no system messages remain, the first message
// is user-role, no two consecutive messages share a role, and the last
// message is not assistant-role. Fixups run in that order.
func NormalizeMessages(msgs []GenericMessage, opts NormalizeOptions) []GenericMessage {
	out := fixSystem(msgs, opts.System)

	if len(out) == 0 || out[0].Role != RoleUser {
		out = append([]GenericMessage{{Role: RoleUser, Content: placeholderContent}}, out...)
	}

	out = fixAlternation(out, opts.Alternation)

	if out[len(out)-1].Role == RoleAssistant {
		out = append(out, GenericMessage{Role: RoleUser, Content: placeholderContent})
	}

	return out
}

func fixSystem(msgs []GenericMessage, mode SystemHandling) []GenericMessage {
	var system []string
	out := make([]GenericMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if mode == FoldSystem && m.Content != "" {
				system = append(system, m.Content)
			}
			continue
		}
		out = append(out, m)
	}

	if len(system) == 0 {
		return out
	}

	folded := systemWrapperOpen + strings.Join(system, mergeSeparator) + systemWrapperClose
	if len(out) > 0 && out[0].Role == RoleUser {
		first := out[0]
		first.Content = folded + mergeSeparator + first.Content
		out[0] = first
		return out
	}
	return append([]GenericMessage{{Role: RoleUser, Content: folded}}, out...)
}

func fixAlternation(msgs []GenericMessage, mode AlternationMode) []GenericMessage {
	if len(msgs) <= 1 {
		return msgs
	}

	out := make([]GenericMessage, 0, len(msgs))
	for _, m := range msgs {
		if len(out) == 0 {
			out = append(out, m)
			continue
		}
		last := &out[len(out)-1]
		if last.Role != m.Role {
			out = append(out, m)
			continue
		}
		switch mode {
		case MergeConsecutive:
			if last.Content == "" {
				last.Content = m.Content
			} else if m.Content != "" {
				last.Content = last.Content + mergeSeparator + m.Content
			}
			if len(m.Files) > 0 {
				// Never append into the caller's backing array.
				last.Files = append(append([]File(nil), last.Files...), m.Files...)
			}
			if m.FunctionCall != nil {
				last.FunctionCall = m.FunctionCall
			}
		case InsertPlaceholders:
			out = append(out, GenericMessage{Role: oppositeRole(m.Role), Content: placeholderContent}, m)
		}
	}
	return out
}

func oppositeRole(r Role) Role {
	if r == RoleUser {
		return RoleAssistant
	}
	return RoleUser
}
