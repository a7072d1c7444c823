package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertConversationShape checks the invariants the Messages API
// enforces: user-first, strict alternation, no system role, non-assistant
// tail.
func assertConversationShape(t *testing.T, msgs []GenericMessage) {
	t.Helper()
	require.NotEmpty(t, msgs)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.NotEqual(t, RoleAssistant, msgs[len(msgs)-1].Role)
	for i, m := range msgs {
		assert.NotEqual(t, RoleSystem, m.Role, "message %d retained system role", i)
		if i > 0 {
			assert.NotEqual(t, msgs[i-1].Role, m.Role, "messages %d and %d share a role", i-1, i)
		}
	}
}

func TestNormalizeLoneAssistant(t *testing.T) {
	out := NormalizeMessages([]GenericMessage{
		{Role: RoleAssistant, Content: "hi"},
	}, NormalizeOptions{})

	require.Len(t, out, 3)
	assert.Equal(t, GenericMessage{Role: RoleUser, Content: "..."}, out[0])
	assert.Equal(t, GenericMessage{Role: RoleAssistant, Content: "hi"}, out[1])
	assert.Equal(t, GenericMessage{Role: RoleUser, Content: "..."}, out[2])
}

func TestNormalizeFoldsSystemIntoLeadingUser(t *testing.T) {
	out := NormalizeMessages([]GenericMessage{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hello"},
	}, NormalizeOptions{System: FoldSystem})

	require.Len(t, out, 1)
	assert.Equal(t, RoleUser, out[0].Role)
	assert.Equal(t, "<system>\nbe terse\n</system>\n\nhello", out[0].Content)
}

func TestNormalizeFoldsSystemWithoutUser(t *testing.T) {
	out := NormalizeMessages([]GenericMessage{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleAssistant, Content: "ok"},
	}, NormalizeOptions{System: FoldSystem})

	assertConversationShape(t, out)
	assert.Equal(t, "<system>\nbe terse\n</system>", out[0].Content)
}

func TestNormalizeDropsSystem(t *testing.T) {
	out := NormalizeMessages([]GenericMessage{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hello"},
	}, NormalizeOptions{System: DropSystem})

	require.Len(t, out, 1)
	assert.Equal(t, "hello", out[0].Content)
}

func TestNormalizeMergesConsecutive(t *testing.T) {
	out := NormalizeMessages([]GenericMessage{
		{Role: RoleUser, Content: "first"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "a"},
		{Role: RoleAssistant, Content: "b"},
		{Role: RoleUser, Content: "third"},
	}, NormalizeOptions{Alternation: MergeConsecutive})

	require.Len(t, out, 3)
	assert.Equal(t, "first\n\nsecond", out[0].Content)
	assert.Equal(t, "a\n\nb", out[1].Content)
	assert.Equal(t, "third", out[2].Content)
}

func TestNormalizeMergeCarriesFilesAndCalls(t *testing.T) {
	call := &FunctionCall{Name: "lookup", Arguments: map[string]interface{}{}}
	out := NormalizeMessages([]GenericMessage{
		{Role: RoleUser, Content: "see attached"},
		{Role: RoleUser, Files: []File{{MimeType: "image/png", Data: "aGk="}}},
		{Role: RoleAssistant, Content: ""},
		{Role: RoleAssistant, FunctionCall: call},
		{Role: RoleUser, Content: "and?"},
	}, NormalizeOptions{Alternation: MergeConsecutive})

	require.Len(t, out, 3)
	assert.Len(t, out[0].Files, 1)
	assert.Same(t, call, out[1].FunctionCall)
}

func TestNormalizeMergeLeavesCallerFilesAlone(t *testing.T) {
	// A Files slice with spare capacity shares its backing array with
	// the caller; merging must not write through it.
	backing := make([]File, 1, 2)
	backing[0] = File{MimeType: "image/png", Data: "aGk="}
	sentinel := File{MimeType: "image/gif", Data: "c2VudGluZWw="}
	_ = append(backing, sentinel)

	out := NormalizeMessages([]GenericMessage{
		{Role: RoleUser, Content: "first", Files: backing},
		{Role: RoleUser, Content: "second", Files: []File{{MimeType: "image/jpeg", Data: "bQ=="}}},
	}, NormalizeOptions{Alternation: MergeConsecutive})

	require.Len(t, out, 1)
	assert.Len(t, out[0].Files, 2)
	assert.Equal(t, "image/jpeg", out[0].Files[1].MimeType)
	// The caller's spare slot still holds what the caller put there.
	assert.Equal(t, sentinel, backing[:2][1])
}

func TestNormalizeInsertsPlaceholders(t *testing.T) {
	out := NormalizeMessages([]GenericMessage{
		{Role: RoleUser, Content: "first"},
		{Role: RoleUser, Content: "second"},
	}, NormalizeOptions{Alternation: InsertPlaceholders})

	require.Len(t, out, 4)
	assert.Equal(t, "first", out[0].Content)
	assert.Equal(t, GenericMessage{Role: RoleAssistant, Content: "..."}, out[1])
	assert.Equal(t, "second", out[2].Content)
	assert.Equal(t, GenericMessage{Role: RoleUser, Content: "..."}, out[3])
}

func TestNormalizeEmptyInput(t *testing.T) {
	out := NormalizeMessages(nil, NormalizeOptions{})
	require.Len(t, out, 1)
	assert.Equal(t, GenericMessage{Role: RoleUser, Content: "..."}, out[0])
}

func TestNormalizeInvariantsHoldForArbitrarySequences(t *testing.T) {
	roles := []Role{RoleSystem, RoleUser, RoleAssistant}
	for _, mode := range []AlternationMode{MergeConsecutive, InsertPlaceholders} {
		for _, sys := range []SystemHandling{FoldSystem, DropSystem} {
			// Every role sequence of length three.
			for _, a := range roles {
				for _, b := range roles {
					for _, c := range roles {
						in := []GenericMessage{
							{Role: a, Content: "a"},
							{Role: b, Content: "b"},
							{Role: c, Content: "c"},
						}
						out := NormalizeMessages(in, NormalizeOptions{Alternation: mode, System: sys})
						assertConversationShape(t, out)
					}
				}
			}
		}
	}
}
