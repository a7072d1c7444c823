package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushAll(t *testing.T, f *chunkFramer, chunks ...string) []string {
	t.Helper()
	var out []string
	for _, c := range chunks {
		out = append(out, f.Push([]byte(c))...)
	}
	return out
}

func TestFramerSingleBuffer(t *testing.T) {
	f := &chunkFramer{}
	records := f.Push([]byte("data: {\"a\":1}\n\ndata: {\"b\":2}\n\ndata: [DONE]\n\n"))

	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, records)
	assert.True(t, f.Done())
}

func TestFramerMidRecordSplit(t *testing.T) {
	f := &chunkFramer{}
	records := pushAll(t, f,
		"data: {\"choices\":[{\"delta\":{\"con",
		"tent\":\"Hel\"}}]}\n\ndata: {\"x\":2}\n\n",
	)

	require.Len(t, records, 2)
	assert.Equal(t, `{"choices":[{"delta":{"content":"Hel"}}]}`, records[0])
	assert.Equal(t, `{"x":2}`, records[1])
}

func TestFramerMarkerSplitAcrossReads(t *testing.T) {
	f := &chunkFramer{}
	records := pushAll(t, f,
		"data: {\"a\":1}\n\nda",
		"ta: {\"b\":2}\n\n",
		"data: [DO",
		"NE]\n\n",
	)

	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, records)
	assert.True(t, f.Done())
}

func TestFramerSameRecordsRegardlessOfChunking(t *testing.T) {
	stream := "data: {\"a\":1}\n\ndata: {\"b\":\"two\"}\n\ndata: {\"c\":[3,4]}\n\ndata: {\"d\":{\"e\":5}}\n\ndata: [DONE]\n\n"

	whole := &chunkFramer{}
	expected := whole.Push([]byte(stream))
	require.Len(t, expected, 4)
	require.True(t, whole.Done())

	// Every possible two-way split, including mid-record and
	// mid-marker positions.
	for i := 0; i <= len(stream); i++ {
		f := &chunkFramer{}
		records := pushAll(t, f, stream[:i], stream[i:])
		assert.Equal(t, expected, records, "split at %d", i)
		assert.True(t, f.Done(), "split at %d", i)
	}

	// Byte-at-a-time delivery.
	f := &chunkFramer{}
	var records []string
	for i := 0; i < len(stream); i++ {
		records = append(records, f.Push([]byte{stream[i]})...)
	}
	assert.Equal(t, expected, records)
	assert.True(t, f.Done())
}

func TestFramerEmbeddedMarkerInsideJSONString(t *testing.T) {
	f := &chunkFramer{}
	records := f.Push([]byte("data: {\"content\":\"data: not a record\"}\n\ndata: [DONE]\n\n"))

	require.Len(t, records, 1)
	assert.Equal(t, `{"content":"data: not a record"}`, records[0])
	assert.True(t, f.Done())
}

func TestFramerIgnoresAfterDone(t *testing.T) {
	f := &chunkFramer{}
	f.Push([]byte("data: [DONE]\n\n"))
	require.True(t, f.Done())

	assert.Empty(t, f.Push([]byte("data: {\"late\":true}\n\n")))
}

func TestFramerDropsCompleteUnparsableRecord(t *testing.T) {
	f := &chunkFramer{}
	records := f.Push([]byte("data: not json\ndata: {\"ok\":true}\n\n"))

	assert.Equal(t, []string{`{"ok":true}`}, records)
}

func TestFramerHoldsTrailingFragmentWithoutMarker(t *testing.T) {
	f := &chunkFramer{}
	assert.Empty(t, f.Push([]byte("da")))
	assert.Empty(t, f.Push([]byte("ta: {\"a\"")))
	records := f.Push([]byte(":1}\n\n"))
	assert.Equal(t, []string{`{"a":1}`}, records)
}
