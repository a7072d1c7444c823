package llm

import (
	"encoding/json"
	"strings"
)

const (
	// recordMarker is the literal prefix preceding every record in the
	// line-oriented streaming format.
	recordMarker = "data:"
	// doneSentinel is the terminal record signaling end of stream.
	doneSentinel = "[DONE]"
)

// chunkFramer decodes a raw byte stream into complete JSON records. Each
// pushed buffer may contain zero, one, or many records, and may end
// mid-record; a trailing fragment that does not yet parse as complete
// JSON is held and prepended to the next buffer before re-splitting, so
// every record is parsed exactly once regardless of how the transport
// chunked its reads.
type chunkFramer struct {
	leftover string
	done     bool
}

// Done reports whether the terminal sentinel has been observed.
func (f *chunkFramer) Done() bool { return f.done }

// Push feeds the next raw buffer and returns the complete records it
// completed, in order. After the terminal sentinel is seen, Push returns
// nothing further.
func (f *chunkFramer) Push(buf []byte) []string {
	if f.done {
		return nil
	}

	rest := f.leftover + string(buf)
	f.leftover = ""

	var records []string
	for {
		start := markerIndex(rest, 0)
		if start < 0 {
			// No marker yet: could be a partial marker split across
			// reads, or inter-record noise. Hold it either way.
			f.leftover = rest
			return records
		}

		payloadStart := start + len(recordMarker)
		next := markerIndex(rest, payloadStart)

		if next < 0 {
			payload := strings.TrimSpace(rest[payloadStart:])
			if payload == doneSentinel {
				f.done = true
				return records
			}
			if json.Valid([]byte(payload)) {
				records = append(records, payload)
				return records
			}
			// Trailing fragment: hold, marker included, for re-splitting.
			f.leftover = rest[start:]
			return records
		}

		payload := strings.TrimSpace(rest[payloadStart:next])
		if payload == doneSentinel {
			f.done = true
			return records
		}
		if json.Valid([]byte(payload)) {
			records = append(records, payload)
		}
		// A complete-but-unparsable record between two markers is
		// dropped; only the trailing fragment is recoverable.
		rest = rest[next:]
	}
}

// markerIndex returns the index of the next record marker at or after
// from, considering only markers at the start of a line. JSON payloads
// cannot contain a raw newline, so a mid-payload "data:" can never be
// mistaken for a record boundary.
func markerIndex(s string, from int) int {
	for i := from; ; {
		j := strings.Index(s[i:], recordMarker)
		if j < 0 {
			return -1
		}
		idx := i + j
		if idx == 0 || s[idx-1] == '\n' {
			return idx
		}
		i = idx + len(recordMarker)
	}
}
