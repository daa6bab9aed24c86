package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(t *testing.T, r *LineReassembler, chunks ...[]byte) []string {
	t.Helper()
	var lines []string
	for _, chunk := range chunks {
		lines = append(lines, r.Feed(chunk)...)
	}
	return lines
}

func TestLineReassemblerSplitsOnNewline(t *testing.T) {
	r := &LineReassembler{}
	lines := r.Feed([]byte("one\ntwo\nthree"))
	assert.Equal(t, []string{"one", "two"}, lines)
	assert.Equal(t, "three", r.Rest())
}

func TestLineReassemblerStripsCarriageReturn(t *testing.T) {
	r := &LineReassembler{}
	lines := r.Feed([]byte("alpha\r\nbeta\r\n"))
	assert.Equal(t, []string{"alpha", "beta"}, lines)
	assert.Empty(t, r.Rest())
}

func TestLineReassemblerRetainsPartialAcrossFeeds(t *testing.T) {
	r := &LineReassembler{}
	assert.Empty(t, r.Feed([]byte(`{"delta":{"con`)))
	lines := r.Feed([]byte("tent\":\"hi\"}}\n"))
	require.Len(t, lines, 1)
	assert.Equal(t, `{"delta":{"content":"hi"}}`, lines[0])
}

// Chunk boundaries are arbitrary, including mid multi-byte character. The
// reassembled lines must be identical for every possible split point.
func TestLineReassemblerAnySplitPoint(t *testing.T) {
	payload := []byte("{\"delta\":{\"content\":\"héllo wörld\"}}\nsecond line\nrest")
	want := []string{`{"delta":{"content":"héllo wörld"}}`, "second line"}

	for cut := 0; cut <= len(payload); cut++ {
		r := &LineReassembler{}
		lines := feedAll(t, r, payload[:cut], payload[cut:])
		assert.Equal(t, want, lines, "split at byte %d", cut)
		assert.Equal(t, "rest", r.Rest(), "split at byte %d", cut)
	}
}

func TestLineReassemblerRestResetsBuffer(t *testing.T) {
	r := &LineReassembler{}
	r.Feed([]byte("dangling"))
	assert.Equal(t, "dangling", r.Rest())
	assert.Empty(t, r.Rest())
	assert.Equal(t, []string{"fresh"}, r.Feed([]byte("fresh\n")))
}

func TestLineReassemblerEmptyChunk(t *testing.T) {
	r := &LineReassembler{}
	assert.Nil(t, r.Feed(nil))
	assert.Nil(t, r.Feed([]byte{}))
}
