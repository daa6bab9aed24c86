package stream

import (
	"bytes"
	"strings"
)

// LineReassembler turns raw byte chunks, arriving at arbitrary boundaries,
// into complete lines. Chunks may split a JSON document or even a multi-byte
// character; buffering bytes and splitting only on '\n' (which never occurs
// inside a UTF-8 multi-byte sequence) keeps decoding safe without a stateful
// text decoder. The trailing unterminated fragment is retained across feeds
// and never emitted on its own.
type LineReassembler struct {
	buf []byte
}

// Feed appends chunk to the internal buffer and returns every line completed
// by it, in order. Trailing carriage returns are stripped. No line is ever
// returned twice.
func (r *LineReassembler) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	r.buf = append(r.buf, chunk...)

	var lines []string
	for {
		idx := bytes.IndexByte(r.buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSuffix(string(r.buf[:idx]), "\r")
		r.buf = r.buf[idx+1:]
		lines = append(lines, line)
	}
	return lines
}

// Rest returns the unterminated remainder and resets the buffer. The upstream
// protocol always terminates with a newline-delimited completion marker, so a
// non-empty remainder at end of stream means a truncated tail; callers log it
// and drop it.
func (r *LineReassembler) Rest() string {
	rest := string(r.buf)
	r.buf = nil
	return rest
}
