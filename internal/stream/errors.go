package stream

import (
	"errors"
	"fmt"
)

// ErrorKind classifies terminal stream failures. Malformed lines and
// argument parse failures are recovered in place and never become one of
// these.
type ErrorKind string

const (
	// ErrorKindTransport covers connection failures and non-2xx responses
	// observed before any decoding.
	ErrorKindTransport ErrorKind = "transport"
	// ErrorKindStallTimeout fires when no byte arrives within the stall
	// window before any data has been received.
	ErrorKindStallTimeout ErrorKind = "stall_timeout"
	// ErrorKindNoContent means the stream ended cleanly with zero content
	// and zero tool calls despite a 2xx status.
	ErrorKindNoContent ErrorKind = "no_content"
)

// Error is a terminal stream failure surfaced to the sink.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream %s: %v", e.Kind, e.Err)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("stream %s: status %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("stream %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage returns the user-facing description for the failure. Each kind
// has a distinct message so callers can render something actionable.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case ErrorKindStallTimeout:
		return "The assistant took too long to respond. Please try again."
	case ErrorKindNoContent:
		return "No response was received from the assistant. Please try again."
	case ErrorKindTransport:
		if e.StatusCode > 0 {
			return fmt.Sprintf("The server returned an error (status %d). Please try again later.", e.StatusCode)
		}
		return "Could not connect to the assistant. Please check your connection and try again."
	}
	return "Something went wrong while connecting to the assistant. Please try again."
}

// AsStreamError unwraps err into *Error if it is one.
func AsStreamError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
