package chatclient

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConcurrentStream rejects a send while another exchange is awaiting or streaming.
	ErrConcurrentStream = errors.New("an exchange is already in flight")

	// ErrInvariantViolation signals broken internal state. It is a programmer error.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrStreamDropped is reported when the stream ends before the completion event.
	ErrStreamDropped = errors.New("stream closed before completion")
)

// MalformedEventError wraps a stream payload the codec could not decode.
type MalformedEventError struct {
	Payload string
	Err     error
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed stream event %q: %v", truncate(e.Payload, 120), e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// RemoteError is an error event pushed by the backend inside the stream.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "backend error: " + e.Message
}

func invariantf(format string, args ...any) error {
	return errors.Wrapf(ErrInvariantViolation, format, args...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
