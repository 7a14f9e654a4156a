package transport

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrAuthExpired is returned (wrapped) when the backend answers 401. The client has
// already cleared its credentials and fired the auth-expired handler by then.
var ErrAuthExpired = errors.New("authentication expired")

// ErrStreamClosed is returned by Stream.Next after Close has been called.
var ErrStreamClosed = errors.New("stream closed")

// Error describes a failed request: either the network round trip failed (Err set,
// StatusCode zero) or the backend answered with a non-2xx status.
type Error struct {
	Op         string
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		msg := fmt.Sprintf("%s %s %s: status %d", e.Op, e.Method, e.Path, e.StatusCode)
		if e.Body != "" {
			msg += ": " + e.Body
		}
		return msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s %s failed", e.Op, e.Method, e.Path)
}

func (e *Error) Unwrap() error { return e.Err }

// IsAuthExpired reports whether err stems from a 401 answer.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

// IsNotFound reports whether err is a transport error carrying a 404 status.
func IsNotFound(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.StatusCode == http.StatusNotFound
	}
	return false
}

// IsTransportError reports whether err is (or wraps) a *Error.
func IsTransportError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}
