package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransport matches every failure returned by Client.Send.
var ErrTransport = errors.New("transport error")

// Error is returned when the server answered with a non-2xx status.
type Error struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *Error) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Method, e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
}

func (e *Error) Is(target error) bool {
	return target == ErrTransport
}

// Retryable reports whether the same request may succeed later. Server
// errors, timeouts and rate limiting are retryable; other client errors are
// rejected deterministically.
func (e *Error) Retryable() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}
