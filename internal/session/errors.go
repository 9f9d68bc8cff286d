package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL is returned when the request URL is not absolute http(s).
	ErrInvalidURL = errors.New("invalid request URL")

	// ErrMissingGenerator is returned by New when no identity generator is given.
	ErrMissingGenerator = errors.New("session requires an identity generator")

	// ErrMissingTransport is returned by New when no transport is given.
	ErrMissingTransport = errors.New("session requires a transport")
)

// TransportError reports a connection-level failure that survived the
// retry policy. It wraps the last underlying error.
type TransportError struct {
	// URL is the requested URL.
	URL string

	// Attempts is the number of attempts made.
	Attempts int

	// Proxy is the redacted proxy used, empty for direct connections.
	Proxy string

	// Err is the last transport error.
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	via := ""
	if e.Proxy != "" {
		via = " via " + e.Proxy
	}
	return fmt.Sprintf("transport error for %s%s after %d attempt(s): %v", e.URL, via, e.Attempts, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
