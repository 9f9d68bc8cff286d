package proxypool

import "errors"

// Proxy specification errors.
// Every parse failure wraps ErrInvalidSpec so callers can test for it with a
// single errors.Is check, and additionally wraps a more specific cause where
// one exists.
var (
	// ErrInvalidSpec is returned when a proxy line cannot be parsed.
	ErrInvalidSpec = errors.New("invalid proxy specification")

	// ErrUnknownProtocol is returned when the scheme is not one of
	// http, https, socks4, socks5 or socks5h.
	ErrUnknownProtocol = errors.New("unknown proxy protocol")

	// ErrInvalidPort is returned when the port is missing, not numeric, or
	// outside 1-65535.
	ErrInvalidPort = errors.New("invalid proxy port")
)
