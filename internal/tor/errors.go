package tor

import "errors"

// Egress errors.
//
// Design decision: We define specific error values rather than wrapping all
// errors generically, so callers can tell a dead proxy from a wrong one.
var (
	// ErrNotSOCKS5 is returned when the proxy responds but does not speak SOCKS5.
	ErrNotSOCKS5 = errors.New("proxy does not speak SOCKS5")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// could be established.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyTimeout is returned when the proxy does not answer in time.
	ErrProxyTimeout = errors.New("timeout talking to proxy")

	// ErrAuthRejected is returned when the proxy refuses the offered
	// authentication methods or the supplied credentials.
	ErrAuthRejected = errors.New("proxy rejected authentication")

	// ErrUnsupportedProtocol is returned for entries that are not SOCKS5.
	ErrUnsupportedProtocol = errors.New("entry is not a SOCKS5 proxy")

	// ErrTorNotRunning is returned when the embedded daemon has not been started.
	ErrTorNotRunning = errors.New("embedded Tor daemon is not running")
)

// ProxyStatus represents the result of checking a SOCKS5 proxy.
type ProxyStatus int

const (
	// ProxyStatusOK indicates the proxy completed the handshake and answered
	// a CONNECT request.
	ProxyStatusOK ProxyStatus = iota

	// ProxyStatusWrongType indicates the proxy answered but not as SOCKS5.
	ProxyStatusWrongType

	// ProxyStatusCannotConnect indicates we could not establish a connection.
	ProxyStatusCannotConnect

	// ProxyStatusTimeout indicates the connection or handshake timed out.
	ProxyStatusTimeout

	// ProxyStatusAuthRejected indicates the proxy refused our authentication.
	ProxyStatusAuthRejected

	// ProxyStatusUnsupported indicates the entry is not a SOCKS5 proxy and
	// was not checked.
	ProxyStatusUnsupported
)

// String returns a human-readable description of the proxy status.
func (s ProxyStatus) String() string {
	switch s {
	case ProxyStatusOK:
		return "OK"
	case ProxyStatusWrongType:
		return "wrong type (not SOCKS5)"
	case ProxyStatusCannotConnect:
		return "cannot connect"
	case ProxyStatusTimeout:
		return "timeout"
	case ProxyStatusAuthRejected:
		return "authentication rejected"
	case ProxyStatusUnsupported:
		return "not checked (not SOCKS5)"
	default:
		return "unknown"
	}
}

// Error returns the appropriate error for this status, or nil if OK.
func (s ProxyStatus) Error() error {
	switch s {
	case ProxyStatusOK:
		return nil
	case ProxyStatusWrongType:
		return ErrNotSOCKS5
	case ProxyStatusCannotConnect:
		return ErrProxyCannotConnect
	case ProxyStatusTimeout:
		return ErrProxyTimeout
	case ProxyStatusAuthRejected:
		return ErrAuthRejected
	case ProxyStatusUnsupported:
		return ErrUnsupportedProtocol
	default:
		return errors.New("unknown proxy status")
	}
}
