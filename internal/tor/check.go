package tor

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/stealthfetch/internal/proxypool"
)

// DefaultCheckTimeout bounds one proxy check, connection included.
const DefaultCheckTimeout = 5 * time.Second

// SOCKS5 protocol constants
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5AuthUserPass  = 0x02
	socks5AuthNoAccept  = 0xFF
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03
	userPassVersion     = 0x01
	userPassSuccess     = 0x00

	// defaultProbeHost is the CONNECT target used to prove the proxy relays.
	// The proxy's reply code does not matter, only that it replied.
	defaultProbeHost = "example.com"
	defaultProbePort = 80
)

// checkConfig holds CheckSOCKS5 options.
type checkConfig struct {
	timeout   time.Duration
	probeHost string
	probePort uint16
}

// CheckOption configures CheckSOCKS5.
type CheckOption func(*checkConfig)

// WithCheckTimeout sets the per-check timeout.
func WithCheckTimeout(d time.Duration) CheckOption {
	return func(c *checkConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithProbeTarget sets the CONNECT target sent after the handshake.
func WithProbeTarget(host string, port uint16) CheckOption {
	return func(c *checkConfig) {
		if host != "" && len(host) <= 255 {
			c.probeHost = host
			c.probePort = port
		}
	}
}

// CheckSOCKS5 verifies that entry is a working SOCKS5 proxy.
//
// The check performs the SOCKS5 method negotiation, the username/password
// subnegotiation when the entry carries credentials, and one CONNECT
// request. Any CONNECT reply, success or failure, counts as OK: it shows
// the proxy processed the request.
//
// Entries that are not socks5 or socks5h return ProxyStatusUnsupported
// without any network traffic.
func CheckSOCKS5(ctx context.Context, entry *proxypool.Entry, opts ...CheckOption) ProxyStatus {
	if entry == nil || (entry.Protocol != proxypool.SOCKS5 && entry.Protocol != proxypool.SOCKS5H) {
		return ProxyStatusUnsupported
	}

	cfg := checkConfig{
		timeout:   DefaultCheckTimeout,
		probeHost: defaultProbeHost,
		probePort: defaultProbePort,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", entry.Address())
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return ProxyStatusCannotConnect
	}

	// Method negotiation: version, method count, methods.
	greeting := []byte{socks5Version, 0x01, socks5AuthNone}
	if entry.HasCredentials() {
		greeting = []byte{socks5Version, 0x02, socks5AuthNone, socks5AuthUserPass}
	}
	if _, err := conn.Write(greeting); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		return readFailure(err)
	}
	if authResp[0] != socks5Version {
		return ProxyStatusWrongType
	}

	switch authResp[1] {
	case socks5AuthNone:
	case socks5AuthUserPass:
		if !entry.HasCredentials() {
			return ProxyStatusWrongType
		}
		if status := authenticate(conn, entry.Username, entry.Password); status != ProxyStatusOK {
			return status
		}
	case socks5AuthNoAccept:
		return ProxyStatusAuthRejected
	default:
		return ProxyStatusWrongType
	}

	// CONNECT: version, command, reserved, address type, address, port.
	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00,
		socks5AddrTypeDomID,
		byte(len(cfg.probeHost)),
	}
	connectReq = append(connectReq, cfg.probeHost...)
	connectReq = append(connectReq, byte(cfg.probePort>>8), byte(cfg.probePort&0xFF))

	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	// Only the fixed part of the reply is needed.
	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		return readFailure(err)
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

// authenticate runs the RFC 1929 username/password subnegotiation.
func authenticate(conn net.Conn, username, password string) ProxyStatus {
	if len(username) > 255 || len(password) > 255 {
		return ProxyStatusAuthRejected
	}
	req := []byte{userPassVersion, byte(len(username))}
	req = append(req, username...)
	req = append(req, byte(len(password)))
	req = append(req, password...)
	if _, err := conn.Write(req); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return readFailure(err)
	}
	if resp[1] != userPassSuccess {
		return ProxyStatusAuthRejected
	}
	return ProxyStatusOK
}

// readFailure maps a handshake read error to a status. A short or garbled
// reply means the peer is not speaking SOCKS5.
func readFailure(err error) ProxyStatus {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ProxyStatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ProxyStatusTimeout
	}
	return ProxyStatusWrongType
}

// CheckResult pairs an entry with its check status.
type CheckResult struct {
	Entry  *proxypool.Entry
	Status ProxyStatus
}

// CheckPool checks every entry of pool with at most workers checks in
// flight. Results keep the pool's entry order. Non-SOCKS5 entries are
// reported as ProxyStatusUnsupported.
func CheckPool(ctx context.Context, pool *proxypool.Pool, workers int, opts ...CheckOption) []CheckResult {
	entries := pool.Entries()
	results := make([]CheckResult, len(entries))
	if workers <= 0 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, e := range entries {
		g.Go(func() error {
			results[i] = CheckResult{Entry: e, Status: CheckSOCKS5(ctx, e, opts...)}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
