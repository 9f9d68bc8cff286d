// Package transport performs single HTTP exchanges for a fetch session.
//
// The session layer owns retries, pacing and proxy health; a transport only
// connects, sends one request and returns the decoded response. The Doer
// interface is the seam between the two, and tests substitute their own.
//
// HTTPTransport is the default implementation. It:
//   - presents a TLS ClientHello matching the profile's browser family
//     (uTLS) on direct and SOCKS5 routes
//   - dials SOCKS5 proxies with golang.org/x/net/proxy and tunnels through
//     HTTP(S) proxies with CONNECT
//   - decodes gzip, deflate, br and zstd bodies, since profiles advertise them
//   - caps the decoded body at a configurable size
//
// Design decision: One http.Transport is cached per (proxy, fingerprint,
// TLS verification) triple. Connection reuse then never crosses an identity
// boundary: a connection negotiated with a Firefox ClientHello is not reused
// for a request carrying a Chrome User-Agent.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/stealthfetch/internal/identity"
	"github.com/nao1215/stealthfetch/internal/model"
	"github.com/nao1215/stealthfetch/internal/proxypool"
)

// DefaultMaxBodySize is the decoded body cap.
const DefaultMaxBodySize = 10 * 1024 * 1024

// defaultDialTimeout bounds TCP connects when no request timeout applies.
const defaultDialTimeout = 30 * time.Second

// ErrUnsupportedProxy is returned for proxy protocols the transport cannot dial.
var ErrUnsupportedProxy = errors.New("unsupported proxy protocol")

// Request is one outbound exchange.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Timeout bounds the whole exchange including body read. Zero means none.
	Timeout time.Duration

	// Proxy routes the request; nil connects directly.
	Proxy *proxypool.Entry

	// Fingerprint selects the ClientHello. Empty uses Go's default TLS stack.
	Fingerprint identity.TLSFingerprint

	// InsecureSkipVerify disables certificate verification.
	InsecureSkipVerify bool

	// Jar stores and sends cookies. Nil disables cookies.
	Jar http.CookieJar
}

// Doer performs one exchange.
type Doer interface {
	Do(ctx context.Context, req *Request) (*model.Response, error)
}

type transportKey struct {
	proxy       string
	fingerprint identity.TLSFingerprint
	insecure    bool
}

// HTTPTransport is the default Doer. It is safe for concurrent use.
type HTTPTransport struct {
	mu          sync.Mutex
	transports  map[transportKey]*http.Transport
	maxBodySize int64
	dialer      *net.Dialer
	logger      *slog.Logger
}

// Option configures an HTTPTransport.
type Option func(*HTTPTransport)

// WithMaxBodySize sets the decoded body cap. Values <= 0 are ignored.
func WithMaxBodySize(n int64) Option {
	return func(t *HTTPTransport) {
		if n > 0 {
			t.maxBodySize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewHTTPTransport creates a transport.
func NewHTTPTransport(opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		transports:  make(map[transportKey]*http.Transport),
		maxBodySize: DefaultMaxBodySize,
		dialer:      &net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do sends req and returns the decoded response.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*model.Response, error) {
	rt, err := t.roundTripper(req)
	if err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}

	client := &http.Client{Transport: rt, Jar: req.Jar}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, truncated, err := readBody(resp, t.maxBodySize)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if truncated {
		t.logger.Debug("response body truncated", "url", req.URL, "limit", t.maxBodySize)
	}

	out := &model.Response{
		URL:        req.URL,
		Method:     method,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Elapsed:    time.Since(start),
		Attempts:   1,
	}
	if req.Proxy != nil {
		out.Proxy = req.Proxy.String()
	}
	return out, nil
}

// Close releases idle connections held by every cached transport.
func (t *HTTPTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tr := range t.transports {
		tr.CloseIdleConnections()
	}
}

func (t *HTTPTransport) roundTripper(req *Request) (*http.Transport, error) {
	key := transportKey{fingerprint: req.Fingerprint, insecure: req.InsecureSkipVerify}
	if req.Proxy != nil {
		key.proxy = req.Proxy.URL().String()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.transports[key]; ok {
		return tr, nil
	}

	tr, err := t.newTransport(req)
	if err != nil {
		return nil, err
	}
	t.transports[key] = tr
	return tr, nil
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func (t *HTTPTransport) newTransport(req *Request) (*http.Transport, error) {
	tr := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: req.InsecureSkipVerify, //nolint:gosec // user toggle
			MinVersion:         tls.VersionTLS12,
		},
	}

	dial := dialFunc(t.dialer.DialContext)
	entry := req.Proxy
	switch {
	case entry == nil:
	case entry.Protocol == proxypool.SOCKS5 || entry.Protocol == proxypool.SOCKS5H:
		d, err := proxy.FromURL(entry.URL(), t.dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("%w: %s dialer lacks context support", ErrUnsupportedProxy, entry.Protocol)
		}
		dial = cd.DialContext
	case entry.Protocol == proxypool.HTTP || entry.Protocol == proxypool.HTTPS:
		// CONNECT tunnel; the ClientHello is sent by net/http after the
		// tunnel is up, so uTLS does not apply on this route.
		tr.Proxy = http.ProxyURL(entry.URL())
		return tr, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProxy, entry.Protocol)
	}

	tr.DialContext = dial
	if req.Fingerprint != "" {
		tr.DialTLSContext = dialUTLS(dial, req.Fingerprint, req.InsecureSkipVerify)
	}
	return tr, nil
}
