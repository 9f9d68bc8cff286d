package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/nao1215/stealthfetch/internal/detect"
	"github.com/nao1215/stealthfetch/internal/identity"
	"github.com/nao1215/stealthfetch/internal/model"
	"github.com/nao1215/stealthfetch/internal/pacer"
	"github.com/nao1215/stealthfetch/internal/proxypool"
	"github.com/nao1215/stealthfetch/internal/retry"
	"github.com/nao1215/stealthfetch/internal/transport"
)

// Session runs requests under one rotating identity.
type Session struct {
	id         string
	generator  *identity.Generator
	doer       transport.Doer
	pool       *proxypool.Pool
	pacer      *pacer.HostPacer
	policy     *retry.Policy
	classifier *detect.Classifier
	limiter    *rate.Limiter
	hooks      []ResponseHook
	overlay    HeaderOverlay
	observer   Observer
	logger     *slog.Logger
	sleep      pacer.SleepFunc

	rotateEvery int
	timeout     time.Duration
	verifyTLS   bool
	cookies     bool

	initial *identity.Profile
	profile atomic.Pointer[identity.Profile]

	jarMu sync.Mutex
	jar   http.CookieJar

	requestCount atomic.Int64

	// rotatedAt is the request count at the last periodic rotation, so a
	// count that stays on a multiple of rotateEvery (because the following
	// requests failed) does not rotate again.
	rotatedAt atomic.Int64

	state       atomic.Int32
	lastOutcome atomic.Int32
}

// New creates a session with a freshly generated profile.
func New(gen *identity.Generator, doer transport.Doer, opts ...Option) (*Session, error) {
	if gen == nil {
		return nil, ErrMissingGenerator
	}
	if doer == nil {
		return nil, ErrMissingTransport
	}

	s := &Session{
		id:          uuid.NewString(),
		generator:   gen,
		doer:        doer,
		policy:      retry.NewPolicy(),
		classifier:  detect.NewClassifier(),
		logger:      slog.Default(),
		sleep:       pacer.Sleep,
		rotateEvery: DefaultRotateEvery,
		timeout:     DefaultTimeout,
		verifyTLS:   true,
		cookies:     true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_uuid", s.id)

	p := s.initial
	if p == nil {
		p = gen.Generate()
	}
	s.profile.Store(p)
	s.resetJar()

	return s, nil
}

// Factory builds independent sessions that share the same options.
type Factory func() (*Session, error)

// NewFactory returns a Factory. Shared collaborators passed in opts (pool,
// pacer, limiter, transport) are shared by every session it builds; each
// session gets its own profile, cookie jar and counter.
func NewFactory(gen *identity.Generator, doer transport.Doer, opts ...Option) Factory {
	return func() (*Session, error) {
		return New(gen, doer, opts...)
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Profile returns the active profile.
func (s *Session) Profile() *identity.Profile {
	return s.profile.Load()
}

// RequestCount returns the number of delivered responses so far.
func (s *Session) RequestCount() int64 {
	return s.requestCount.Load()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// LastOutcome returns the terminal state of the most recent request.
func (s *Session) LastOutcome() State {
	return State(s.lastOutcome.Load())
}

// RotateProfile replaces the active profile with a freshly generated one and
// drops cookies collected under the old identity.
func (s *Session) RotateProfile() *identity.Profile {
	p := s.generator.Generate()
	s.profile.Store(p)
	s.resetJar()
	s.logger.Debug("rotated profile", "family", p.Family.String(), "os", string(p.OS))
	return p
}

// Get issues a GET request.
func (s *Session) Get(ctx context.Context, rawURL string, opts ...RequestOption) (*model.Response, error) {
	return s.Request(ctx, http.MethodGet, rawURL, opts...)
}

// Post issues a POST request with the given body and content type.
func (s *Session) Post(ctx context.Context, rawURL, contentType string, body []byte, opts ...RequestOption) (*model.Response, error) {
	opts = append([]RequestOption{WithBody(body), WithHeader("Content-Type", contentType)}, opts...)
	return s.Request(ctx, http.MethodPost, rawURL, opts...)
}

// Request runs one request through the full lifecycle.
//
// It returns a *TransportError when no response could be obtained. A
// delivered response is returned with a nil error regardless of its status,
// including responses classified as blocked.
func (s *Session) Request(ctx context.Context, method, rawURL string, opts ...RequestOption) (*model.Response, error) {
	u, err := parseTarget(rawURL)
	if err != nil {
		return nil, err
	}

	cfg := requestConfig{header: http.Header{}, timeout: s.timeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	method = strings.ToUpper(method)

	s.maybeRotate(cfg.rotate)
	profile := s.Profile()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx, u.Host); err != nil {
			return nil, err
		}
	}

	var entry *proxypool.Entry
	if s.pool != nil {
		if e, ok := s.pool.Next(); ok {
			entry = e
		} else if s.pool.Len() > 0 {
			s.logger.Debug("no usable proxy, connecting directly", "url", u.String())
		}
	}

	req := &transport.Request{
		Method:             method,
		URL:                u.String(),
		Header:             s.buildHeaders(profile, u, cfg.header),
		Body:               cfg.body,
		Timeout:            cfg.timeout,
		Proxy:              entry,
		Fingerprint:        profile.TLS,
		InsecureSkipVerify: !s.verifyTLS,
		Jar:                s.currentJar(),
	}

	resp, attempts, err := s.dispatch(ctx, req)
	if err != nil {
		if entry != nil && ctx.Err() == nil {
			s.pool.MarkFailure(entry)
		}
		s.finish(StateFailed)
		tErr := &TransportError{URL: req.URL, Attempts: attempts, Err: err}
		if entry != nil {
			tErr.Proxy = entry.String()
		}
		return nil, tErr
	}

	if entry != nil {
		s.pool.MarkSuccess(entry)
	}
	resp.Attempts = attempts

	for _, hook := range s.hooks {
		hook(resp)
	}

	if reason, blocked := s.classifier.Reason(resp.StatusCode, resp.Text()); blocked {
		resp.Blocked = true
		s.logger.Warn("response looks blocked", "url", req.URL, "status", resp.StatusCode, "reason", reason)
		if s.pacer != nil {
			_ = s.pacer.RandomDelay(ctx)
		}
		s.RotateProfile()
		s.requestCount.Add(1)
		s.finish(StateBlocked)
		return resp, nil
	}

	s.requestCount.Add(1)
	s.finish(StateSucceeded)
	return resp, nil
}

// dispatch sends req under the retry policy and returns the final response
// or the last error, plus the number of attempts made.
func (s *Session) dispatch(ctx context.Context, req *transport.Request) (*model.Response, int, error) {
	maxAttempts := s.policy.MaxAttempts()
	s.transition(StateDispatching)

	for attempt := 1; ; attempt++ {
		resp, err := s.doer.Do(ctx, req)
		last := attempt >= maxAttempts

		if err != nil {
			if last || ctx.Err() != nil || !s.policy.RetryableError(req.Method, err) {
				return nil, attempt, err
			}
			delay := s.policy.Delay(attempt, nil)
			s.logger.Debug("retrying after transport error", "url", req.URL, "attempt", attempt, "delay", delay, "error", err)
			s.transition(StateRetrying)
			if err := s.sleep(ctx, delay); err != nil {
				return nil, attempt, err
			}
			continue
		}

		if last || !s.policy.RetryableStatus(req.Method, resp.StatusCode) {
			return resp, attempt, nil
		}
		delay := s.policy.Delay(attempt, resp.Header)
		s.logger.Debug("retrying after status", "url", req.URL, "status", resp.StatusCode, "attempt", attempt, "delay", delay)
		s.transition(StateRetrying)
		if err := s.sleep(ctx, delay); err != nil {
			return nil, attempt, err
		}
	}
}

// maybeRotate rotates when forced or when the delivered-request count is a
// positive multiple of rotateEvery not yet rotated at.
func (s *Session) maybeRotate(force bool) {
	if force {
		s.RotateProfile()
		return
	}
	if s.rotateEvery <= 0 {
		return
	}
	count := s.requestCount.Load()
	if count > 0 && count%int64(s.rotateEvery) == 0 && s.rotatedAt.Load() != count {
		s.rotatedAt.Store(count)
		s.RotateProfile()
	}
}

// buildHeaders merges header sources. Later sources win:
// profile, then Referer/Origin, then site overlay, then caller.
func (s *Session) buildHeaders(p *identity.Profile, u *url.URL, caller http.Header) http.Header {
	h := p.Headers()

	origin := u.Scheme + "://" + u.Host
	h.Set("Referer", origin+"/")
	h.Set("Origin", origin)

	if s.overlay != nil {
		for k, v := range s.overlay(u) {
			h[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
		}
	}
	for k, v := range caller {
		h[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	return h
}

func (s *Session) transition(to State) {
	from := State(s.state.Swap(int32(to)))
	if s.observer != nil && from != to {
		s.observer(from, to)
	}
}

// finish records the terminal state and returns the session to idle.
func (s *Session) finish(outcome State) {
	s.transition(outcome)
	s.lastOutcome.Store(int32(outcome))
	s.transition(StateIdle)
}

func (s *Session) resetJar() {
	s.jarMu.Lock()
	defer s.jarMu.Unlock()
	if !s.cookies {
		s.jar = nil
		return
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		s.logger.Warn("failed to create cookie jar", "error", err)
		s.jar = nil
		return
	}
	s.jar = jar
}

func (s *Session) currentJar() http.CookieJar {
	s.jarMu.Lock()
	defer s.jarMu.Unlock()
	return s.jar
}

func parseTarget(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidURL, rawURL)
	}
	return u, nil
}
