package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/stealthfetch/internal/detect"
	"github.com/nao1215/stealthfetch/internal/identity"
	"github.com/nao1215/stealthfetch/internal/model"
	"github.com/nao1215/stealthfetch/internal/pacer"
	"github.com/nao1215/stealthfetch/internal/proxypool"
	"github.com/nao1215/stealthfetch/internal/retry"
	"github.com/nao1215/stealthfetch/internal/transport"
)

// fakeDoer replays scripted outcomes and records every request.
type fakeDoer struct {
	mu       sync.Mutex
	outcomes []outcome
	requests []*transport.Request
}

type outcome struct {
	status int
	body   string
	header http.Header
	err    error
}

func (f *fakeDoer) Do(_ context.Context, req *transport.Request) (*model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	o := outcome{status: http.StatusOK, body: "<html>ok</html>"}
	if len(f.outcomes) > 0 {
		o = f.outcomes[0]
		f.outcomes = f.outcomes[1:]
	}
	if o.err != nil {
		return nil, o.err
	}
	return &model.Response{
		URL:        req.URL,
		Method:     req.Method,
		StatusCode: o.status,
		Header:     o.header,
		Body:       []byte(o.body),
		Attempts:   1,
	}, nil
}

func (f *fakeDoer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeDoer) last() *transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newGenerator(t *testing.T) *identity.Generator {
	t.Helper()
	gen, err := identity.NewGenerator(identity.WithRand(rand.New(rand.NewPCG(3, 4))))
	if err != nil {
		t.Fatal(err)
	}
	return gen
}

func newTestSession(t *testing.T, doer transport.Doer, opts ...Option) *Session {
	t.Helper()
	base := []Option{WithSleep(noSleep), WithLogger(quietLogger())}
	s, err := New(newGenerator(t), doer, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, &fakeDoer{}); !errors.Is(err, ErrMissingGenerator) {
		t.Errorf("expected ErrMissingGenerator, got %v", err)
	}
	if _, err := New(newGenerator(t), nil); !errors.Is(err, ErrMissingTransport) {
		t.Errorf("expected ErrMissingTransport, got %v", err)
	}
}

func TestRequestInvalidURL(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &fakeDoer{})
	for _, raw := range []string{"ftp://example.com", "/relative", "http://", "::bad"} {
		if _, err := s.Get(context.Background(), raw); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("Get(%q) error = %v, want ErrInvalidURL", raw, err)
		}
	}
}

func TestRequestHeaders(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{}
	overlay := func(*url.URL) http.Header {
		return http.Header{"X-Site": {"overlay"}, "Accept-Language": {"de-DE"}}
	}
	s := newTestSession(t, doer, WithHeaderOverlay(overlay))

	_, err := s.Get(context.Background(), "https://Example.com/path?q=1",
		WithHeader("Accept-Language", "fr-FR"),
		WithHeader("Referer", "https://search.example/"),
	)
	if err != nil {
		t.Fatal(err)
	}

	h := doer.last().Header
	if h.Get("User-Agent") != s.Profile().UserAgent {
		t.Errorf("User-Agent = %q", h.Get("User-Agent"))
	}
	if h.Get("Origin") != "https://Example.com" {
		t.Errorf("Origin = %q", h.Get("Origin"))
	}
	if h.Get("Referer") != "https://search.example/" {
		t.Errorf("caller Referer should win, got %q", h.Get("Referer"))
	}
	if h.Get("X-Site") != "overlay" {
		t.Errorf("overlay header missing")
	}
	if h.Get("Accept-Language") != "fr-FR" {
		t.Errorf("caller header should win over overlay, got %q", h.Get("Accept-Language"))
	}
	if doer.last().Fingerprint != s.Profile().TLS {
		t.Errorf("fingerprint not propagated")
	}
}

func TestRequestDefaultReferer(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{}
	s := newTestSession(t, doer)
	if _, err := s.Get(context.Background(), "http://host.example:8080/a/b"); err != nil {
		t.Fatal(err)
	}
	if got := doer.last().Header.Get("Referer"); got != "http://host.example:8080/" {
		t.Errorf("Referer = %q", got)
	}
}

// TestRotationEveryTen checks the profile changes exactly at nonzero
// multiples of the rotation interval.
func TestRotationEveryTen(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &fakeDoer{})
	ctx := context.Background()

	var changedAt []int64
	prev := s.Profile()
	for range 25 {
		count := s.RequestCount()
		if _, err := s.Get(ctx, "https://example.com/"); err != nil {
			t.Fatal(err)
		}
		if cur := s.Profile(); cur != prev {
			changedAt = append(changedAt, count)
			prev = cur
		}
	}
	if len(changedAt) != 2 || changedAt[0] != 10 || changedAt[1] != 20 {
		t.Errorf("profile changed before requests %v, want [10 20]", changedAt)
	}
}

func TestRotationNotRepeatedAfterFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("refused")
	doer := &fakeDoer{}
	s := newTestSession(t, doer, WithRotateEvery(2), WithPolicy(&retry.Policy{MaxRetries: 0, Methods: retry.DefaultMethods}))
	ctx := context.Background()

	_, _ = s.Get(ctx, "https://example.com/")
	_, _ = s.Get(ctx, "https://example.com/")
	before := s.Profile()

	doer.mu.Lock()
	doer.outcomes = []outcome{{err: boom}, {err: boom}}
	doer.mu.Unlock()

	_, _ = s.Get(ctx, "https://example.com/")
	rotated := s.Profile()
	if rotated == before {
		t.Fatal("expected rotation at count 2")
	}
	_, _ = s.Get(ctx, "https://example.com/")
	if s.Profile() != rotated {
		t.Error("profile rotated again while count stayed at 2")
	}
}

func TestForcedRotation(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &fakeDoer{})
	before := s.Profile()
	if _, err := s.Get(context.Background(), "https://example.com/", WithRotate()); err != nil {
		t.Fatal(err)
	}
	if s.Profile() == before {
		t.Error("WithRotate did not rotate")
	}
}

func TestRetryOnStatus(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{outcomes: []outcome{
		{status: 502},
		{status: 500},
		{status: 200, body: "fine"},
	}}
	s := newTestSession(t, doer)
	resp, err := s.Get(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 || resp.Attempts != 3 || doer.calls() != 3 {
		t.Errorf("status=%d attempts=%d calls=%d", resp.StatusCode, resp.Attempts, doer.calls())
	}
	if s.LastOutcome() != StateSucceeded || s.State() != StateIdle {
		t.Errorf("outcome=%s state=%s", s.LastOutcome(), s.State())
	}
}

func TestRetryExhaustedReturnsLastResponse(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{outcomes: []outcome{{status: 500}, {status: 500}, {status: 500}, {status: 500}, {status: 200}}}
	s := newTestSession(t, doer)
	resp, err := s.Get(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 500 || resp.Attempts != 4 {
		t.Errorf("status=%d attempts=%d, want 500 after 4 attempts", resp.StatusCode, resp.Attempts)
	}
}

func TestNoRetryForPatch(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{outcomes: []outcome{{status: 503, body: "x"}}}
	s := newTestSession(t, doer, WithClassifier(detect.NewClassifier(detect.WithStatuses())))
	resp, err := s.Request(context.Background(), http.MethodPatch, "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if doer.calls() != 1 || resp.StatusCode != 503 {
		t.Errorf("calls=%d status=%d", doer.calls(), resp.StatusCode)
	}
}

func TestTransportErrorMarksProxyFailed(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")
	doer := &fakeDoer{outcomes: []outcome{{err: boom}, {err: boom}, {err: boom}, {err: boom}}}
	pool := proxypool.NewPool(proxypool.WithLogger(quietLogger()))
	entry := proxypool.NewEntry("10.0.0.1", 8080, proxypool.HTTP)
	pool.Add(entry)

	s := newTestSession(t, doer, WithPool(pool))
	_, err := s.Get(context.Background(), "https://example.com/")

	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Error("TransportError should wrap the cause")
	}
	if tErr.Attempts != 4 || tErr.Proxy != entry.String() {
		t.Errorf("unexpected error fields %+v", tErr)
	}
	if entry.Failures() != 1 {
		t.Errorf("Failures() = %d, want 1", entry.Failures())
	}
	if s.RequestCount() != 0 {
		t.Error("failed request must not increment the counter")
	}
	if s.LastOutcome() != StateFailed {
		t.Errorf("LastOutcome = %s", s.LastOutcome())
	}
}

func TestDeliveredResponseMarksProxySuccess(t *testing.T) {
	t.Parallel()

	pool := proxypool.NewPool(proxypool.WithLogger(quietLogger()))
	entry := proxypool.NewEntry("10.0.0.1", 8080, proxypool.HTTP)
	pool.Add(entry)
	pool.MarkFailure(entry)
	pool.MarkFailure(entry)

	doer := &fakeDoer{outcomes: []outcome{{status: 404, body: "missing"}}}
	s := newTestSession(t, doer, WithPool(pool))
	resp, err := s.Get(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Failures() != 0 {
		t.Errorf("Failures() = %d, want 0 after a delivered response", entry.Failures())
	}
	if doer.last().Proxy != entry {
		t.Error("request was not routed through the proxy")
	}
	if resp.Blocked {
		t.Error("404 should not be blocked")
	}
}

func TestExhaustedPoolFallsBackToDirect(t *testing.T) {
	t.Parallel()

	pool := proxypool.NewPool(proxypool.WithLogger(quietLogger()), proxypool.WithMaxFailures(1))
	entry := proxypool.NewEntry("10.0.0.1", 8080, proxypool.HTTP)
	pool.Add(entry)
	pool.MarkFailure(entry)

	doer := &fakeDoer{}
	s := newTestSession(t, doer, WithPool(pool))
	if _, err := s.Get(context.Background(), "https://example.com/"); err != nil {
		t.Fatal(err)
	}
	if doer.last().Proxy != nil {
		t.Error("expected a direct request when the pool is exhausted")
	}
}

func TestBlockedResponseTriggersMitigation(t *testing.T) {
	t.Parallel()

	var delays int
	var mu sync.Mutex
	countingSleep := func(context.Context, time.Duration) error {
		mu.Lock()
		delays++
		mu.Unlock()
		return nil
	}
	p, err := pacer.New(1, pacer.WithSleep(countingSleep))
	if err != nil {
		t.Fatal(err)
	}

	doer := &fakeDoer{outcomes: []outcome{{status: 200, body: "<h1>Access Denied</h1>"}}}
	s := newTestSession(t, doer, WithPacer(p))
	before := s.Profile()

	resp, err := s.Get(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatalf("blocked response must not be an error: %v", err)
	}
	if !resp.Blocked {
		t.Error("expected Blocked")
	}
	if s.Profile() == before {
		t.Error("expected rotation after block")
	}
	mu.Lock()
	defer mu.Unlock()
	if delays != 1 {
		t.Errorf("random delay called %d times, want 1", delays)
	}
	if s.LastOutcome() != StateBlocked {
		t.Errorf("LastOutcome = %s", s.LastOutcome())
	}
	if s.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1", s.RequestCount())
	}
}

func TestResponseHook(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{outcomes: []outcome{{status: 200, body: `<input name="jschl_vc" value="tok">`}}}
	s := newTestSession(t, doer, WithResponseHook(detect.ChallengeHook))
	resp, err := s.Get(context.Background(), "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Challenge["jschl_vc"] != "tok" {
		t.Errorf("Challenge = %v", resp.Challenge)
	}
}

func TestObserverTransitions(t *testing.T) {
	t.Parallel()

	var seen []State
	doer := &fakeDoer{outcomes: []outcome{{status: 503}, {status: 200}}}
	s := newTestSession(t, doer, WithObserver(func(_, to State) { seen = append(seen, to) }))
	if _, err := s.Get(context.Background(), "https://example.com/"); err != nil {
		t.Fatal(err)
	}
	want := []State{StateDispatching, StateRetrying, StateSucceeded, StateIdle}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	doer := &fakeDoer{outcomes: []outcome{{status: 503}}}
	pool := proxypool.NewPool(proxypool.WithLogger(quietLogger()))
	entry := proxypool.NewEntry("10.0.0.1", 8080, proxypool.HTTP)
	pool.Add(entry)

	cancelSleep := func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	s := newTestSession(t, doer, WithPool(pool), WithSleep(cancelSleep))
	_, err := s.Get(ctx, "https://example.com/")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if entry.Failures() != 0 {
		t.Error("cancellation must not count against the proxy")
	}
}

func TestPost(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{}
	s := newTestSession(t, doer)
	if _, err := s.Post(context.Background(), "https://example.com/form", "application/x-www-form-urlencoded", []byte("a=1")); err != nil {
		t.Fatal(err)
	}
	req := doer.last()
	if req.Method != http.MethodPost || string(req.Body) != "a=1" {
		t.Errorf("method=%s body=%q", req.Method, req.Body)
	}
	if req.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", req.Header.Get("Content-Type"))
	}
}

// TestSessionAgainstServer runs the real transport end to end, including the
// cookie jar being dropped on rotation.
func TestSessionAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "visitor", Value: "abc", Path: "/"})
		}
		if c, err := r.Cookie("visitor"); err == nil {
			_, _ = w.Write([]byte("cookie=" + c.Value))
			return
		}
		_, _ = w.Write([]byte("no cookie"))
	}))
	defer srv.Close()

	s := newTestSession(t, transport.NewHTTPTransport())
	ctx := context.Background()

	if _, err := s.Get(ctx, srv.URL+"/set"); err != nil {
		t.Fatal(err)
	}
	resp, err := s.Get(ctx, srv.URL+"/check")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(resp.Body), "cookie=abc") {
		t.Errorf("expected cookie to persist within identity, got %q", resp.Body)
	}

	resp, err = s.Get(ctx, srv.URL+"/check", WithRotate())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(resp.Body), "no cookie") {
		t.Errorf("expected cookies dropped after rotation, got %q", resp.Body)
	}
}

// TestRetryOnAttemptTimeout checks that an attempt cut off by WithTimeout is
// retried while a cancelled caller context stops at once.
func TestRetryOnAttemptTimeout(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	policy := retry.NewPolicy()

	t.Run("attempt timeout is retried", func(t *testing.T) {
		hits.Store(0)
		s := newTestSession(t, transport.NewHTTPTransport(), WithTimeout(30*time.Millisecond), WithPolicy(policy))

		_, err := s.Get(context.Background(), srv.URL+"/slow")
		var tErr *TransportError
		if !errors.As(err, &tErr) {
			t.Fatalf("expected *TransportError, got %v", err)
		}
		if tErr.Attempts != policy.MaxAttempts() {
			t.Errorf("Attempts = %d, want %d", tErr.Attempts, policy.MaxAttempts())
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline error, got %v", err)
		}
		if got := int(hits.Load()); got != policy.MaxAttempts() {
			t.Errorf("server hits = %d, want %d", got, policy.MaxAttempts())
		}
	})

	t.Run("caller cancellation is not retried", func(t *testing.T) {
		s := newTestSession(t, transport.NewHTTPTransport(), WithPolicy(policy))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		_, err := s.Get(ctx, srv.URL+"/slow")
		var tErr *TransportError
		if !errors.As(err, &tErr) {
			t.Fatalf("expected *TransportError, got %v", err)
		}
		if tErr.Attempts != 1 {
			t.Errorf("Attempts = %d, want 1", tErr.Attempts)
		}
	})
}
