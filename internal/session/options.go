package session

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/stealthfetch/internal/detect"
	"github.com/nao1215/stealthfetch/internal/identity"
	"github.com/nao1215/stealthfetch/internal/model"
	"github.com/nao1215/stealthfetch/internal/pacer"
	"github.com/nao1215/stealthfetch/internal/proxypool"
	"github.com/nao1215/stealthfetch/internal/retry"
)

// DefaultRotateEvery is the number of delivered requests between profile rotations.
const DefaultRotateEvery = 10

// DefaultTimeout is the per-request timeout.
const DefaultTimeout = 30 * time.Second

// ResponseHook inspects or annotates a delivered response before it is classified.
type ResponseHook func(resp *model.Response)

// HeaderOverlay returns extra headers for a request URL. Overlay headers win
// over profile headers and lose to caller headers.
type HeaderOverlay func(u *url.URL) http.Header

// Observer is notified of every state transition.
type Observer func(from, to State)

// Option configures a Session.
type Option func(*Session)

// WithPool routes requests through pool entries.
func WithPool(pool *proxypool.Pool) Option {
	return func(s *Session) {
		s.pool = pool
	}
}

// WithPacer enforces per-host spacing. The pacer is normally shared by all
// sessions of a run.
func WithPacer(p *pacer.HostPacer) Option {
	return func(s *Session) {
		s.pacer = p
	}
}

// WithPolicy replaces the retry policy.
func WithPolicy(p *retry.Policy) Option {
	return func(s *Session) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithClassifier replaces the block classifier.
func WithClassifier(c *detect.Classifier) Option {
	return func(s *Session) {
		if c != nil {
			s.classifier = c
		}
	}
}

// WithRateLimiter caps the overall request rate across hosts. The limiter is
// normally shared by all sessions of a run.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(s *Session) {
		s.limiter = l
	}
}

// WithResponseHook adds a hook run on every delivered response.
func WithResponseHook(h ResponseHook) Option {
	return func(s *Session) {
		if h != nil {
			s.hooks = append(s.hooks, h)
		}
	}
}

// WithRotateEvery sets how many delivered requests share one profile.
// Zero disables periodic rotation.
func WithRotateEvery(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.rotateEvery = n
		}
	}
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithVerifyTLS toggles certificate verification. It is on by default.
func WithVerifyTLS(verify bool) Option {
	return func(s *Session) {
		s.verifyTLS = verify
	}
}

// WithHeaderOverlay sets per-URL extra headers, typically from site config.
func WithHeaderOverlay(o HeaderOverlay) Option {
	return func(s *Session) {
		s.overlay = o
	}
}

// WithCookies toggles the in-memory cookie jar. It is on by default.
func WithCookies(enabled bool) Option {
	return func(s *Session) {
		s.cookies = enabled
	}
}

// WithProfile sets the initial profile instead of generating one.
func WithProfile(p *identity.Profile) Option {
	return func(s *Session) {
		s.initial = p
	}
}

// WithObserver registers a state transition observer.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		s.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSleep replaces the backoff sleep. Tests use it to skip real waits.
func WithSleep(sleep pacer.SleepFunc) Option {
	return func(s *Session) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// requestConfig holds per-request options.
type requestConfig struct {
	header  http.Header
	body    []byte
	rotate  bool
	timeout time.Duration
}

// RequestOption configures one request.
type RequestOption func(*requestConfig)

// WithHeaders adds caller headers. They take precedence over every other source.
func WithHeaders(h http.Header) RequestOption {
	return func(c *requestConfig) {
		for k, v := range h {
			c.header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
		}
	}
}

// WithHeader sets one caller header.
func WithHeader(key, value string) RequestOption {
	return func(c *requestConfig) {
		c.header.Set(key, value)
	}
}

// WithBody sets the request body.
func WithBody(body []byte) RequestOption {
	return func(c *requestConfig) {
		c.body = body
	}
}

// WithRotate forces a profile rotation before this request.
func WithRotate() RequestOption {
	return func(c *requestConfig) {
		c.rotate = true
	}
}

// WithRequestTimeout overrides the session timeout for this request.
func WithRequestTimeout(d time.Duration) RequestOption {
	return func(c *requestConfig) {
		c.timeout = d
	}
}
