// Package retry defines the transport retry policy as a plain value.
//
// A Policy answers three questions for a fetch loop: should this status be
// retried, should this error be retried, and how long to wait before the
// next attempt. It performs no I/O itself so it can be tested in isolation
// from any transport.
package retry

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultMaxRetries    = 3
	DefaultBackoffFactor = time.Second
	DefaultMaxBackoff    = 120 * time.Second
)

// DefaultStatuses are the statuses worth another attempt.
var DefaultStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// DefaultMethods are the methods safe to repeat: the idempotent verbs plus POST.
var DefaultMethods = []string{
	http.MethodHead,
	http.MethodGet,
	http.MethodPut,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodTrace,
	http.MethodPost,
}

// Policy describes when and how often to retry.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Statuses triggers a retry when the response status is in it.
	Statuses []int

	// Methods limits retries to these request methods.
	Methods []string

	// BackoffFactor scales the exponential backoff: factor * 2^(retry-1).
	BackoffFactor time.Duration

	// MaxBackoff caps any single wait, including Retry-After.
	MaxBackoff time.Duration

	// RespectRetryAfter uses the server's Retry-After header for 429 and 503.
	RespectRetryAfter bool

	// now is used to resolve HTTP-date Retry-After values.
	now func() time.Time
}

// NewPolicy returns the default policy.
func NewPolicy() *Policy {
	return &Policy{
		MaxRetries:        DefaultMaxRetries,
		Statuses:          slices.Clone(DefaultStatuses),
		Methods:           slices.Clone(DefaultMethods),
		BackoffFactor:     DefaultBackoffFactor,
		MaxBackoff:        DefaultMaxBackoff,
		RespectRetryAfter: true,
	}
}

// MaxAttempts returns the total number of attempts including the first.
func (p *Policy) MaxAttempts() int {
	return max(p.MaxRetries, 0) + 1
}

// AllowsMethod reports whether method may be retried at all.
func (p *Policy) AllowsMethod(method string) bool {
	return slices.Contains(p.Methods, strings.ToUpper(method))
}

// RetryableStatus reports whether a response with status to method should be retried.
func (p *Policy) RetryableStatus(method string, status int) bool {
	return p.AllowsMethod(method) && slices.Contains(p.Statuses, status)
}

// RetryableError reports whether a transport error should be retried.
// Cancellation never is. A deadline error is retried because it comes from
// the attempt's own timeout; callers must check their own context first.
func (p *Policy) RetryableError(method string, err error) bool {
	if err == nil || !p.AllowsMethod(method) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Delay returns how long to wait before retry number retry (1-based).
// header is the previous response's header and may be nil.
func (p *Policy) Delay(retry int, header http.Header) time.Duration {
	if p.RespectRetryAfter && header != nil {
		if d, ok := p.retryAfter(header.Get("Retry-After")); ok {
			return p.capped(d)
		}
	}
	if retry < 1 || p.BackoffFactor <= 0 {
		return 0
	}
	d := p.BackoffFactor
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return p.capped(d)
}

func (p *Policy) capped(d time.Duration) time.Duration {
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// retryAfter parses a Retry-After value given as seconds or an HTTP-date.
func (p *Policy) retryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	d := at.Sub(now())
	if d < 0 {
		d = 0
	}
	return d, true
}
