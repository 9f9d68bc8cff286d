// Package pacer enforces a minimum spacing between requests to the same host.
//
// A HostPacer remembers when it last let a request through to each host.
// Wait blocks until 1/requestsPerSecond has elapsed since that moment and
// then adds a random jitter from [minDelay, maxDelay]. The first request to a
// host is never delayed.
//
// Design decision: Wait reserves the dispatch slot under the lock before it
// sleeps. Two workers that call Wait for the same host at the same instant
// therefore get slots at least one interval apart, instead of both observing
// the same stale timestamp and firing together.
package pacer

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// Defaults.
const (
	DefaultRequestsPerSecond = 1.0
	DefaultMinDelay          = 500 * time.Millisecond
	DefaultMaxDelay          = 3 * time.Second
)

// ErrInvalidRate is returned by New when requestsPerSecond is not positive.
var ErrInvalidRate = errors.New("requests per second must be positive")

// ErrInvalidDelay is returned by New when the jitter window is inverted or negative.
var ErrInvalidDelay = errors.New("jitter window must satisfy 0 <= min <= max")

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// HostPacer is a per-host minimum-interval gate. It is safe for concurrent use.
type HostPacer struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
	minDelay time.Duration
	maxDelay time.Duration
	rng      *rand.Rand
	now      func() time.Time
	sleep    SleepFunc
	logger   *slog.Logger
}

// Option configures a HostPacer.
type Option func(*HostPacer)

// WithJitter sets the random delay window.
func WithJitter(minDelay, maxDelay time.Duration) Option {
	return func(p *HostPacer) {
		p.minDelay = minDelay
		p.maxDelay = maxDelay
	}
}

// WithRand injects the jitter random source.
func WithRand(r *rand.Rand) Option {
	return func(p *HostPacer) {
		if r != nil {
			p.rng = r
		}
	}
}

// WithClock replaces the time source. Tests pair this with WithSleep to run
// without wall-clock delays.
func WithClock(now func() time.Time) Option {
	return func(p *HostPacer) {
		if now != nil {
			p.now = now
		}
	}
}

// WithSleep replaces the sleep function.
func WithSleep(sleep SleepFunc) Option {
	return func(p *HostPacer) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *HostPacer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a HostPacer allowing requestsPerSecond requests per host.
func New(requestsPerSecond float64, opts ...Option) (*HostPacer, error) {
	if requestsPerSecond <= 0 {
		return nil, ErrInvalidRate
	}
	seed := uint64(time.Now().UnixNano()) //nolint:gosec // non-negative
	p := &HostPacer{
		last:     make(map[string]time.Time),
		interval: time.Duration(float64(time.Second) / requestsPerSecond),
		minDelay: DefaultMinDelay,
		maxDelay: DefaultMaxDelay,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), //nolint:gosec // jitter only
		now:      time.Now,
		sleep:    Sleep,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.minDelay < 0 || p.maxDelay < p.minDelay {
		return nil, ErrInvalidDelay
	}
	return p, nil
}

// Interval returns the minimum spacing between dispatches to one host.
func (p *HostPacer) Interval() time.Duration {
	return p.interval
}

// Wait blocks until a request to host may be dispatched.
// It returns ctx.Err() if the context ends first; the reserved slot is kept
// in that case so later callers stay spaced against it.
func (p *HostPacer) Wait(ctx context.Context, host string) error {
	p.mu.Lock()
	now := p.now()
	last, seen := p.last[host]
	if !seen {
		p.last[host] = now
		p.mu.Unlock()
		return nil
	}

	slot := last.Add(p.interval)
	if slot.Before(now) {
		slot = now
	}
	slot = slot.Add(p.jitterLocked())
	p.last[host] = slot
	p.mu.Unlock()

	wait := slot.Sub(now)
	p.logger.Debug("pacing request", "host", host, "wait", wait)
	return p.sleep(ctx, wait)
}

// RandomDelay sleeps for a random duration in [minDelay, maxDelay].
func (p *HostPacer) RandomDelay(ctx context.Context) error {
	p.mu.Lock()
	d := p.jitterLocked()
	p.mu.Unlock()
	return p.sleep(ctx, d)
}

// Last returns the recorded dispatch time for host.
func (p *HostPacer) Last(host string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.last[host]
	return t, ok
}

func (p *HostPacer) jitterLocked() time.Duration {
	span := p.maxDelay - p.minDelay
	if span <= 0 {
		return p.minDelay
	}
	return p.minDelay + time.Duration(p.rng.Int64N(int64(span)+1))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
