package proxypool

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultMaxFailures is the failure count at which an entry is retired.
const DefaultMaxFailures = 3

// Pool is a round-robin set of proxies with failure tracking.
// It is safe for concurrent use by many sessions.
type Pool struct {
	mu          sync.Mutex
	entries     []*Entry
	cursor      int
	maxFailures int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Pool.
type Option func(*Pool)

// WithMaxFailures sets the retirement threshold. Values below 1 are ignored.
func WithMaxFailures(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxFailures = n
		}
	}
}

// WithLogger sets the logger used for skipped lines and retirements.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides the time source used for last-used stamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPool creates an empty pool.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		maxFailures: DefaultMaxFailures,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxFailures returns the retirement threshold.
func (p *Pool) MaxFailures() int {
	return p.maxFailures
}

// Add appends an entry to the pool.
func (p *Pool) Add(e *Entry) {
	if e == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
}

// AddFromSpec parses spec and adds the resulting entry.
// A malformed spec is logged as a warning and returned as an error wrapping
// ErrInvalidSpec; the pool is left unchanged.
func (p *Pool) AddFromSpec(spec string) (*Entry, error) {
	e, err := ParseSpec(spec)
	if err != nil {
		p.logger.Warn("skipping invalid proxy", "error", err)
		return nil, err
	}
	p.Add(e)
	return e, nil
}

// LoadFromLines adds every non-blank line not starting with '#'.
// It returns the number of entries added. Malformed lines are skipped.
func (p *Pool) LoadFromLines(lines iter.Seq[string]) int {
	added := 0
	skipped := 0
	for line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := p.AddFromSpec(line); err != nil {
			skipped++
			continue
		}
		added++
	}
	p.logger.Debug("loaded proxies", "added", added, "skipped", skipped)
	return added
}

// LoadFromReader reads proxy lines from r.
func (p *Pool) LoadFromReader(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	var scanErr error
	lines := func(yield func(string) bool) {
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
		scanErr = scanner.Err()
	}
	n := p.LoadFromLines(lines)
	if scanErr != nil {
		return n, fmt.Errorf("failed to read proxy list: %w", scanErr)
	}
	return n, nil
}

// LoadFile reads proxy lines from the file at path.
func (p *Pool) LoadFile(path string) (int, error) {
	f, err := os.Open(path) //nolint:gosec // path is user-specified proxy list
	if err != nil {
		return 0, fmt.Errorf("failed to open proxy list: %w", err)
	}
	defer f.Close()
	return p.LoadFromReader(f)
}

// Next returns the next usable entry in round-robin order.
// It returns (nil, false) when the pool is empty or every entry is retired.
//
// The cursor advances on every call, including calls that find nothing, so
// the traversal order is stable modulo filtering.
func (p *Pool) Next() (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	usable := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		if e.Failures() < p.maxFailures {
			usable = append(usable, e)
		}
	}

	idx := p.cursor
	p.cursor++
	if len(usable) == 0 {
		return nil, false
	}

	e := usable[idx%len(usable)]
	e.lastUsed.Store(p.now().UnixNano())
	return e, true
}

// MarkSuccess resets the entry's failure counter.
func (p *Pool) MarkSuccess(e *Entry) {
	if e == nil {
		return
	}
	e.failures.Store(0)
}

// MarkFailure increments the entry's failure counter.
// The retirement is logged once, when the counter first reaches the threshold.
func (p *Pool) MarkFailure(e *Entry) {
	if e == nil {
		return
	}
	n := int(e.failures.Add(1))
	if n == p.maxFailures {
		p.logger.Warn("proxy retired", "proxy", e.String(), "failures", n)
		return
	}
	if n < p.maxFailures {
		p.logger.Warn("proxy failure", "proxy", e.String(), "failures", n)
	}
}

// Len returns the number of entries, retired or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Entries returns a snapshot of all entries.
func (p *Pool) Entries() []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Stats summarizes pool health.
type Stats struct {
	Total   int `json:"total"`
	Usable  int `json:"usable"`
	Retired int `json:"retired"`
}

// Stats returns the current pool health.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{Total: len(p.entries)}
	for _, e := range p.entries {
		if e.Failures() < p.maxFailures {
			s.Usable++
		}
	}
	s.Retired = s.Total - s.Usable
	return s
}
