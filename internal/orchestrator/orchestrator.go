// Package orchestrator fans a batch of URLs out over independent sessions.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/stealthfetch/internal/handler"
	"github.com/nao1215/stealthfetch/internal/model"
	"github.com/nao1215/stealthfetch/internal/session"
)

// DefaultWorkers is used when a non-positive worker count is given.
const DefaultWorkers = 5

// Orchestrator fetches URL batches with bounded concurrency.
//
// Design decision: every URL gets its own session from the factory, so each
// fetch presents a fresh identity, while the pool, pacer and limiter the
// factory was built with are shared by all workers. Sessions are never
// shared between goroutines.
type Orchestrator struct {
	// factory builds one session per URL.
	factory session.Factory

	previewLen int
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPreviewLength sets the HTMLPreview length for results without data.
func WithPreviewLength(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.previewLen = n
		}
	}
}

// WithLogger sets the logger for batch-level events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an Orchestrator.
func New(factory session.Factory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		factory:    factory,
		previewLen: handler.DefaultPreviewLength,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// FetchAll fetches every URL with at most workers concurrent fetches and
// returns one result per URL in completion order.
//
// A failure on one URL is recorded in its result and never stops the others.
// If ctx is cancelled, URLs not yet fetched get a result carrying the
// context error, so the slice always has len(urls) entries.
func (o *Orchestrator) FetchAll(ctx context.Context, urls []string, workers int, h handler.Handler) []model.Result {
	results := make([]model.Result, 0, len(urls))
	_ = o.FetchAllWithCallback(ctx, urls, workers, h, func(r model.Result, _ int) {
		results = append(results, r)
	})
	return results
}

// FetchAllWithCallback is FetchAll with streaming delivery. callback receives
// each result and the index of its URL in urls. Calls are serialized, in
// completion order, so callback needs no locking of its own.
//
// The returned error is the context error when the batch was cancelled.
func (o *Orchestrator) FetchAllWithCallback(
	ctx context.Context,
	urls []string,
	workers int,
	h handler.Handler,
	callback func(result model.Result, index int),
) error {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	o.logger.Info("starting batch fetch", "total_urls", len(urls), "workers", workers)
	startTime := time.Now()

	var mu sync.Mutex
	deliver := func(r model.Result, i int) {
		mu.Lock()
		defer mu.Unlock()
		callback(r, i)
	}

	// No WithContext: a failed URL must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(workers)

	for i, target := range urls {
		g.Go(func() error {
			deliver(o.fetchOne(ctx, target, h), i)
			return nil
		})
	}
	_ = g.Wait()

	o.logger.Info("batch fetch complete", "total_urls", len(urls), "elapsed", time.Since(startTime))
	return ctx.Err()
}

// fetchOne runs one URL through a fresh session.
func (o *Orchestrator) fetchOne(ctx context.Context, target string, h handler.Handler) model.Result {
	if err := ctx.Err(); err != nil {
		return model.ErrorResult(target, err)
	}

	sess, err := o.factory()
	if err != nil {
		return model.ErrorResult(target, fmt.Errorf("create session: %w", err))
	}

	resp, err := sess.Get(ctx, target)
	result := handler.Process(h, target, resp, err, o.previewLen)
	if result.Failed() {
		o.logger.Warn("fetch failed", "url", target, "error", result.Error)
	} else {
		o.logger.Info("fetched", "url", target, "status", result.StatusCode, "blocked", result.Blocked)
	}
	return result
}
