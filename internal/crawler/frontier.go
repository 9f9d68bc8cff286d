package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/stealthfetch/internal/handler"
	"github.com/nao1215/stealthfetch/internal/linkscan"
	"github.com/nao1215/stealthfetch/internal/model"
	"github.com/nao1215/stealthfetch/internal/session"
)

// DefaultMaxPages is used when Crawl is given a non-positive page limit.
const DefaultMaxPages = 100

// ErrInvalidSeed is returned when the seed URL cannot be crawled.
var ErrInvalidSeed = errors.New("invalid seed url")

// Fetcher issues GET requests. *session.Session satisfies it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, opts ...session.RequestOption) (*model.Response, error)
}

// Frontier crawls one site breadth-first through a single Fetcher.
type Frontier struct {
	fetcher Fetcher
	logger  *slog.Logger

	// ignorePatterns are path globs never crawled.
	ignorePatterns []string

	// followPatterns, when set, restrict the crawl to matching paths.
	followPatterns []string

	robots      bool
	robotsAgent string

	previewLen int
	onResult   func(model.Result)
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithIgnorePatterns sets URL path patterns to skip.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) Option {
	return func(f *Frontier) {
		f.ignorePatterns = patterns
	}
}

// WithFollowPatterns restricts the crawl to paths matching at least one
// pattern. An empty slice allows every path not ignored.
func WithFollowPatterns(patterns []string) Option {
	return func(f *Frontier) {
		f.followPatterns = patterns
	}
}

// WithRobots enables robots.txt compliance for the given user-agent token.
// An empty agent matches only the wildcard group.
func WithRobots(agent string) Option {
	return func(f *Frontier) {
		f.robots = true
		f.robotsAgent = agent
	}
}

// WithPreviewLength sets the HTMLPreview length for pages without data.
func WithPreviewLength(n int) Option {
	return func(f *Frontier) {
		f.previewLen = n
	}
}

// WithResultCallback is invoked after every page, in crawl order.
func WithResultCallback(fn func(model.Result)) Option {
	return func(f *Frontier) {
		f.onResult = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Frontier) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a Frontier that fetches through fetcher.
func New(fetcher Fetcher, opts ...Option) *Frontier {
	f := &Frontier{
		fetcher:    fetcher,
		logger:     slog.Default(),
		previewLen: handler.DefaultPreviewLength,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Crawl visits at most maxPages pages reachable from seed on the seed's host
// and returns one result per visited page in visit order.
//
// The crawl ends when the queue is empty or the visited set reaches
// maxPages. h, when non-nil, is applied to every 200 response.
func (f *Frontier) Crawl(ctx context.Context, seed string, maxPages int, h handler.Handler) ([]model.Result, error) {
	start, err := url.Parse(strings.TrimSpace(seed))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	if (start.Scheme != "http" && start.Scheme != "https") || start.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSeed, seed)
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	st := &crawlState{
		scope:   start.Host,
		visited: make(map[string]bool),
		queue:   []string{normalizeURL(start.String())},
	}
	var robots *robotsCache
	if f.robots {
		robots = newRobotsCache(f.fetcher, f.robotsAgent, f.logger)
	}

	f.logger.Info("starting crawl", "seed", start.String(), "max_pages", maxPages)
	began := time.Now()
	results := make([]model.Result, 0)

	for len(st.queue) > 0 && len(st.visited) < maxPages {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		pageURL := st.pop()
		if st.visited[pageURL] {
			continue
		}
		if robots != nil && !robots.allowed(ctx, pageURL) {
			f.logger.Debug("disallowed by robots.txt", "url", pageURL)
			continue
		}
		st.visited[pageURL] = true

		resp, err := f.fetcher.Get(ctx, pageURL)
		if err != nil && ctx.Err() != nil {
			return results, ctx.Err()
		}
		result := handler.Process(h, pageURL, resp, err, f.previewLen)
		results = append(results, result)
		if f.onResult != nil {
			f.onResult(result)
		}
		if err != nil {
			f.logger.Warn("crawl fetch failed", "url", pageURL, "error", err)
			continue
		}

		f.logger.Info("crawled page", "url", pageURL, "status", resp.StatusCode,
			"visited", len(st.visited), "max_pages", maxPages)

		if resp.OK() {
			f.enqueueLinks(st, pageURL, resp.Body)
		}
	}

	f.logger.Info("crawl complete", "seed", start.String(), "pages", len(results), "elapsed", time.Since(began))
	return results, nil
}

// crawlState is the frontier of one Crawl call.
type crawlState struct {
	scope   string
	visited map[string]bool
	queue   []string
}

func (st *crawlState) pop() string {
	next := st.queue[0]
	st.queue = st.queue[1:]
	return next
}

// enqueueLinks appends the in-scope, unvisited links of a page in document order.
func (f *Frontier) enqueueLinks(st *crawlState, pageURL string, body []byte) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	for link := range linkscan.Links(base, body) {
		if link.Scheme != "http" && link.Scheme != "https" {
			continue
		}
		if !isSameHost(st.scope, link) {
			continue
		}
		norm := normalizeURL(link.String())
		if st.visited[norm] || !f.shouldCrawl(norm) {
			continue
		}
		st.queue = append(st.queue, norm)
	}
}

// normalizeURL normalizes a URL for deduplication.
//
// Design decision: the fragment is dropped and scheme and host are
// lower-cased, since none of them change the fetched content. An empty path
// becomes "/" so http://example.com and http://example.com/ collapse.
func normalizeURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// isSameHost reports whether u belongs to the crawl scope. Ports are part of
// the host, so http://a:8080 and http://a are different sites.
func isSameHost(scope string, u *url.URL) bool {
	return strings.EqualFold(u.Host, scope)
}
