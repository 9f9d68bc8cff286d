// Package crawler implements the breadth-first crawl frontier.
//
// # Architecture
//
// A Frontier drives one fetch session over a site. It keeps a FIFO queue of
// pending URLs and a set of visited URLs, both keyed by normalized URL, and
// only follows links whose host matches the seed's host.
//
// Design decision: the crawl loop is strictly sequential. Queue order is
// the result order, so parallel fetches would break the breadth-first
// guarantee. Callers who want throughput over many sites run several
// frontiers, each with its own session.
//
// # Scope
//
// Links are followed from every 200 response whatever its content type. Per-site ignore and
// follow glob patterns narrow the scope further, and robots.txt can be
// honored per host when enabled.
//
// # Usage
//
//	f := crawler.New(sess, crawler.WithIgnorePatterns([]string{"/logout*"}))
//	results, err := f.Crawl(ctx, "https://example.com/", 50, handler.TitleHandler{})
//
// # Failures
//
// A page that cannot be fetched is recorded as a failed result and skipped.
// Only context cancellation stops a crawl early; the results gathered so far
// are returned alongside the context error.
package crawler
