package crawler

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/temoto/robotstxt"
)

// robotsCache holds parsed robots.txt files per scheme+host for one crawl.
// A nil entry means the file could not be fetched and everything is allowed.
type robotsCache struct {
	fetcher Fetcher
	agent   string
	logger  *slog.Logger
	byHost  map[string]*robotstxt.RobotsData
}

func newRobotsCache(fetcher Fetcher, agent string, logger *slog.Logger) *robotsCache {
	if agent == "" {
		agent = "*"
	}
	return &robotsCache{
		fetcher: fetcher,
		agent:   agent,
		logger:  logger,
		byHost:  make(map[string]*robotstxt.RobotsData),
	}
}

// allowed reports whether pageURL may be fetched.
func (c *robotsCache) allowed(ctx context.Context, pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	origin := u.Scheme + "://" + u.Host

	data, ok := c.byHost[origin]
	if !ok {
		data = c.load(ctx, origin)
		c.byHost[origin] = data
	}
	if data == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, c.agent)
}

func (c *robotsCache) load(ctx context.Context, origin string) *robotstxt.RobotsData {
	resp, err := c.fetcher.Get(ctx, origin+"/robots.txt")
	if err != nil {
		c.logger.Debug("robots.txt unavailable", "origin", origin, "error", err)
		return nil
	}
	// 4xx allows everything and 5xx disallows everything.
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		c.logger.Debug("robots.txt unparsable", "origin", origin, "error", err)
		return nil
	}
	return data
}
