package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/stealthfetch/internal/config"
	"github.com/nao1215/stealthfetch/internal/crawler"
	"github.com/nao1215/stealthfetch/internal/model"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <seed-url>",
		Short: "Crawl one site breadth-first from a seed URL",
		Long: `Crawl visits pages reachable from the seed URL on the same host.

The crawl uses a single session, so the site sees one browser that rotates
its identity every --rotate-every pages and after every blocked response.
Links are followed from every 200 response. The crawl stops when no
unvisited links remain or --max-pages pages were visited.

Per-site ignorePatterns, followPatterns, headers, cookie and maxPages are
read from the configuration file.

Examples:
  # Crawl up to 50 pages
  stealthfetch crawl --max-pages 50 https://example.com

  # Honor robots.txt and extract all links
  stealthfetch crawl --robots --handler links https://example.com

  # Write a Markdown report and archive the run
  stealthfetch crawl --markdown -o report.md --db https://example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	addRunFlags(cmd)
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to crawl")
	cmd.Flags().Bool("robots", false,
		"Honor robots.txt")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg)
	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	env, err := newFetchEnv(ctx, cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer env.Close()

	return runCrawl(ctx, cmd, env)
}

// runCrawl crawls from cfg.Targets[0] and reports the result set.
func runCrawl(ctx context.Context, cmd *cobra.Command, env *fetchEnv) error {
	cfg := env.cfg
	seed := strings.TrimSpace(cfg.Targets[0])
	progress := cmd.ErrOrStderr()

	u, err := url.Parse(seed)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %q", crawler.ErrInvalidSeed, seed)
	}

	// Precedence: --max-pages flag, then the site entry, then defaults.
	site := cfg.SiteConfigs.GetSiteConfig(u.Host)
	maxPages := cfg.MaxPages
	if site.MaxPages > 0 && !cmd.Flags().Changed("max-pages") {
		maxPages = site.MaxPages
	}

	sess, err := env.factory()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	visited := 0
	opts := []crawler.Option{
		crawler.WithIgnorePatterns(site.IgnorePatterns),
		crawler.WithFollowPatterns(site.FollowPatterns),
		crawler.WithPreviewLength(cfg.PreviewLength),
		crawler.WithLogger(env.logger),
		crawler.WithResultCallback(func(r model.Result) {
			visited++
			fmt.Fprintf(progress, "[%d/%d] %s %s\n", visited, maxPages, progressLabel(r), r.URL)
		}),
	}
	if cfg.Robots {
		// An empty agent matches the wildcard group, which is what a
		// browser identity is subject to.
		opts = append(opts, crawler.WithRobots(""))
	}

	fmt.Fprintf(progress, "Crawling %s (max pages: %d)...\n", seed, maxPages)

	set := newResultSet(model.ModeCrawl, seed)
	results, runErr := crawler.New(sess, opts...).Crawl(ctx, seed, maxPages, env.handler)
	if results == nil && runErr != nil {
		return runErr
	}
	set.Results = results

	if err := finishRun(ctx, cmd, cfg, set, env.logger); err != nil {
		return err
	}
	return runErr
}
