package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/stealthfetch/internal/config"
	"github.com/nao1215/stealthfetch/internal/model"
	"github.com/nao1215/stealthfetch/internal/orchestrator"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [url...]",
		Short: "Fetch a batch of URLs concurrently",
		Long: `Fetch downloads every URL with its own session and identity.

Each URL gets a freshly generated profile. Workers share the per-host pacer,
the proxy pool and the optional global rate cap, so adding workers never
raises the rate seen by a single host.

Every URL produces exactly one result, even when it fails or the run is
interrupted.

Examples:
  # Fetch two pages
  stealthfetch fetch https://example.com https://example.org

  # Fetch URLs listed in a file with 10 workers
  stealthfetch fetch --list urls.txt --workers 10

  # Extract page titles through a proxy list and write JSON
  stealthfetch fetch --handler title --proxy-file proxies.txt --json -o out/report.json https://example.com

  # Route through an embedded Tor daemon
  stealthfetch fetch --tor https://check.torproject.org`,
		Args: cobra.ArbitraryArgs,
		RunE: runFetchCmd,
	}

	addRunFlags(cmd)
	cmd.Flags().IntP("workers", "w", config.DefaultWorkers,
		"Number of concurrent fetches")
	cmd.Flags().StringP("list", "l", "",
		"File with one URL per line")

	return cmd
}

// runFetchCmd executes the fetch command.
func runFetchCmd(cmd *cobra.Command, args []string) error {
	targets := append([]string(nil), args...)

	listPath, err := cmd.Flags().GetString("list")
	if err != nil {
		return err
	}
	if listPath != "" {
		listed, err := readTargetList(listPath)
		if err != nil {
			return err
		}
		targets = append(targets, listed...)
	}

	cfg, err := buildConfig(cmd, targets)
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

	return runFetch(ctx, cmd, env)
}

// runFetch fetches cfg.Targets and reports the result set.
// A cancelled run still reports the results collected so far.
func runFetch(ctx context.Context, cmd *cobra.Command, env *fetchEnv) error {
	cfg := env.cfg
	progress := cmd.ErrOrStderr()
	total := len(cfg.Targets)

	fmt.Fprintf(progress, "Fetching %d URLs (workers: %d)...\n", total, cfg.Workers)

	set := newResultSet(model.ModeFetch, "")
	orch := orchestrator.New(env.factory,
		orchestrator.WithPreviewLength(cfg.PreviewLength),
		orchestrator.WithLogger(env.logger),
	)

	done := 0
	runErr := orch.FetchAllWithCallback(ctx, cfg.Targets, cfg.Workers, env.handler, func(r model.Result, _ int) {
		done++
		fmt.Fprintf(progress, "[%d/%d] %s %s\n", done, total, progressLabel(r), r.URL)
		set.Results = append(set.Results, r)
	})

	if err := finishRun(ctx, cmd, cfg, set, env.logger); err != nil {
		return err
	}
	return runErr
}
