package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for stealthfetch.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stealthfetch",
		Short: "Fetch and crawl web pages with rotating client identities",
		Long: `stealthfetch fetches web pages while presenting coherent browser identities.

Every session carries a generated profile (user agent, client hints, locale,
TLS fingerprint) that is rotated periodically and whenever a response looks
like an anti-bot block. Requests are paced per host with random jitter,
routed through a rotating proxy pool and retried on transient failures.

Use --tor to start an embedded Tor daemon and add it to the proxy pool.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")

	// Add subcommands
	cmd.AddCommand(NewFetchCmd())
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewProfileCmd())
	cmd.AddCommand(NewProxiesCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
