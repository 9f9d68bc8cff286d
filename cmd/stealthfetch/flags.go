package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/stealthfetch/internal/config"
)

// addRunFlags registers the flags shared by fetch and crawl.
//
// Design decision: flag defaults are the config package defaults, so a flag
// the user did not set and the built-in default are indistinguishable by
// value. Whether the config file may override a setting is decided by
// Changed(), not by comparing against the default.
func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	// Pacing flags
	f.Float64("rps", config.DefaultRequestsPerSecond,
		"Requests per second per host")
	f.Duration("min-delay", config.DefaultMinDelay,
		"Minimum random delay added to each paced request")
	f.Duration("max-delay", config.DefaultMaxDelay,
		"Maximum random delay added to each paced request")
	f.Float64("global-rate", 0,
		"Requests per second across all hosts (0 disables the cap)")

	// Retry flags
	f.Int("max-retries", config.DefaultMaxRetries,
		"Retries after the first attempt on retryable statuses and connection errors")
	f.Duration("backoff", config.DefaultBackoffFactor,
		"Base delay of the exponential retry backoff")

	// Session flags
	f.DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	f.Bool("insecure", false,
		"Skip TLS certificate verification")
	f.Bool("no-cookies", false,
		"Disable the per-session cookie jar")
	f.Int("rotate-every", config.DefaultRotateEvery,
		"Delivered requests per identity before rotation (0 disables rotation)")
	f.Uint64("seed", 0,
		"Seed for reproducible identities and jitter (0 means random)")

	// Proxy flags
	f.StringP("proxy-file", "P", "",
		"File with one proxy per line (host:port, user:pass@host:port, scheme://...)")
	f.StringArray("proxy", nil,
		"Proxy to add to the pool (repeatable)")
	f.Int("max-proxy-failures", config.DefaultMaxProxyFailures,
		"Consecutive failures after which a proxy is retired")
	f.Bool("tor", false,
		"Start an embedded Tor daemon and add it to the proxy pool")
	f.DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Page handling flags
	f.StringP("handler", "H", "",
		`Page handler: "title", "links", "json" or "select:<css>[@attr]"`)
	f.Int("preview-length", config.DefaultPreviewLength,
		"Characters kept in html_preview when no handler runs")
	f.Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum decoded response body size in bytes")

	// Configuration file
	f.StringP("config", "c", "",
		"Configuration file path (default: .stealthfetch in current or home directory)")

	// Report flags
	f.BoolP("json", "j", false,
		"Output JSON report")
	f.BoolP("markdown", "m", false,
		"Output Markdown report")
	f.Bool("xlsx", false,
		"Output XLSX report (requires --output)")
	f.StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	// Archive flags
	f.Bool("db", false,
		"Archive the run in the result database")
	f.String("db-dir", config.XDGDataDir(),
		"Directory of the result database")
}

// flagReader reads typed flag values and keeps the first lookup error, so
// a long list of flags can be read without checking after every call.
type flagReader struct {
	cmd *cobra.Command
	err error
}

func (r *flagReader) keep(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

func (r *flagReader) str(name string) string {
	v, err := r.cmd.Flags().GetString(name)
	r.keep(err)
	return v
}

func (r *flagReader) strArray(name string) []string {
	v, err := r.cmd.Flags().GetStringArray(name)
	r.keep(err)
	return v
}

func (r *flagReader) boolean(name string) bool {
	v, err := r.cmd.Flags().GetBool(name)
	r.keep(err)
	return v
}

func (r *flagReader) integer(name string) int {
	v, err := r.cmd.Flags().GetInt(name)
	r.keep(err)
	return v
}

func (r *flagReader) int64(name string) int64 {
	v, err := r.cmd.Flags().GetInt64(name)
	r.keep(err)
	return v
}

func (r *flagReader) uint64(name string) uint64 {
	v, err := r.cmd.Flags().GetUint64(name)
	r.keep(err)
	return v
}

func (r *flagReader) float(name string) float64 {
	v, err := r.cmd.Flags().GetFloat64(name)
	r.keep(err)
	return v
}

func (r *flagReader) duration(name string) time.Duration {
	v, err := r.cmd.Flags().GetDuration(name)
	r.keep(err)
	return v
}

// buildConfig creates a Config from cobra command flags, overlays the
// configuration file and validates the result.
func buildConfig(cmd *cobra.Command, targets []string) (*config.Config, error) {
	cfg := config.NewConfig()
	r := &flagReader{cmd: cmd}

	cfg.RequestsPerSecond = r.float("rps")
	cfg.MinDelay = r.duration("min-delay")
	cfg.MaxDelay = r.duration("max-delay")
	cfg.GlobalRate = r.float("global-rate")
	cfg.MaxRetries = r.integer("max-retries")
	cfg.BackoffFactor = r.duration("backoff")
	cfg.Timeout = r.duration("timeout")
	cfg.VerifyTLS = !r.boolean("insecure")
	cfg.Cookies = !r.boolean("no-cookies")
	cfg.RotateEvery = r.integer("rotate-every")
	cfg.Seed = r.uint64("seed")
	cfg.ProxyFile = r.str("proxy-file")
	cfg.Proxies = r.strArray("proxy")
	cfg.MaxProxyFailures = r.integer("max-proxy-failures")
	cfg.UseTor = r.boolean("tor")
	cfg.TorStartupTimeout = r.duration("tor-timeout")
	cfg.Handler = r.str("handler")
	cfg.PreviewLength = r.integer("preview-length")
	cfg.MaxBodySize = r.int64("max-body-size")
	cfg.ConfigFilePath = r.str("config")
	cfg.JSONReport = r.boolean("json")
	cfg.MarkdownReport = r.boolean("markdown")
	cfg.XLSXReport = r.boolean("xlsx")
	cfg.ReportFile = r.str("output")
	cfg.SaveToDB = r.boolean("db")
	cfg.DBDir = r.str("db-dir")

	// Command-specific flags
	if cmd.Flags().Lookup("workers") != nil {
		cfg.Workers = r.integer("workers")
	}
	if cmd.Flags().Lookup("max-pages") != nil {
		cfg.MaxPages = r.integer("max-pages")
		cfg.Robots = r.boolean("robots")
	}
	if r.err != nil {
		return nil, r.err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.LogJSON = getPersistentBool(cmd, "log-json")

	if err := loadConfigFile(cfg); err != nil {
		return nil, err
	}
	cfg.SiteConfigs.ApplyTo(cfg, cmd.Flags().Changed)

	cfg.Targets = targets

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// loadConfigFile loads cfg.SiteConfigs.
// If the user explicitly specified a path, it is an error if the file is
// not found. If no path was specified, a missing file yields an empty File.
func loadConfigFile(cfg *config.Config) error {
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.SiteConfigs = file
	case explicitConfigPath:
		return fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}
	return nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	return getPersistentBool(cmd, "verbose")
}

// getPersistentBool reads a persistent root flag, returning false when the
// command is used outside the root command.
func getPersistentBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// readTargetList reads URLs from a file, one per line. Blank lines and
// lines starting with '#' are skipped.
func readTargetList(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided list path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open target list: %w", err)
	}
	defer f.Close()

	var targets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read target list: %w", err)
	}
	return targets, nil
}
