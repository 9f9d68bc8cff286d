package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "stealthfetch"

	// DefaultRequestsPerSecond is the per-host dispatch rate. One request
	// per second per host keeps a single worker from looking like a burst.
	DefaultRequestsPerSecond = 1.0

	// DefaultMinDelay and DefaultMaxDelay bound the random jitter added to
	// every paced dispatch and the delay taken after a blocked response.
	DefaultMinDelay = 500 * time.Millisecond
	DefaultMaxDelay = 3 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultBackoffFactor is the first retry delay; later retries double it.
	DefaultBackoffFactor = time.Second

	// DefaultMaxBackoff caps any single retry delay, including Retry-After.
	DefaultMaxBackoff = 120 * time.Second

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxProxyFailures retires a proxy after this many consecutive failures.
	DefaultMaxProxyFailures = 3

	// DefaultRotateEvery is the number of delivered requests per profile.
	DefaultRotateEvery = 10

	// DefaultWorkers is the number of concurrent fetches in batch mode.
	DefaultWorkers = 5

	// DefaultMaxPages is the maximum number of pages per crawl.
	// This prevents runaway crawling on large or infinitely-generating sites.
	DefaultMaxPages = 100

	// DefaultPreviewLength is the number of characters kept in html_preview.
	DefaultPreviewLength = 1000

	// DefaultMaxBodySize limits the decoded response body kept in memory.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds all configuration options for a stealthfetch run.
// This struct is populated from CLI flags (and the optional config file) and
// passed through the application via dependency injection rather than
// global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., PacingConfig, RetryConfig) for simplicity. Every field maps to one
// CLI flag, which keeps flag binding and file overlay mechanical.
type Config struct {
	// Targets are the URLs to fetch, or the crawl seed.
	Targets []string

	// RequestsPerSecond is the per-host dispatch rate enforced by the pacer.
	RequestsPerSecond float64

	// MinDelay and MaxDelay bound the uniform jitter window.
	MinDelay time.Duration
	MaxDelay time.Duration

	// GlobalRate caps requests per second across all hosts. 0 disables it.
	GlobalRate float64

	// MaxRetries is the number of retries on retryable statuses and
	// connection errors.
	MaxRetries int

	// BackoffFactor is the base of the exponential retry backoff.
	BackoffFactor time.Duration

	// MaxBackoff caps a single retry delay.
	MaxBackoff time.Duration

	// Timeout is the per-request timeout, not a run deadline.
	Timeout time.Duration

	// VerifyTLS enables certificate verification.
	VerifyTLS bool

	// Cookies enables the per-session in-memory cookie jar.
	Cookies bool

	// RotateEvery is the number of delivered requests sharing one profile.
	RotateEvery int

	// Seed makes profile generation and jitter reproducible. 0 means random.
	Seed uint64

	// ProxyFile is a newline-delimited proxy list.
	ProxyFile string

	// Proxies are proxy specs given inline (flags or config file).
	Proxies []string

	// MaxProxyFailures is the failure count at which a proxy is retired.
	MaxProxyFailures int

	// UseTor starts an embedded Tor daemon and adds it to the proxy pool.
	//
	// Note: The embedded Tor daemon takes 1-3 minutes to bootstrap on first start.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon to bootstrap. Only used when UseTor is true.
	TorStartupTimeout time.Duration

	// Workers is the number of concurrent fetches in batch mode.
	Workers int

	// MaxPages is the maximum number of pages per crawl. 0 uses the default.
	MaxPages int

	// Robots makes crawls honor robots.txt.
	Robots bool

	// Handler selects the page handler ("title", "links", "json",
	// "select:<css>"). Empty means previews only.
	Handler string

	// PreviewLength is the number of characters kept in html_preview.
	PreviewLength int

	// MaxBodySize is the maximum decoded body size in bytes.
	// Set to 0 to use the default (10MB).
	MaxBodySize int64

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// LogJSON switches log output to JSON lines.
	LogJSON bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches the current directory, the home directory
	// and the XDG config directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// JSONReport, MarkdownReport and XLSXReport select the report format.
	// They are mutually exclusive; none selected means the simple text report.
	JSONReport     bool
	MarkdownReport bool
	XLSXReport     bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	// Directories are created automatically if they don't exist.
	ReportFile string

	// DBDir is the directory for the SQLite result archive.
	// Defaults to XDG data directory (~/.local/share/stealthfetch on Linux).
	DBDir string

	// SaveToDB archives each run's results in the database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., rate, timeout,
// TLS verification). This also serves as documentation of what the
// defaults are.
func NewConfig() *Config {
	return &Config{
		RequestsPerSecond: DefaultRequestsPerSecond,
		MinDelay:          DefaultMinDelay,
		MaxDelay:          DefaultMaxDelay,
		MaxRetries:        DefaultMaxRetries,
		BackoffFactor:     DefaultBackoffFactor,
		MaxBackoff:        DefaultMaxBackoff,
		Timeout:           DefaultTimeout,
		VerifyTLS:         true,
		Cookies:           true,
		RotateEvery:       DefaultRotateEvery,
		MaxProxyFailures:  DefaultMaxProxyFailures,
		TorStartupTimeout: DefaultTorStartupTimeout,
		Workers:           DefaultWorkers,
		MaxPages:          DefaultMaxPages,
		PreviewLength:     DefaultPreviewLength,
		MaxBodySize:       DefaultMaxBodySize,
	}
}

// XDGDataDir returns the XDG data directory for stealthfetch.
// On Linux: ~/.local/share/stealthfetch
// On macOS: ~/Library/Application Support/stealthfetch
// On Windows: %LOCALAPPDATA%\stealthfetch
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for stealthfetch.
// On Linux: ~/.config/stealthfetch
// On macOS: ~/Library/Application Support/stealthfetch
// On Windows: %APPDATA%\stealthfetch
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// We return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.reportFormatCount() > 1 {
		return ErrConflictingReportFormats
	}
	if c.XLSXReport && c.ReportFile == "" {
		return ErrXLSXNeedsFile
	}
	if c.RequestsPerSecond <= 0 {
		return ErrInvalidRate
	}
	if c.GlobalRate < 0 {
		return ErrInvalidGlobalRate
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return ErrInvalidDelay
	}
	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.BackoffFactor < 0 || c.MaxBackoff < 0 {
		return ErrInvalidBackoff
	}
	if c.RotateEvery < 0 {
		return ErrInvalidRotateEvery
	}
	if c.MaxProxyFailures <= 0 {
		return ErrInvalidMaxProxyFailures
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}

func (c *Config) reportFormatCount() int {
	n := 0
	for _, on := range []bool{c.JSONReport, c.MarkdownReport, c.XLSXReport} {
		if on {
			n++
		}
	}
	return n
}
