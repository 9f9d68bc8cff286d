package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTarget is returned when no URL or list file is specified.
	ErrNoTarget = errors.New("no target specified: provide a URL or use --list")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidWorkers is returned when the worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid workers: must be positive")

	// ErrConflictingReportFormats is returned when more than one of --json,
	// --markdown and --xlsx is specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: choose one of --json, --markdown, --xlsx")

	// ErrXLSXNeedsFile is returned when --xlsx is used without --output.
	// A spreadsheet is binary and is never written to stdout.
	ErrXLSXNeedsFile = errors.New("xlsx report requires --output")

	// ErrInvalidRate is returned when the per-host request rate is not positive.
	ErrInvalidRate = errors.New("invalid rate: requests per second must be positive")

	// ErrInvalidGlobalRate is returned when the global rate cap is negative.
	// Use 0 to disable the cap.
	ErrInvalidGlobalRate = errors.New("invalid global rate: must be non-negative")

	// ErrInvalidDelay is returned when the jitter window is negative or inverted.
	ErrInvalidDelay = errors.New("invalid delay: need 0 <= min-delay <= max-delay")

	// ErrInvalidMaxRetries is returned when the retry count is negative.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be non-negative")

	// ErrInvalidBackoff is returned when the backoff factor or cap is negative.
	ErrInvalidBackoff = errors.New("invalid backoff: must be non-negative")

	// ErrInvalidRotateEvery is returned when the rotation interval is negative.
	// Use 0 to disable periodic rotation.
	ErrInvalidRotateEvery = errors.New("invalid rotate-every: must be non-negative")

	// ErrInvalidMaxProxyFailures is returned when the proxy failure threshold
	// is not positive.
	ErrInvalidMaxProxyFailures = errors.New("invalid max proxy failures: must be positive")

	// ErrInvalidMaxPages is returned when the crawl page limit is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// A negative body size is invalid; use 0 to use the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
