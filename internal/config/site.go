package config

import (
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SiteConfig holds site-specific configuration for one host.
// This allows customizing request headers and crawl scope per site.
type SiteConfig struct {
	// Cookie is an HTTP cookie to send to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	// They win over profile headers and lose to per-request headers.
	Headers map[string]string `yaml:"headers,omitempty"`

	// MaxPages overrides the global crawl page limit for this site.
	// If zero, the global MaxPages is used.
	MaxPages int `yaml:"maxPages,omitempty"`

	// IgnorePatterns are URL patterns to skip during crawling.
	// Patterns are matched against the URL path using glob syntax.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL patterns to follow during crawling.
	// If specified, only URLs matching these patterns are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// Defaults is the `defaults` section of the configuration file. It carries
// the site defaults applied to every host plus run-level settings.
//
// Pointer fields distinguish "not set" from a meaningful zero value
// (for example maxRetries: 0 disables retries).
type Defaults struct {
	SiteConfig `yaml:",inline"`

	RequestsPerSecond float64       `yaml:"requestsPerSecond,omitempty"`
	MinDelay          time.Duration `yaml:"minDelay,omitempty"`
	MaxDelay          time.Duration `yaml:"maxDelay,omitempty"`
	GlobalRate        float64       `yaml:"globalRate,omitempty"`
	MaxRetries        *int          `yaml:"maxRetries,omitempty"`
	BackoffFactor     time.Duration `yaml:"backoffFactor,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
	VerifyTLS         *bool         `yaml:"verifyTLS,omitempty"`
	Cookies           *bool         `yaml:"cookies,omitempty"`
	RotateEvery       *int          `yaml:"rotateEvery,omitempty"`
	Workers           int           `yaml:"workers,omitempty"`
	Robots            *bool         `yaml:"robots,omitempty"`
	ProxyFile         string        `yaml:"proxyFile,omitempty"`
	Proxies           []string      `yaml:"proxies,omitempty"`
	MaxProxyFailures  int           `yaml:"maxProxyFailures,omitempty"`
}

// File represents the structure of the .stealthfetch configuration file.
type File struct {
	// Sites maps host names to their site-specific configurations.
	// Keys are hosts without scheme (e.g., "example.com" or "example.com:8443").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains the settings applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults Defaults `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a host.
// It merges the site-specific configuration with defaults. An entry for
// host:port wins over one for the bare host name.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults.SiteConfig
	result.Headers = maps.Clone(result.Headers)

	siteConfig, ok := cf.lookup(host)
	if !ok {
		return result
	}
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.MaxPages != 0 {
		result.MaxPages = siteConfig.MaxPages
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	return result
}

func (cf *File) lookup(host string) (SiteConfig, bool) {
	host = strings.ToLower(host)
	if sc, ok := cf.Sites[host]; ok {
		return sc, true
	}
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.HasSuffix(host, "]") {
		sc, ok := cf.Sites[host[:i]]
		return sc, ok
	}
	return SiteConfig{}, false
}

// Header returns the configured headers for u as an http.Header, including
// the Cookie header when a cookie is set. It has the shape of a session
// header overlay.
func (cf *File) Header(u *url.URL) http.Header {
	sc := cf.GetSiteConfig(u.Host)
	h := make(http.Header, len(sc.Headers)+1)
	for k, v := range sc.Headers {
		h.Set(k, v)
	}
	if sc.Cookie != "" {
		h.Set("Cookie", sc.Cookie)
	}
	return h
}

// ApplyTo copies file defaults into cfg for every setting the user did not
// set explicitly. isSet reports whether the CLI flag of that name was given.
//
// Design decision: precedence is flag > file > built-in default. Taking a
// predicate instead of a flag set keeps this package free of CLI imports.
func (cf *File) ApplyTo(cfg *Config, isSet func(flag string) bool) {
	d := cf.Defaults
	apply := func(flag string, present bool, set func()) {
		if present && !isSet(flag) {
			set()
		}
	}

	apply("rps", d.RequestsPerSecond > 0, func() { cfg.RequestsPerSecond = d.RequestsPerSecond })
	apply("min-delay", d.MinDelay > 0, func() { cfg.MinDelay = d.MinDelay })
	apply("max-delay", d.MaxDelay > 0, func() { cfg.MaxDelay = d.MaxDelay })
	apply("global-rate", d.GlobalRate > 0, func() { cfg.GlobalRate = d.GlobalRate })
	apply("max-retries", d.MaxRetries != nil, func() { cfg.MaxRetries = *d.MaxRetries })
	apply("backoff", d.BackoffFactor > 0, func() { cfg.BackoffFactor = d.BackoffFactor })
	apply("timeout", d.Timeout > 0, func() { cfg.Timeout = d.Timeout })
	apply("insecure", d.VerifyTLS != nil, func() { cfg.VerifyTLS = *d.VerifyTLS })
	apply("no-cookies", d.Cookies != nil, func() { cfg.Cookies = *d.Cookies })
	apply("rotate-every", d.RotateEvery != nil, func() { cfg.RotateEvery = *d.RotateEvery })
	apply("workers", d.Workers > 0, func() { cfg.Workers = d.Workers })
	apply("max-pages", d.MaxPages > 0, func() { cfg.MaxPages = d.MaxPages })
	apply("robots", d.Robots != nil, func() { cfg.Robots = *d.Robots })
	apply("proxy-file", d.ProxyFile != "", func() { cfg.ProxyFile = d.ProxyFile })
	apply("max-proxy-failures", d.MaxProxyFailures > 0, func() { cfg.MaxProxyFailures = d.MaxProxyFailures })

	// Inline proxies from the file add to those given on the command line.
	cfg.Proxies = append(cfg.Proxies, d.Proxies...)
}
