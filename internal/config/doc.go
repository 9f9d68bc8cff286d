// Package config provides configuration structures and utilities for stealthfetch.
// It defines the run options for fetching and crawling, the optional YAML
// configuration file, and per-site overrides such as headers, cookies and
// crawl patterns.
package config
