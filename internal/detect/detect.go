// Package detect classifies responses that look like anti-bot defenses.
//
// Classification is deliberately coarse: a response is blocked when its
// status is one commonly used for throttling or denial, or when its body
// mentions one of a fixed set of indicator phrases. False positives (a page
// that legitimately talks about "captcha") are accepted; a blocked response is
// a signal that triggers mitigation, not an error.
package detect

import (
	"net/http"
	"slices"
	"strings"
)

// DefaultStatuses are the statuses that classify a response as blocked.
var DefaultStatuses = []int{
	http.StatusForbidden,
	http.StatusTooManyRequests,
	http.StatusServiceUnavailable,
}

// DefaultIndicators are the lowercase body substrings that classify a
// response as blocked.
var DefaultIndicators = []string{
	"captcha",
	"challenge",
	"blocked",
	"access denied",
	"rate limit",
	"too many requests",
	"cf-browser-verification",
	"security check",
}

// Classifier decides whether a response is blocked.
// The zero value blocks nothing; use NewClassifier for the defaults.
type Classifier struct {
	statuses   []int
	indicators []string
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithStatuses replaces the blocked status set.
func WithStatuses(statuses ...int) ClassifierOption {
	return func(c *Classifier) {
		c.statuses = slices.Clone(statuses)
	}
}

// WithIndicators replaces the indicator phrases. Matching is case-insensitive.
func WithIndicators(indicators ...string) ClassifierOption {
	return func(c *Classifier) {
		c.indicators = lowerAll(indicators)
	}
}

// WithExtraIndicators appends indicator phrases to the current set.
func WithExtraIndicators(indicators ...string) ClassifierOption {
	return func(c *Classifier) {
		c.indicators = append(c.indicators, lowerAll(indicators)...)
	}
}

// NewClassifier returns a classifier with the default statuses and indicators.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		statuses:   slices.Clone(DefaultStatuses),
		indicators: slices.Clone(DefaultIndicators),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsBlocked reports whether a response with the given status and decoded
// body text looks like an anti-bot defense.
func (c *Classifier) IsBlocked(status int, body string) bool {
	_, blocked := c.Reason(status, body)
	return blocked
}

// Reason is IsBlocked plus the matching status or phrase, for logging.
func (c *Classifier) Reason(status int, body string) (string, bool) {
	if slices.Contains(c.statuses, status) {
		return http.StatusText(status), true
	}
	if body == "" || len(c.indicators) == 0 {
		return "", false
	}
	lower := strings.ToLower(body)
	for _, indicator := range c.indicators {
		if indicator != "" && strings.Contains(lower, indicator) {
			return indicator, true
		}
	}
	return "", false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
