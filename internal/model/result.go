package model

import "time"

// Result is the per-URL record produced by batch fetches and crawls.
//
// Exactly one of Data and HTMLPreview is set on success: Data when a page
// handler parsed the response, HTMLPreview otherwise. On failure Error is set,
// Success is false and StatusCode is omitted.
type Result struct {
	// URL is the requested URL.
	URL string `json:"url"`

	// StatusCode is the HTTP status, absent on failure.
	StatusCode int `json:"status_code,omitempty"`

	// ContentLength is the decoded body size in bytes.
	ContentLength int `json:"content_length"`

	// Success is true when the response status is 200 and no error occurred.
	Success bool `json:"success"`

	// Blocked is true when the response was classified as an anti-bot block.
	Blocked bool `json:"blocked,omitempty"`

	// Data is the page handler's output.
	Data any `json:"data,omitempty"`

	// HTMLPreview is a bounded-length prefix of the page text.
	HTMLPreview string `json:"html_preview,omitempty"`

	// Error describes why the fetch or handler failed.
	Error string `json:"error,omitempty"`

	// ContentHash is the SHA3-256 of the body.
	ContentHash string `json:"content_hash,omitempty"`

	// Proxy is the redacted proxy used for the final attempt.
	Proxy string `json:"proxy,omitempty"`

	// ElapsedMs is the duration of the final attempt in milliseconds.
	ElapsedMs int64 `json:"elapsed_ms,omitempty"`

	// FetchedAt is when the result was recorded.
	FetchedAt time.Time `json:"fetched_at"`
}

// Failed reports whether the result carries an error.
func (r *Result) Failed() bool {
	return r.Error != ""
}

// ErrorResult builds a failed result for url.
func ErrorResult(url string, err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{
		URL:       url,
		Success:   false,
		Error:     msg,
		FetchedAt: time.Now(),
	}
}

// Mode identifies how a result set was produced.
type Mode string

// Run modes.
const (
	ModeFetch Mode = "fetch"
	ModeCrawl Mode = "crawl"
)

// ResultSet is the output of one batch fetch or crawl run.
type ResultSet struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`

	// Mode is fetch or crawl.
	Mode Mode `json:"mode"`

	// Seed is the crawl seed URL; empty for batch fetches.
	Seed string `json:"seed,omitempty"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Results holds one record per URL, in completion order.
	Results []Result `json:"results"`
}

// Summary aggregates a ResultSet.
type Summary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Blocked   int           `json:"blocked"`
	NonOK     int           `json:"non_ok"`
	Bytes     int64         `json:"bytes"`
	Duration  time.Duration `json:"duration"`
}

// Summary computes counts over the results.
// Failed counts errors; NonOK counts delivered responses whose status was not 200.
func (s *ResultSet) Summary() Summary {
	sum := Summary{Total: len(s.Results)}
	for i := range s.Results {
		r := &s.Results[i]
		switch {
		case r.Failed():
			sum.Failed++
		case r.Success:
			sum.Succeeded++
		default:
			sum.NonOK++
		}
		if r.Blocked {
			sum.Blocked++
		}
		sum.Bytes += int64(r.ContentLength)
	}
	if !s.StartedAt.IsZero() && !s.FinishedAt.IsZero() {
		sum.Duration = s.FinishedAt.Sub(s.StartedAt)
	}
	return sum
}

// StatusCounts returns the number of results per status code. Failed results
// are counted under 0.
func (s *ResultSet) StatusCounts() map[int]int {
	counts := make(map[int]int)
	for _, r := range s.Results {
		counts[r.StatusCode]++
	}
	return counts
}
