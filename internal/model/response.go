package model

import (
	"bytes"
	"encoding/hex"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/net/html/charset"
)

// Response is a delivered HTTP response after body decoding.
//
// Design decision: The body is read fully into memory (bounded by the
// transport's size cap) so that block classification, handlers and the
// preview can all inspect it without coordinating over a stream.
type Response struct {
	// URL is the requested URL.
	URL string `json:"url"`

	// Method is the request method.
	Method string `json:"method"`

	// StatusCode is the HTTP status code.
	StatusCode int `json:"status_code"`

	// Header contains the response headers.
	Header http.Header `json:"headers"`

	// Body is the decoded response body (Content-Encoding removed).
	Body []byte `json:"-"`

	// Elapsed is the wall time of the final attempt.
	Elapsed time.Duration `json:"elapsed"`

	// Attempts is the number of transport attempts, including retries.
	Attempts int `json:"attempts"`

	// Proxy is the redacted proxy URL used, empty for direct connections.
	Proxy string `json:"proxy,omitempty"`

	// Blocked is true when the response looks like an anti-bot defense.
	// A blocked response is still a delivered response, not an error.
	Blocked bool `json:"blocked"`

	// Challenge holds tokens scraped from a challenge page, if a challenge
	// hook was installed and found any.
	Challenge map[string]string `json:"challenge,omitempty"`
}

// GetHeader returns the first value of the named header.
func (r *Response) GetHeader(name string) string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get(name)
}

// ContentType returns the media type without parameters, lowercased.
func (r *Response) ContentType() string {
	ct := r.GetHeader("Content-Type")
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	}
	return mediaType
}

// IsHTML reports whether the response declares an HTML body.
// A missing Content-Type is treated as HTML, since most servers that omit it
// are serving pages.
func (r *Response) IsHTML() bool {
	switch r.ContentType() {
	case "", "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

// OK reports whether the status is 200.
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Text returns the body decoded to UTF-8 using the declared or sniffed charset.
// Undecodable input is returned as-is.
func (r *Response) Text() string {
	if len(r.Body) == 0 {
		return ""
	}
	reader, err := charset.NewReader(bytes.NewReader(r.Body), r.GetHeader("Content-Type"))
	if err != nil {
		return string(r.Body)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(r.Body)
	}
	return string(decoded)
}

// ContentHash returns the hex SHA3-256 of the body, or "" when empty.
func (r *Response) ContentHash() string {
	if len(r.Body) == 0 {
		return ""
	}
	sum := sha3.Sum256(r.Body)
	return hex.EncodeToString(sum[:])
}

// Preview returns at most n runes of the decoded text.
func (r *Response) Preview(n int) string {
	return Truncate(r.Text(), n)
}

// Truncate cuts s to at most n runes. n <= 0 means no limit.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
