// Package linkscan streams tag events out of an HTML document.
//
// Design decision: callers pull tags one at a time from a Scanner (or range
// over Tags/Hrefs) instead of registering per-tag callbacks. Extraction code
// stays a plain loop, it can stop early, and no DOM is built for pages that
// are only mined for links.
package linkscan

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Tag is one start or self-closing tag.
type Tag struct {
	// Name is the lower-case element name.
	Name string

	// Attrs maps lower-case attribute keys to their values. The first
	// occurrence of a duplicated attribute wins, as in browsers.
	Attrs map[string]string

	// SelfClosing reports a tag written as <name/>.
	SelfClosing bool
}

// Attr returns the value of key and whether it was present.
func (t Tag) Attr(key string) (string, bool) {
	v, ok := t.Attrs[key]
	return v, ok
}

// Scanner pulls tags from an HTML stream.
type Scanner struct {
	z   *html.Tokenizer
	err error
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{z: html.NewTokenizer(r)}
}

// Next returns the next start or self-closing tag. It returns false at the
// end of the document or on a read error; Err distinguishes the two.
func (s *Scanner) Next() (Tag, bool) {
	if s.err != nil {
		return Tag{}, false
	}
	for {
		tt := s.z.Next()
		switch tt {
		case html.ErrorToken:
			s.err = s.z.Err()
			return Tag{}, false
		case html.StartTagToken, html.SelfClosingTagToken:
			return s.tag(tt == html.SelfClosingTagToken), true
		}
	}
}

// Err returns the first non-EOF error encountered.
func (s *Scanner) Err() error {
	if errors.Is(s.err, io.EOF) {
		return nil
	}
	return s.err
}

func (s *Scanner) tag(selfClosing bool) Tag {
	name, hasAttr := s.z.TagName()
	t := Tag{Name: string(name), SelfClosing: selfClosing}
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = s.z.TagAttr()
		if t.Attrs == nil {
			t.Attrs = make(map[string]string)
		}
		k := string(key)
		if _, dup := t.Attrs[k]; !dup {
			t.Attrs[k] = string(val)
		}
	}
	return t
}

// Tags returns a lazy sequence of the tags in body. Each range starts a new
// scan, so the sequence can be iterated more than once.
func Tags(body []byte) iter.Seq[Tag] {
	return func(yield func(Tag) bool) {
		s := NewScanner(bytes.NewReader(body))
		for {
			t, ok := s.Next()
			if !ok || !yield(t) {
				return
			}
		}
	}
}

// Hrefs returns the raw href values of anchor tags in document order.
// Anchors without an href are skipped.
func Hrefs(body []byte) iter.Seq[string] {
	return func(yield func(string) bool) {
		for t := range Tags(body) {
			if t.Name != "a" {
				continue
			}
			href, ok := t.Attr("href")
			if !ok {
				continue
			}
			if !yield(href) {
				return
			}
		}
	}
}

// Links returns anchor targets resolved against base, in document order.
// Script, mail, phone and data links and bare fragments are dropped, as are
// hrefs that do not parse.
func Links(base *url.URL, body []byte) iter.Seq[*url.URL] {
	return func(yield func(*url.URL) bool) {
		for href := range Hrefs(body) {
			u, ok := Resolve(base, href)
			if !ok {
				continue
			}
			if !yield(u) {
				return
			}
		}
	}
}

// Resolve resolves href against base, rejecting links that never lead to a
// fetchable page.
func Resolve(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return nil, false
		}
	}
	u, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	return base.ResolveReference(u), true
}
