// Package handler turns delivered responses into per-URL result records.
//
// A Handler exposes one capability, Parse, and the concrete handlers in this
// package cover the common extraction jobs. Process applies a handler (or the
// preview fallback) to one fetch outcome and fills the shared Result fields.
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/stealthfetch/internal/linkscan"
	"github.com/nao1215/stealthfetch/internal/model"
)

// DefaultPreviewLength is the number of characters kept in HTMLPreview.
const DefaultPreviewLength = 1000

var (
	// ErrUnknownHandler is returned by ByName for an unrecognized name.
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrEmptySelector is returned when a selector handler has no selector.
	ErrEmptySelector = errors.New("empty selector")
)

// Handler extracts structured data from a response.
type Handler interface {
	Parse(resp *model.Response) (any, error)
}

// Func adapts an ordinary function to Handler.
type Func func(resp *model.Response) (any, error)

// Parse calls f(resp).
func (f Func) Parse(resp *model.Response) (any, error) {
	return f(resp)
}

// TitleHandler returns the trimmed document title.
type TitleHandler struct{}

// Parse implements Handler.
func (TitleHandler) Parse(resp *model.Response) (any, error) {
	doc, err := document(resp)
	if err != nil {
		return nil, err
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

// SelectorHandler returns the text, or an attribute, of every element
// matching a CSS selector.
type SelectorHandler struct {
	// Selector is the CSS selector.
	Selector string

	// Attr, when set, extracts that attribute instead of the element text.
	// Elements without the attribute are skipped.
	Attr string

	// Limit caps the number of values; zero means no cap.
	Limit int
}

// Parse implements Handler.
func (h SelectorHandler) Parse(resp *model.Response) (any, error) {
	if strings.TrimSpace(h.Selector) == "" {
		return nil, ErrEmptySelector
	}
	doc, err := document(resp)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0)
	doc.Find(h.Selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if h.Attr != "" {
			v, ok := sel.Attr(h.Attr)
			if !ok {
				return true
			}
			values = append(values, strings.TrimSpace(v))
		} else {
			values = append(values, strings.TrimSpace(sel.Text()))
		}
		return h.Limit <= 0 || len(values) < h.Limit
	})
	return values, nil
}

// LinksHandler returns the page's anchor targets resolved against the
// response URL, deduplicated, in document order.
type LinksHandler struct{}

// Parse implements Handler.
func (LinksHandler) Parse(resp *model.Response) (any, error) {
	base, err := url.Parse(resp.URL)
	if err != nil {
		return nil, fmt.Errorf("response url: %w", err)
	}
	links := make([]string, 0)
	for u := range linkscan.Links(base, resp.Body) {
		s := u.String()
		if !slices.Contains(links, s) {
			links = append(links, s)
		}
	}
	return links, nil
}

// JSONHandler decodes a JSON body.
type JSONHandler struct{}

// Parse implements Handler.
func (JSONHandler) Parse(resp *model.Response) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

// ByName returns the handler selected on the command line. Recognized names
// are "title", "links", "json" and "select:<css>" (optionally
// "select:<css>@<attr>"). An empty name returns nil, meaning previews only.
func ByName(name string) (Handler, error) {
	switch {
	case name == "":
		return nil, nil
	case name == "title":
		return TitleHandler{}, nil
	case name == "links":
		return LinksHandler{}, nil
	case name == "json":
		return JSONHandler{}, nil
	case strings.HasPrefix(name, "select:"):
		expr := strings.TrimPrefix(name, "select:")
		h := SelectorHandler{Selector: expr}
		if i := strings.LastIndex(expr, "@"); i >= 0 {
			h.Selector, h.Attr = expr[:i], expr[i+1:]
		}
		if strings.TrimSpace(h.Selector) == "" {
			return nil, ErrEmptySelector
		}
		return h, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, name)
	}
}

// Process builds the result record for one fetch outcome.
//
// A fetch error yields a failed result with no status. For a delivered
// response, h runs only when the status is 200; a handler error turns the
// record into a failure. Otherwise HTMLPreview carries up to previewLen
// characters of the decoded body.
func Process(h Handler, rawURL string, resp *model.Response, fetchErr error, previewLen int) model.Result {
	if fetchErr != nil {
		return model.ErrorResult(rawURL, fetchErr)
	}
	if resp == nil {
		return model.ErrorResult(rawURL, errors.New("no response"))
	}
	if previewLen <= 0 {
		previewLen = DefaultPreviewLength
	}

	r := model.Result{
		URL:           rawURL,
		StatusCode:    resp.StatusCode,
		ContentLength: len(resp.Body),
		Success:       resp.OK(),
		Blocked:       resp.Blocked,
		ContentHash:   resp.ContentHash(),
		Proxy:         resp.Proxy,
		ElapsedMs:     resp.Elapsed.Milliseconds(),
		FetchedAt:     time.Now(),
	}

	if h != nil && resp.OK() {
		data, err := h.Parse(resp)
		if err != nil {
			failed := model.ErrorResult(rawURL, fmt.Errorf("handler: %w", err))
			failed.ContentLength = r.ContentLength
			failed.Blocked = r.Blocked
			failed.ContentHash = r.ContentHash
			failed.Proxy = r.Proxy
			failed.ElapsedMs = r.ElapsedMs
			return failed
		}
		r.Data = data
		return r
	}

	r.HTMLPreview = resp.Preview(previewLen)
	return r
}

func document(resp *model.Response) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Text()))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
