package transport

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// readBody reads and decodes resp.Body, keeping at most limit decoded bytes.
// On successful decoding Content-Encoding and Content-Length are removed from
// the response header so they describe the returned bytes. An empty body or
// a coding chain with any unknown coding is passed through untouched.
func readBody(resp *http.Response, limit int64) ([]byte, bool, error) {
	br := bufio.NewReader(resp.Body)
	var r io.Reader = br
	encodings := parseEncodings(resp.Header.Get("Content-Encoding"))

	// HEAD, 204 and 304 responses carry the header without a body.
	if _, err := br.Peek(1); err == io.EOF {
		encodings = nil
	}
	if slices.ContainsFunc(encodings, func(e string) bool { return !knownEncoding(e) }) {
		encodings = nil
	}

	// Encodings are listed in the order applied; undo them in reverse.
	for i := len(encodings) - 1; i >= 0; i-- {
		next, closer, err := decoder(encodings[i], r)
		if err != nil {
			return nil, false, fmt.Errorf("%s decoder: %w", encodings[i], err)
		}
		if closer != nil {
			defer closer()
		}
		r = next
	}

	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	truncated := int64(len(data)) > limit
	if truncated {
		data = data[:limit]
	}

	if len(encodings) > 0 {
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
	}
	return data, truncated, nil
}

func parseEncodings(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" && part != "identity" {
			out = append(out, part)
		}
	}
	return out
}

func knownEncoding(encoding string) bool {
	switch encoding {
	case "gzip", "x-gzip", "deflate", "br", "zstd":
		return true
	default:
		return false
	}
}

// decoder wraps r for one known content coding.
func decoder(encoding string, r io.Reader) (io.Reader, func(), error) {
	switch encoding {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gz, func() { gz.Close() }, nil
	case "deflate":
		// Servers disagree on whether "deflate" means zlib-wrapped or raw.
		br := bufio.NewReader(r)
		if hdr, err := br.Peek(2); err == nil && isZlibHeader(hdr) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return nil, nil, err
			}
			return zr, func() { zr.Close() }, nil
		}
		fr := flate.NewReader(br)
		return fr, func() { fr.Close() }, nil
	case "br":
		return brotli.NewReader(r), nil, nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown content coding %q", encoding)
	}
}

func isZlibHeader(h []byte) bool {
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}
