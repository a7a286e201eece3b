// Package playback serves rendered files (preview chunks, full previews,
// proxies) to a local player over HTTP with byte-range support, which video
// elements require for seeking.
package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrMalformed means the Range header could not be parsed; per RFC 7233
	// the request falls back to a full-body response.
	ErrMalformed = errors.New("malformed range header")
	// ErrUnsatisfiable means the requested range lies entirely outside the
	// file.
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// Span is one resolved byte range, inclusive on both ends.
type Span struct {
	First int64
	Last  int64
}

func (s Span) Len() int64 {
	return s.Last - s.First + 1
}

// ContentRange formats the Content-Range header value for a file of the
// given total size.
func (s Span) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", s.First, s.Last, total)
}

// ParseSpan resolves a Range header against a file size. A missing header
// returns (nil, nil): the caller serves the whole file. Multi-range requests
// are answered with their first range only.
func ParseSpan(header string, size int64) (*Span, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, ErrMalformed
	}
	if idx := strings.Index(spec, ","); idx != -1 {
		spec = strings.TrimSpace(spec[:idx])
	}

	first, last, found := strings.Cut(spec, "-")
	if !found {
		return nil, ErrMalformed
	}

	if first == "" {
		// Suffix form: last N bytes.
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return nil, ErrMalformed
		}
		start := size - n
		if start < 0 {
			start = 0
		}
		return clamp(start, size-1, size)
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return nil, ErrMalformed
	}
	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil {
			return nil, ErrMalformed
		}
	}
	return clamp(start, end, size)
}

func clamp(start, end, size int64) (*Span, error) {
	if start > end || start >= size {
		return nil, ErrUnsatisfiable
	}
	if end >= size {
		end = size - 1
	}
	return &Span{First: start, Last: end}, nil
}
