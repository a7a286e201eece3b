package playback

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Service serves one rendered file to an HTTP client.
type Service interface {
	Serve(w http.ResponseWriter, r *http.Request, path string) error
}

// FileServer serves files from inside a set of allowed roots. Requests that
// resolve outside every root are refused; the rendered outputs are the only
// files the playback surface may expose.
type FileServer struct {
	roots  []string
	logger *slog.Logger
}

// NewFileServer builds a server restricted to the given directories. Roots
// are cleaned once here so the per-request check is a prefix test.
func NewFileServer(logger *slog.Logger, roots ...string) *FileServer {
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		if root == "" {
			continue
		}
		cleaned = append(cleaned, filepath.Clean(root))
	}
	return &FileServer{roots: cleaned, logger: logger}
}

// Serve writes the file at path, honoring a single byte range when the
// request carries one. Responses for open media are 200 with Accept-Ranges,
// 206 with Content-Range for a satisfiable range, 416 when the range lies
// past the end, 404 when the file is gone.
func (s *FileServer) Serve(w http.ResponseWriter, r *http.Request, path string) error {
	if !s.allowed(path) {
		http.Error(w, "file not served", http.StatusForbidden)
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()

	ctype := mime.TypeByExtension(filepath.Ext(path))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", ctype)

	span, err := ParseSpan(r.Header.Get("Range"), size)
	switch {
	case err == ErrUnsatisfiable:
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case err == ErrMalformed:
		span = nil
	case err != nil:
		return err
	}

	if span == nil {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
		w.WriteHeader(http.StatusOK)
		_, err = io.Copy(w, f)
		return copyErr(err)
	}

	if _, err := f.Seek(span.First, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", path, err)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", span.Len()))
	w.Header().Set("Content-Range", span.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	_, err = io.CopyN(w, f, span.Len())
	return copyErr(err)
}

// allowed reports whether path resolves inside one of the serving roots.
func (s *FileServer) allowed(path string) bool {
	cleaned := filepath.Clean(path)
	for _, root := range s.roots {
		if cleaned == root || strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// copyErr drops client-side aborts; a player cancelling a seek is routine.
func copyErr(err error) error {
	if err == nil || err == io.EOF {
		return nil
	}
	if strings.Contains(err.Error(), "broken pipe") || strings.Contains(err.Error(), "connection reset") {
		return nil
	}
	return err
}
