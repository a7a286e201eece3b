package render

import (
	"os"

	"github.com/clipforge/clipforge/internal/timeline"
)

// ProxyResolver picks the proxy file for video media when one exists on
// disk, falling back to the original source. Proxies may be deleted
// externally at any time; a missing file is treated as absent, never as an
// error.
type ProxyResolver struct {
	Exists func(string) bool
}

func NewProxyResolver() *ProxyResolver {
	return &ProxyResolver{Exists: fileExists}
}

func (r *ProxyResolver) SourcePath(m *timeline.MediaItem) string {
	if m.Type == timeline.MediaVideo && m.ProxyPath != "" && r.Exists != nil && r.Exists(m.ProxyPath) {
		return m.ProxyPath
	}
	return m.Path
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
