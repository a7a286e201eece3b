package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/clipforge/clipforge/internal/timeline"
)

func TestProxyResolver_SourcePath(t *testing.T) {
	video := &timeline.MediaItem{ID: "m1", Type: timeline.MediaVideo, Path: "/media/m1.mp4", ProxyPath: "/proxies/m1_proxy.mp4"}
	audio := &timeline.MediaItem{ID: "m2", Type: timeline.MediaAudio, Path: "/media/m2.wav", ProxyPath: "/proxies/m2_proxy.mp4"}
	noProxy := &timeline.MediaItem{ID: "m3", Type: timeline.MediaVideo, Path: "/media/m3.mp4"}

	present := &ProxyResolver{Exists: func(string) bool { return true }}
	absent := &ProxyResolver{Exists: func(string) bool { return false }}

	tests := []struct {
		name     string
		resolver *ProxyResolver
		media    *timeline.MediaItem
		want     string
	}{
		{"video with proxy on disk", present, video, "/proxies/m1_proxy.mp4"},
		{"video with proxy deleted", absent, video, "/media/m1.mp4"},
		{"video without proxy path", present, noProxy, "/media/m3.mp4"},
		{"audio never uses proxy", present, audio, "/media/m2.wav"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resolver.SourcePath(tt.media); got != tt.want {
				t.Errorf("SourcePath = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if !fileExists(path) {
		t.Errorf("fileExists(%s) = false for a regular file", path)
	}
	if fileExists(filepath.Join(dir, "missing.mp4")) {
		t.Errorf("fileExists = true for a missing file")
	}
	if fileExists(dir) {
		t.Errorf("fileExists = true for a directory")
	}
}
