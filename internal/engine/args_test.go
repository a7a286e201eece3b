package engine

import (
	"strings"
	"testing"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/fgraph"
	"github.com/clipforge/clipforge/internal/timeline"
)

func compiledResult(t *testing.T) *fgraph.Result {
	t.Helper()

	clip := timeline.Clip{
		ID: "c1", Type: timeline.ClipVideo, MediaID: "m1",
		TimelineStart: 0, Duration: 2, MediaIn: 0, MediaOut: 2, Enabled: true,
	}
	tl := &timeline.Timeline{Tracks: []timeline.Track{
		{Type: timeline.TrackVideo, Visible: true, Clips: []timeline.Clip{clip}},
	}}
	media := timeline.MediaTable{
		"m1": {ID: "m1", Type: timeline.MediaVideo, Path: "/media/m1.mp4", Duration: 10},
	}

	res, err := fgraph.CompileOverlay(fgraph.Request{
		Timeline: tl,
		Media:    media,
		Window:   timeline.Window{Start: 0, End: 2},
		Settings: timeline.DefaultSettings(),
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return res
}

func TestBuildRenderArgs(t *testing.T) {
	res := compiledResult(t)
	profile := config.DefaultProfiles().Preview
	profile.ExtraArgs = []string{"-movflags", "+faststart"}

	args := BuildRenderArgs(res, profile, "/out/chunk_0000.mp4")
	joined := strings.Join(args, " ")

	if args[0] != "-y" {
		t.Errorf("args must start with -y, got %s", args[0])
	}
	if !strings.Contains(joined, "-progress pipe:1 -nostats") {
		t.Errorf("machine-readable progress flags missing: %s", joined)
	}
	if !strings.Contains(joined, "-i /media/m1.mp4") {
		t.Errorf("input missing: %s", joined)
	}
	if !strings.Contains(joined, "-filter_complex") {
		t.Errorf("filter graph missing: %s", joined)
	}
	if !strings.Contains(joined, "-map ["+res.VideoOut+"] -map ["+res.AudioOut+"]") {
		t.Errorf("output pad mappings missing: %s", joined)
	}
	if !strings.Contains(joined, "-c:v libx264 -preset ultrafast -crf 28") {
		t.Errorf("profile flags missing: %s", joined)
	}
	if !strings.Contains(joined, "-t 2") {
		t.Errorf("duration bound missing: %s", joined)
	}
	if !strings.Contains(joined, "-movflags +faststart") {
		t.Errorf("extra args missing: %s", joined)
	}
	if args[len(args)-1] != "/out/chunk_0000.mp4" {
		t.Errorf("output path must be last, got %s", args[len(args)-1])
	}
}

func TestBuildProxyArgs(t *testing.T) {
	profile := config.DefaultProfiles().Proxy

	args := BuildProxyArgs("/media/src.mov", "/proxies/src_proxy.mp4", profile, 360)
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-i /media/src.mov") {
		t.Errorf("source missing: %s", joined)
	}
	if !strings.Contains(joined, "-vf scale=-2:360") {
		t.Errorf("aspect-preserving scale missing: %s", joined)
	}
	if !strings.Contains(joined, "-preset ultrafast") {
		t.Errorf("proxy profile flags missing: %s", joined)
	}
	if args[len(args)-1] != "/proxies/src_proxy.mp4" {
		t.Errorf("output path must be last, got %s", args[len(args)-1])
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001.0},
		{"25", 25},
		{"0/0", 0},
		{"", 0},
		{"x/y", 0},
	}
	for _, tt := range tests {
		if got := parseFrameRate(tt.in); got != tt.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
