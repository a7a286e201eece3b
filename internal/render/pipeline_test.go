package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/fgraph"
	"github.com/clipforge/clipforge/internal/project"
	"github.com/clipforge/clipforge/internal/timeline"
)

func TestProgressSink_Monotonic(t *testing.T) {
	var got []float64
	sink := &progressSink{fn: func(pct float64) { got = append(got, pct) }}

	sink.emit(10)
	sink.emit(5) // regression suppressed
	sink.emit(60)
	sink.emit(59.9)
	sink.emit(130) // clamped
	sink.emit(90)  // below the clamped 100

	want := []float64{10, 60, 100}
	if len(got) != len(want) {
		t.Fatalf("emitted = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("emitted = %v, want %v", got, want)
		}
	}
}

func TestProgressSink_NilCallback(t *testing.T) {
	sink := &progressSink{}
	sink.emit(50) // must not panic
}

func TestPipeline_ExportEmptyTimelineFailsFast(t *testing.T) {
	// The runner is nil: reaching the spawn path would panic and fail the
	// test, so passing proves the export short-circuits before it.
	pl := &Pipeline{profiles: config.DefaultProfiles()}

	proj := &project.Project{
		ID: "p",
		Media: []*timeline.MediaItem{
			{ID: "m1", Type: timeline.MediaVideo, Path: "/media/m1.mp4", Duration: 10},
		},
		Timeline: timeline.Timeline{Tracks: []timeline.Track{
			{ID: "v1", Type: timeline.TrackVideo, Visible: true, Clips: []timeline.Clip{
				{ID: "c1", Type: timeline.ClipVideo, MediaID: "m1", TimelineStart: 0,
					Duration: 4, MediaIn: 0, MediaOut: 4, Enabled: false},
			}},
		}},
		Settings: timeline.DefaultSettings(),
	}

	// Explicit window: the compile succeeds but consumes no media.
	err := pl.Export(context.Background(), proj, timeline.Window{Start: 0, End: 4}, "/out/x.mp4", nil)
	if !errors.Is(err, fgraph.ErrNothingToRender) {
		t.Fatalf("err = %v, want ErrNothingToRender", err)
	}

	// Zero window defaults to the full timeline, which is empty here.
	err = pl.Export(context.Background(), proj, timeline.Window{}, "/out/x.mp4", nil)
	if !errors.Is(err, fgraph.ErrNothingToRender) {
		t.Fatalf("err = %v, want ErrNothingToRender for an empty timeline", err)
	}
}

func TestPipeline_MissingProxies(t *testing.T) {
	dir := t.TempDir()
	onDisk := filepath.Join(dir, "m1_proxy.mp4")
	if err := os.WriteFile(onDisk, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	proj := &project.Project{
		ID: "p",
		Media: []*timeline.MediaItem{
			{ID: "m1", Type: timeline.MediaVideo, Path: "/media/m1.mp4", Duration: 10, ProxyPath: onDisk},
			{ID: "m2", Type: timeline.MediaVideo, Path: "/media/m2.mp4", Duration: 10, ProxyPath: filepath.Join(dir, "gone.mp4")},
			{ID: "m3", Type: timeline.MediaVideo, Path: "/media/m3.mp4", Duration: 10},
			{ID: "m4", Type: timeline.MediaAudio, Path: "/media/m4.wav", Duration: 10},
			{ID: "m5", Type: timeline.MediaVideo, Path: "/media/m5.mp4", Duration: 10},
		},
		Timeline: timeline.Timeline{Tracks: []timeline.Track{
			{ID: "v1", Type: timeline.TrackVideo, Visible: true, Clips: []timeline.Clip{
				{ID: "c1", Type: timeline.ClipVideo, MediaID: "m1", TimelineStart: 0, Duration: 2, MediaIn: 0, MediaOut: 2, Enabled: true},
				{ID: "c2", Type: timeline.ClipVideo, MediaID: "m2", TimelineStart: 2, Duration: 2, MediaIn: 0, MediaOut: 2, Enabled: true},
				{ID: "c3", Type: timeline.ClipVideo, MediaID: "m3", TimelineStart: 4, Duration: 2, MediaIn: 0, MediaOut: 2, Enabled: true},
			}},
			{ID: "a1", Type: timeline.TrackAudio, Visible: true, Clips: []timeline.Clip{
				{ID: "c4", Type: timeline.ClipAudio, MediaID: "m4", TimelineStart: 0, Duration: 2, MediaIn: 0, MediaOut: 2, Enabled: true},
			}},
		}},
		Settings: timeline.DefaultSettings(),
	}

	pl := &Pipeline{proxyDir: dir}
	missing := pl.missingProxies(proj)

	// m1 has a proxy on disk, m4 is audio, m5 is never referenced by a clip.
	got := make(map[string]bool)
	for _, m := range missing {
		got[m.ID] = true
	}
	if len(missing) != 2 || !got["m2"] || !got["m3"] {
		t.Errorf("missing = %v, want m2 (stale record) and m3 (no proxy)", got)
	}
}
