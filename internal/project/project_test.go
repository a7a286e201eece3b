package project

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/timeline"
)

func testProject() *Project {
	return &Project{
		ID:   "proj-1",
		Name: "demo",
		Media: []*timeline.MediaItem{
			{ID: "m1", Type: timeline.MediaVideo, Path: "/media/m1.mp4", Duration: 30},
			{ID: "m2", Type: timeline.MediaAudio, Path: "/media/m2.wav", Duration: 60},
		},
		Timeline: timeline.Timeline{Tracks: []timeline.Track{
			{ID: "v1", Type: timeline.TrackVideo, Visible: true, Clips: []timeline.Clip{
				{ID: "c1", Type: timeline.ClipVideo, MediaID: "m1", TimelineStart: 0,
					Duration: 4, MediaIn: 0, MediaOut: 4, Enabled: true},
			}},
		}},
		Settings:   timeline.DefaultSettings(),
		ModifiedAt: time.Now().UTC(),
	}
}

func TestProject_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "project.json")
	p := testProject()

	if err := p.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != "proj-1" || loaded.Name != "demo" {
		t.Errorf("loaded = %s %s", loaded.ID, loaded.Name)
	}
	if len(loaded.Media) != 2 {
		t.Errorf("got %d media items, want 2", len(loaded.Media))
	}
	if loaded.Timeline.Duration() != 4 {
		t.Errorf("timeline duration = %v, want 4", loaded.Timeline.Duration())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("missing file must error")
	}
}

func TestLoad_RejectsInvalidProject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.json")
	p := testProject()
	p.Timeline.Tracks[0].Clips[0].Duration = -1
	if err := p.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("invalid clip must fail the load")
	}
}

func TestProject_Validate(t *testing.T) {
	p := testProject()
	if err := p.Validate(); err != nil {
		t.Fatalf("valid project rejected: %v", err)
	}

	p.ID = ""
	if err := p.Validate(); err == nil {
		t.Errorf("empty id must fail")
	}

	p = testProject()
	p.Settings.Width = 0
	if err := p.Validate(); err == nil {
		t.Errorf("invalid settings must fail")
	}
}

func TestProject_MediaTable(t *testing.T) {
	p := testProject()
	table := p.MediaTable()

	if len(table) != 2 {
		t.Fatalf("table size = %d, want 2", len(table))
	}
	if table["m1"].Path != "/media/m1.mp4" {
		t.Errorf("m1 path = %s", table["m1"].Path)
	}
}

func TestProject_Hash(t *testing.T) {
	a := testProject()
	b := testProject()
	b.ModifiedAt = a.ModifiedAt

	if a.Hash() != b.Hash() {
		t.Errorf("identical documents must hash identically")
	}

	b.Timeline.Tracks[0].Clips[0].TimelineStart = 1
	if a.Hash() == b.Hash() {
		t.Errorf("moving a clip must change the document hash")
	}
}
