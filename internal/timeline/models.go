// Package timeline defines the editable timeline data model the render
// engine consumes: media items, clips, tracks and render windows. Clip kinds
// are a closed set validated at this boundary; the filter-graph compiler
// assumes shapes it receives from here are well-formed.
package timeline

import (
	"fmt"
	"sort"
	"strings"
)

// MediaType identifies the kind of a source media file.
type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
	MediaImage MediaType = "image"
)

// MediaItem describes a probed source media file. Immutable once probed;
// ProxyPath is the only field set later, when a proxy finishes generating.
type MediaItem struct {
	ID        string    `json:"id"`
	Type      MediaType `json:"type"`
	Path      string    `json:"path"`
	ProxyPath string    `json:"proxy_path,omitempty"`
	Duration  float64   `json:"duration"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	FrameRate float64   `json:"frame_rate,omitempty"`
}

// MediaTable maps media ids to items. Clips reference media by id only.
type MediaTable map[string]*MediaItem

// ClipType identifies the kind of a timeline clip.
type ClipType string

const (
	ClipVideo ClipType = "video"
	ClipAudio ClipType = "audio"
)

// Clip is a placed reference to a media item. Its visible interval on the
// timeline is [TimelineStart, TimelineStart+Duration); its source interval is
// [MediaIn, MediaOut). The editing layer keeps MediaOut-MediaIn equal to
// Duration; the compiler tolerates violations but does not repair them.
type Clip struct {
	ID            string   `json:"id"`
	Type          ClipType `json:"type"`
	MediaID       string   `json:"media_id"`
	TrackID       string   `json:"track_id"`
	TimelineStart float64  `json:"timeline_start"`
	Duration      float64  `json:"duration"`
	MediaIn       float64  `json:"media_in"`
	MediaOut      float64  `json:"media_out"`
	Enabled       bool     `json:"enabled"`
}

// VisibleEnd returns the exclusive end of the clip's visible interval.
func (c *Clip) VisibleEnd() float64 {
	return c.TimelineStart + c.Duration
}

// Intersects reports whether the clip's visible interval overlaps the window.
func (c *Clip) Intersects(w Window) bool {
	return c.TimelineStart < w.End && c.VisibleEnd() > w.Start
}

// Validate checks the clip's fixed field set.
func (c *Clip) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("clip id cannot be empty")
	}
	if c.Type != ClipVideo && c.Type != ClipAudio {
		return fmt.Errorf("clip %s: unknown type %q", c.ID, c.Type)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("clip %s: duration must be positive", c.ID)
	}
	if c.MediaIn < 0 || c.MediaOut < c.MediaIn {
		return fmt.Errorf("clip %s: invalid source interval [%f, %f)", c.ID, c.MediaIn, c.MediaOut)
	}
	return nil
}

// TrackType identifies the kind of a track.
type TrackType string

const (
	TrackVideo TrackType = "video"
	TrackAudio TrackType = "audio"
)

// Track is an ordered list of clips. Clip order is insertion order, not time
// order. For video tracks the first stored track is the topmost layer.
type Track struct {
	ID      string    `json:"id"`
	Type    TrackType `json:"type"`
	Clips   []Clip    `json:"clips"`
	Visible bool      `json:"visible"`
	Muted   bool      `json:"muted"`
}

// ClipsByStart returns the track's clips sorted by timeline position.
func (t *Track) ClipsByStart() []Clip {
	sorted := make([]Clip, len(t.Clips))
	copy(sorted, t.Clips)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].TimelineStart == sorted[j].TimelineStart {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].TimelineStart < sorted[j].TimelineStart
	})
	return sorted
}

// Timeline is the set of tracks the compiler renders.
type Timeline struct {
	Tracks []Track `json:"tracks"`
}

// Duration returns the exclusive end of the last enabled clip, or zero for an
// empty timeline.
func (tl *Timeline) Duration() float64 {
	var end float64
	for i := range tl.Tracks {
		for j := range tl.Tracks[i].Clips {
			c := &tl.Tracks[i].Clips[j]
			if !c.Enabled {
				continue
			}
			if e := c.VisibleEnd(); e > end {
				end = e
			}
		}
	}
	return end
}

// VideoTracksBottomToTop returns the visible video tracks in compositing
// order: the last stored track first (bottom layer), the first stored track
// last (top layer). Layering order is computed here once instead of relying
// on array position semantics at call sites.
func (tl *Timeline) VideoTracksBottomToTop() []*Track {
	var tracks []*Track
	for i := len(tl.Tracks) - 1; i >= 0; i-- {
		t := &tl.Tracks[i]
		if t.Type == TrackVideo && t.Visible {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

// AudioTracks returns the unmuted audio tracks in storage order.
func (tl *Timeline) AudioTracks() []*Track {
	var tracks []*Track
	for i := range tl.Tracks {
		t := &tl.Tracks[i]
		if t.Type == TrackAudio && !t.Muted {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

// ClipsIntersecting returns every enabled clip whose visible interval
// overlaps the window, across all tracks, sorted by position then id.
func (tl *Timeline) ClipsIntersecting(w Window) []Clip {
	var clips []Clip
	for i := range tl.Tracks {
		for _, c := range tl.Tracks[i].Clips {
			if c.Enabled && c.Intersects(w) {
				clips = append(clips, c)
			}
		}
	}
	sort.Slice(clips, func(i, j int) bool {
		if clips[i].TimelineStart == clips[j].TimelineStart {
			return clips[i].ID < clips[j].ID
		}
		return clips[i].TimelineStart < clips[j].TimelineStart
	})
	return clips
}

// UsedMediaIDs returns the distinct media ids referenced by enabled clips,
// in first-use order.
func (tl *Timeline) UsedMediaIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for i := range tl.Tracks {
		for _, c := range tl.Tracks[i].Clips {
			if !c.Enabled || c.MediaID == "" || seen[c.MediaID] {
				continue
			}
			seen[c.MediaID] = true
			ids = append(ids, c.MediaID)
		}
	}
	return ids
}

// Window is a half-open render range [Start, End) in timeline seconds:
// a chunk, an export sub-range, or the whole timeline.
type Window struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the window length in seconds.
func (w Window) Duration() float64 {
	return w.End - w.Start
}

// Intersects reports whether two windows overlap.
func (w Window) Intersects(other Window) bool {
	return w.Start < other.End && w.End > other.Start
}

// Settings holds the output contract of a render: geometry, frame rate,
// background fill and audio sample rate. A settings change invalidates every
// cached chunk, since each chunk's pixel contract changed.
type Settings struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameRate  float64 `json:"frame_rate"`
	Background string  `json:"background"`
	SampleRate int     `json:"sample_rate"`
}

// DefaultSettings returns a 1280x720 30fps preview contract.
func DefaultSettings() Settings {
	return Settings{
		Width:      1280,
		Height:     720,
		FrameRate:  30,
		Background: "black",
		SampleRate: 44100,
	}
}

// Validate checks the settings for values ffmpeg would reject.
func (s Settings) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("output geometry %dx%d is invalid", s.Width, s.Height)
	}
	if s.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive")
	}
	if s.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	return nil
}

// PixelContractEquals reports whether two settings produce the same pixels:
// same geometry and frame rate. Background and sample rate do not participate.
func (s Settings) PixelContractEquals(other Settings) bool {
	return s.Width == other.Width && s.Height == other.Height && s.FrameRate == other.FrameRate
}
