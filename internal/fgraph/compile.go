package fgraph

import (
	"errors"
	"fmt"

	"github.com/clipforge/clipforge/internal/timeline"
)

// ErrNothingToRender is returned when a compile request covers no clips and
// no duration at all.
var ErrNothingToRender = errors.New("nothing to render")

// SourceResolver decides which file an input uses for a media item. The
// preview path substitutes proxies here; a nil resolver always uses the
// original source.
type SourceResolver interface {
	SourcePath(m *timeline.MediaItem) string
}

// Input is one transcoder input file. Each distinct media id appears once
// regardless of how many clips reference it.
type Input struct {
	MediaID string
	Path    string
}

// Diagnostic is a non-fatal compile problem attached to a specific clip.
type Diagnostic struct {
	ClipID  string
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("clip %s: %s", d.ClipID, d.Message)
}

// Result is a compiled filter graph: the ordered deduplicated input list, the
// graph itself, the named output pads to map, and any diagnostics. The export
// path treats any diagnostic as fatal; chunk rendering proceeds with the
// remainder.
type Result struct {
	Inputs      []Input
	Graph       *Graph
	VideoOut    string
	AudioOut    string
	Diagnostics []Diagnostic
	Window      timeline.Window
	// Complex records whether the window needed more than trivial
	// compositing (two or more layered video clips).
	Complex bool
}

// Request carries everything a compile needs. Settings must be valid.
type Request struct {
	Timeline *timeline.Timeline
	Media    timeline.MediaTable
	Window   timeline.Window
	Settings timeline.Settings
	Resolve  SourceResolver
}

// inputSet builds the deduplicated input list while compiling.
type inputSet struct {
	inputs  []Input
	indexOf map[string]int
	resolve SourceResolver
}

func newInputSet(resolve SourceResolver) *inputSet {
	return &inputSet{indexOf: make(map[string]int), resolve: resolve}
}

// index returns the input index for a media item, adding it on first use.
func (s *inputSet) index(m *timeline.MediaItem) int {
	if i, ok := s.indexOf[m.ID]; ok {
		return i
	}
	path := m.Path
	if s.resolve != nil {
		path = s.resolve.SourcePath(m)
	}
	i := len(s.inputs)
	s.inputs = append(s.inputs, Input{MediaID: m.ID, Path: path})
	s.indexOf[m.ID] = i
	return i
}

// lookupMedia resolves a clip's media reference, recording a diagnostic when
// the reference is dangling.
func lookupMedia(media timeline.MediaTable, c *timeline.Clip, diags *[]Diagnostic) *timeline.MediaItem {
	m, ok := media[c.MediaID]
	if !ok || m == nil {
		*diags = append(*diags, Diagnostic{
			ClipID:  c.ID,
			Message: fmt.Sprintf("references missing media %q", c.MediaID),
		})
		return nil
	}
	return m
}

// normalizeChain returns the filter chain that brings one trimmed clip stream
// to the output contract: scale to fit, pad to center, square pixels, output
// frame rate, alpha-capable pixel format so later overlays respect
// transparency. Source geometry never changes the output geometry.
func normalizeChain(set timeline.Settings) []Filter {
	return []Filter{
		{Name: "scale", Args: fmt.Sprintf("%d:%d:force_original_aspect_ratio=decrease", set.Width, set.Height)},
		{Name: "pad", Args: fmt.Sprintf("%d:%d:(ow-iw)/2:(oh-ih)/2:color=%s", set.Width, set.Height, set.Background)},
		{Name: "setsar", Args: "1"},
		{Name: "fps", Args: seconds(set.FrameRate)},
		{Name: "format", Args: "yuva420p"},
	}
}

// trimFilters returns the leading filters that cut a clip's source interval.
// Image media are an infinite source: loop a single frame and trim to the
// needed duration. Video media trim the exact source interval.
func trimFilters(mediaType timeline.MediaType, srcIn, srcOut float64) []Filter {
	if mediaType == timeline.MediaImage {
		return []Filter{
			{Name: "loop", Args: "loop=-1:size=1:start=0"},
			{Name: "trim", Args: "duration=" + seconds(srcOut-srcIn)},
			{Name: "setpts", Args: "PTS-STARTPTS"},
		}
	}
	return []Filter{
		{Name: "trim", Args: fmt.Sprintf("start=%s:end=%s", seconds(srcIn), seconds(srcOut))},
		{Name: "setpts", Args: "PTS-STARTPTS"},
	}
}

// clipWindow is a clip's placement inside a render window: the visible
// sub-interval in window-local time and the matching source sub-interval.
// The source window shifts by exactly max(0, windowStart-clip.TimelineStart)
// when the clip begins before the window; sub-interval lengths stay 1:1.
type clipWindow struct {
	localStart float64
	localEnd   float64
	srcIn      float64
	srcOut     float64
}

// placeClip intersects a clip with a window. ok is false when the clip lies
// fully outside.
func placeClip(c *timeline.Clip, w timeline.Window) (clipWindow, bool) {
	visStart := c.TimelineStart
	if w.Start > visStart {
		visStart = w.Start
	}
	visEnd := c.VisibleEnd()
	if w.End < visEnd {
		visEnd = w.End
	}
	if visEnd <= visStart {
		return clipWindow{}, false
	}

	shift := w.Start - c.TimelineStart
	if shift < 0 {
		shift = 0
	}
	srcIn := c.MediaIn + shift

	return clipWindow{
		localStart: visStart - w.Start,
		localEnd:   visEnd - w.Start,
		srcIn:      srcIn,
		srcOut:     srcIn + (visEnd - visStart),
	}, true
}
