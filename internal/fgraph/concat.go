package fgraph

import (
	"fmt"
	"sort"

	"github.com/clipforge/clipforge/internal/timeline"
)

// CompileConcat lowers the whole timeline into a filter graph using the
// concatenation compositor. It exploits the editing layer's guarantee that
// clips on one track never overlap in time: each video track becomes a single
// linear sequence of gap fillers and normalized clip segments concatenated
// into one temporally complete stream, so stacking needs only one overlay per
// track instead of one per clip. Used only for the whole-timeline fast
// preview; for the same non-overlapping timeline its output is perceptually
// equivalent to CompileOverlay's.
func CompileConcat(req Request) (*Result, error) {
	if err := req.Settings.Validate(); err != nil {
		return nil, err
	}

	total := req.Timeline.Duration()
	if total <= 0 {
		return nil, ErrNothingToRender
	}
	window := timeline.Window{Start: 0, End: total}

	g := NewGraph()
	inputs := newInputSet(req.Resolve)
	var diags []Diagnostic
	set := req.Settings

	// Background canvas spanning the whole timeline; per-track streams use
	// transparent fillers so lower layers show through gaps.
	canvas := g.Chain("bg", nil,
		Filter{Name: "color", Args: fmt.Sprintf("c=%s:s=%dx%d:r=%s:d=%s",
			set.Background, set.Width, set.Height, seconds(set.FrameRate), seconds(total))},
		Filter{Name: "format", Args: "yuv420p"},
	)

	videoClips := 0
	for _, track := range req.Timeline.VideoTracksBottomToTop() {
		stream, n := concatVideoTrack(g, inputs, req, track, total, &diags)
		if stream == "" {
			continue
		}
		videoClips += n
		canvas = g.Chain("ovl", []string{canvas, stream},
			Filter{Name: "overlay", Args: "eof_action=pass"})
	}

	audioOut := concatTimelineAudio(g, inputs, req, total, &diags)

	return &Result{
		Inputs:      inputs.inputs,
		Graph:       g,
		VideoOut:    canvas,
		AudioOut:    audioOut,
		Diagnostics: diags,
		Window:      window,
		Complex:     videoClips > 1,
	}, nil
}

// concatVideoTrack builds one track's gapless stream: alternating transparent
// fillers and normalized clip segments, concatenated in timeline order.
// Returns the stream label and the number of clip segments, or "" when the
// track contributes nothing.
func concatVideoTrack(g *Graph, inputs *inputSet, req Request, track *timeline.Track, total float64, diags *[]Diagnostic) (string, int) {
	set := req.Settings
	var segments []string
	clipSegments := 0
	cursor := 0.0

	filler := func(dur float64) string {
		return g.Chain("gap", nil,
			Filter{Name: "color", Args: fmt.Sprintf("c=black@0.0:s=%dx%d:r=%s:d=%s",
				set.Width, set.Height, seconds(set.FrameRate), seconds(dur))},
			Filter{Name: "format", Args: "yuva420p"},
		)
	}

	for _, c := range track.ClipsByStart() {
		if !c.Enabled || c.Type != timeline.ClipVideo {
			continue
		}
		m := lookupMedia(req.Media, &c, diags)
		if m == nil {
			continue
		}

		if c.TimelineStart > cursor {
			segments = append(segments, filler(c.TimelineStart-cursor))
		}

		segDur := c.Duration
		filters := trimFilters(m.Type, c.MediaIn, c.MediaIn+segDur)
		filters = append(filters, normalizeChain(set)...)

		idx := inputs.index(m)
		segments = append(segments, g.Chain("clip", []string{fmt.Sprintf("%d:v", idx)}, filters...))
		clipSegments++
		cursor = c.VisibleEnd()
	}

	if clipSegments == 0 {
		return "", 0
	}
	if cursor < total {
		segments = append(segments, filler(total-cursor))
	}
	if len(segments) == 1 {
		return segments[0], clipSegments
	}

	return g.Chain("trk", segments, Filter{
		Name: "concat",
		Args: fmt.Sprintf("n=%d:v=1:a=0", len(segments)),
	}), clipSegments
}

// concatTimelineAudio merges every audio clip across all unmuted audio tracks
// into one chronological sequence of silence fillers and trimmed segments.
// The fast-preview path trades per-track mixing fidelity for a single concat;
// a clip overlapping the previous one in the merged order has its head
// trimmed to keep the sequence monotonic.
func concatTimelineAudio(g *Graph, inputs *inputSet, req Request, total float64, diags *[]Diagnostic) string {
	set := req.Settings

	silence := func(dur float64) string {
		return g.Chain("sil", nil,
			Filter{Name: "anullsrc", Args: fmt.Sprintf("r=%d:cl=stereo", set.SampleRate)},
			Filter{Name: "atrim", Args: "duration=" + seconds(dur)},
		)
	}

	var clips []timeline.Clip
	for _, track := range req.Timeline.AudioTracks() {
		for _, c := range track.ClipsByStart() {
			if c.Enabled && c.Type == timeline.ClipAudio {
				clips = append(clips, c)
			}
		}
	}
	sortClipsByStart(clips)

	var segments []string
	clipSegments := 0
	cursor := 0.0

	for i := range clips {
		c := &clips[i]
		m := lookupMedia(req.Media, c, diags)
		if m == nil {
			continue
		}

		start := c.TimelineStart
		end := c.VisibleEnd()
		if start < cursor {
			start = cursor
		}
		if end <= start {
			continue
		}
		if start > cursor {
			segments = append(segments, silence(start-cursor))
		}

		srcIn := c.MediaIn + (start - c.TimelineStart)
		srcOut := srcIn + (end - start)

		idx := inputs.index(m)
		segments = append(segments, g.Chain("a", []string{fmt.Sprintf("%d:a", idx)},
			Filter{Name: "atrim", Args: fmt.Sprintf("start=%s:end=%s", seconds(srcIn), seconds(srcOut))},
			Filter{Name: "asetpts", Args: "PTS-STARTPTS"},
			Filter{Name: "aresample", Args: fmt.Sprintf("%d", set.SampleRate)},
			Filter{Name: "aformat", Args: "channel_layouts=stereo"},
		))
		clipSegments++
		cursor = end
	}

	if clipSegments == 0 {
		return silence(total)
	}
	if cursor < total {
		segments = append(segments, silence(total-cursor))
	}
	if len(segments) == 1 {
		return segments[0]
	}

	return g.Chain("amerge", segments, Filter{
		Name: "concat",
		Args: fmt.Sprintf("n=%d:v=0:a=1", len(segments)),
	})
}

func sortClipsByStart(clips []timeline.Clip) {
	sort.Slice(clips, func(i, j int) bool {
		if clips[i].TimelineStart == clips[j].TimelineStart {
			return clips[i].ID < clips[j].ID
		}
		return clips[i].TimelineStart < clips[j].TimelineStart
	})
}
