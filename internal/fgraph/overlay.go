package fgraph

import (
	"fmt"

	"github.com/clipforge/clipforge/internal/timeline"
)

// CompileOverlay lowers a timeline sub-range into a filter graph using the
// precise overlay compositor: a background canvas, one time-gated overlay per
// intersecting video clip, and one padded branch per audio clip mixed at the
// end. It handles arbitrary windows, including overlapping clips, and is the
// algorithm behind both chunk rendering and export.
func CompileOverlay(req Request) (*Result, error) {
	if err := req.Settings.Validate(); err != nil {
		return nil, err
	}

	clips := req.Timeline.ClipsIntersecting(req.Window)
	if len(clips) == 0 && req.Window.Duration() <= 0 {
		return nil, ErrNothingToRender
	}

	g := NewGraph()
	inputs := newInputSet(req.Resolve)
	var diags []Diagnostic
	set := req.Settings
	winDur := req.Window.Duration()

	// Background canvas sized to the output contract for the whole window.
	canvas := g.Chain("bg", nil,
		Filter{Name: "color", Args: fmt.Sprintf("c=%s:s=%dx%d:r=%s:d=%s",
			set.Background, set.Width, set.Height, seconds(set.FrameRate), seconds(winDur))},
		Filter{Name: "format", Args: "yuv420p"},
	)

	videoClips := 0
	for _, track := range req.Timeline.VideoTracksBottomToTop() {
		for _, c := range track.ClipsByStart() {
			if !c.Enabled || c.Type != timeline.ClipVideo || !c.Intersects(req.Window) {
				continue
			}
			m := lookupMedia(req.Media, &c, &diags)
			if m == nil {
				continue
			}
			place, ok := placeClip(&c, req.Window)
			if !ok {
				continue
			}
			videoClips++

			idx := inputs.index(m)
			filters := trimFilters(m.Type, place.srcIn, place.srcOut)
			filters = append(filters, normalizeChain(set)...)
			// Shift the normalized stream to its window-local position so the
			// overlay gate sees the right timestamps.
			filters = append(filters, Filter{
				Name: "setpts",
				Args: "PTS-STARTPTS+" + seconds(place.localStart) + "/TB",
			})
			layer := g.Chain("clip", []string{fmt.Sprintf("%d:v", idx)}, filters...)

			// Time-gated overlay: the layer is only active during the clip's
			// visible sub-interval, so gaps need no manual blanking.
			canvas = g.Chain("ovl", []string{canvas, layer}, Filter{
				Name: "overlay",
				Args: fmt.Sprintf("eof_action=pass:enable='between(t,%s,%s)'",
					seconds(place.localStart), seconds(place.localEnd)),
			})
		}
	}

	audioOut := compileWindowAudio(g, inputs, req, &diags)

	return &Result{
		Inputs:      inputs.inputs,
		Graph:       g,
		VideoOut:    canvas,
		AudioOut:    audioOut,
		Diagnostics: diags,
		Window:      req.Window,
		Complex:     videoClips > 1,
	}, nil
}

// compileWindowAudio builds one branch per audio clip intersecting the
// window. Track layering has no meaning for audio: every branch is trimmed,
// delayed to its window position and padded to the full window length, then
// mixed. Padding makes every branch identical in length, so the mix stops at
// the shortest input with no dropout fade.
func compileWindowAudio(g *Graph, inputs *inputSet, req Request, diags *[]Diagnostic) string {
	set := req.Settings
	winDur := req.Window.Duration()

	var branches []string
	for _, track := range req.Timeline.AudioTracks() {
		for _, c := range track.ClipsByStart() {
			if !c.Enabled || c.Type != timeline.ClipAudio || !c.Intersects(req.Window) {
				continue
			}
			m := lookupMedia(req.Media, &c, diags)
			if m == nil {
				continue
			}
			place, ok := placeClip(&c, req.Window)
			if !ok {
				continue
			}

			idx := inputs.index(m)
			delayMs := int(place.localStart * 1000)
			filters := []Filter{
				{Name: "atrim", Args: fmt.Sprintf("start=%s:end=%s", seconds(place.srcIn), seconds(place.srcOut))},
				{Name: "asetpts", Args: "PTS-STARTPTS"},
				{Name: "aresample", Args: fmt.Sprintf("%d", set.SampleRate)},
				{Name: "aformat", Args: "channel_layouts=stereo"},
			}
			if delayMs > 0 {
				filters = append(filters, Filter{Name: "adelay", Args: fmt.Sprintf("%d|%d", delayMs, delayMs)})
			}
			filters = append(filters, Filter{Name: "apad", Args: "whole_dur=" + seconds(winDur)})

			branches = append(branches, g.Chain("a", []string{fmt.Sprintf("%d:a", idx)}, filters...))
		}
	}

	switch len(branches) {
	case 0:
		return g.Chain("sil", nil,
			Filter{Name: "anullsrc", Args: fmt.Sprintf("r=%d:cl=stereo", set.SampleRate)},
			Filter{Name: "atrim", Args: "duration=" + seconds(winDur)},
		)
	case 1:
		return branches[0]
	default:
		return g.Chain("mix", branches, Filter{
			Name: "amix",
			Args: fmt.Sprintf("inputs=%d:duration=shortest:dropout_transition=0:normalize=0", len(branches)),
		})
	}
}
