// Package engine executes the external ffmpeg transcoder: it builds argument
// vectors from compiled filter graphs, spawns and supervises the process,
// parses its progress stream, and probes media files with ffprobe.
package engine

import (
	"regexp"
	"strconv"
	"strings"
)

// Progress is the engine's current position in a render, derived from
// ffmpeg's progress output relative to the expected total duration.
type Progress struct {
	Frame   int64
	FPS     float64
	Speed   float64
	Seconds float64
	Percent float64 // 0-100, clamped
}

// ProgressParser extracts progress from ffmpeg output. Different invocation
// flags select different formats: `-progress` emits key=value lines while
// `-stats` emits free-text status lines with embedded time= and speed=
// tokens. Both are supported; a line with no recognized token is simply not
// an update.
type ProgressParser struct {
	total float64
	cur   Progress

	frameRe *regexp.Regexp
	fpsRe   *regexp.Regexp
	timeRe  *regexp.Regexp
	speedRe *regexp.Regexp
}

// NewProgressParser creates a parser computing percentages against the given
// expected total duration in seconds (0 disables percentage computation).
func NewProgressParser(totalSeconds float64) *ProgressParser {
	return &ProgressParser{
		total: totalSeconds,
		// Match both "frame=123" and "frame=  123" forms
		frameRe: regexp.MustCompile(`(?:^|\s)frame=\s*(\d+)`),
		fpsRe:   regexp.MustCompile(`(?:^|\s)fps=\s*([0-9.]+)`),
		timeRe:  regexp.MustCompile(`(?:^|\s)(?:out_)?time=\s*([0-9:.]+)`),
		speedRe: regexp.MustCompile(`(?:^|\s)speed=\s*([0-9.]+)x?`),
	}
}

// ParseLine consumes one output line and reports whether it carried a
// progress update. The current progress accumulates across lines, since the
// key=value format spreads one update over several lines.
func (p *ProgressParser) ParseLine(line string) (Progress, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line == "progress=continue" || line == "progress=end" {
		return p.cur, false
	}

	updated := false

	if m := p.frameRe.FindStringSubmatch(line); len(m) > 1 {
		if frame, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			p.cur.Frame = frame
			updated = true
		}
	}
	if m := p.fpsRe.FindStringSubmatch(line); len(m) > 1 {
		if fps, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.cur.FPS = fps
			updated = true
		}
	}
	if m := p.timeRe.FindStringSubmatch(line); len(m) > 1 {
		if sec, ok := clockToSeconds(m[1]); ok {
			p.cur.Seconds = sec
			p.cur.Percent = p.percent(sec)
			updated = true
		}
	}
	if m := p.speedRe.FindStringSubmatch(line); len(m) > 1 {
		if speed, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.cur.Speed = speed
			updated = true
		}
	}

	return p.cur, updated
}

// Current returns the last accumulated progress.
func (p *ProgressParser) Current() Progress {
	return p.cur
}

func (p *ProgressParser) percent(seconds float64) float64 {
	if p.total <= 0 {
		return 0
	}
	pct := seconds / p.total * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	return pct
}

// clockToSeconds converts ffmpeg's HH:MM:SS.fraction timestamp to seconds.
// A plain seconds value is accepted as well.
func clockToSeconds(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		v, err := strconv.ParseFloat(parts[0], 64)
		return v, err == nil
	case 3:
		hours, err1 := strconv.ParseFloat(parts[0], 64)
		minutes, err2 := strconv.ParseFloat(parts[1], 64)
		secs, err3 := strconv.ParseFloat(parts[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return 0, false
		}
		return hours*3600 + minutes*60 + secs, true
	default:
		return 0, false
	}
}
