// Package cache tracks the chunked preview cache: fixed-duration timeline
// segments, their validity against content changes, and the persisted
// manifest that survives restarts.
package cache

import (
	"fmt"
	"time"

	"github.com/clipforge/clipforge/internal/timeline"
)

// Status is a chunk's place in the render state machine.
type Status string

const (
	StatusMissing   Status = "missing"
	StatusStale     Status = "stale"
	StatusRendering Status = "rendering"
	StatusValid     Status = "valid"
	StatusError     Status = "error"
)

// Chunk is one fixed-duration slice of the timeline tracked independently
// for caching. OutputPath and ErrorMessage are terminal fields written only
// by the manager's Mark transitions.
type Chunk struct {
	Index        int     `json:"index"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Status       Status  `json:"status"`
	ContentHash  string  `json:"content_hash,omitempty"`
	OutputPath   string  `json:"output_path,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	// Complex records whether the segment needed more than trivial
	// compositing. Informational only.
	Complex bool `json:"complex"`

	// set when a settings change lands while the chunk is rendering: the
	// render finishes, then the chunk is immediately re-eligible
	pendingInvalidate bool
}

// Window returns the chunk's timeline range.
func (c *Chunk) Window() timeline.Window {
	return timeline.Window{Start: c.Start, End: c.End}
}

// FileName returns the canonical chunk file name for an index.
func FileName(index int) string {
	return fmt.Sprintf("chunk_%04d.mp4", index)
}

// ManifestMeta identifies a persisted manifest and the render contract its
// chunks were produced under. A resolution or frame-rate mismatch against
// current settings invalidates the whole manifest.
type ManifestMeta struct {
	ProjectID     string
	ProjectHash   string
	ModifiedAt    time.Time
	ChunkSeconds  float64
	TotalDuration float64
	Width         int
	Height        int
	FrameRate     float64
}

// ChunkRecord is the persisted form of one valid chunk.
type ChunkRecord struct {
	Index       int
	ContentHash string
	FileName    string
	Complex     bool
}
