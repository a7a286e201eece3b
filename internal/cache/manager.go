package cache

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/clipforge/clipforge/internal/timeline"
)

// Manager owns the chunk manifest: which segments exist, their validity
// status and content hashes. It decides which segments need rendering when
// the timeline changes. All transitions go through the Mark methods, which
// are the only writers of a chunk's terminal fields.
//
// The state machine per chunk: missing -> rendering -> valid, valid -> stale
// on an overlapping edit, stale/error -> rendering on retry. No state is
// unretryable.
type Manager struct {
	mu           sync.Mutex
	chunks       []Chunk
	chunkSeconds float64
	settings     timeline.Settings
	total        float64
	logger       *slog.Logger
}

// NewManager creates a manager for the given chunk duration and render
// settings. Initialize must be called before chunks exist.
func NewManager(chunkSeconds float64, settings timeline.Settings, logger *slog.Logger) *Manager {
	if chunkSeconds <= 0 {
		chunkSeconds = 2
	}
	return &Manager{
		chunkSeconds: chunkSeconds,
		settings:     settings,
		logger:       logger,
	}
}

// Initialize (re)computes the chunk list by dividing [0, duration) into
// fixed-size windows; the last chunk may be shorter. Existing chunk state is
// discarded: chunks are recreated whenever total duration is re-established.
func (m *Manager) Initialize(duration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total = duration
	m.chunks = nil
	if duration <= 0 {
		return
	}

	for index, start := 0, 0.0; start < duration; index, start = index+1, start+m.chunkSeconds {
		end := start + m.chunkSeconds
		if end > duration {
			end = duration
		}
		m.chunks = append(m.chunks, Chunk{
			Index:  index,
			Start:  start,
			End:    end,
			Status: StatusMissing,
		})
	}

	if m.logger != nil {
		m.logger.Info("chunk manifest initialized",
			"total_duration", duration,
			"chunk_seconds", m.chunkSeconds,
			"chunks", len(m.chunks),
		)
	}
}

// Resize updates the total duration without rebuilding the chunk list. Valid
// only while the chunk count is unchanged; callers crossing a count boundary
// use Initialize. The last chunk's window is re-clamped to the new duration
// and, when its window moved, the chunk is no longer a faithful render of it:
// valid becomes stale, an in-flight render finishes pending-invalidate.
// Returns true when the last chunk's window changed.
func (m *Manager) Resize(duration float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total = duration
	if len(m.chunks) == 0 {
		return false
	}

	last := &m.chunks[len(m.chunks)-1]
	end := last.Start + m.chunkSeconds
	if end > duration {
		end = duration
	}
	if end == last.End {
		return false
	}

	last.End = end
	switch last.Status {
	case StatusValid:
		last.Status = StatusStale
	case StatusRendering:
		last.pendingInvalidate = true
	}
	if m.logger != nil {
		m.logger.Info("chunk manifest resized",
			"total_duration", duration,
			"last_chunk_end", end,
		)
	}
	return true
}

// Settings returns the render contract the chunks were created under.
func (m *Manager) Settings() timeline.Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// TotalDuration returns the timeline duration the manifest covers.
func (m *Manager) TotalDuration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// ChunkSeconds returns the fixed chunk duration.
func (m *Manager) ChunkSeconds() float64 {
	return m.chunkSeconds
}

// Count returns the number of chunks.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks)
}

// Chunks returns a copy of every chunk.
func (m *Manager) Chunks() []Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Chunk, len(m.chunks))
	copy(out, m.chunks)
	return out
}

// Chunk returns a copy of one chunk by index.
func (m *Manager) Chunk(index int) (Chunk, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.chunks) {
		return Chunk{}, false
	}
	return m.chunks[index], true
}

// Invalidate marks every valid chunk whose window intersects the range as
// stale. Chunks already missing, rendering or errored are left alone: an
// invalidation never un-invalidates. Returns the affected indices.
func (m *Manager) Invalidate(r timeline.Window) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected []int
	for i := range m.chunks {
		c := &m.chunks[i]
		if !c.Window().Intersects(r) {
			continue
		}
		if c.Status == StatusValid {
			c.Status = StatusStale
			affected = append(affected, c.Index)
		}
	}

	if m.logger != nil && len(affected) > 0 {
		m.logger.Debug("chunks invalidated", "range_start", r.Start, "range_end", r.End, "count", len(affected))
	}
	return affected
}

// InvalidateAll marks every chunk stale; used when render settings change and
// every chunk's pixel contract changed with them. Chunks currently rendering
// are allowed to finish but come out stale, immediately eligible for
// re-render.
func (m *Manager) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.chunks {
		c := &m.chunks[i]
		switch c.Status {
		case StatusValid:
			c.Status = StatusStale
		case StatusRendering:
			c.pendingInvalidate = true
		}
	}

	if m.logger != nil {
		m.logger.Info("all chunks invalidated", "chunks", len(m.chunks))
	}
}

// UpdateSettings applies new render settings. A pixel-contract change
// (resolution or frame rate) invalidates every chunk; returns true when that
// happened.
func (m *Manager) UpdateSettings(s timeline.Settings) bool {
	m.mu.Lock()
	changed := !m.settings.PixelContractEquals(s)
	m.settings = s
	m.mu.Unlock()

	if changed {
		m.InvalidateAll()
	}
	return changed
}

// MarkRendering transitions a chunk into the rendering state. The rendering
// state doubles as a per-chunk mutex: a second render for the same chunk is
// refused while one is in flight.
func (m *Manager) MarkRendering(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.at(index)
	if err != nil {
		return err
	}
	if c.Status == StatusRendering {
		return fmt.Errorf("chunk %d is already rendering", index)
	}
	c.Status = StatusRendering
	c.pendingInvalidate = false
	return nil
}

// MarkValid records a successful render: output path, content hash and
// complexity. If a settings change arrived mid-render the chunk lands stale
// instead, ready for an immediate re-render.
func (m *Manager) MarkValid(index int, outputPath, contentHash string, complex bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.at(index)
	if err != nil {
		return err
	}
	if c.Status != StatusRendering {
		return fmt.Errorf("chunk %d is %s, not rendering", index, c.Status)
	}

	c.OutputPath = outputPath
	c.ContentHash = contentHash
	c.Complex = complex
	c.ErrorMessage = ""
	if c.pendingInvalidate {
		c.Status = StatusStale
		c.pendingInvalidate = false
	} else {
		c.Status = StatusValid
	}
	return nil
}

// MarkError records a failed render with a bounded diagnostic.
func (m *Manager) MarkError(index int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.at(index)
	if err != nil {
		return err
	}
	if c.Status != StatusRendering {
		return fmt.Errorf("chunk %d is %s, not rendering", index, c.Status)
	}

	c.Status = StatusError
	c.ErrorMessage = message
	c.OutputPath = ""
	c.pendingInvalidate = false
	return nil
}

// ResetRendering returns a chunk left in the rendering state to its previous
// re-queueable form after its process was cancelled. Cancellation is a
// process-lifecycle action, not a cache-state one, so this is invoked by the
// next sweep, never by the canceller.
func (m *Manager) ResetRendering(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.at(index)
	if err != nil {
		return err
	}
	if c.Status == StatusRendering {
		c.Status = StatusStale
		c.pendingInvalidate = false
	}
	return nil
}

// Plan returns the indices needing a render, in order: every missing, stale
// or errored chunk, plus valid chunks whose current content hash no longer
// matches what was rendered. hashFor computes the canonical hash for a
// window; rendering chunks are skipped (the per-chunk mutex).
func (m *Manager) Plan(hashFor func(timeline.Window) string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var need []int
	for i := range m.chunks {
		c := &m.chunks[i]
		switch c.Status {
		case StatusMissing, StatusStale, StatusError:
			need = append(need, c.Index)
		case StatusValid:
			if hashFor != nil && hashFor(c.Window()) != c.ContentHash {
				c.Status = StatusStale
				need = append(need, c.Index)
			}
		}
	}
	return need
}

// Snapshot returns the persisted form of every valid chunk.
func (m *Manager) Snapshot() []ChunkRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var records []ChunkRecord
	for i := range m.chunks {
		c := &m.chunks[i]
		if c.Status != StatusValid {
			continue
		}
		records = append(records, ChunkRecord{
			Index:       c.Index,
			ContentHash: c.ContentHash,
			FileName:    FileName(c.Index),
			Complex:     c.Complex,
		})
	}
	return records
}

// Restore applies a loaded manifest to a freshly initialized chunk list. The
// whole manifest is ignored when its render contract (resolution, frame
// rate), chunk duration or total duration differ from the current ones. A
// recorded chunk whose file no longer exists on disk stays missing, not
// errored; it is simply re-rendered.
func (m *Manager) Restore(meta *ManifestMeta, records []ChunkRecord, pathFor func(ChunkRecord) string, exists func(string) bool) int {
	if meta == nil {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if meta.Width != m.settings.Width || meta.Height != m.settings.Height || meta.FrameRate != m.settings.FrameRate {
		if m.logger != nil {
			m.logger.Info("manifest discarded: render settings changed")
		}
		return 0
	}
	if meta.ChunkSeconds != m.chunkSeconds || meta.TotalDuration != m.total {
		if m.logger != nil {
			m.logger.Info("manifest discarded: chunk layout changed")
		}
		return 0
	}

	restored := 0
	for _, rec := range records {
		if rec.Index < 0 || rec.Index >= len(m.chunks) {
			continue
		}
		path := pathFor(rec)
		if exists != nil && !exists(path) {
			continue
		}
		c := &m.chunks[rec.Index]
		c.Status = StatusValid
		c.ContentHash = rec.ContentHash
		c.OutputPath = path
		c.Complex = rec.Complex
		restored++
	}

	if m.logger != nil {
		m.logger.Info("manifest restored", "valid_chunks", restored, "total_chunks", len(m.chunks))
	}
	return restored
}

func (m *Manager) at(index int) (*Chunk, error) {
	if index < 0 || index >= len(m.chunks) {
		return nil, fmt.Errorf("chunk index %d out of range (have %d)", index, len(m.chunks))
	}
	return &m.chunks[index], nil
}
