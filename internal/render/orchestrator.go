package render

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/cache"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/engine"
	"github.com/clipforge/clipforge/internal/fgraph"
	"github.com/clipforge/clipforge/internal/project"
	"github.com/clipforge/clipforge/internal/timeline"
)

// RenderJob is a queued chunk render. It exists only while queued or
// running; completion, error or cancellation removes it.
type RenderJob struct {
	ChunkIndex int
	Priority   int
	EnqueuedAt time.Time
	Key        string
}

// Orchestrator owns the chunk render queue. It never runs more than the
// configured number of render subprocesses at once; admission is FIFO unless
// a caller-assigned priority overrides it, and a running job is never
// preempted. Completion handling and pulling the next job happen under one
// lock, so the concurrency cap cannot be overshot by asynchronous process
// exits.
type Orchestrator struct {
	cache    *cache.Manager
	runner   *engine.FFmpeg
	registry *Registry
	profiles *config.Profiles
	resolver fgraph.SourceResolver
	cacheDir string
	maxJobs  int
	logger   *slog.Logger

	mu      sync.Mutex
	proj    *project.Project
	queue   []RenderJob
	queued  map[int]bool
	running map[int]string // chunk index -> registry key
	ctx     context.Context
}

// NewOrchestrator creates an orchestrator; Start must be called before
// enqueuing work.
func NewOrchestrator(cacheMgr *cache.Manager, runner *engine.FFmpeg, registry *Registry, profiles *config.Profiles, cacheDir string, maxJobs int, logger *slog.Logger) *Orchestrator {
	if maxJobs < 1 {
		maxJobs = config.DefaultMaxRenderJobs
	}
	return &Orchestrator{
		cache:    cacheMgr,
		runner:   runner,
		registry: registry,
		profiles: profiles,
		resolver: NewProxyResolver(),
		cacheDir: cacheDir,
		maxJobs:  maxJobs,
		logger:   logger,
		queued:   make(map[int]bool),
		running:  make(map[int]string),
	}
}

// Start binds the orchestrator to a context governing every job it spawns.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	o.ctx = ctx
	o.mu.Unlock()
}

// SetProject installs the timeline snapshot chunk renders compile against.
func (o *Orchestrator) SetProject(p *project.Project) {
	o.mu.Lock()
	o.proj = p
	o.mu.Unlock()
}

// Enqueue adds a chunk to the render queue. Chunks already queued or running
// are not enqueued twice; the rendering state is the per-chunk mutex.
func (o *Orchestrator) Enqueue(chunkIndex, priority int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.queued[chunkIndex] {
		return
	}
	if _, ok := o.running[chunkIndex]; ok {
		return
	}

	o.queue = append(o.queue, RenderJob{
		ChunkIndex: chunkIndex,
		Priority:   priority,
		EnqueuedAt: time.Now(),
		Key:        "chunk:" + uuid.NewString(),
	})
	o.queued[chunkIndex] = true
	o.pumpLocked()
}

// Sweep plans which chunks need rendering against current content hashes and
// enqueues them. Chunks abandoned in the rendering state by a cancellation
// are reset here, never by the canceller.
func (o *Orchestrator) Sweep() int {
	o.mu.Lock()
	proj := o.proj
	o.mu.Unlock()
	if proj == nil {
		return 0
	}

	for _, c := range o.cache.Chunks() {
		if c.Status != cache.StatusRendering {
			continue
		}
		o.mu.Lock()
		_, inFlight := o.running[c.Index]
		o.mu.Unlock()
		if !inFlight {
			o.cache.ResetRendering(c.Index)
		}
	}

	need := o.cache.Plan(func(w timeline.Window) string {
		return proj.Timeline.WindowHash(w)
	})
	for _, index := range need {
		o.Enqueue(index, 0)
	}
	return len(need)
}

// CancelAll kills every tracked subprocess and clears the process registry.
// Chunk statuses are left as they were; cancellation is a process-lifecycle
// action, not a cache-state action.
func (o *Orchestrator) CancelAll() int {
	o.mu.Lock()
	o.queue = nil
	o.queued = make(map[int]bool)
	o.mu.Unlock()

	stopped := o.registry.CancelAll()
	if o.logger != nil && stopped > 0 {
		o.logger.Info("render jobs cancelled", "stopped", stopped)
	}
	return stopped
}

// QueueLen returns the number of queued (not yet running) jobs.
func (o *Orchestrator) QueueLen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// RunningCount returns the number of in-flight chunk renders.
func (o *Orchestrator) RunningCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

// pumpLocked starts queued jobs while slots are free. Callers hold o.mu.
func (o *Orchestrator) pumpLocked() {
	for len(o.running) < o.maxJobs && len(o.queue) > 0 {
		job := o.popLocked()
		delete(o.queued, job.ChunkIndex)

		if o.proj == nil || o.ctx == nil {
			continue
		}
		if err := o.cache.MarkRendering(job.ChunkIndex); err != nil {
			if o.logger != nil {
				o.logger.Warn("skipping chunk render", "chunk_index", job.ChunkIndex, "error", err)
			}
			continue
		}

		o.running[job.ChunkIndex] = job.Key
		go o.renderChunk(o.ctx, job, o.proj)
	}
}

// popLocked removes and returns the next job: highest priority first, FIFO
// within a priority.
func (o *Orchestrator) popLocked() RenderJob {
	best := 0
	for i := 1; i < len(o.queue); i++ {
		if o.queue[i].Priority > o.queue[best].Priority {
			best = i
		}
	}
	job := o.queue[best]
	o.queue = append(o.queue[:best], o.queue[best+1:]...)
	return job
}

// renderChunk compiles and renders one chunk, then reports completion. The
// content hash is computed before spawning so the recorded hash matches what
// was actually rendered.
func (o *Orchestrator) renderChunk(ctx context.Context, job RenderJob, proj *project.Project) {
	chunk, ok := o.cache.Chunk(job.ChunkIndex)
	if !ok {
		o.complete(job, func() {})
		return
	}

	window := chunk.Window()
	hash := proj.Timeline.WindowHash(window)
	outPath := filepath.Join(o.cacheDir, cache.FileName(job.ChunkIndex))

	res, err := fgraph.CompileOverlay(fgraph.Request{
		Timeline: &proj.Timeline,
		Media:    proj.MediaTable(),
		Window:   window,
		Settings: o.cache.Settings(),
		Resolve:  o.resolver,
	})
	if err != nil {
		o.complete(job, func() {
			o.cache.MarkError(job.ChunkIndex, fmt.Sprintf("compile failed: %v", err))
		})
		return
	}
	// Chunk renders proceed past per-clip diagnostics; the skipped clips are
	// recorded but do not fail the segment.
	for _, d := range res.Diagnostics {
		if o.logger != nil {
			o.logger.Warn("chunk compile diagnostic", "chunk_index", job.ChunkIndex, "detail", d.String())
		}
	}

	args := engine.BuildRenderArgs(res, o.profiles.Preview, outPath)
	proc, err := o.runner.Start(ctx, engine.RenderSpec{
		Args:          args,
		TotalDuration: window.Duration(),
	})
	if err != nil {
		o.complete(job, func() {
			o.cache.MarkError(job.ChunkIndex, fmt.Sprintf("spawn failed: %v", err))
		})
		return
	}

	o.registry.Add(job.Key, proc)
	result := proc.Wait()
	o.registry.Remove(job.Key)

	o.complete(job, func() {
		switch result.Kind {
		case engine.ResultSuccess:
			o.cache.MarkValid(job.ChunkIndex, outPath, hash, res.Complex)
		case engine.ResultCancelled:
			// Status stays rendering; the next sweep resets and re-queues it.
		default:
			o.cache.MarkError(job.ChunkIndex, truncateDiag(result.StderrTail))
		}
	})
}

// complete applies the cache transition for a finished job and pulls the
// next queued job as one atomic step.
func (o *Orchestrator) complete(job RenderJob, apply func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	apply()
	delete(o.running, job.ChunkIndex)
	o.pumpLocked()
}

// ChunksByStatus returns chunk indices grouped per status, for status
// endpoints.
func (o *Orchestrator) ChunksByStatus() map[cache.Status][]int {
	grouped := make(map[cache.Status][]int)
	for _, c := range o.cache.Chunks() {
		grouped[c.Status] = append(grouped[c.Status], c.Index)
	}
	for _, indices := range grouped {
		sort.Ints(indices)
	}
	return grouped
}

func truncateDiag(s string) string {
	const maxLen = 512
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
