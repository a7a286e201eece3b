package render

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job kinds and statuses for the long-running pipeline operations exposed
// over the API. Chunk renders are not jobs; they are tracked by the cache
// manager per chunk.
const (
	JobKindPreview = "preview"
	JobKindExport  = "export"

	JobStatusRunning   = "running"
	JobStatusDone      = "done"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Job is one tracked pipeline run.
type Job struct {
	ID         string
	Kind       string
	Status     string
	Progress   float64
	Error      string
	OutputPath string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Tracker is an in-memory job table. Jobs are kept after completion so the
// API can report terminal state; the table is bounded by pruning the oldest
// finished jobs.
type Tracker struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

const maxFinishedJobs = 50

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*Job)}
}

// Begin registers a new running job and returns its id.
func (t *Tracker) Begin(kind, outputPath string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	id := uuid.NewString()
	t.jobs[id] = &Job{
		ID:         id,
		Kind:       kind,
		Status:     JobStatusRunning,
		OutputPath: outputPath,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	t.pruneLocked()
	return id
}

// SetProgress updates a running job's progress percentage.
func (t *Tracker) SetProgress(id string, pct float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[id]; ok && j.Status == JobStatusRunning {
		j.Progress = pct
		j.UpdatedAt = time.Now()
	}
}

// Finish moves a job to a terminal status. errMsg is recorded for failures
// only.
func (t *Tracker) Finish(id, status, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return
	}
	j.Status = status
	j.Error = errMsg
	if status == JobStatusDone {
		j.Progress = 100
	}
	j.UpdatedAt = time.Now()
}

// Get returns a copy of the job, or nil when unknown.
func (t *Tracker) Get(id string) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return nil
	}
	copied := *j
	return &copied
}

// List returns all jobs, newest first.
func (t *Tracker) List() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// Running reports whether any job of the given kind is still running.
func (t *Tracker) Running(kind string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.Kind == kind && j.Status == JobStatusRunning {
			return true
		}
	}
	return false
}

// pruneLocked drops the oldest finished jobs past the retention cap.
func (t *Tracker) pruneLocked() {
	finished := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		if j.Status != JobStatusRunning {
			finished = append(finished, j)
		}
	}
	if len(finished) <= maxFinishedJobs {
		return
	}
	sort.Slice(finished, func(i, k int) bool {
		return finished[i].UpdatedAt.Before(finished[k].UpdatedAt)
	})
	for _, j := range finished[:len(finished)-maxFinishedJobs] {
		delete(t.jobs, j.ID)
	}
}
