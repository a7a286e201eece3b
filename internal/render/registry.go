// Package render orchestrates render work: the chunk render queue with its
// concurrency cap, the unified proxy-then-preview pipeline, and the registry
// of in-flight transcoder processes used for cancellation.
package render

import (
	"sync"

	"github.com/clipforge/clipforge/internal/engine"
)

// Registry maps job keys to in-flight process handles. It exists purely for
// cancellation lookups; entries are inserted at job start and removed at
// completion, one-to-one.
type Registry struct {
	mu    sync.Mutex
	procs map[string]*engine.Process
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]*engine.Process)}
}

func (r *Registry) Add(key string, p *engine.Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[key] = p
}

func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.procs, key)
}

// Len returns the number of tracked processes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// CancelAll stops every tracked process and clears the registry. It touches
// process lifecycles only, never cache state: chunk statuses stay whatever
// they were and are re-queued by the next sweep. Returns the number of
// processes stopped.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	procs := r.procs
	r.procs = make(map[string]*engine.Process)
	r.mu.Unlock()

	for _, p := range procs {
		p.Stop()
	}
	return len(procs)
}
