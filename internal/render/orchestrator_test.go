package render

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/cache"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/engine"
	"github.com/clipforge/clipforge/internal/project"
	"github.com/clipforge/clipforge/internal/timeline"
)

// blockedOrchestrator returns an orchestrator whose running set is already at
// capacity, so enqueued jobs stay queued instead of spawning subprocesses.
func blockedOrchestrator(mgr *cache.Manager) *Orchestrator {
	return &Orchestrator{
		cache:   mgr,
		maxJobs: 1,
		queued:  make(map[int]bool),
		running: map[int]string{-1: "occupied"},
	}
}

func TestOrchestrator_PopLockedPriorityThenFIFO(t *testing.T) {
	base := time.Now()
	o := &Orchestrator{queued: make(map[int]bool)}
	o.queue = []RenderJob{
		{ChunkIndex: 0, Priority: 0, EnqueuedAt: base},
		{ChunkIndex: 1, Priority: 5, EnqueuedAt: base.Add(time.Millisecond)},
		{ChunkIndex: 2, Priority: 5, EnqueuedAt: base.Add(2 * time.Millisecond)},
		{ChunkIndex: 3, Priority: 0, EnqueuedAt: base.Add(3 * time.Millisecond)},
	}

	var order []int
	for len(o.queue) > 0 {
		order = append(order, o.popLocked().ChunkIndex)
	}

	want := []int{1, 2, 0, 3}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", order, want)
		}
	}
}

func TestOrchestrator_EnqueueDeduplicates(t *testing.T) {
	mgr := cache.NewManager(2, timeline.DefaultSettings(), nil)
	mgr.Initialize(4)
	o := blockedOrchestrator(mgr)

	o.Enqueue(0, 0)
	o.Enqueue(0, 3)
	o.Enqueue(1, 0)

	if got := o.QueueLen(); got != 2 {
		t.Errorf("QueueLen = %d, want 2 after duplicate enqueue", got)
	}
}

func TestOrchestrator_EnqueueSkipsRunningChunk(t *testing.T) {
	mgr := cache.NewManager(2, timeline.DefaultSettings(), nil)
	mgr.Initialize(4)
	o := blockedOrchestrator(mgr)
	o.running[1] = "chunk:in-flight"

	o.Enqueue(1, 0)

	if got := o.QueueLen(); got != 0 {
		t.Errorf("QueueLen = %d, a running chunk must not be re-queued", got)
	}
}

func TestOrchestrator_SweepResetsOrphansAndPlans(t *testing.T) {
	mgr := cache.NewManager(2, timeline.DefaultSettings(), nil)
	mgr.Initialize(4) // chunks 0 and 1, both missing

	// Chunk 0 was left in the rendering state by a cancelled process that is
	// no longer tracked as running.
	if err := mgr.MarkRendering(0); err != nil {
		t.Fatalf("MarkRendering: %v", err)
	}

	o := blockedOrchestrator(mgr)
	o.proj = &project.Project{ID: "p", Settings: timeline.DefaultSettings()}

	enqueued := o.Sweep()

	if c, _ := mgr.Chunk(0); c.Status != cache.StatusStale {
		t.Errorf("orphaned chunk status = %s, want stale", c.Status)
	}
	if enqueued != 2 {
		t.Errorf("Sweep = %d, want both chunks planned", enqueued)
	}
	if got := o.QueueLen(); got != 2 {
		t.Errorf("QueueLen = %d, want 2", got)
	}
}

func TestOrchestrator_SweepLeavesTrackedRenders(t *testing.T) {
	mgr := cache.NewManager(2, timeline.DefaultSettings(), nil)
	mgr.Initialize(4)
	if err := mgr.MarkRendering(0); err != nil {
		t.Fatalf("MarkRendering: %v", err)
	}

	o := blockedOrchestrator(mgr)
	o.proj = &project.Project{ID: "p", Settings: timeline.DefaultSettings()}
	o.running[0] = "chunk:live"

	o.Sweep()

	if c, _ := mgr.Chunk(0); c.Status != cache.StatusRendering {
		t.Errorf("tracked render was reset to %s", c.Status)
	}
}

func TestOrchestrator_SweepWithoutProject(t *testing.T) {
	mgr := cache.NewManager(2, timeline.DefaultSettings(), nil)
	mgr.Initialize(4)
	o := blockedOrchestrator(mgr)

	if got := o.Sweep(); got != 0 {
		t.Errorf("Sweep without a project = %d, want 0", got)
	}
}

func TestOrchestrator_CancelAllClearsQueue(t *testing.T) {
	mgr := cache.NewManager(2, timeline.DefaultSettings(), nil)
	mgr.Initialize(4)
	o := blockedOrchestrator(mgr)
	o.registry = NewRegistry()

	o.Enqueue(0, 0)
	o.Enqueue(1, 0)
	o.CancelAll()

	if got := o.QueueLen(); got != 0 {
		t.Errorf("QueueLen after CancelAll = %d, want 0", got)
	}
	// Cleared queue entries can be enqueued again.
	o.Enqueue(0, 0)
	if got := o.QueueLen(); got != 1 {
		t.Errorf("re-enqueue after CancelAll failed, QueueLen = %d", got)
	}
}

func TestOrchestrator_ChunksByStatus(t *testing.T) {
	mgr := cache.NewManager(2, timeline.DefaultSettings(), nil)
	mgr.Initialize(8) // chunks 0..3
	if err := mgr.MarkRendering(2); err != nil {
		t.Fatalf("MarkRendering: %v", err)
	}
	if err := mgr.MarkRendering(1); err != nil {
		t.Fatalf("MarkRendering: %v", err)
	}
	if err := mgr.MarkValid(1, "/cache/chunk_0001.mp4", "h1", false); err != nil {
		t.Fatalf("MarkValid: %v", err)
	}

	o := blockedOrchestrator(mgr)
	grouped := o.ChunksByStatus()

	if got := grouped[cache.StatusMissing]; len(got) != 2 || got[0] != 0 || got[1] != 3 {
		t.Errorf("missing = %v, want [0 3]", got)
	}
	if got := grouped[cache.StatusRendering]; len(got) != 1 || got[0] != 2 {
		t.Errorf("rendering = %v, want [2]", got)
	}
	if got := grouped[cache.StatusValid]; len(got) != 1 || got[0] != 1 {
		t.Errorf("valid = %v, want [1]", got)
	}
}

func TestOrchestrator_ConcurrencyCap(t *testing.T) {
	// sh rejects the render argv and exits nonzero immediately, so every
	// chunk runs through the full spawn/complete path and ends in the error
	// state. The sampler watches the in-flight count the whole time.
	runner, err := engine.NewFFmpeg("sh", time.Second, nil)
	if err != nil {
		t.Fatalf("NewFFmpeg: %v", err)
	}

	const maxJobs = 2
	mgr := cache.NewManager(2, timeline.DefaultSettings(), nil)
	mgr.Initialize(12) // chunks 0..5
	o := NewOrchestrator(mgr, runner, NewRegistry(), config.DefaultProfiles(),
		t.TempDir(), maxJobs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	o.SetProject(&project.Project{ID: "p", Settings: timeline.DefaultSettings()})

	var maxSeen int64
	stop := make(chan struct{})
	sampler := make(chan struct{})
	go func() {
		defer close(sampler)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if n := int64(o.RunningCount()); n > atomic.LoadInt64(&maxSeen) {
				atomic.StoreInt64(&maxSeen, n)
			}
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < 6; i++ {
		o.Enqueue(i, 0)
	}

	deadline := time.Now().Add(15 * time.Second)
	for {
		grouped := o.ChunksByStatus()
		if len(grouped[cache.StatusError]) == 6 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("chunks never settled: %v", grouped)
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(stop)
	<-sampler

	if got := atomic.LoadInt64(&maxSeen); got > maxJobs {
		t.Errorf("in-flight renders peaked at %d, cap is %d", got, maxJobs)
	}
	if o.RunningCount() != 0 {
		t.Errorf("RunningCount = %d after all chunks settled", o.RunningCount())
	}
	if o.QueueLen() != 0 {
		t.Errorf("QueueLen = %d after all chunks settled", o.QueueLen())
	}
}

func TestTruncateDiag(t *testing.T) {
	short := "error: something broke"
	if got := truncateDiag(short); got != short {
		t.Errorf("short diagnostic changed: %q", got)
	}

	long := strings.Repeat("x", 600) + "tail"
	got := truncateDiag(long)
	if len(got) != 3+512 {
		t.Errorf("truncated length = %d, want %d", len(got), 3+512)
	}
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "tail") {
		t.Errorf("truncation must keep the tail, got %q...%q", got[:8], got[len(got)-8:])
	}
}
