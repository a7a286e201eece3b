package render

import (
	"context"
	"testing"
	"time"

	"github.com/clipforge/clipforge/internal/engine"
)

func startSleeper(t *testing.T) *engine.Process {
	t.Helper()
	runner, err := engine.NewFFmpeg("sh", time.Second, nil)
	if err != nil {
		t.Fatalf("NewFFmpeg: %v", err)
	}
	proc, err := runner.Start(context.Background(), engine.RenderSpec{
		Args: []string{"-c", "sleep 30"},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return proc
}

func TestRegistry_AddRemoveLen(t *testing.T) {
	reg := NewRegistry()
	if reg.Len() != 0 {
		t.Fatalf("new registry Len = %d", reg.Len())
	}

	p := startSleeper(t)
	defer p.Stop()

	reg.Add("job-1", p)
	reg.Add("job-2", p)
	if reg.Len() != 2 {
		t.Errorf("Len = %d, want 2", reg.Len())
	}

	reg.Remove("job-1")
	if reg.Len() != 1 {
		t.Errorf("Len after remove = %d, want 1", reg.Len())
	}

	reg.Remove("job-1") // repeated remove is a no-op
	if reg.Len() != 1 {
		t.Errorf("Len after repeated remove = %d, want 1", reg.Len())
	}
}

func TestRegistry_CancelAll(t *testing.T) {
	reg := NewRegistry()
	p1 := startSleeper(t)
	p2 := startSleeper(t)
	reg.Add("a", p1)
	reg.Add("b", p2)

	stopped := reg.CancelAll()
	if stopped != 2 {
		t.Errorf("CancelAll = %d, want 2", stopped)
	}
	if reg.Len() != 0 {
		t.Errorf("registry not cleared, Len = %d", reg.Len())
	}

	for _, p := range []*engine.Process{p1, p2} {
		select {
		case <-p.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("process did not exit after CancelAll")
		}
		if res := p.Wait(); res.Kind != engine.ResultCancelled {
			t.Errorf("result kind = %s, want cancelled", res.Kind)
		}
	}

	if again := reg.CancelAll(); again != 0 {
		t.Errorf("second CancelAll = %d, want 0", again)
	}
}
