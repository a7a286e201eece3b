package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// The runner tests drive a real subprocess through /bin/sh instead of ffmpeg;
// the supervision logic only cares about pipes, exit codes and signals.
func shRunner(t *testing.T) *FFmpeg {
	t.Helper()
	f, err := NewFFmpeg("sh", time.Second, nil)
	if err != nil {
		t.Fatalf("NewFFmpeg(sh): %v", err)
	}
	return f
}

func TestNewFFmpeg_MissingBinary(t *testing.T) {
	_, err := NewFFmpeg("definitely-not-a-real-binary-name", 0, nil)
	if !errors.Is(err, ErrSpawn) {
		t.Fatalf("err = %v, want ErrSpawn", err)
	}
}

func TestProcess_Success(t *testing.T) {
	f := shRunner(t)

	proc, err := f.Start(context.Background(), RenderSpec{
		Args: []string{"-c", "exit 0"},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	result := proc.Wait()
	if result.Kind != ResultSuccess {
		t.Errorf("Kind = %s, want success", result.Kind)
	}
	if !result.IsSuccess() {
		t.Errorf("IsSuccess() = false for a clean exit")
	}
}

func TestProcess_FailureKeepsExitCodeAndStderr(t *testing.T) {
	f := shRunner(t)

	proc, err := f.Start(context.Background(), RenderSpec{
		Args: []string{"-c", "echo boom >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	result := proc.Wait()
	if result.Kind != ResultFailed {
		t.Errorf("Kind = %s, want failed", result.Kind)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if !strings.Contains(result.StderrTail, "boom") {
		t.Errorf("StderrTail = %q, want it to contain boom", result.StderrTail)
	}
}

func TestProcess_ContextCancellation(t *testing.T) {
	f := shRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	proc, err := f.Start(ctx, RenderSpec{
		Args: []string{"-c", "sleep 10"},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	cancel()

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("process did not exit after cancellation")
	}

	result := proc.Wait()
	if result.Kind != ResultCancelled {
		t.Errorf("Kind = %s, want cancelled", result.Kind)
	}
}

func TestProcess_StopIsIdempotent(t *testing.T) {
	f := shRunner(t)

	proc, err := f.Start(context.Background(), RenderSpec{
		Args: []string{"-c", "sleep 10"},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	proc.Stop()
	proc.Stop()

	result := proc.Wait()
	if result.Kind != ResultCancelled {
		t.Errorf("Kind = %s, want cancelled", result.Kind)
	}
}

func TestProcess_ProgressCallback(t *testing.T) {
	f := shRunner(t)

	got := make(chan Progress, 16)
	proc, err := f.Start(context.Background(), RenderSpec{
		Args:          []string{"-c", "echo 'out_time=00:00:05.000000'"},
		TotalDuration: 10,
		OnProgress:    func(p Progress) { got <- p },
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	proc.Wait()

	select {
	case p := <-got:
		if p.Percent != 50 {
			t.Errorf("Percent = %v, want 50", p.Percent)
		}
	default:
		t.Fatalf("no progress update received")
	}
}

func TestScanLinesCR(t *testing.T) {
	input := "one\rtwo\nthree"
	var lines []string

	data := []byte(input)
	for len(data) > 0 {
		advance, token, err := scanLinesCR(data, true)
		if err != nil {
			t.Fatalf("scanLinesCR: %v", err)
		}
		if advance == 0 {
			break
		}
		lines = append(lines, string(token))
		data = data[advance:]
	}

	want := []string{"one", "two", "three"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines %v, want %v", len(lines), lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestTailWriter_KeepsOnlyTail(t *testing.T) {
	w := &tailWriter{limit: 10}
	w.WriteLine("aaaaaaaaaa")
	w.WriteLine("bbbb")

	got := w.String()
	if len(got) > 10 {
		t.Errorf("tail length = %d, want <= 10", len(got))
	}
	if !strings.Contains(got, "bbbb") {
		t.Errorf("tail %q must keep the newest output", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	got := truncate("0123456789abcdef", 4)
	if got != "...cdef" {
		t.Errorf("truncate = %q, want ...cdef", got)
	}
}
