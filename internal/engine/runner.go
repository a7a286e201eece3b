package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // tail of stderr kept for diagnostics
)

// ErrSpawn marks failures to start the transcoder at all (missing or broken
// installation), as opposed to a started process exiting nonzero.
var ErrSpawn = errors.New("failed to spawn transcoder")

// ResultKind classifies how a render ended.
type ResultKind string

const (
	ResultSuccess   ResultKind = "success"
	ResultFailed    ResultKind = "failed"
	ResultCancelled ResultKind = "cancelled"
)

// Result is the structured outcome of one transcoder run. Cancellation is
// always reported distinctly from failure.
type Result struct {
	Kind       ResultKind
	ExitCode   int
	StderrTail string
	Duration   time.Duration
}

// IsSuccess returns true when the process exited cleanly.
func (r Result) IsSuccess() bool { return r.Kind == ResultSuccess }

// RenderSpec describes one transcoder invocation.
type RenderSpec struct {
	Args []string
	// TotalDuration is the expected output duration in seconds, used to turn
	// progress timestamps into percentages.
	TotalDuration float64
	OnProgress    func(Progress)
}

// FFmpeg spawns and supervises ffmpeg subprocesses.
type FFmpeg struct {
	bin    string
	grace  time.Duration
	logger *slog.Logger
}

// NewFFmpeg resolves the ffmpeg binary and returns a runner. The grace
// period bounds how long a stopped process may linger before a forced kill.
func NewFFmpeg(bin string, grace time.Duration, logger *slog.Logger) (*FFmpeg, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %q not found: %v", ErrSpawn, bin, err)
	}
	if grace <= 0 {
		grace = 3 * time.Second
	}
	return &FFmpeg{bin: path, grace: grace, logger: logger}, nil
}

// Process is one in-flight transcoder subprocess. The orchestrator keeps
// handles in its registry for cancellation lookups.
type Process struct {
	cmd     *exec.Cmd
	grace   time.Duration
	logger  *slog.Logger
	started time.Time

	stderrTail *tailWriter
	parser     *ProgressParser
	onProgress func(Progress)

	stopOnce sync.Once
	stopped  atomic.Bool

	done   chan struct{}
	result Result
}

// Start spawns ffmpeg for the given spec. A spawn-level error (executable
// missing, fork failure) is returned directly wrapping ErrSpawn; no output is
// assumed to exist in that case. Cancellation of ctx stops the process.
func (f *FFmpeg) Start(ctx context.Context, spec RenderSpec) (*Process, error) {
	cmd := exec.Command(f.bin, spec.Args...)

	p := &Process{
		cmd:        cmd,
		grace:      f.grace,
		logger:     f.logger,
		stderrTail: &tailWriter{limit: maxStderrBytes},
		parser:     NewProgressParser(spec.TotalDuration),
		onProgress: spec.OnProgress,
		done:       make(chan struct{}),
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	p.started = time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	if f.logger != nil {
		f.logger.Debug("transcoder started", "pid", cmd.Process.Pid, "args", spec.Args)
	}

	var scanners sync.WaitGroup
	scanners.Add(2)
	go func() {
		defer scanners.Done()
		p.scan(stdout, false)
	}()
	go func() {
		defer scanners.Done()
		p.scan(stderr, true)
	}()

	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.Stop()
		case <-stopWatch:
		}
	}()

	go func() {
		scanners.Wait()
		err := cmd.Wait()
		close(stopWatch)
		p.finish(err)
	}()

	return p, nil
}

// Wait blocks until the process exits and returns its result.
func (p *Process) Wait() Result {
	<-p.done
	return p.result
}

// Done returns a channel closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Stop terminates the process: a graceful stop signal first, then a forced
// kill if it has not exited within the grace period. The eventual result is
// reported as cancelled, not failed.
func (p *Process) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		if p.cmd.Process == nil {
			return
		}
		if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			p.cmd.Process.Kill()
			return
		}
		go func() {
			select {
			case <-p.done:
			case <-time.After(p.grace):
				p.cmd.Process.Kill()
			}
		}()
	})
}

// scan reads one output stream line by line, feeding the progress parser and
// (for stderr) the bounded diagnostic tail. ffmpeg overwrites status lines
// with carriage returns, so both separators split lines.
func (p *Process) scan(r io.Reader, keepTail bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanLinesCR)

	for scanner.Scan() {
		line := scanner.Text()
		if keepTail {
			p.stderrTail.WriteLine(line)
		}
		if progress, ok := p.parser.ParseLine(line); ok && p.onProgress != nil {
			p.onProgress(progress)
		}
	}
}

func (p *Process) finish(waitErr error) {
	elapsed := time.Since(p.started)

	result := Result{
		Kind:       ResultSuccess,
		StderrTail: p.stderrTail.String(),
		Duration:   elapsed,
	}

	if p.stopped.Load() {
		result.Kind = ResultCancelled
		result.ExitCode = -1
	} else if waitErr != nil {
		result.Kind = ResultFailed
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
	}

	if p.logger != nil {
		switch result.Kind {
		case ResultSuccess:
			p.logger.Debug("transcoder finished", "duration_ms", elapsed.Milliseconds())
		case ResultCancelled:
			p.logger.Info("transcoder cancelled", "duration_ms", elapsed.Milliseconds())
		default:
			p.logger.Warn("transcoder failed",
				"exit_code", result.ExitCode,
				"duration_ms", elapsed.Milliseconds(),
				"stderr_tail", truncate(result.StderrTail, 512),
			)
		}
	}

	p.result = result
	close(p.done)
}

// scanLinesCR splits on both \n and \r so ffmpeg's overwritten status lines
// appear as separate lines.
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// tailWriter keeps only the last `limit` bytes written to it.
type tailWriter struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailWriter) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.WriteString(line)
	t.buf.WriteByte('\n')
	if t.buf.Len() > t.limit {
		b := t.buf.Bytes()
		trimmed := make([]byte, t.limit)
		copy(trimmed, b[len(b)-t.limit:])
		t.buf.Reset()
		t.buf.Write(trimmed)
	}
}

func (t *tailWriter) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
