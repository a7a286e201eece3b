package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/clipforge/clipforge/internal/cache"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/engine"
	"github.com/clipforge/clipforge/internal/fgraph"
	"github.com/clipforge/clipforge/internal/project"
	"github.com/clipforge/clipforge/internal/timeline"
)

// ErrCancelled is returned when a pipeline run was cancelled; it is always
// distinct from failure and never retried automatically.
var ErrCancelled = errors.New("render cancelled")

// proxyPhaseWeight is the share of unified progress assigned to proxy
// generation when any proxy work exists. Proxy work is typically slower than
// the preview render, so the ratio is biased toward it.
const proxyPhaseWeight = 0.6

// Pipeline runs the user-visible multi-phase operations: ensure proxies,
// render the fast whole-timeline preview, export a range.
type Pipeline struct {
	runner      *engine.FFmpeg
	registry    *Registry
	repo        cache.Repository
	profiles    *config.Profiles
	proxyDir    string
	proxyHeight int
	logger      *slog.Logger
}

// NewPipeline wires a pipeline. repo may be nil when proxy bookkeeping is
// not persisted (tests).
func NewPipeline(runner *engine.FFmpeg, registry *Registry, repo cache.Repository, profiles *config.Profiles, proxyDir string, proxyHeight int, logger *slog.Logger) *Pipeline {
	if proxyHeight <= 0 {
		proxyHeight = config.DefaultProxyHeight
	}
	return &Pipeline{
		runner:      runner,
		registry:    registry,
		repo:        repo,
		profiles:    profiles,
		proxyDir:    proxyDir,
		proxyHeight: proxyHeight,
		logger:      logger,
	}
}

// progressSink makes an overall progress callback monotonically
// non-decreasing across phases.
type progressSink struct {
	mu   sync.Mutex
	last float64
	fn   func(float64)
}

func (s *progressSink) emit(pct float64) {
	if s.fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if pct < s.last {
		return
	}
	if pct > 100 {
		pct = 100
	}
	s.last = pct
	s.fn(pct)
}

// RenderPreview runs the unified full-preview pipeline: generate any missing
// proxies, then compile the whole timeline with the concatenation compositor
// and render it to outPath. onProgress receives a single overall percentage
// that never decreases across the two phases. Cancellation at any point
// kills the in-flight subprocess and returns ErrCancelled.
func (pl *Pipeline) RenderPreview(ctx context.Context, proj *project.Project, outPath string, onProgress func(float64)) error {
	sink := &progressSink{fn: onProgress}

	missing := pl.missingProxies(proj)

	// The whole progress range belongs to rendering when no proxy work
	// exists at all.
	proxyWeight := 0.0
	if len(missing) > 0 {
		proxyWeight = proxyPhaseWeight
	}

	if len(missing) > 0 {
		if err := os.MkdirAll(pl.proxyDir, 0755); err != nil {
			return fmt.Errorf("cannot create proxy dir: %w", err)
		}
		for i, m := range missing {
			done := float64(i)
			err := pl.generateProxy(ctx, m, func(p engine.Progress) {
				phase := (done + p.Percent/100) / float64(len(missing))
				sink.emit(phase * proxyWeight * 100)
			})
			if err != nil {
				return err
			}
			sink.emit((done + 1) / float64(len(missing)) * proxyWeight * 100)
		}
	}

	res, err := fgraph.CompileConcat(fgraph.Request{
		Timeline: &proj.Timeline,
		Media:    proj.MediaTable(),
		Settings: proj.Settings,
		Resolve:  NewProxyResolver(),
	})
	if err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		if pl.logger != nil {
			pl.logger.Warn("preview compile diagnostic", "detail", d.String())
		}
	}

	err = pl.run(ctx, "preview", engine.RenderSpec{
		Args:          engine.BuildRenderArgs(res, pl.profiles.Preview, outPath),
		TotalDuration: res.Window.Duration(),
		OnProgress: func(p engine.Progress) {
			sink.emit((proxyWeight + (1-proxyWeight)*p.Percent/100) * 100)
		},
	})
	if err != nil {
		return err
	}

	sink.emit(100)
	if pl.logger != nil {
		pl.logger.Info("preview rendered", "output", outPath)
	}
	return nil
}

// Export compiles the window with the overlay compositor and renders it with
// the export profile. Any compile diagnostic is fatal here, and an empty
// timeline fails fast without spawning the transcoder.
func (pl *Pipeline) Export(ctx context.Context, proj *project.Project, window timeline.Window, outPath string, onProgress func(float64)) error {
	if window.Duration() <= 0 {
		window = timeline.Window{Start: 0, End: proj.Timeline.Duration()}
	}

	res, err := fgraph.CompileOverlay(fgraph.Request{
		Timeline: &proj.Timeline,
		Media:    proj.MediaTable(),
		Window:   window,
		Settings: proj.Settings,
	})
	if err != nil {
		return err
	}
	if len(res.Inputs) == 0 {
		return fgraph.ErrNothingToRender
	}
	if len(res.Diagnostics) > 0 {
		msgs := make([]string, len(res.Diagnostics))
		for i, d := range res.Diagnostics {
			msgs[i] = d.String()
		}
		return fmt.Errorf("export compile failed: %s", strings.Join(msgs, "; "))
	}

	sink := &progressSink{fn: onProgress}
	err = pl.run(ctx, "export", engine.RenderSpec{
		Args:          engine.BuildRenderArgs(res, pl.profiles.Export, outPath),
		TotalDuration: window.Duration(),
		OnProgress: func(p engine.Progress) {
			sink.emit(p.Percent)
		},
	})
	if err != nil {
		return err
	}

	sink.emit(100)
	if pl.logger != nil {
		pl.logger.Info("export finished", "output", outPath)
	}
	return nil
}

// EnsureProxies generates a proxy for every referenced video media item that
// lacks one, reporting combined progress. Returns the number generated.
func (pl *Pipeline) EnsureProxies(ctx context.Context, proj *project.Project, onProgress func(float64)) (int, error) {
	sink := &progressSink{fn: onProgress}
	missing := pl.missingProxies(proj)
	if len(missing) == 0 {
		sink.emit(100)
		return 0, nil
	}

	if err := os.MkdirAll(pl.proxyDir, 0755); err != nil {
		return 0, fmt.Errorf("cannot create proxy dir: %w", err)
	}
	for i, m := range missing {
		done := float64(i)
		err := pl.generateProxy(ctx, m, func(p engine.Progress) {
			sink.emit((done + p.Percent/100) / float64(len(missing)) * 100)
		})
		if err != nil {
			return i, err
		}
		sink.emit((done + 1) / float64(len(missing)) * 100)
	}
	return len(missing), nil
}

// missingProxies returns video media referenced by enabled clips that lack a
// usable proxy on disk.
func (pl *Pipeline) missingProxies(proj *project.Project) []*timeline.MediaItem {
	table := proj.MediaTable()
	var missing []*timeline.MediaItem
	for _, id := range proj.Timeline.UsedMediaIDs() {
		m, ok := table[id]
		if !ok || m.Type != timeline.MediaVideo {
			continue
		}
		if m.ProxyPath != "" && fileExists(m.ProxyPath) {
			continue
		}
		missing = append(missing, m)
	}
	return missing
}

// generateProxy renders one scaled fast-encode proxy and records it.
func (pl *Pipeline) generateProxy(ctx context.Context, m *timeline.MediaItem, onProgress func(engine.Progress)) error {
	proxyPath := filepath.Join(pl.proxyDir, m.ID+"_proxy.mp4")

	if pl.logger != nil {
		pl.logger.Info("generating proxy", "media_id", m.ID, "output", proxyPath)
	}

	err := pl.run(ctx, "proxy:"+m.ID, engine.RenderSpec{
		Args:          engine.BuildProxyArgs(m.Path, proxyPath, pl.profiles.Proxy, pl.proxyHeight),
		TotalDuration: m.Duration,
		OnProgress:    onProgress,
	})
	if err != nil {
		return fmt.Errorf("proxy for media %s: %w", m.ID, err)
	}

	m.ProxyPath = proxyPath
	if pl.repo != nil {
		if err := pl.repo.SetProxy(ctx, m.ID, proxyPath); err != nil && pl.logger != nil {
			pl.logger.Warn("failed to persist proxy record", "media_id", m.ID, "error", err)
		}
	}
	return nil
}

// run executes one transcoder job through the registry so cancellation can
// find it, and maps the result onto the pipeline's error taxonomy.
func (pl *Pipeline) run(ctx context.Context, key string, spec engine.RenderSpec) error {
	proc, err := pl.runner.Start(ctx, spec)
	if err != nil {
		// Spawn-level failure: environment problem, no output assumed.
		return err
	}

	pl.registry.Add(key, proc)
	result := proc.Wait()
	pl.registry.Remove(key)

	switch result.Kind {
	case engine.ResultSuccess:
		return nil
	case engine.ResultCancelled:
		return ErrCancelled
	default:
		return fmt.Errorf("transcoder exited %d: %s", result.ExitCode, truncateDiag(result.StderrTail))
	}
}
