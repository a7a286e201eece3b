package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge/internal/api"
	"github.com/clipforge/clipforge/internal/cache"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/db"
	"github.com/clipforge/clipforge/internal/engine"
	"github.com/clipforge/clipforge/internal/logging"
	"github.com/clipforge/clipforge/internal/playback"
	"github.com/clipforge/clipforge/internal/project"
	"github.com/clipforge/clipforge/internal/render"
	"github.com/clipforge/clipforge/internal/timeline"
)

func main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "clipforge",
		Short:        "Local render engine for timeline preview and export",
		SilenceUsage: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	serveCmd := &cobra.Command{
		Use:   "serve [project.json]",
		Short: "Run the render engine HTTP server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectPath := ""
			if len(args) > 0 {
				projectPath = args[0]
			}
			return runServe(projectPath)
		},
	}

	var outPath string
	previewCmd := &cobra.Command{
		Use:   "preview <project.json>",
		Short: "Render a fast preview of the whole timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(args[0], outPath)
		},
	}
	previewCmd.Flags().StringVar(&outPath, "out", "", "Output file (default: preview.mp4 in the data dir)")

	var exportOut string
	var exportStart, exportEnd float64
	exportCmd := &cobra.Command{
		Use:   "export <project.json>",
		Short: "Export a timeline range at full quality",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(args[0], exportOut, exportStart, exportEnd)
		},
	}
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (required)")
	exportCmd.Flags().Float64Var(&exportStart, "start", 0, "Range start in seconds")
	exportCmd.Flags().Float64Var(&exportEnd, "end", 0, "Range end in seconds (0 = timeline end)")
	_ = exportCmd.MarkFlagRequired("out")

	proxiesCmd := &cobra.Command{
		Use:   "proxies <project.json>",
		Short: "Generate missing proxies for every media item the timeline uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxies(args[0])
		},
	}

	probeCmd := &cobra.Command{
		Use:   "probe <media-file>",
		Short: "Inspect a media file and print its stream properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(args[0])
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("clipforge %s (built %s, commit %s)\n", config.Version, config.BuildTime, config.GitCommit)
		},
	}

	root.AddCommand(serveCmd, previewCmd, exportCmd, proxiesCmd, probeCmd, versionCmd)

	if err := root.Execute(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

// app bundles the pieces every subcommand wires the same way.
type app struct {
	cfg      *config.EnvConfig
	logger   *slog.Logger
	database *db.DB
	repo     *cache.SQLiteRepository
	profiles *config.Profiles
	ffmpeg   *engine.FFmpeg
	prober   *engine.Prober
	registry *render.Registry
	pipeline *render.Pipeline
}

func newApp() (*app, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.CacheDir(), cfg.ProxyDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	profiles, err := loadProfiles(cfg, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	ffmpeg, err := engine.NewFFmpeg(cfg.FFmpegPath(), cfg.StopGrace(), logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	repo := cache.NewRepository(database.Conn())
	registry := render.NewRegistry()
	pipeline := render.NewPipeline(ffmpeg, registry, repo, profiles, cfg.ProxyDir(), cfg.ProxyHeight(), logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		database: database,
		repo:     repo,
		profiles: profiles,
		ffmpeg:   ffmpeg,
		prober:   engine.NewProber(cfg.FFprobePath()),
		registry: registry,
		pipeline: pipeline,
	}, nil
}

func (a *app) Close() {
	a.database.Close()
}

func loadProfiles(cfg config.Config, logger *slog.Logger) (*config.Profiles, error) {
	path := cfg.ProfilesPath()
	if path == "" {
		path = config.FindProfilesFile(cfg.DataDir())
	}
	if path == "" {
		return config.DefaultProfiles(), nil
	}
	profiles, err := config.LoadProfiles(path)
	if err != nil {
		return nil, err
	}
	logger.Info("encode profiles loaded", "path", path)
	return profiles, nil
}

// loadProject reads and validates a project document, then resolves recorded
// proxies that still exist on disk.
func (a *app) loadProject(ctx context.Context, path string) (*project.Project, error) {
	p, err := project.Load(path)
	if err != nil {
		return nil, err
	}

	proxies, err := a.repo.ListProxies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list proxies: %w", err)
	}
	for _, m := range p.Media {
		if proxyPath, ok := proxies[m.ID]; ok && fileExists(proxyPath) {
			m.ProxyPath = proxyPath
		}
		// Documents written by an editor that never probed the file carry no
		// duration; fill the gap from the file itself.
		if m.Duration == 0 && fileExists(m.Path) {
			info, err := a.prober.Probe(ctx, m.Path)
			if err != nil {
				a.logger.Warn("media probe failed", "media_id", m.ID, "error", err)
				continue
			}
			m.Duration = info.Duration
			if m.Width == 0 {
				m.Width = info.Width
				m.Height = info.Height
			}
			if m.FrameRate == 0 {
				m.FrameRate = info.FrameRate
			}
		}
	}
	return p, nil
}

func runServe(projectPath string) error {
	startTime := time.Now()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("starting clipforge engine",
		"version", config.Version,
		"data_dir", a.cfg.DataDir(),
		"port", a.cfg.Port(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cacheMgr := cache.NewManager(a.cfg.ChunkSeconds(), timeline.DefaultSettings(), a.logger)
	tracker := render.NewTracker()
	projects := api.NewProjectState()

	orchestrator := render.NewOrchestrator(cacheMgr, a.ffmpeg, a.registry, a.profiles,
		a.cfg.CacheDir(), a.cfg.MaxRenderJobs(), logging.WithComponent(a.logger, "orchestrator"))
	orchestrator.Start(ctx)

	if projectPath != "" {
		p, err := a.loadProject(ctx, projectPath)
		if err != nil {
			return err
		}
		cacheMgr.UpdateSettings(p.Settings)
		cacheMgr.Initialize(p.Timeline.Duration())

		meta, records, err := a.repo.LoadManifest(ctx, p.ID)
		if err != nil {
			a.logger.Warn("failed to load manifest", "error", err)
		} else {
			cacheMgr.Restore(meta, records, func(rec cache.ChunkRecord) string {
				return filepath.Join(a.cfg.CacheDir(), rec.FileName)
			}, fileExists)
		}

		projects.Set(p)
		orchestrator.SetProject(p)
		orchestrator.Sweep()
	}

	playbackSvc := playback.NewFileServer(logging.WithComponent(a.logger, "playback"),
		a.cfg.CacheDir(), a.cfg.DataDir())

	apiServer := api.NewServer(api.ServerConfig{
		Port:         a.cfg.Port(),
		AuthToken:    a.cfg.AuthToken(),
		Cache:        cacheMgr,
		Orchestrator: orchestrator,
		Pipeline:     a.pipeline,
		Tracker:      tracker,
		Projects:     projects,
		Playback:     playbackSvc,
		PreviewPath:  filepath.Join(a.cfg.DataDir(), "preview.mp4"),
		BaseCtx:      ctx,
		Logger:       a.logger,
		StartTime:    startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			a.logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	a.logger.Info("received shutdown signal", "signal", sig.String())

	orchestrator.CancelAll()
	cancel()

	if p := projects.Get(); p != nil {
		saveManifest(a, cacheMgr, p)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to shutdown HTTP server", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// saveManifest persists the valid chunks so a restart can reuse them.
func saveManifest(a *app, cacheMgr *cache.Manager, p *project.Project) {
	settings := cacheMgr.Settings()
	meta := &cache.ManifestMeta{
		ProjectID:     p.ID,
		ProjectHash:   p.Hash(),
		ModifiedAt:    time.Now(),
		ChunkSeconds:  cacheMgr.ChunkSeconds(),
		TotalDuration: cacheMgr.TotalDuration(),
		Width:         settings.Width,
		Height:        settings.Height,
		FrameRate:     settings.FrameRate,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.repo.SaveManifest(ctx, meta, cacheMgr.Snapshot()); err != nil {
		a.logger.Error("failed to save manifest", "error", err)
	}
}

func runPreview(projectPath, out string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	p, err := a.loadProject(ctx, projectPath)
	if err != nil {
		return err
	}
	if out == "" {
		out = filepath.Join(a.cfg.DataDir(), "preview.mp4")
	}

	if err := a.pipeline.RenderPreview(ctx, p, out, printProgress("preview")); err != nil {
		fmt.Println()
		return err
	}
	fmt.Printf("\npreview written to %s\n", out)
	return nil
}

func runExport(projectPath, out string, start, end float64) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	p, err := a.loadProject(ctx, projectPath)
	if err != nil {
		return err
	}
	absOut, err := filepath.Abs(out)
	if err != nil {
		return err
	}

	window := timeline.Window{Start: start, End: end}
	if err := a.pipeline.Export(ctx, p, window, absOut, printProgress("export")); err != nil {
		fmt.Println()
		return err
	}
	fmt.Printf("\nexported to %s\n", absOut)
	return nil
}

func runProxies(projectPath string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	p, err := a.loadProject(ctx, projectPath)
	if err != nil {
		return err
	}

	n, err := a.pipeline.EnsureProxies(ctx, p, printProgress("proxies"))
	if err != nil {
		fmt.Println()
		return err
	}
	fmt.Printf("\n%d proxies generated\n", n)
	return nil
}

func runProbe(path string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		return err
	}

	info, err := engine.NewProber(cfg.FFprobePath()).Probe(ctx, path)
	if err != nil {
		return err
	}

	fmt.Printf("duration: %.3fs\n", info.Duration)
	if info.HasVideo {
		fmt.Printf("video:    %s %dx%d @ %.3f fps\n", info.VideoCodec, info.Width, info.Height, info.FrameRate)
	}
	if info.HasAudio {
		fmt.Printf("audio:    %s\n", info.AudioCodec)
	}
	return nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printProgress(label string) func(float64) {
	return func(pct float64) {
		fmt.Printf("\r%s %5.1f%%", label, pct)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
