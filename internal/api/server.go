// Package api exposes the render engine to the editor UI over a local HTTP
// surface: project updates, chunk status, preview and export jobs, and
// rendered-file playback.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/clipforge/clipforge/internal/cache"
	"github.com/clipforge/clipforge/internal/playback"
	"github.com/clipforge/clipforge/internal/project"
	"github.com/clipforge/clipforge/internal/render"
)

// ProjectState holds the current project document shared between the API
// and the background render machinery.
type ProjectState struct {
	mu   sync.Mutex
	proj *project.Project
}

func NewProjectState() *ProjectState {
	return &ProjectState{}
}

func (s *ProjectState) Get() *project.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proj
}

func (s *ProjectState) Set(p *project.Project) {
	s.mu.Lock()
	s.proj = p
	s.mu.Unlock()
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port         int
	AuthToken    string
	Cache        *cache.Manager
	Orchestrator *render.Orchestrator
	Pipeline     *render.Pipeline
	Tracker      *render.Tracker
	Projects     *ProjectState
	Playback     playback.Service
	PreviewPath  string
	BaseCtx      context.Context
	Logger       *slog.Logger
	StartTime    time.Time
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.BaseCtx == nil {
		cfg.BaseCtx = context.Background()
	}
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
