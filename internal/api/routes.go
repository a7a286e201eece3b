package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge/internal/cache"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/project"
	"github.com/clipforge/clipforge/internal/render"
	"github.com/clipforge/clipforge/internal/timeline"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.AuthToken, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/project", getProjectHandler(cfg))
		r.Put("/project", updateProjectHandler(cfg))
		r.Get("/chunks", chunksHandler(cfg))
		r.Post("/render/chunk", enqueueChunkHandler(cfg))
		r.Post("/render/sweep", sweepHandler(cfg))
		r.Post("/render/preview", renderPreviewHandler(cfg))
		r.Post("/render/export", exportHandler(cfg))
		r.Post("/render/cancel", cancelHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Get("/playback/chunk", chunkFileHandler(cfg))
		r.Get("/playback/preview", previewFileHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := "idle"
		var activeJob *JobResponse
		for _, j := range cfg.Tracker.List() {
			if j.Status == render.JobStatusRunning {
				state = j.Kind + "ing"
				resp := JobToResponse(&j)
				activeJob = &resp
				break
			}
		}
		if state == "idle" && cfg.Orchestrator.RunningCount() > 0 {
			state = "rendering"
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:       state,
			QueueLen:    cfg.Orchestrator.QueueLen(),
			JobsRunning: cfg.Orchestrator.RunningCount(),
			Chunks:      CountChunks(cfg.Cache.Chunks()),
			ActiveJob:   activeJob,
		})
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := cfg.Projects.Get()
		if p == nil {
			WriteError(w, http.StatusNotFound, "no project loaded", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, p)
	}
}

// updateProjectHandler replaces the project document. The chunk layout is
// rebuilt when the timeline duration moves across a chunk boundary and
// re-clamped when it moves within one; settings changes that alter the pixel
// contract invalidate every chunk; everything else is settled per chunk by
// the content-hash sweep.
func updateProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p project.Project
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid project body", "BAD_REQUEST")
			return
		}
		if err := p.Validate(); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		settingsChanged := cfg.Cache.UpdateSettings(p.Settings)

		duration := p.Timeline.Duration()
		rechunked := false
		if chunkCount(duration, cfg.Cache.ChunkSeconds()) != cfg.Cache.Count() {
			cfg.Cache.Initialize(duration)
			rechunked = true
		} else {
			// Same chunk count, possibly a new end: re-clamp the last chunk's
			// window instead of discarding every valid chunk.
			cfg.Cache.Resize(duration)
		}

		cfg.Projects.Set(&p)
		cfg.Orchestrator.SetProject(&p)
		enqueued := cfg.Orchestrator.Sweep()

		WriteJSON(w, http.StatusOK, ProjectUpdateResponse{
			Rechunked:       rechunked,
			SettingsChanged: settingsChanged,
			Enqueued:        enqueued,
		})
	}
}

func chunksHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chunks := cfg.Cache.Chunks()
		resp := ChunksResponse{
			ChunkSeconds:  cfg.Cache.ChunkSeconds(),
			TotalDuration: cfg.Cache.TotalDuration(),
			Chunks:        make([]ChunkResponse, len(chunks)),
		}
		for i, c := range chunks {
			resp.Chunks[i] = ChunkToResponse(c)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func enqueueChunkHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EnqueueChunkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if _, ok := cfg.Cache.Chunk(req.Index); !ok {
			WriteError(w, http.StatusNotFound, "chunk index out of range", "NOT_FOUND")
			return
		}
		cfg.Orchestrator.Enqueue(req.Index, req.Priority)
		w.WriteHeader(http.StatusAccepted)
	}
}

func sweepHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, SweepResponse{Enqueued: cfg.Orchestrator.Sweep()})
	}
}

func renderPreviewHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := cfg.Projects.Get()
		if p == nil {
			WriteError(w, http.StatusBadRequest, "no project loaded", "BAD_REQUEST")
			return
		}
		if cfg.Tracker.Running(render.JobKindPreview) {
			WriteError(w, http.StatusConflict, "a preview render is already running", "CONFLICT")
			return
		}

		var req RenderPreviewRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
		}
		outPath := req.Output
		if outPath == "" {
			outPath = cfg.PreviewPath
		}

		jobID := cfg.Tracker.Begin(render.JobKindPreview, outPath)
		go runPipelineJob(cfg, jobID, func(onProgress func(float64)) error {
			return cfg.Pipeline.RenderPreview(cfg.BaseCtx, p, outPath, onProgress)
		})

		WriteJSON(w, http.StatusAccepted, JobStartResponse{JobID: jobID})
	}
}

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := cfg.Projects.Get()
		if p == nil {
			WriteError(w, http.StatusBadRequest, "no project loaded", "BAD_REQUEST")
			return
		}
		if cfg.Tracker.Running(render.JobKindExport) {
			WriteError(w, http.StatusConflict, "an export is already running", "CONFLICT")
			return
		}

		var req ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Output == "" {
			WriteError(w, http.StatusBadRequest, "output is required", "BAD_REQUEST")
			return
		}
		if !filepath.IsAbs(req.Output) {
			WriteError(w, http.StatusBadRequest, "output must be an absolute path", "BAD_REQUEST")
			return
		}

		window := timeline.Window{Start: req.Start, End: req.End}
		jobID := cfg.Tracker.Begin(render.JobKindExport, req.Output)
		go runPipelineJob(cfg, jobID, func(onProgress func(float64)) error {
			return cfg.Pipeline.Export(cfg.BaseCtx, p, window, req.Output, onProgress)
		})

		WriteJSON(w, http.StatusAccepted, JobStartResponse{JobID: jobID})
	}
}

func cancelHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, CancelResponse{Stopped: cfg.Orchestrator.CancelAll()})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs := cfg.Tracker.List()
		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i := range jobs {
			resp.Jobs[i] = JobToResponse(&jobs[i])
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job := cfg.Tracker.Get(id)
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func chunkFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(r.URL.Query().Get("index"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "index is required", "BAD_REQUEST")
			return
		}
		chunk, ok := cfg.Cache.Chunk(index)
		if !ok {
			WriteError(w, http.StatusNotFound, "chunk index out of range", "NOT_FOUND")
			return
		}
		if chunk.Status != cache.StatusValid {
			WriteError(w, http.StatusConflict, "chunk is not rendered", "NOT_READY")
			return
		}
		if err := cfg.Playback.Serve(w, r, chunk.OutputPath); err != nil {
			cfg.Logger.Error("chunk playback error", "error", err, "chunk_index", index)
		}
	}
}

func previewFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Playback.Serve(w, r, cfg.PreviewPath); err != nil {
			cfg.Logger.Error("preview playback error", "error", err)
		}
	}
}

// runPipelineJob executes one pipeline operation and records its terminal
// state on the tracker.
func runPipelineJob(cfg ServerConfig, jobID string, run func(onProgress func(float64)) error) {
	err := run(func(pct float64) {
		cfg.Tracker.SetProgress(jobID, pct)
	})
	switch {
	case err == nil:
		cfg.Tracker.Finish(jobID, render.JobStatusDone, "")
	case errors.Is(err, render.ErrCancelled):
		// The pipeline wraps cancellation with phase context (proxy
		// generation in particular); it is still a cancellation, not a
		// failure.
		cfg.Tracker.Finish(jobID, render.JobStatusCancelled, "")
	default:
		cfg.Tracker.Finish(jobID, render.JobStatusFailed, err.Error())
	}
}

func chunkCount(duration, chunkSeconds float64) int {
	if duration <= 0 || chunkSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(duration / chunkSeconds))
}
