package api

import (
	"time"

	"github.com/clipforge/clipforge/internal/cache"
	"github.com/clipforge/clipforge/internal/render"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State       string       `json:"state"`
	QueueLen    int          `json:"queue_len"`
	JobsRunning int          `json:"jobs_running"`
	Chunks      ChunkCounts  `json:"chunks"`
	ActiveJob   *JobResponse `json:"active_job,omitempty"`
}

type ChunkCounts struct {
	Missing   int `json:"missing"`
	Stale     int `json:"stale"`
	Rendering int `json:"rendering"`
	Valid     int `json:"valid"`
	Error     int `json:"error"`
}

type ChunkResponse struct {
	Index   int     `json:"index"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Status  string  `json:"status"`
	Error   string  `json:"error,omitempty"`
	Complex bool    `json:"complex"`
}

type ChunksResponse struct {
	ChunkSeconds  float64         `json:"chunk_seconds"`
	TotalDuration float64         `json:"total_duration"`
	Chunks        []ChunkResponse `json:"chunks"`
}

type ProjectUpdateResponse struct {
	Rechunked       bool `json:"rechunked"`
	SettingsChanged bool `json:"settings_changed"`
	Enqueued        int  `json:"enqueued"`
}

type RenderPreviewRequest struct {
	Output string `json:"output,omitempty"`
}

type ExportRequest struct {
	Output string  `json:"output"`
	Start  float64 `json:"start,omitempty"`
	End    float64 `json:"end,omitempty"`
}

type JobStartResponse struct {
	JobID string `json:"job_id"`
}

type EnqueueChunkRequest struct {
	Index    int `json:"index"`
	Priority int `json:"priority,omitempty"`
}

type SweepResponse struct {
	Enqueued int `json:"enqueued"`
}

type CancelResponse struct {
	Stopped int `json:"stopped"`
}

type JobResponse struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	Status     string  `json:"status"`
	Progress   float64 `json:"progress"`
	Error      string  `json:"error,omitempty"`
	OutputPath string  `json:"output_path,omitempty"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *render.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Kind:       j.Kind,
		Status:     j.Status,
		Progress:   j.Progress,
		Error:      j.Error,
		OutputPath: j.OutputPath,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}

func ChunkToResponse(c cache.Chunk) ChunkResponse {
	return ChunkResponse{
		Index:   c.Index,
		Start:   c.Start,
		End:     c.End,
		Status:  string(c.Status),
		Error:   c.ErrorMessage,
		Complex: c.Complex,
	}
}

func CountChunks(chunks []cache.Chunk) ChunkCounts {
	var counts ChunkCounts
	for _, c := range chunks {
		switch c.Status {
		case cache.StatusMissing:
			counts.Missing++
		case cache.StatusStale:
			counts.Stale++
		case cache.StatusRendering:
			counts.Rendering++
		case cache.StatusValid:
			counts.Valid++
		case cache.StatusError:
			counts.Error++
		}
	}
	return counts
}
