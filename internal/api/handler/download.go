package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// DownloadHandler handles download job HTTP requests.
type DownloadHandler struct {
	downloadSvc *service.DownloadService
	logger      *slog.Logger
}

// NewDownloadHandler creates a new download handler.
func NewDownloadHandler(downloadSvc *service.DownloadService, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		downloadSvc: downloadSvc,
		logger:      logger,
	}
}

// SubmitRequest is the JSON request body for a download submission.
type SubmitRequest struct {
	URL         string   `json:"url"`
	Destination string   `json:"destination,omitempty"`
	Flags       []string `json:"flags,omitempty"`
}

// ProgressResponse is the latest progress reported by the tool.
type ProgressResponse struct {
	Percent    float64 `json:"percent"`
	Total      string  `json:"total,omitempty"`
	Speed      string  `json:"speed,omitempty"`
	ETASeconds int64   `json:"eta_seconds,omitempty"`
}

// JobResponse represents a job in list/get responses.
type JobResponse struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Destination string            `json:"destination"`
	Flags       []string          `json:"flags,omitempty"`
	Status      string            `json:"status"`
	Attempts    int               `json:"attempts"`
	OutputPath  string            `json:"output_path,omitempty"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Progress    *ProgressResponse `json:"progress,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
}

// ListResponse contains a job list.
type ListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Total int           `json:"total"`
	Limit int           `json:"limit"`
}

// AttemptResponse summarises one attempt of a recorded invocation.
type AttemptResponse struct {
	Attempt    int       `json:"attempt"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	ExitCode   int       `json:"exit_code"`
	OutputPath string    `json:"output_path,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// InvocationResponse represents a history record.
type InvocationResponse struct {
	ID          string            `json:"id"`
	JobID       string            `json:"job_id,omitempty"`
	URL         string            `json:"url"`
	Destination string            `json:"destination"`
	Status      string            `json:"status"`
	OutputPath  string            `json:"output_path,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	ErrorKind   string            `json:"error_kind,omitempty"`
	Media       *domain.MediaInfo `json:"media,omitempty"`
	Attempts    []AttemptResponse `json:"attempts"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
}

// Submit handles POST /api/v1/downloads
func (h *DownloadHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.downloadSvc.Submit(r.Context(), service.SubmitRequest{
		URL:         req.URL,
		Destination: req.Destination,
		Flags:       req.Flags,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("submit failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to submit download")
		return
	}

	h.writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

// List handles GET /api/v1/downloads
func (h *DownloadHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	var status *domain.JobStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.JobStatus(s)
		if !validStatus(st) {
			h.writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		status = &st
	}

	jobs, err := h.downloadSvc.List(r.Context(), status, limit)
	if err != nil {
		h.logger.Error("list failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list downloads")
		return
	}

	resp := ListResponse{
		Jobs:  make([]JobResponse, 0, len(jobs)),
		Total: len(jobs),
		Limit: limit,
	}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/downloads/{jobID}
func (h *DownloadHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(chi.URLParam(r, "jobID"))

	job, err := h.downloadSvc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			h.writeError(w, http.StatusNotFound, "download not found")
			return
		}
		h.logger.Error("get failed", "error", err, "job_id", id)
		h.writeError(w, http.StatusInternalServerError, "failed to get download")
		return
	}

	h.writeJSON(w, http.StatusOK, toJobResponse(job))
}

// Cancel handles DELETE /api/v1/downloads/{jobID}
func (h *DownloadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(chi.URLParam(r, "jobID"))

	job, err := h.downloadSvc.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		h.writeError(w, http.StatusNotFound, "download not found")
	case errors.Is(err, domain.ErrJobFinished):
		h.writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "download already finished",
			"status": string(job.Status),
		})
	case err != nil:
		h.logger.Error("cancel failed", "error", err, "job_id", id)
		h.writeError(w, http.StatusInternalServerError, "failed to cancel download")
	default:
		h.writeJSON(w, http.StatusAccepted, toJobResponse(job))
	}
}

// History handles GET /api/v1/history
func (h *DownloadHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	filter := repository.HistoryFilter{
		Status: domain.JobStatus(r.URL.Query().Get("status")),
		URL:    r.URL.Query().Get("url"),
		Limit:  limit,
	}
	if filter.Status != "" && !validStatus(filter.Status) {
		h.writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	records, err := h.downloadSvc.History(r.Context(), filter)
	if err != nil {
		h.logger.Error("history failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	resp := make([]InvocationResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toInvocationResponse(rec))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func parseLimit(r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultListLimit, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, true
}

func validStatus(s domain.JobStatus) bool {
	return s == domain.JobStatusQueued || s == domain.JobStatusRunning || s.IsFinished()
}

func toJobResponse(j *domain.Job) JobResponse {
	resp := JobResponse{
		ID:          j.ID.String(),
		URL:         j.Request.URL(),
		Destination: j.Request.Destination(),
		Flags:       j.Request.Flags(),
		Status:      string(j.Status),
		Attempts:    j.Attempts,
		OutputPath:  j.OutputPath,
		Error:       j.LastError,
		ErrorKind:   string(j.ErrKind),
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	if j.Progress != nil {
		resp.Progress = &ProgressResponse{
			Percent:    j.Progress.Percent,
			Total:      j.Progress.Total,
			Speed:      j.Progress.Speed,
			ETASeconds: int64(j.Progress.ETA / time.Second),
		}
	}
	if !j.FinishedAt.IsZero() {
		finished := j.FinishedAt
		resp.FinishedAt = &finished
	}
	return resp
}

func toInvocationResponse(rec *domain.InvocationRecord) InvocationResponse {
	resp := InvocationResponse{
		ID:          rec.ID,
		JobID:       rec.JobID.String(),
		URL:         rec.URL,
		Destination: rec.Destination,
		Status:      string(rec.Status),
		OutputPath:  rec.OutputPath,
		Reason:      rec.Reason,
		ErrorKind:   string(rec.ErrKind),
		Media:       rec.Media,
		Attempts:    make([]AttemptResponse, 0, len(rec.Attempts)),
		StartedAt:   rec.StartedAt,
		FinishedAt:  rec.FinishedAt,
	}
	for _, a := range rec.Attempts {
		resp.Attempts = append(resp.Attempts, AttemptResponse{
			Attempt:    a.Attempt,
			Outcome:    string(a.Outcome.Kind),
			Reason:     a.Outcome.Reason,
			ExitCode:   a.Outcome.ExitCode,
			OutputPath: a.Outcome.OutputPath,
			StartedAt:  a.StartedAt,
			DurationMs: a.Duration.Milliseconds(),
		})
	}
	return resp
}

func (h *DownloadHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *DownloadHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
