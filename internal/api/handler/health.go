package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/iconidentify/ytgrabba/internal/repository"
)

var startTime = time.Now()

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	jobRepo     repository.JobRepository
	history     Pinger
	downloadDir string
}

// NewHealthHandler creates a new health handler. history may be nil.
func NewHealthHandler(jobRepo repository.JobRepository, history Pinger, downloadDir string) *HealthHandler {
	return &HealthHandler{
		jobRepo:     jobRepo,
		history:     history,
		downloadDir: downloadDir,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
	Queue     *repository.QueueStats `json:"queue,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.jobRepo.Stats(ctx)
	if err == nil && h.history != nil {
		if perr := h.history.Ping(ctx); perr != nil {
			err = fmt.Errorf("history: %w", perr)
		}
	}
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Error:     err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Queue:     stats,
	})
}

// SystemStats contains system resource statistics.
type SystemStats struct {
	Uptime         int64                  `json:"uptime_seconds"`
	UptimeHuman    string                 `json:"uptime_human"`
	MemAllocMB     int64                  `json:"mem_alloc_mb"`
	MemSysMB       int64                  `json:"mem_sys_mb"`
	MemHeapMB      int64                  `json:"mem_heap_mb"`
	NumGoroutines  int                    `json:"num_goroutines"`
	NumCPU         int                    `json:"num_cpu"`
	CPUPct         float64                `json:"cpu_pct"`
	DiskUsedBytes  int64                  `json:"disk_used_bytes"`
	DiskFreeBytes  int64                  `json:"disk_free_bytes"`
	DiskTotalBytes int64                  `json:"disk_total_bytes"`
	DiskUsedPct    float64                `json:"disk_used_pct"`
	DownloadDir    string                 `json:"download_dir"`
	Queue          *repository.QueueStats `json:"queue,omitempty"`
}

// Stats handles GET /api/v1/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	stats := SystemStats{
		Uptime:        int64(uptime.Seconds()),
		UptimeHuman:   formatUptime(uptime),
		MemAllocMB:    int64(m.Alloc / 1024 / 1024),
		MemSysMB:      int64(m.Sys / 1024 / 1024),
		MemHeapMB:     int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		CPUPct:        getCPUUsage(),
		DownloadDir:   h.downloadDir,
	}
	stats.DiskTotalBytes, stats.DiskFreeBytes, stats.DiskUsedBytes, stats.DiskUsedPct = getDiskStats(h.downloadDir)

	if q, err := h.jobRepo.Stats(r.Context()); err == nil {
		stats.Queue = q
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(stats)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
