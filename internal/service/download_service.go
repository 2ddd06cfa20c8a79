package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/downloader"
	"github.com/iconidentify/ytgrabba/internal/repository"
)

// DefaultNameTemplate names downloads submitted without a destination.
const DefaultNameTemplate = "%(title)s [%(id)s]"

// errCancelRequested is the cancellation cause for user-requested cancels.
var errCancelRequested = errors.New("cancel requested")

// DownloadService queues download requests and runs them through the
// engine. It implements worker.JobRunner.
type DownloadService struct {
	jobRepo    repository.JobRepository
	history    repository.HistoryRepository
	downloader downloader.Downloader
	cfg        config.StorageConfig
	logger     *slog.Logger

	mu      sync.Mutex
	running map[domain.JobID]context.CancelCauseFunc
}

// NewDownloadService creates a new download service. history may be nil.
func NewDownloadService(
	jobRepo repository.JobRepository,
	history repository.HistoryRepository,
	dl downloader.Downloader,
	storageCfg config.StorageConfig,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		jobRepo:    jobRepo,
		history:    history,
		downloader: dl,
		cfg:        storageCfg,
		logger:     logger,
		running:    make(map[domain.JobID]context.CancelCauseFunc),
	}
}

// SubmitRequest represents a download submission.
type SubmitRequest struct {
	URL         string
	Destination string
	Flags       []string
}

// Submit validates a request and queues it.
func (s *DownloadService) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	if err := checkFlags(req.Flags); err != nil {
		return nil, err
	}

	dest, err := s.resolveDestination(req.Destination)
	if err != nil {
		return nil, err
	}

	dr := domain.NewDownloadRequest(req.URL, dest, req.Flags...)
	if err := dr.Validate(); err != nil {
		return nil, err
	}

	job := domain.NewJob(domain.JobID("job_"+uuid.New().String()[:8]), dr)
	if err := s.jobRepo.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("download submitted",
		"job_id", job.ID,
		"url", dr.URL(),
		"destination", dest,
	)
	return job, nil
}

// resolveDestination places relative destinations under the download
// directory. Destinations may not leave it.
func (s *DownloadService) resolveDestination(dest string) (string, error) {
	base, err := filepath.Abs(s.cfg.DownloadDir)
	if err != nil {
		return "", fmt.Errorf("resolve download dir: %w", err)
	}

	dest = strings.TrimSpace(dest)
	if dest == "" {
		dest = DefaultNameTemplate
	}

	var full string
	if filepath.IsAbs(dest) {
		full = filepath.Clean(dest)
	} else {
		full = filepath.Join(base, dest)
	}

	rel, err := filepath.Rel(base, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: destination must be inside %s", domain.ErrInvalidRequest, base)
	}
	return full, nil
}

// Get returns a job by ID.
func (s *DownloadService) Get(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	return s.jobRepo.Get(ctx, id)
}

// List returns jobs newest first, optionally filtered by status.
func (s *DownloadService) List(ctx context.Context, status *domain.JobStatus, limit int) ([]*domain.Job, error) {
	return s.jobRepo.List(ctx, status, limit)
}

// Stats returns queue counters.
func (s *DownloadService) Stats(ctx context.Context) (*repository.QueueStats, error) {
	return s.jobRepo.Stats(ctx)
}

// Pending returns the number of jobs that are queued or running.
func (s *DownloadService) Pending(ctx context.Context) (int, error) {
	stats, err := s.jobRepo.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Queued + stats.Running, nil
}

// History lists recorded invocations. It returns nil when no history
// store is configured.
func (s *DownloadService) History(ctx context.Context, filter repository.HistoryFilter) ([]*domain.InvocationRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.List(ctx, filter)
}

// Cancel stops a running job or withdraws a queued one.
func (s *DownloadService) Cancel(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.jobRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsFinished() {
		return job, domain.ErrJobFinished
	}

	if cancel, ok := s.running[id]; ok {
		// RunJob records the terminal state once the engine returns.
		cancel(errCancelRequested)
		s.logger.Info("cancelling running job", "job_id", id)
		return job, nil
	}

	job.MarkFinished(nil, fmt.Errorf("%w: %w", domain.ErrCancelled, errCancelRequested))
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	s.logger.Info("cancelled queued job", "job_id", id)
	return job, nil
}

// RunJob runs one job to a terminal state and records it in the history.
func (s *DownloadService) RunJob(ctx context.Context, job *domain.Job) error {
	runCtx, current, err := s.begin(ctx, job.ID)
	if err != nil {
		return err
	}
	defer s.finish(job.ID)

	logger := s.logger.With("job_id", current.ID, "url", current.Request.URL())
	started := time.Now()

	sink := func(ev domain.OutputEvent) {
		if ev.Kind != domain.EventProgress || ev.Progress == nil {
			return
		}
		current.MarkProgress(*ev.Progress)
		if err := s.jobRepo.Update(runCtx, current); err != nil {
			logger.Debug("failed to store progress", "error", err)
		}
	}

	res, dlErr := s.downloader.Download(runCtx, current.Request, sink)
	finished := time.Now()

	// The run context may be cancelled; bookkeeping must still land.
	storeCtx := context.WithoutCancel(ctx)

	current.MarkFinished(res, dlErr)
	if err := s.jobRepo.Update(storeCtx, current); err != nil {
		logger.Error("failed to update job", "error", err)
	}

	if s.history != nil {
		rec := domain.NewInvocationRecord(uuid.New().String(), current.ID, current.Request, res, dlErr, started, finished)
		if err := s.history.Record(storeCtx, rec); err != nil {
			logger.Error("failed to record history", "error", err)
		}
	}

	return dlErr
}

// begin marks a job running and registers its cancel func. Jobs cancelled
// while still queued are not started.
func (s *DownloadService) begin(ctx context.Context, id domain.JobID) (context.Context, *domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.jobRepo.Get(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get job: %w", err)
	}
	if current.Status == domain.JobStatusCancelled {
		return nil, nil, fmt.Errorf("%w: cancelled before start", domain.ErrCancelled)
	}
	if current.Status.IsFinished() {
		return nil, nil, domain.ErrJobFinished
	}

	current.MarkRunning()
	if err := s.jobRepo.Update(ctx, current); err != nil {
		return nil, nil, fmt.Errorf("update job: %w", err)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	s.running[id] = cancel
	return runCtx, current, nil
}

func (s *DownloadService) finish(id domain.JobID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.running[id]; ok {
		cancel(nil)
		delete(s.running, id)
	}
}

// CancelAll cancels every running job.
func (s *DownloadService) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.running {
		cancel(errCancelRequested)
	}
}
