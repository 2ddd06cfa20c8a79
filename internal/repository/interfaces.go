package repository

import (
	"context"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// JobRepository manages the job queue.
type JobRepository interface {
	// Enqueue adds a job to the queue.
	Enqueue(ctx context.Context, job *domain.Job) error

	// Dequeue retrieves the next queued job (FIFO).
	Dequeue(ctx context.Context) (*domain.Job, error)

	// Update modifies job state.
	Update(ctx context.Context, job *domain.Job) error

	// Get retrieves a job by ID.
	Get(ctx context.Context, id domain.JobID) (*domain.Job, error)

	// List returns jobs newest first, optionally filtered by status.
	List(ctx context.Context, status *domain.JobStatus, limit int) ([]*domain.Job, error)

	// Stats returns queue statistics.
	Stats(ctx context.Context) (*QueueStats, error)
}

// QueueStats contains job queue statistics.
type QueueStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	GaveUp    int `json:"gave_up"`
	Cancelled int `json:"cancelled"`
}

// HistoryFilter narrows a history listing.
type HistoryFilter struct {
	Status domain.JobStatus
	URL    string
	Limit  int
}

// HistoryRepository persists finished invocations. Implementations must be
// safe for concurrent use.
type HistoryRepository interface {
	// Record stores an invocation with its attempts.
	Record(ctx context.Context, rec *domain.InvocationRecord) error

	// Get retrieves an invocation by ID.
	Get(ctx context.Context, id string) (*domain.InvocationRecord, error)

	// List returns invocations newest first.
	List(ctx context.Context, filter HistoryFilter) ([]*domain.InvocationRecord, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}
