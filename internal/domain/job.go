package domain

import (
	"errors"
	"time"
)

// JobID is a unique identifier for a job.
type JobID string

// String returns the string representation of the JobID.
func (id JobID) String() string {
	return string(id)
}

// JobStatus represents the current state of a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusGaveUp    JobStatus = "gave_up"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsFinished returns true for terminal statuses.
func (s JobStatus) IsFinished() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusGaveUp, JobStatusCancelled:
		return true
	}
	return false
}

// Job is a queued download request.
type Job struct {
	ID         JobID
	Request    DownloadRequest
	Status     JobStatus
	Attempts   int
	OutputPath string
	LastError  string
	ErrKind    ErrorKind
	Progress   *Progress
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt time.Time
}

// NewJob creates a new queued job for a request.
func NewJob(id JobID, req DownloadRequest) *Job {
	now := time.Now()
	return &Job{
		ID:        id,
		Request:   req,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkRunning updates the job status to running.
func (j *Job) MarkRunning() {
	j.Status = JobStatusRunning
	j.UpdatedAt = time.Now()
}

// MarkProgress records the latest progress update.
func (j *Job) MarkProgress(p Progress) {
	j.Progress = &p
	j.UpdatedAt = time.Now()
}

// MarkFinished records the engine result and maps it to a terminal status.
func (j *Job) MarkFinished(res *Result, err error) {
	now := time.Now()
	j.UpdatedAt = now
	j.FinishedAt = now

	if res != nil {
		j.Attempts = res.AttemptCount()
		j.OutputPath = res.Outcome.OutputPath
	}
	j.ErrKind = KindOf(err)

	switch {
	case err == nil:
		j.Status = JobStatusSucceeded
		j.LastError = ""
	case errors.Is(err, ErrCancelled):
		j.Status = JobStatusCancelled
		j.LastError = err.Error()
	case errors.Is(err, ErrGaveUp):
		j.Status = JobStatusGaveUp
		j.LastError = err.Error()
	default:
		j.Status = JobStatusFailed
		j.LastError = err.Error()
	}
}
