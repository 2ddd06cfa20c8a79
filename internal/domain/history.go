package domain

import (
	"errors"
	"time"
)

// ErrRecordNotFound is returned when a history record does not exist.
var ErrRecordNotFound = errors.New("history record not found")

// InvocationRecord is the persisted summary of one engine call.
type InvocationRecord struct {
	ID          string          `json:"id"`
	JobID       JobID           `json:"job_id,omitempty"`
	URL         string          `json:"url"`
	Destination string          `json:"destination"`
	Flags       []string        `json:"flags"`
	Status      JobStatus       `json:"status"`
	OutputPath  string          `json:"output_path,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	ErrKind     ErrorKind       `json:"error_kind,omitempty"`
	Media       *MediaInfo      `json:"media,omitempty"`
	Attempts    []AttemptRecord `json:"attempts"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// NewInvocationRecord summarises an engine result. res may be nil when the
// engine failed before the first attempt.
func NewInvocationRecord(id string, jobID JobID, req DownloadRequest, res *Result, err error, started, finished time.Time) *InvocationRecord {
	rec := &InvocationRecord{
		ID:          id,
		JobID:       jobID,
		URL:         req.URL(),
		Destination: req.Destination(),
		Flags:       req.Flags(),
		StartedAt:   started,
		FinishedAt:  finished,
	}

	if res != nil {
		rec.Attempts = append([]AttemptRecord(nil), res.Attempts...)
		rec.OutputPath = res.Outcome.OutputPath
		rec.Reason = res.Outcome.Reason
		rec.Media = res.Outcome.Metadata.Media
	}

	// Same mapping as a job's terminal status.
	j := Job{}
	j.MarkFinished(res, err)
	rec.Status = j.Status

	if err != nil {
		rec.ErrKind = KindOf(err)
		if rec.Reason == "" {
			rec.Reason = err.Error()
		}
	}
	return rec
}

// Duration returns the wall time of the invocation.
func (r *InvocationRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
