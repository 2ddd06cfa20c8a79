package domain

import "time"

// OutcomeKind classifies one invocation attempt.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeRetryable OutcomeKind = "retryable_failure"
	OutcomeFatal     OutcomeKind = "fatal_failure"
)

// Reasons used by the translator when no tool message explains the failure.
const (
	ReasonAmbiguousSuccess = "ambiguous success"
	ReasonUnknownCause     = "unknown cause"
)

// MediaInfo describes a downloaded media file as reported by the helper tool.
type MediaInfo struct {
	Duration   float64 `json:"duration_seconds"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	Bitrate    int64   `json:"bitrate,omitempty"`
	FileSize   int64   `json:"file_size"`
}

// Metadata is attached to an outcome.
type Metadata struct {
	Attempt  int           `json:"attempt"`
	Elapsed  time.Duration `json:"elapsed"`
	Warnings []string      `json:"warnings,omitempty"`
	Media    *MediaInfo    `json:"media,omitempty"`
}

// Outcome is the terminal value of a single attempt.
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	OutputPath string      `json:"output_path,omitempty"`
	Reason     string      `json:"reason,omitempty"`
	ExitCode   int         `json:"exit_code"`
	Metadata   Metadata    `json:"metadata"`

	// ErrKind refines failures (e.g. KindStreamRead); empty for success.
	ErrKind ErrorKind `json:"error_kind,omitempty"`
}

// Success creates a successful outcome.
func Success(path string, meta Metadata) Outcome {
	return Outcome{Kind: OutcomeSuccess, OutputPath: path, Metadata: meta}
}

// RetryableFailure creates a transient failure outcome.
func RetryableFailure(reason string, exitCode int) Outcome {
	return Outcome{Kind: OutcomeRetryable, Reason: reason, ExitCode: exitCode, ErrKind: KindRetryable}
}

// FatalFailure creates a permanent failure outcome.
func FatalFailure(reason string, exitCode int) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: reason, ExitCode: exitCode, ErrKind: KindFatal}
}

// IsSuccess returns true for a successful outcome.
func (o Outcome) IsSuccess() bool {
	return o.Kind == OutcomeSuccess
}

// IsRetryable returns true if re-running the request might succeed.
func (o Outcome) IsRetryable() bool {
	return o.Kind == OutcomeRetryable
}

// RetryPhase is a state of the retry controller.
type RetryPhase string

const (
	PhaseIdle       RetryPhase = "idle"
	PhaseAttempting RetryPhase = "attempting"
	PhaseWaiting    RetryPhase = "waiting"
	PhaseSucceeded  RetryPhase = "succeeded"
	PhaseGivenUp    RetryPhase = "given_up"
	PhaseCancelled  RetryPhase = "cancelled"
)

// IsTerminal returns true if no further transitions are possible.
func (p RetryPhase) IsTerminal() bool {
	return p == PhaseSucceeded || p == PhaseGivenUp || p == PhaseCancelled
}

// RetryState is the controller's bookkeeping between attempts.
type RetryState struct {
	Attempt    int
	LastReason string
	NextDelay  time.Duration
}

// AttemptRecord summarises one finished attempt.
type AttemptRecord struct {
	Attempt   int           `json:"attempt"`
	Outcome   Outcome       `json:"outcome"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Result is returned by the engine once no further attempts will be made.
type Result struct {
	Request  DownloadRequest
	Phase    RetryPhase
	Outcome  Outcome
	Attempts []AttemptRecord
}

// AttemptCount returns how many processes were spawned.
func (r *Result) AttemptCount() int {
	return len(r.Attempts)
}
