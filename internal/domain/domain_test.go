package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// =============================================================================
// DownloadRequest Tests
// =============================================================================

func TestNewDownloadRequest_CopiesFlags(t *testing.T) {
	flags := []string{"-f", "best"}
	req := NewDownloadRequest("https://example.com/video", "/tmp/out", flags...)

	flags[1] = "worst"
	if got := req.Flags(); got[1] != "best" {
		t.Errorf("request flags changed through caller slice: %v", got)
	}

	got := req.Flags()
	got[0] = "--mutated"
	if again := req.Flags(); again[0] != "-f" {
		t.Errorf("request flags changed through accessor slice: %v", again)
	}
}

func TestDownloadRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     DownloadRequest
		wantErr bool
	}{
		{"valid", NewDownloadRequest("https://example.com/video", "/tmp/out"), false},
		{"empty url", NewDownloadRequest("", "/tmp/out"), true},
		{"whitespace url", NewDownloadRequest("   ", "/tmp/out"), true},
		{"option-like url", NewDownloadRequest("--exec=rm", "/tmp/out"), true},
		{"empty destination", NewDownloadRequest("https://example.com/video", " "), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestInvocationError_Is(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want error
	}{
		{KindLocatorNotFound, ErrExecutableNotFound},
		{KindSpawn, ErrSpawn},
		{KindStreamRead, ErrStreamRead},
		{KindRetryable, ErrRetryable},
		{KindFatal, ErrFatal},
		{KindGaveUp, ErrGaveUp},
		{KindCancelled, ErrCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewInvocationError(tt.kind, "download", errors.New("boom")))
			if !errors.Is(err, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.want)
			}
			if KindOf(err) != tt.kind {
				t.Errorf("KindOf() = %q, want %q", KindOf(err), tt.kind)
			}
		})
	}
}

func TestInvocationError_UnwrapsCause(t *testing.T) {
	err := NewInvocationError(KindCancelled, "wait", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Error("cause should be reachable through Unwrap")
	}
	if errors.Is(err, ErrFatal) {
		t.Error("cancelled error must not match ErrFatal")
	}
}

func TestInvocationError_Error(t *testing.T) {
	err := &InvocationError{
		Kind:    KindFatal,
		Op:      "download",
		URL:     "https://example.com/video",
		Attempt: 2,
		Err:     errors.New("Video unavailable"),
	}
	want := "download [https://example.com/video] attempt 2: Video unavailable"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := &InvocationError{Kind: KindGaveUp, Op: "download"}
	if got := bare.Error(); got != "download: gave up after retries" {
		t.Errorf("Error() = %q", got)
	}
}

func TestErrorKind_IsConfigError(t *testing.T) {
	if !KindLocatorNotFound.IsConfigError() || !KindSpawn.IsConfigError() {
		t.Error("locator and spawn errors are configuration errors")
	}
	if KindFatal.IsConfigError() || KindGaveUp.IsConfigError() {
		t.Error("download failures are not configuration errors")
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

// =============================================================================
// Outcome / Job Tests
// =============================================================================

func TestOutcomeConstructors(t *testing.T) {
	s := Success("/tmp/out.mp4", Metadata{Attempt: 1})
	if !s.IsSuccess() || s.OutputPath != "/tmp/out.mp4" || s.ErrKind != "" {
		t.Errorf("unexpected success outcome: %+v", s)
	}

	r := RetryableFailure("Connection reset", 1)
	if !r.IsRetryable() || r.ErrKind != KindRetryable || r.ExitCode != 1 {
		t.Errorf("unexpected retryable outcome: %+v", r)
	}

	f := FatalFailure("Video unavailable", 1)
	if f.IsRetryable() || f.IsSuccess() || f.ErrKind != KindFatal {
		t.Errorf("unexpected fatal outcome: %+v", f)
	}
}

func TestRetryPhase_IsTerminal(t *testing.T) {
	terminal := map[RetryPhase]bool{
		PhaseIdle:       false,
		PhaseAttempting: false,
		PhaseWaiting:    false,
		PhaseSucceeded:  true,
		PhaseGivenUp:    true,
		PhaseCancelled:  true,
	}
	for phase, want := range terminal {
		if got := phase.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", phase, got, want)
		}
	}
}

func TestJob_MarkFinished(t *testing.T) {
	req := NewDownloadRequest("https://example.com/video", "/tmp/out")
	res := &Result{
		Request:  req,
		Phase:    PhaseSucceeded,
		Outcome:  Success("/tmp/out.mp4", Metadata{}),
		Attempts: []AttemptRecord{{Attempt: 1}, {Attempt: 2}},
	}

	tests := []struct {
		name     string
		err      error
		want     JobStatus
		wantKind ErrorKind
	}{
		{"success", nil, JobStatusSucceeded, ""},
		{"cancelled", NewInvocationError(KindCancelled, "download", context.Canceled), JobStatusCancelled, KindCancelled},
		{"gave up", NewInvocationError(KindGaveUp, "download", nil), JobStatusGaveUp, KindGaveUp},
		{"fatal", NewInvocationError(KindFatal, "download", nil), JobStatusFailed, KindFatal},
		{"locator", NewInvocationError(KindLocatorNotFound, "locate", nil), JobStatusFailed, KindLocatorNotFound},
		{"spawn", NewInvocationError(KindSpawn, "spawn", nil), JobStatusFailed, KindSpawn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob("job-1", req)
			job.MarkRunning()
			job.MarkFinished(res, tt.err)

			if job.Status != tt.want {
				t.Errorf("Status = %q, want %q", job.Status, tt.want)
			}
			if job.ErrKind != tt.wantKind {
				t.Errorf("ErrKind = %q, want %q", job.ErrKind, tt.wantKind)
			}
			if !job.Status.IsFinished() {
				t.Error("status should be terminal")
			}
			if job.Attempts != 2 {
				t.Errorf("Attempts = %d, want 2", job.Attempts)
			}
			if job.FinishedAt.IsZero() {
				t.Error("FinishedAt should be set")
			}
		})
	}
}

func TestJobStatus_IsFinished(t *testing.T) {
	if JobStatusQueued.IsFinished() || JobStatusRunning.IsFinished() {
		t.Error("queued and running are not terminal")
	}
}
