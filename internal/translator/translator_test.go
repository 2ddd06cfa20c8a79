package translator

import (
	"errors"
	"testing"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

func history(events ...domain.OutputEvent) *History {
	h := &History{}
	for _, ev := range events {
		h.Observe(ev)
	}
	return h
}

func completed(path string) domain.OutputEvent {
	return domain.OutputEvent{Kind: domain.EventCompleted, Path: path}
}

func errorLine(msg string) domain.OutputEvent {
	return domain.OutputEvent{Kind: domain.EventError, Message: msg}
}

func warning(msg string) domain.OutputEvent {
	return domain.OutputEvent{Kind: domain.EventWarning, Message: msg}
}

func TestTranslate(t *testing.T) {
	tr := Default()

	tests := []struct {
		name      string
		exitCode  int
		history   *History
		streamErr error
		kind      domain.OutcomeKind
		reason    string
		path      string
		errKind   domain.ErrorKind
	}{
		{
			name:     "success uses last path",
			exitCode: 0,
			history:  history(completed("/tmp/out.f137.mp4"), completed("/tmp/out.mp4")),
			kind:     domain.OutcomeSuccess,
			path:     "/tmp/out.mp4",
		},
		{
			name:     "exit zero without completion is ambiguous",
			exitCode: 0,
			history:  history(domain.OutputEvent{Kind: domain.EventProgress, Progress: &domain.Progress{Percent: 100}}),
			kind:     domain.OutcomeFatal,
			reason:   domain.ReasonAmbiguousSuccess,
			errKind:  domain.KindFatal,
		},
		{
			name:     "transient error",
			exitCode: 1,
			history:  history(errorLine("Connection reset")),
			kind:     domain.OutcomeRetryable,
			reason:   "Connection reset",
			errKind:  domain.KindRetryable,
		},
		{
			name:     "permanent error",
			exitCode: 1,
			history:  history(errorLine("Video unavailable")),
			kind:     domain.OutcomeFatal,
			reason:   "Video unavailable",
			errKind:  domain.KindFatal,
		},
		{
			name:     "permanent wins over transient",
			exitCode: 1,
			history:  history(errorLine("HTTP Error 503: Service Unavailable"), errorLine("[youtube] abc: Private video")),
			kind:     domain.OutcomeFatal,
			reason:   "[youtube] abc: Private video",
		},
		{
			name:     "dns failure is transient",
			exitCode: 1,
			history:  history(errorLine("Unable to download webpage: <urlopen error [Errno -2] Name or service not known>")),
			kind:     domain.OutcomeRetryable,
			reason:   "Unable to download webpage: <urlopen error [Errno -2] Name or service not known>",
			errKind:  domain.KindRetryable,
		},
		{
			name:     "host not found is transient",
			exitCode: 1,
			history:  history(errorLine("unable to resolve: host not found")),
			kind:     domain.OutcomeRetryable,
			reason:   "unable to resolve: host not found",
		},
		{
			name:     "http 404 is permanent",
			exitCode: 1,
			history:  history(errorLine("Unable to download webpage: HTTP Error 404: Not Found")),
			kind:     domain.OutcomeFatal,
			reason:   "Unable to download webpage: HTTP Error 404: Not Found",
		},
		{
			name:     "missing format is permanent",
			exitCode: 1,
			history:  history(errorLine("[youtube] abc: Requested format is not available")),
			kind:     domain.OutcomeFatal,
			reason:   "[youtube] abc: Requested format is not available",
		},
		{
			name:     "unmatched error is fatal with first message",
			exitCode: 1,
			history:  history(errorLine("something odd"), errorLine("something else")),
			kind:     domain.OutcomeFatal,
			reason:   "something odd",
		},
		{
			name:     "no error events",
			exitCode: 2,
			history:  history(warning("slow")),
			kind:     domain.OutcomeFatal,
			reason:   domain.ReasonUnknownCause,
		},
		{
			name:      "stream error overrides everything",
			exitCode:  0,
			history:   history(completed("/tmp/out.mp4")),
			streamErr: errors.New("read stdout: broken"),
			kind:      domain.OutcomeFatal,
			reason:    "read stdout: broken",
			errKind:   domain.KindStreamRead,
		},
		{
			name:     "nil history",
			exitCode: 1,
			kind:     domain.OutcomeFatal,
			reason:   domain.ReasonUnknownCause,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tr.Translate(tt.exitCode, tt.history, tt.streamErr)
			if o.Kind != tt.kind {
				t.Fatalf("Kind = %q, want %q", o.Kind, tt.kind)
			}
			if o.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", o.Reason, tt.reason)
			}
			if o.OutputPath != tt.path {
				t.Errorf("OutputPath = %q, want %q", o.OutputPath, tt.path)
			}
			if tt.errKind != "" && o.ErrKind != tt.errKind {
				t.Errorf("ErrKind = %q, want %q", o.ErrKind, tt.errKind)
			}
			if o.ExitCode != tt.exitCode {
				t.Errorf("ExitCode = %d, want %d", o.ExitCode, tt.exitCode)
			}
		})
	}
}

func TestTranslate_CarriesWarnings(t *testing.T) {
	o := Default().Translate(0, history(warning("a"), completed("x"), warning("b")), nil)
	if len(o.Metadata.Warnings) != 2 || o.Metadata.Warnings[0] != "a" {
		t.Errorf("Warnings = %q", o.Metadata.Warnings)
	}
}

func TestNew_CustomRules(t *testing.T) {
	tr, err := New([]string{`flaky`}, []string{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if o := tr.Translate(1, history(errorLine("flaky mirror")), nil); !o.IsRetryable() {
		t.Errorf("custom transient rule not applied: %+v", o)
	}
	// Permanent list disabled, default transient list replaced.
	if o := tr.Translate(1, history(errorLine("Video unavailable")), nil); o.Kind != domain.OutcomeFatal || o.Reason != "Video unavailable" {
		t.Errorf("got %+v", o)
	}
	if o := tr.Translate(1, history(errorLine("Connection reset")), nil); o.IsRetryable() {
		t.Errorf("default transient rules should be replaced")
	}

	if _, err := New([]string{"("}, nil); err == nil {
		t.Error("expected compile error")
	}
}

func TestHistory(t *testing.T) {
	h := history(
		domain.OutputEvent{Kind: domain.EventProgress, Progress: &domain.Progress{Percent: 10}},
		domain.OutputEvent{Kind: domain.EventProgress, Progress: &domain.Progress{Percent: 55}},
		domain.OutputEvent{Kind: domain.EventUnrecognized, Line: "noise"},
		completed(""),
	)
	if p := h.LastProgress(); p == nil || p.Percent != 55 {
		t.Errorf("LastProgress() = %+v", p)
	}
	if _, ok := h.LastPath(); ok {
		t.Error("empty completed path should be ignored")
	}
	if h.Lines() != 4 {
		t.Errorf("Lines() = %d", h.Lines())
	}
}
