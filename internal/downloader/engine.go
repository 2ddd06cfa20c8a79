package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/launcher"
	"github.com/iconidentify/ytgrabba/internal/locator"
	"github.com/iconidentify/ytgrabba/internal/parser"
	"github.com/iconidentify/ytgrabba/internal/translator"
)

// DefaultToolName is the external downloader looked up when none is configured.
const DefaultToolName = "yt-dlp"

// EngineConfig configures an Engine.
type EngineConfig struct {
	ToolName string
	Retry    RetryConfig
	// ProbeTimeout bounds the post-download helper call.
	ProbeTimeout time.Duration
}

// Engine drives the external tool: locate, launch, parse, translate, and
// retry. It implements Downloader. An Engine is safe for concurrent use;
// every Download call owns its own process and retry state.
type Engine struct {
	cfg        EngineConfig
	locator    locator.Locator
	launcher   *launcher.Launcher
	parser     *parser.Parser
	translator *translator.Translator
	prober     Prober
	logger     *slog.Logger
}

// NewEngine creates an engine. Nil parser or translator use the defaults.
func NewEngine(cfg EngineConfig, loc locator.Locator, l *launcher.Launcher, p *parser.Parser, t *translator.Translator) *Engine {
	if cfg.ToolName == "" {
		cfg.ToolName = DefaultToolName
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}
	if p == nil {
		p = parser.New(nil)
	}
	if t == nil {
		t = translator.Default()
	}
	return &Engine{
		cfg:        cfg,
		locator:    loc,
		launcher:   l,
		parser:     p,
		translator: t,
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger for invocation reporting.
func (e *Engine) SetLogger(logger *slog.Logger) {
	e.logger = logger
}

// SetProber enables media probing of successful downloads.
func (e *Engine) SetProber(p Prober) {
	e.prober = p
}

// ToolName returns the configured external tool name.
func (e *Engine) ToolName() string {
	return e.cfg.ToolName
}

// Download implements Downloader. On success the error is nil and the
// result's Phase is Succeeded. Otherwise the error is an
// *domain.InvocationError whose kind tells configuration problems, fatal
// failures, exhausted retries and cancellation apart; the result is
// returned alongside whenever at least one attempt ran.
func (e *Engine) Download(ctx context.Context, req domain.DownloadRequest, sink domain.EventSink) (*domain.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	logger := e.logger.With("url", req.URL())

	path, err := e.locator.Locate(e.cfg.ToolName)
	if err != nil {
		return nil, withContext(err, req.URL(), 0)
	}

	ctrl := NewController(e.cfg.Retry)
	res := &domain.Result{Request: req, Phase: ctrl.Phase()}

	attempt, err := ctrl.Start()
	if err != nil {
		return nil, err
	}

	for {
		if ctx.Err() != nil {
			ctrl.Cancel()
			res.Phase = ctrl.Phase()
			return res, cancelled(ctx, req.URL(), attempt)
		}

		logger.Debug("starting attempt", "attempt", attempt, "tool", path)

		rec, err := e.attempt(ctx, path, req, attempt, sink)
		if err != nil {
			if errors.Is(err, domain.ErrCancelled) {
				ctrl.Cancel()
			}
			res.Phase = ctrl.Phase()
			return res, err
		}

		res.Attempts = append(res.Attempts, rec)
		res.Outcome = rec.Outcome

		phase, err := ctrl.Record(rec.Outcome)
		if err != nil {
			return res, err
		}
		res.Phase = phase

		switch phase {
		case domain.PhaseSucceeded:
			logger.Info("download complete",
				"path", rec.Outcome.OutputPath,
				"attempts", attempt,
				"elapsed", rec.Duration,
			)
			return res, nil

		case domain.PhaseGivenUp:
			return res, e.failure(logger, req, rec)

		case domain.PhaseWaiting:
			state := ctrl.State()
			logger.Warn("attempt failed, retrying",
				"attempt", attempt,
				"reason", state.LastReason,
				"delay", state.NextDelay,
			)
			next, err := ctrl.Wait(ctx)
			if err != nil {
				res.Phase = ctrl.Phase()
				return res, cancelled(ctx, req.URL(), attempt)
			}
			attempt = next
		}
	}
}

// attempt runs one process to completion. It returns an error only for
// spawn failures and cancellation; everything else is an outcome.
func (e *Engine) attempt(ctx context.Context, path string, req domain.DownloadRequest, n int, sink domain.EventSink) (domain.AttemptRecord, error) {
	started := time.Now()
	rec := domain.AttemptRecord{Attempt: n, StartedAt: started}

	proc, err := e.launcher.Launch(ctx, path, req)
	if err != nil {
		return rec, withContext(err, req.URL(), n)
	}

	stream := e.parser.Parse(ctx,
		parser.Source{Name: domain.StreamStdout, Reader: proc.Stdout()},
		parser.Source{Name: domain.StreamStderr, Reader: proc.Stderr()},
	)

	history := &translator.History{}
	for ev := range stream.Events() {
		history.Observe(ev)
		if sink != nil {
			sink(ev)
		}
	}

	streamErr := stream.Wait()
	if streamErr != nil && ctx.Err() == nil {
		// Output is unreadable; make sure the child cannot block on a full pipe.
		proc.Kill()
	}

	exitCode, waitErr := proc.Wait()
	rec.Duration = time.Since(started)

	if ctx.Err() != nil {
		return rec, cancelled(ctx, req.URL(), n)
	}
	if waitErr != nil && streamErr == nil {
		streamErr = waitErr
	}

	o := e.translator.Translate(exitCode, history, streamErr)
	o.Metadata.Attempt = n
	o.Metadata.Elapsed = rec.Duration

	if o.IsSuccess() && e.prober != nil {
		o.Metadata.Media = e.probe(ctx, o.OutputPath)
	}

	rec.Outcome = o
	return rec, nil
}

func (e *Engine) probe(ctx context.Context, path string) *domain.MediaInfo {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
	defer cancel()

	info, err := e.prober.Probe(ctx, path)
	if err != nil {
		e.logger.Warn("media probe failed", "path", path, "error", err)
		return nil
	}
	return info
}

func (e *Engine) failure(logger *slog.Logger, req domain.DownloadRequest, rec domain.AttemptRecord) error {
	o := rec.Outcome

	kind := o.ErrKind
	sentinel := domain.ErrFatal
	switch {
	case o.IsRetryable():
		kind = domain.KindGaveUp
		sentinel = domain.ErrGaveUp
	case kind == domain.KindStreamRead:
		sentinel = domain.ErrStreamRead
	default:
		kind = domain.KindFatal
	}

	logger.Error("download failed",
		"kind", kind,
		"reason", o.Reason,
		"exit_code", o.ExitCode,
		"attempts", rec.Attempt,
	)

	return &domain.InvocationError{
		Kind:    kind,
		Op:      "download",
		URL:     req.URL(),
		Attempt: rec.Attempt,
		Err:     fmt.Errorf("%w: %s", sentinel, o.Reason),
	}
}

func cancelled(ctx context.Context, url string, attempt int) error {
	return &domain.InvocationError{
		Kind:    domain.KindCancelled,
		Op:      "download",
		URL:     url,
		Attempt: attempt,
		Err:     fmt.Errorf("%w: %w", domain.ErrCancelled, context.Cause(ctx)),
	}
}

// withContext fills in URL and attempt on invocation errors from lower layers.
func withContext(err error, url string, attempt int) error {
	var ie *domain.InvocationError
	if errors.As(err, &ie) {
		cp := *ie
		cp.URL = url
		cp.Attempt = attempt
		return &cp
	}
	return err
}
