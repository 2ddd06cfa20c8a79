package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/service"
)

// getResult is printed by get -json.
type getResult struct {
	URL        string            `json:"url"`
	Status     string            `json:"status"`
	OutputPath string            `json:"output_path,omitempty"`
	Attempts   int               `json:"attempts"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  string            `json:"error_kind,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Media      *domain.MediaInfo `json:"media,omitempty"`
	Elapsed    string            `json:"elapsed"`
}

func runGet(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("get", stderr)
	output := fs.String("o", "", "Destination path or output template (default: download dir)")
	quiet := fs.Bool("q", false, "Do not draw a progress line")
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ytgrabba get [options] URL [-- tool flags...]")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("%w: URL is required", errUsage)
	}
	url := fs.Arg(0)
	flags := fs.Args()[1:]
	if len(flags) > 0 && flags[0] == "--" {
		flags = flags[1:]
	}

	a, err := newApp(*configPath, stderr)
	if err != nil {
		return err
	}

	dest := *output
	if dest == "" {
		dest = filepath.Join(a.cfg.Storage.DownloadDir, service.DefaultNameTemplate)
	}
	req := domain.NewDownloadRequest(url, dest, flags...)

	engine, err := a.engine()
	if err != nil {
		return err
	}

	history := a.openHistory()
	if history != nil {
		defer history.Close()
	}

	view := newProgressView(stderr, a.logger, *quiet)
	started := time.Now()
	res, dlErr := engine.Download(ctx, req, view.Sink())
	view.Done()
	finished := time.Now()

	rec := domain.NewInvocationRecord(uuid.New().String(), "", req, res, dlErr, started, finished)
	if history != nil {
		if err := history.Record(context.WithoutCancel(ctx), rec); err != nil {
			a.logger.Warn("failed to record history", "error", err)
		}
	}

	if *asJSON {
		out := getResult{
			URL:       req.URL(),
			Status:    string(rec.Status),
			ErrorKind: string(rec.ErrKind),
			Elapsed:   rec.Duration().Round(time.Millisecond).String(),
		}
		if res != nil {
			out.OutputPath = res.Outcome.OutputPath
			out.Attempts = res.AttemptCount()
			out.Warnings = res.Outcome.Metadata.Warnings
			out.Media = res.Outcome.Metadata.Media
		}
		if dlErr != nil {
			out.Error = dlErr.Error()
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
		return dlErr
	}

	if dlErr != nil {
		return dlErr
	}
	fmt.Fprintln(stdout, res.Outcome.OutputPath)
	return nil
}
