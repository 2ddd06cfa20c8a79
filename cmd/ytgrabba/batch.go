package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
	"github.com/iconidentify/ytgrabba/internal/worker"
)

func runBatch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("batch", stderr)
	workers := fs.Int("workers", 0, "Concurrent downloads (default: worker.count)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ytgrabba batch [options] FILE")
		fmt.Fprintln(stderr, "FILE lists one URL per line; blank lines and # comments are skipped. Use - for stdin.")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("%w: exactly one FILE is required", errUsage)
	}

	urls, err := readURLs(fs.Arg(0))
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("%w: no URLs in %s", errUsage, fs.Arg(0))
	}

	a, err := newApp(*configPath, stderr)
	if err != nil {
		return err
	}
	if _, err := a.locator.Locate(toolName(a.cfg.Tool)); err != nil {
		return err
	}
	engine, err := a.engine()
	if err != nil {
		return err
	}

	var history repository.HistoryRepository
	if h := a.openHistory(); h != nil {
		defer h.Close()
		history = h
	}

	jobRepo := repository.NewInMemoryJobRepository()
	svc := service.NewDownloadService(jobRepo, history, engine, a.cfg.Storage, a.logger)

	jobs := make([]*domain.Job, 0, len(urls))
	for _, u := range urls {
		job, err := svc.Submit(ctx, service.SubmitRequest{URL: u})
		if err != nil {
			return fmt.Errorf("submit %s: %w", u, err)
		}
		jobs = append(jobs, job)
	}

	count := *workers
	if count <= 0 {
		count = a.cfg.Worker.Count
	}
	pool := worker.NewPool(worker.Config{Workers: count, PollInterval: 100 * time.Millisecond}, jobRepo, svc, a.logger)
	pool.Start()

	waitErr := waitIdle(ctx, svc)
	if waitErr != nil {
		svc.CancelAll()
	}
	if err := pool.Stop(a.cfg.Server.ShutdownTimeout); err != nil {
		a.logger.Error("worker pool shutdown error", "error", err)
	}

	return reportBatch(ctx, svc, jobs, stdout, waitErr)
}

// waitIdle blocks until no job is queued or running.
func waitIdle(ctx context.Context, svc *service.DownloadService) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		n, err := svc.Pending(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", domain.ErrCancelled, context.Cause(ctx))
		case <-ticker.C:
		}
	}
}

func reportBatch(ctx context.Context, svc *service.DownloadService, jobs []*domain.Job, stdout io.Writer, waitErr error) error {
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tATTEMPTS\tURL\tRESULT")

	failed := 0
	var worst error
	for _, j := range jobs {
		job, err := svc.Get(context.WithoutCancel(ctx), j.ID)
		if err != nil {
			return err
		}
		result := job.OutputPath
		if job.Status != domain.JobStatusSucceeded {
			failed++
			result = job.LastError
			worst = worse(worst, job)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", job.Status, job.Attempts, job.Request.URL(), result)
	}
	tw.Flush()

	if waitErr != nil {
		return waitErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads did not succeed: %w", failed, len(jobs), worst)
	}
	return nil
}

// worse keeps whichever error maps to the higher exit code.
func worse(current error, job *domain.Job) error {
	var next error
	switch {
	case job.Status == domain.JobStatusGaveUp:
		next = domain.ErrGaveUp
	case job.Status == domain.JobStatusCancelled:
		next = domain.ErrCancelled
	case job.ErrKind.IsConfigError():
		next = domain.NewInvocationError(job.ErrKind, "download", errors.New(job.LastError))
	default:
		next = domain.ErrFatal
	}
	if current == nil || exitCode(next) > exitCode(current) {
		return next
	}
	return current
}

func readURLs(path string) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		defer f.Close()
		r = f
	}

	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return urls, nil
}
