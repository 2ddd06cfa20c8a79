package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/iconidentify/ytgrabba/internal/domain"
	"github.com/iconidentify/ytgrabba/internal/repository"
)

func runHistory(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("history", stderr)
	limit := fs.Int("limit", 20, "Maximum records to show (0 for all)")
	status := fs.String("status", "", "Only show records with this status")
	url := fs.String("url", "", "Only show records for this URL")
	asJSON := fs.Bool("json", false, "Print records as JSON")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ytgrabba history [options]")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}
	if *limit < 0 {
		return fmt.Errorf("%w: -limit must not be negative", errUsage)
	}

	a, err := newApp(*configPath, stderr)
	if err != nil {
		return err
	}

	h, err := repository.OpenHistory(a.cfg.Storage.HistoryPath)
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	defer h.Close()

	records, err := h.List(ctx, repository.HistoryFilter{
		Status: domain.JobStatus(*status),
		URL:    *url,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if records == nil {
			records = []*domain.InvocationRecord{}
		}
		return enc.Encode(records)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tATTEMPTS\tDURATION\tURL\tRESULT")
	for _, r := range records {
		result := r.OutputPath
		if r.Status != domain.JobStatusSucceeded {
			result = r.Reason
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Status,
			len(r.Attempts),
			r.Duration().Round(100*time.Millisecond),
			r.URL,
			result,
		)
	}
	return tw.Flush()
}
