package downloader

import (
	"context"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// Downloader runs a download request to completion, retrying transient
// failures.
type Downloader interface {
	// Download blocks until the request succeeded, failed for good, or ctx
	// was cancelled. sink may be nil.
	Download(ctx context.Context, req domain.DownloadRequest, sink domain.EventSink) (*domain.Result, error)
}

// Prober inspects a finished download with the helper tool.
type Prober interface {
	Probe(ctx context.Context, path string) (*domain.MediaInfo, error)
}
