package domain

import (
	"fmt"
	"strings"
)

// DownloadRequest describes one media download. It is immutable once
// created; use NewDownloadRequest to build one.
type DownloadRequest struct {
	url         string
	destination string
	flags       []string
}

// NewDownloadRequest creates a request. The flag slice is copied.
func NewDownloadRequest(url, destination string, flags ...string) DownloadRequest {
	return DownloadRequest{
		url:         strings.TrimSpace(url),
		destination: destination,
		flags:       append([]string(nil), flags...),
	}
}

// URL returns the target URL.
func (r DownloadRequest) URL() string {
	return r.url
}

// Destination returns the destination path or output template.
func (r DownloadRequest) Destination() string {
	return r.destination
}

// Flags returns a copy of the pass-through option flags, in order.
func (r DownloadRequest) Flags() []string {
	return append([]string(nil), r.flags...)
}

// Validate checks that the request can be handed to the external tool.
func (r DownloadRequest) Validate() error {
	if r.url == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	if strings.HasPrefix(r.url, "-") {
		return fmt.Errorf("%w: url must not start with '-'", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.destination) == "" {
		return fmt.Errorf("%w: destination is required", ErrInvalidRequest)
	}
	return nil
}

// String returns a short human-readable form of the request.
func (r DownloadRequest) String() string {
	return r.url + " -> " + r.destination
}
