// Package fetcher downloads and probes remote source resources.
package fetcher

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when the remote resource does not exist (HTTP 404).
// Callers treat this as "no data available", which is distinct from
// "unchanged": a watermark must never advance on an absent resource.
var ErrNotFound = eris.New("fetcher: resource not found")

// Metadata holds the cheap probe results for a remote resource.
type Metadata struct {
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

// Fetcher defines the interface for probing and downloading remote data.
type Fetcher interface {
	// Head performs a HEAD request and returns size/last-modified/etag metadata.
	Head(ctx context.Context, url string) (Metadata, error)

	// Stream fetches the URL and returns the response body for streaming
	// consumption. The caller must close it.
	Stream(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
