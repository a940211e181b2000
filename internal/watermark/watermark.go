// Package watermark tracks the last successfully processed cursor for each
// (source, partition) pair and decides whether a remote resource has changed.
package watermark

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when no watermark exists for a (source, partition).
var ErrNotFound = eris.New("watermark: not found")

// Status records the outcome of the most recent run for a partition.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Watermark is the last-processed position for one source partition. The
// cursor only ever advances after the corresponding batch is durably written
// downstream; a failed run records its status here without touching the cursor.
type Watermark struct {
	SourceID      string     `json:"source_id"`
	PartitionKey  string     `json:"partition_key"`
	Cursor        string     `json:"cursor"`
	ProbeSize     *int64     `json:"probe_size,omitempty"`
	ProbeModified *time.Time `json:"probe_modified,omitempty"`
	LastRunStatus Status     `json:"last_run_status"`
	LastError     string     `json:"last_error,omitempty"`
	RowsProcessed int64      `json:"rows_processed"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Cursor is the position advanced to after a successful batch: a content
// fingerprint plus the cheap probe metadata observed alongside it.
type Cursor struct {
	Fingerprint   string     `json:"fingerprint"`
	ProbeSize     *int64     `json:"probe_size,omitempty"`
	ProbeModified *time.Time `json:"probe_modified,omitempty"`
}

// Store persists watermarks. The store is the sole writer of watermark rows;
// callers go through Update/MarkFailed rather than mutating rows directly.
type Store interface {
	// Get returns the watermark for a partition, or ErrNotFound.
	Get(ctx context.Context, sourceID, partitionKey string) (*Watermark, error)

	// Update atomically upserts the cursor after a successful batch.
	// Callers must only invoke this once the batch is durable downstream
	// (write-then-advance).
	Update(ctx context.Context, sourceID, partitionKey string, cursor Cursor, rowsProcessed int64) error

	// MarkFailed records a failed run without advancing the cursor.
	MarkFailed(ctx context.Context, sourceID, partitionKey, errMsg string) error

	// List returns all watermarks for a source, or all sources if sourceID is empty.
	List(ctx context.Context, sourceID string) ([]Watermark, error)

	Close() error
}
