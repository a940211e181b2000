package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/db"
)

// SyncEntry represents a row in ingest.sync_log.
type SyncEntry struct {
	ID          int64          `json:"id"`
	Operation   string         `json:"operation"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	RowsSynced  int64          `json:"rows_synced"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// SyncResult holds the outcome of a run, passed to Complete().
type SyncResult struct {
	RowsSynced int64          `json:"rows_synced"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SyncLog provides read/write access to the ingest.sync_log table. Every
// detection sweep and reprocessing run is recorded here for audit.
type SyncLog struct {
	pool db.Pool
}

// NewSyncLog creates a new SyncLog backed by the given connection pool.
func NewSyncLog(pool db.Pool) *SyncLog {
	return &SyncLog{pool: pool}
}

// LastSuccess returns the started_at time of the most recent successful run
// of an operation. Returns nil if the operation has never succeeded.
func (s *SyncLog) LastSuccess(ctx context.Context, operation string) (*time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT started_at FROM ingest.sync_log
		 WHERE operation = $1 AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		operation,
	).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "synclog: last success for %s", operation)
	}
	return &t, nil
}

// Start records the beginning of a run and returns its ID.
func (s *SyncLog) Start(ctx context.Context, operation string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ingest.sync_log (operation, status, started_at)
		 VALUES ($1, 'running', now()) RETURNING id`,
		operation,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "synclog: start run for %s", operation)
	}
	return id, nil
}

// Complete marks a run as successfully completed.
func (s *SyncLog) Complete(ctx context.Context, syncID int64, result *SyncResult) error {
	var metaJSON []byte
	if result != nil && result.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(result.Metadata)
		if err != nil {
			return eris.Wrap(err, "synclog: marshal metadata")
		}
	}

	rowsSynced := int64(0)
	if result != nil {
		rowsSynced = result.RowsSynced
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE ingest.sync_log
		 SET status = 'complete', completed_at = now(), rows_synced = $1, metadata = $2
		 WHERE id = $3`,
		rowsSynced, metaJSON, syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "synclog: complete run %d", syncID)
	}
	return nil
}

// Fail marks a run as failed with an error message.
func (s *SyncLog) Fail(ctx context.Context, syncID int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE ingest.sync_log
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, syncID,
	)
	if err != nil {
		return eris.Wrapf(err, "synclog: fail run %d", syncID)
	}
	return nil
}

// ListAll returns all sync log entries ordered by most recent first.
func (s *SyncLog) ListAll(ctx context.Context) ([]SyncEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, operation, status, started_at, completed_at, rows_synced, error, metadata
		 FROM ingest.sync_log ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "synclog: list all")
	}
	defer rows.Close()

	var entries []SyncEntry
	for rows.Next() {
		var e SyncEntry
		var completedAt *time.Time
		var errStr *string
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Operation, &e.Status, &e.StartedAt, &completedAt, &e.RowsSynced, &errStr, &metaJSON); err != nil {
			return nil, eris.Wrap(err, "synclog: scan entry")
		}
		e.CompletedAt = completedAt
		if errStr != nil {
			e.Error = *errStr
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
