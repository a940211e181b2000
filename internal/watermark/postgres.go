package watermark

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/db"
)

// PostgresStore implements Store using the shared pgx pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore over an existing pool. The pool is
// owned by the caller unless closeFn is provided.
func NewPostgres(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: closeFn}
}

func (s *PostgresStore) Get(ctx context.Context, sourceID, partitionKey string) (*Watermark, error) {
	var w Watermark
	var lastError *string
	err := s.pool.QueryRow(ctx,
		`SELECT source_id, partition_key, cursor, probe_size, probe_modified,
		        last_run_status, last_error, rows_processed, updated_at
		 FROM ingest.watermarks
		 WHERE source_id = $1 AND partition_key = $2`,
		sourceID, partitionKey,
	).Scan(&w.SourceID, &w.PartitionKey, &w.Cursor, &w.ProbeSize, &w.ProbeModified,
		&w.LastRunStatus, &lastError, &w.RowsProcessed, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "watermark: get %s/%s", sourceID, partitionKey)
	}
	if lastError != nil {
		w.LastError = *lastError
	}
	return &w, nil
}

func (s *PostgresStore) Update(ctx context.Context, sourceID, partitionKey string, cursor Cursor, rowsProcessed int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest.watermarks
		   (source_id, partition_key, cursor, probe_size, probe_modified,
		    last_run_status, last_error, rows_processed, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 'success', NULL, $6, now())
		 ON CONFLICT (source_id, partition_key) DO UPDATE SET
		   cursor          = EXCLUDED.cursor,
		   probe_size      = EXCLUDED.probe_size,
		   probe_modified  = EXCLUDED.probe_modified,
		   last_run_status = 'success',
		   last_error      = NULL,
		   rows_processed  = EXCLUDED.rows_processed,
		   updated_at      = now()`,
		sourceID, partitionKey, cursor.Fingerprint, cursor.ProbeSize, cursor.ProbeModified, rowsProcessed,
	)
	if err != nil {
		return eris.Wrapf(err, "watermark: update %s/%s", sourceID, partitionKey)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, sourceID, partitionKey, errMsg string) error {
	// On conflict the cursor stays untouched: a failed run never advances
	// or rewinds the last good position.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest.watermarks
		   (source_id, partition_key, cursor, last_run_status, last_error, updated_at)
		 VALUES ($1, $2, '', 'failed', $3, now())
		 ON CONFLICT (source_id, partition_key) DO UPDATE SET
		   last_run_status = 'failed',
		   last_error      = EXCLUDED.last_error,
		   updated_at      = now()`,
		sourceID, partitionKey, errMsg,
	)
	if err != nil {
		return eris.Wrapf(err, "watermark: mark failed %s/%s", sourceID, partitionKey)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, sourceID string) ([]Watermark, error) {
	query := `SELECT source_id, partition_key, cursor, probe_size, probe_modified,
	                 last_run_status, last_error, rows_processed, updated_at
	          FROM ingest.watermarks`
	args := []any{}
	if sourceID != "" {
		query += ` WHERE source_id = $1`
		args = append(args, sourceID)
	}
	query += ` ORDER BY source_id, partition_key`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "watermark: list")
	}
	defer rows.Close()

	var marks []Watermark
	for rows.Next() {
		var w Watermark
		var lastError *string
		if err := rows.Scan(&w.SourceID, &w.PartitionKey, &w.Cursor, &w.ProbeSize, &w.ProbeModified,
			&w.LastRunStatus, &lastError, &w.RowsProcessed, &w.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "watermark: scan row")
		}
		if lastError != nil {
			w.LastError = *lastError
		}
		marks = append(marks, w)
	}
	return marks, rows.Err()
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
