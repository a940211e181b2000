package watermark

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. Used for local and
// offline runs where Postgres is not available.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS watermarks (
	source_id       TEXT NOT NULL,
	partition_key   TEXT NOT NULL,
	cursor          TEXT NOT NULL DEFAULT '',
	probe_size      INTEGER,
	probe_modified  DATETIME,
	last_run_status TEXT NOT NULL DEFAULT 'success',
	last_error      TEXT,
	rows_processed  INTEGER NOT NULL DEFAULT 0,
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (source_id, partition_key)
);
`

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Get(ctx context.Context, sourceID, partitionKey string) (*Watermark, error) {
	var w Watermark
	var lastError *string
	err := s.db.QueryRowContext(ctx,
		`SELECT source_id, partition_key, cursor, probe_size, probe_modified,
		        last_run_status, last_error, rows_processed, updated_at
		 FROM watermarks WHERE source_id = ? AND partition_key = ?`,
		sourceID, partitionKey,
	).Scan(&w.SourceID, &w.PartitionKey, &w.Cursor, &w.ProbeSize, &w.ProbeModified,
		&w.LastRunStatus, &lastError, &w.RowsProcessed, &w.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get watermark %s/%s", sourceID, partitionKey)
	}
	if lastError != nil {
		w.LastError = *lastError
	}
	return &w, nil
}

func (s *SQLiteStore) Update(ctx context.Context, sourceID, partitionKey string, cursor Cursor, rowsProcessed int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watermarks
		   (source_id, partition_key, cursor, probe_size, probe_modified,
		    last_run_status, last_error, rows_processed, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'success', NULL, ?, ?)
		 ON CONFLICT (source_id, partition_key) DO UPDATE SET
		   cursor          = excluded.cursor,
		   probe_size      = excluded.probe_size,
		   probe_modified  = excluded.probe_modified,
		   last_run_status = 'success',
		   last_error      = NULL,
		   rows_processed  = excluded.rows_processed,
		   updated_at      = excluded.updated_at`,
		sourceID, partitionKey, cursor.Fingerprint, cursor.ProbeSize, cursor.ProbeModified,
		rowsProcessed, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update watermark %s/%s", sourceID, partitionKey)
	}
	return nil
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, sourceID, partitionKey, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watermarks
		   (source_id, partition_key, cursor, last_run_status, last_error, updated_at)
		 VALUES (?, ?, '', 'failed', ?, ?)
		 ON CONFLICT (source_id, partition_key) DO UPDATE SET
		   last_run_status = 'failed',
		   last_error      = excluded.last_error,
		   updated_at      = excluded.updated_at`,
		sourceID, partitionKey, errMsg, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark failed %s/%s", sourceID, partitionKey)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, sourceID string) ([]Watermark, error) {
	query := `SELECT source_id, partition_key, cursor, probe_size, probe_modified,
	                 last_run_status, last_error, rows_processed, updated_at
	          FROM watermarks`
	args := []any{}
	if sourceID != "" {
		query += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	query += ` ORDER BY source_id, partition_key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list watermarks")
	}
	defer rows.Close()

	var marks []Watermark
	for rows.Next() {
		var w Watermark
		var lastError *string
		if err := rows.Scan(&w.SourceID, &w.PartitionKey, &w.Cursor, &w.ProbeSize, &w.ProbeModified,
			&w.LastRunStatus, &lastError, &w.RowsProcessed, &w.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan watermark row")
		}
		if lastError != nil {
			w.LastError = *lastError
		}
		marks = append(marks, w)
	}
	return marks, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
