package watermark

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgres(mock, nil), mock
}

var watermarkCols = []string{
	"source_id", "partition_key", "cursor", "probe_size", "probe_modified",
	"last_run_status", "last_error", "rows_processed", "updated_at",
}

func TestPostgresGet_Found(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	size := int64(1000)

	mock.ExpectQuery("SELECT source_id, partition_key").
		WithArgs("sec_index", "2024").
		WillReturnRows(pgxmock.NewRows(watermarkCols).
			AddRow("sec_index", "2024", "abc", &size, &now, "success", nil, int64(50), now))

	w, err := store.Get(context.Background(), "sec_index", "2024")
	require.NoError(t, err)
	assert.Equal(t, "abc", w.Cursor)
	assert.Equal(t, StatusSuccess, w.LastRunStatus)
	assert.Equal(t, int64(50), w.RowsProcessed)
	require.NotNil(t, w.ProbeSize)
	assert.Equal(t, int64(1000), *w.ProbeSize)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT source_id, partition_key").
		WithArgs("sec_index", "2099").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Get(context.Background(), "sec_index", "2099")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresUpdate_Upserts(t *testing.T) {
	store, mock := newMockStore(t)
	size := int64(1000)

	mock.ExpectExec("INSERT INTO ingest.watermarks").
		WithArgs("sec_index", "2024", "abc", &size, (*time.Time)(nil), int64(50)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Update(context.Background(), "sec_index", "2024",
		Cursor{Fingerprint: "abc", ProbeSize: &size}, 50)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMarkFailed_DoesNotTouchCursor(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO ingest.watermarks").
		WithArgs("sec_index", "2024", "connection refused").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.MarkFailed(context.Background(), "sec_index", "2024", "connection refused")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresList_BySource(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT source_id, partition_key").
		WithArgs("sec_index").
		WillReturnRows(pgxmock.NewRows(watermarkCols).
			AddRow("sec_index", "2023", "aaa", (*int64)(nil), (*time.Time)(nil), "success", nil, int64(10), now).
			AddRow("sec_index", "2024", "bbb", (*int64)(nil), (*time.Time)(nil), "failed", strPtr("boom"), int64(0), now))

	marks, err := store.List(context.Background(), "sec_index")
	require.NoError(t, err)
	require.Len(t, marks, 2)
	assert.Equal(t, "2023", marks[0].PartitionKey)
	assert.Equal(t, StatusFailed, marks[1].LastRunStatus)
	assert.Equal(t, "boom", marks[1].LastError)
}

func strPtr(s string) *string { return &s }
