package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncLog_StartCompleteRoundTrip(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectQuery("INSERT INTO ingest.sync_log").
		WithArgs("detect:edgar_full_index").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	mock.ExpectExec("UPDATE ingest.sync_log").
		WithArgs(int64(120), []byte(`{"changed":3}`), int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	sl := NewSyncLog(mock)

	id, err := sl.Start(context.Background(), "detect:edgar_full_index")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	err = sl.Complete(context.Background(), id, &SyncResult{
		RowsSynced: 120,
		Metadata:   map[string]any{"changed": 3},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncLog_Fail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectExec("UPDATE ingest.sync_log").
		WithArgs("enumerate: boom", int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = NewSyncLog(mock).Fail(context.Background(), 9, "enumerate: boom")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncLog_LastSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	ts := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT started_at FROM ingest.sync_log").
		WithArgs("detect:adv_compilation").
		WillReturnRows(pgxmock.NewRows([]string{"started_at"}).AddRow(ts))

	got, err := NewSyncLog(mock).LastSuccess(context.Background(), "detect:adv_compilation")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(ts))
}

func TestSyncLog_LastSuccess_NeverRan(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectQuery("SELECT started_at FROM ingest.sync_log").
		WithArgs("detect:never").
		WillReturnRows(pgxmock.NewRows([]string{"started_at"}))

	got, err := NewSyncLog(mock).LastSuccess(context.Background(), "detect:never")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSyncLog_LastSuccess_WrappedNoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	// The driver may wrap ErrNoRows; matching must be typed, not textual.
	mock.ExpectQuery("SELECT started_at FROM ingest.sync_log").
		WithArgs("detect:never").
		WillReturnError(fmt.Errorf("scan row: %w", pgx.ErrNoRows))

	got, err := NewSyncLog(mock).LastSuccess(context.Background(), "detect:never")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSyncLog_ListAll(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	started := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	completed := started.Add(time.Minute)
	errMsg := "fetch: timeout"

	mock.ExpectQuery("SELECT id, operation, status").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "operation", "status", "started_at", "completed_at", "rows_synced", "error", "metadata",
		}).
			AddRow(int64(2), "reprocess:adv_firm", "complete", started, &completed, int64(5400), nil, []byte(`{"run_id":"x"}`)).
			AddRow(int64(1), "detect:edgar_full_index", "failed", started, &completed, int64(0), &errMsg, nil))

	entries, err := NewSyncLog(mock).ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "reprocess:adv_firm", entries[0].Operation)
	assert.Equal(t, int64(5400), entries[0].RowsSynced)
	assert.Equal(t, "x", entries[0].Metadata["run_id"])

	assert.Equal(t, "failed", entries[1].Status)
	assert.Equal(t, "fetch: timeout", entries[1].Error)
}
