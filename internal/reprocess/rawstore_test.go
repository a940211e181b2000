package reprocess

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerateCandidates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectQuery("SELECT document_id, filing_year").
		WithArgs("adv", 2022, 2023).
		WillReturnRows(pgxmock.NewRows([]string{"document_id", "filing_year"}).
			AddRow("0001-123", 2022).
			AddRow("0001-456", 2023))

	got, err := NewPostgresRawStore(mock).EnumerateCandidates(context.Background(), "adv", 2022, 2023)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Candidate{DocumentID: "0001-123", Year: 2022}, got[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchRawDocument(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectQuery("SELECT content FROM ingest.raw_documents").
		WithArgs("0001-123").
		WillReturnRows(pgxmock.NewRows([]string{"content"}).AddRow([]byte("<xml/>")))

	raw, err := NewPostgresRawStore(mock).FetchRawDocument(context.Background(), "0001-123")
	require.NoError(t, err)
	assert.Equal(t, []byte("<xml/>"), raw)
}

func TestFetchRawDocument_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectQuery("SELECT content FROM ingest.raw_documents").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"content"}))

	_, err = NewPostgresRawStore(mock).FetchRawDocument(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestStoreBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectCopyFrom(
		pgx.Identifier{"ingest", "raw_documents"},
		[]string{"document_id", "filing_category", "filing_year", "content", "fetched_at"},
	).WillReturnResult(2)

	docs := []RawDocument{
		{DocumentID: "a", FilingCategory: "adv", FilingYear: 2023, Content: []byte("x")},
		{DocumentID: "b", FilingCategory: "adv", FilingYear: 2023, Content: []byte("y"), FetchedAt: time.Now()},
	}
	n, err := NewPostgresRawStore(mock).StoreBatch(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
