package reprocess

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/db"
)

// ErrDocumentNotFound is returned when a raw document id has no row.
var ErrDocumentNotFound = eris.New("reprocess: raw document not found")

// PostgresRawStore is the raw document index. Reprocessing only reads it;
// writes happen through StoreBatch when acquired documents are loaded.
type PostgresRawStore struct {
	pool db.Pool
}

// RawDocument is one acquired source document.
type RawDocument struct {
	DocumentID     string
	FilingCategory string
	FilingYear     int
	Content        []byte
	FetchedAt      time.Time
}

func NewPostgresRawStore(pool db.Pool) *PostgresRawStore {
	return &PostgresRawStore{pool: pool}
}

func (s *PostgresRawStore) EnumerateCandidates(ctx context.Context, category string, yearFrom, yearTo int) ([]Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_id, filing_year
		 FROM ingest.raw_documents
		 WHERE filing_category = $1 AND filing_year BETWEEN $2 AND $3
		 ORDER BY filing_year, document_id`,
		category, yearFrom, yearTo,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "reprocess: enumerate %s %d..%d", category, yearFrom, yearTo)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.DocumentID, &c.Year); err != nil {
			return nil, eris.Wrap(err, "reprocess: scan candidate")
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// StoreBatch bulk-loads acquired documents via COPY. Documents are immutable
// once fetched, so there is no conflict handling; reloading an id fails on
// the primary key.
func (s *PostgresRawStore) StoreBatch(ctx context.Context, docs []RawDocument) (int64, error) {
	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		fetched := d.FetchedAt
		if fetched.IsZero() {
			fetched = time.Now().UTC()
		}
		rows = append(rows, []any{d.DocumentID, d.FilingCategory, d.FilingYear, d.Content, fetched})
	}
	n, err := db.CopyFromSchema(ctx, s.pool, "ingest", "raw_documents",
		[]string{"document_id", "filing_category", "filing_year", "content", "fetched_at"}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "reprocess: store raw documents")
	}
	return n, nil
}

func (s *PostgresRawStore) FetchRawDocument(ctx context.Context, documentID string) ([]byte, error) {
	var content []byte
	err := s.pool.QueryRow(ctx,
		`SELECT content FROM ingest.raw_documents WHERE document_id = $1`,
		documentID,
	).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrDocumentNotFound, "%s", documentID)
		}
		return nil, eris.Wrapf(err, "reprocess: fetch raw document %s", documentID)
	}
	return content, nil
}
