package reprocess

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/db"
	"github.com/sells-group/ingest-cli/internal/quality"
)

// Artifact is a stored extraction output. Rows are keyed by
// (document_id, extractor_class, extractor_version), so artifacts from
// different versions of the same document never collide.
type Artifact struct {
	quality.Artifact
	FilingCategory string
	FilingYear     int
	Record         json.RawMessage
	Error          string
}

// ArtifactStore indexes extraction artifacts in Postgres.
type ArtifactStore struct {
	pool db.Pool
}

func NewArtifactStore(pool db.Pool) *ArtifactStore {
	return &ArtifactStore{pool: pool}
}

// Exists reports whether an artifact is already recorded for the document at
// the given extractor version.
func (s *ArtifactStore) Exists(ctx context.Context, documentID, class, version string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM ingest.extraction_artifacts
		   WHERE document_id = $1 AND extractor_class = $2 AND extractor_version = $3
		 )`,
		documentID, class, version,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "reprocess: artifact exists %s@%s/%s", documentID, class, version)
	}
	return exists, nil
}

// Write upserts one artifact. The conflict target is the full version key,
// so an overwrite only ever replaces the same version's row.
func (s *ArtifactStore) Write(ctx context.Context, a Artifact) error {
	var fieldJSON []byte
	if len(a.FieldConfidence) > 0 {
		var err error
		fieldJSON, err = json.Marshal(a.FieldConfidence)
		if err != nil {
			return eris.Wrapf(err, "reprocess: marshal field confidence for %s", a.DocumentID)
		}
	}

	producedAt := a.ProducedAt
	if producedAt.IsZero() {
		producedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest.extraction_artifacts
		   (document_id, extractor_class, extractor_version, filing_category,
		    filing_year, status, confidence, field_confidence, record, error, produced_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (document_id, extractor_class, extractor_version) DO UPDATE SET
		   filing_category  = EXCLUDED.filing_category,
		   filing_year      = EXCLUDED.filing_year,
		   status           = EXCLUDED.status,
		   confidence       = EXCLUDED.confidence,
		   field_confidence = EXCLUDED.field_confidence,
		   record           = EXCLUDED.record,
		   error            = EXCLUDED.error,
		   produced_at      = EXCLUDED.produced_at`,
		a.DocumentID, a.ExtractorClass, a.ExtractorVersion, a.FilingCategory,
		a.FilingYear, a.Status, a.Confidence, fieldJSON, []byte(a.Record), nullable(a.Error), producedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "reprocess: write artifact %s@%s/%s", a.DocumentID, a.ExtractorClass, a.ExtractorVersion)
	}
	return nil
}

// WriteBatch bulk-upserts artifacts through the shared temp-table COPY path.
// Used by backfills where per-row round trips are too slow.
func (s *ArtifactStore) WriteBatch(ctx context.Context, artifacts []Artifact) (int64, error) {
	rows := make([][]any, 0, len(artifacts))
	for _, a := range artifacts {
		var fieldJSON []byte
		if len(a.FieldConfidence) > 0 {
			var err error
			fieldJSON, err = json.Marshal(a.FieldConfidence)
			if err != nil {
				return 0, eris.Wrapf(err, "reprocess: marshal field confidence for %s", a.DocumentID)
			}
		}
		producedAt := a.ProducedAt
		if producedAt.IsZero() {
			producedAt = time.Now().UTC()
		}
		rows = append(rows, []any{
			a.DocumentID, a.ExtractorClass, a.ExtractorVersion, a.FilingCategory,
			a.FilingYear, a.Status, a.Confidence, fieldJSON, []byte(a.Record), nullable(a.Error), producedAt,
		})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "ingest.extraction_artifacts",
		Columns: []string{
			"document_id", "extractor_class", "extractor_version", "filing_category",
			"filing_year", "status", "confidence", "field_confidence", "record", "error", "produced_at",
		},
		ConflictKeys: []string{"document_id", "extractor_class", "extractor_version"},
	}, rows)
}

// ListScope returns the artifacts for one extractor version within a filing
// category and year range, in the shape the quality calculator consumes.
func (s *ArtifactStore) ListScope(ctx context.Context, class, version, category string, yearFrom, yearTo int) ([]quality.Artifact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_id, extractor_class, extractor_version, status,
		        confidence, field_confidence, produced_at
		 FROM ingest.extraction_artifacts
		 WHERE extractor_class = $1 AND extractor_version = $2
		   AND filing_category = $3 AND filing_year BETWEEN $4 AND $5`,
		class, version, category, yearFrom, yearTo,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "reprocess: list artifacts %s/%s", class, version)
	}
	defer rows.Close()

	var artifacts []quality.Artifact
	for rows.Next() {
		var a quality.Artifact
		var fieldJSON []byte
		if err := rows.Scan(&a.DocumentID, &a.ExtractorClass, &a.ExtractorVersion,
			&a.Status, &a.Confidence, &fieldJSON, &a.ProducedAt); err != nil {
			return nil, eris.Wrap(err, "reprocess: scan artifact")
		}
		if len(fieldJSON) > 0 {
			if err := json.Unmarshal(fieldJSON, &a.FieldConfidence); err != nil {
				return nil, eris.Wrapf(err, "reprocess: decode field confidence for %s", a.DocumentID)
			}
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
