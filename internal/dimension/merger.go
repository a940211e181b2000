// Package dimension maintains historized (SCD2) dimension tables: every
// change to a tracked attribute closes the current record and opens a new
// version, so the full history of a key is queryable at any point in time.
package dimension

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/db"
)

// ErrNotFound is returned when a natural key has no records.
var ErrNotFound = eris.New("dimension: record not found")

// Outcome is the explicit result of a snapshot merge.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeInserted
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Record is one version of a dimension row.
type Record struct {
	Dimension     string            `json:"dimension"`
	NaturalKey    string            `json:"natural_key"`
	Attributes    map[string]string `json:"attributes"`
	Version       int               `json:"version"`
	IsCurrent     bool              `json:"is_current"`
	EffectiveFrom time.Time         `json:"effective_from"`
	EffectiveTo   *time.Time        `json:"effective_to,omitempty"`
}

// Merger merges incoming snapshots into one named dimension.
type Merger struct {
	pool      db.Pool
	dimension string

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewMerger creates a Merger for the named dimension.
func NewMerger(pool db.Pool, dimension string) *Merger {
	return &Merger{pool: pool, dimension: dimension, nowFunc: time.Now}
}

// MergeSnapshot merges one observed snapshot for a natural key. Only the
// tracked attribute names participate in the change comparison; a snapshot
// that differs solely in untracked attributes is a no-op, which keeps
// volatile fields from churning out versions.
//
// The close-then-insert pair runs in one transaction with the current row
// locked (SELECT ... FOR UPDATE), so concurrent merges for the same key
// serialize. Merges for different keys don't contend.
func (m *Merger) MergeSnapshot(ctx context.Context, naturalKey string, attrs map[string]string, tracked []string) (Outcome, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return OutcomeUnchanged, eris.Wrap(err, "dimension: begin tx")
	}
	defer tx.Rollback(ctx)

	var id int64
	var storedJSON []byte
	var version int
	err = tx.QueryRow(ctx,
		`SELECT id, attributes, version FROM ingest.dimension_records
		 WHERE dimension = $1 AND natural_key = $2 AND is_current
		 FOR UPDATE`,
		m.dimension, naturalKey,
	).Scan(&id, &storedJSON, &version)

	now := m.nowFunc().UTC()

	if errors.Is(err, pgx.ErrNoRows) {
		// First sighting of this key.
		if err := m.insert(ctx, tx, naturalKey, attrs, 1, now); err != nil {
			return OutcomeUnchanged, err
		}
		if err := tx.Commit(ctx); err != nil {
			return OutcomeUnchanged, eris.Wrap(err, "dimension: commit insert")
		}
		return OutcomeInserted, nil
	}
	if err != nil {
		return OutcomeUnchanged, eris.Wrapf(err, "dimension: fetch current %s/%s", m.dimension, naturalKey)
	}

	var stored map[string]string
	if err := json.Unmarshal(storedJSON, &stored); err != nil {
		return OutcomeUnchanged, eris.Wrapf(err, "dimension: unmarshal attributes %s/%s", m.dimension, naturalKey)
	}

	if !trackedChanged(stored, attrs, tracked) {
		return OutcomeUnchanged, nil
	}

	// Close the current record, then open the next version. Closed records
	// are immutable from here on.
	if _, err := tx.Exec(ctx,
		`UPDATE ingest.dimension_records
		 SET is_current = false, effective_to = $1
		 WHERE id = $2 AND is_current`,
		now, id,
	); err != nil {
		return OutcomeUnchanged, eris.Wrapf(err, "dimension: close version %d of %s/%s", version, m.dimension, naturalKey)
	}

	if err := m.insert(ctx, tx, naturalKey, attrs, version+1, now); err != nil {
		return OutcomeUnchanged, err
	}

	if err := tx.Commit(ctx); err != nil {
		return OutcomeUnchanged, eris.Wrap(err, "dimension: commit update")
	}
	return OutcomeUpdated, nil
}

func (m *Merger) insert(ctx context.Context, tx pgx.Tx, naturalKey string, attrs map[string]string, version int, now time.Time) error {
	attrJSON, err := json.Marshal(attrs)
	if err != nil {
		return eris.Wrapf(err, "dimension: marshal attributes %s/%s", m.dimension, naturalKey)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO ingest.dimension_records
		   (dimension, natural_key, attributes, version, is_current, effective_from, effective_to)
		 VALUES ($1, $2, $3, $4, true, $5, NULL)`,
		m.dimension, naturalKey, attrJSON, version, now,
	); err != nil {
		return eris.Wrapf(err, "dimension: insert version %d of %s/%s", version, m.dimension, naturalKey)
	}
	return nil
}

// trackedChanged reports whether any tracked attribute differs between the
// stored and incoming snapshots. Absent keys compare as empty strings.
func trackedChanged(stored, incoming map[string]string, tracked []string) bool {
	for _, name := range tracked {
		if stored[name] != incoming[name] {
			return true
		}
	}
	return false
}

// Current returns the single open record for a natural key.
func (m *Merger) Current(ctx context.Context, naturalKey string) (*Record, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT dimension, natural_key, attributes, version, is_current, effective_from, effective_to
		 FROM ingest.dimension_records
		 WHERE dimension = $1 AND natural_key = $2 AND is_current`,
		m.dimension, naturalKey,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "dimension: query current %s/%s", m.dimension, naturalKey)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	switch len(recs) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &recs[0], nil
	default:
		// The partial unique index makes this unreachable; if it ever shows
		// up the data is corrupt and must not be silently repaired.
		return nil, eris.Errorf("dimension: %d current records for %s/%s", len(recs), m.dimension, naturalKey)
	}
}

// History returns all versions for a natural key, oldest first.
func (m *Merger) History(ctx context.Context, naturalKey string) ([]Record, error) {
	rows, err := m.pool.Query(ctx,
		`SELECT dimension, natural_key, attributes, version, is_current, effective_from, effective_to
		 FROM ingest.dimension_records
		 WHERE dimension = $1 AND natural_key = $2
		 ORDER BY version`,
		m.dimension, naturalKey,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "dimension: query history %s/%s", m.dimension, naturalKey)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var recs []Record
	for rows.Next() {
		var r Record
		var attrJSON []byte
		if err := rows.Scan(&r.Dimension, &r.NaturalKey, &attrJSON, &r.Version, &r.IsCurrent, &r.EffectiveFrom, &r.EffectiveTo); err != nil {
			return nil, eris.Wrap(err, "dimension: scan record")
		}
		if err := json.Unmarshal(attrJSON, &r.Attributes); err != nil {
			return nil, eris.Wrap(err, "dimension: unmarshal attributes")
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
