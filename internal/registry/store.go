package registry

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/db"
	"github.com/sells-group/ingest-cli/internal/quality"
)

// Store persists version entries in Postgres. A partial unique index on
// (extractor_class) WHERE is_production backs the single-production
// invariant at the storage layer.
type Store struct {
	pool db.Pool
	log  *zap.Logger
}

func NewStore(pool db.Pool) *Store {
	return &Store{
		pool: pool,
		log:  zap.L().With(zap.String("component", "registry")),
	}
}

// Register upserts a version entry. Re-registering an existing pair
// overwrites metrics and changelog but never touches is_production.
func (s *Store) Register(ctx context.Context, class, version string, metrics *quality.Metrics, changelog string) error {
	sv, err := ParseSemVer(version)
	if err != nil {
		return err
	}

	var metricsJSON []byte
	if metrics != nil {
		metricsJSON, err = json.Marshal(metrics)
		if err != nil {
			return eris.Wrapf(err, "registry: marshal metrics for %s/%s", class, version)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ingest.extractor_versions
		   (extractor_class, extractor_version, major, minor, patch,
		    deployed_at, is_production, quality_metrics, changelog)
		 VALUES ($1, $2, $3, $4, $5, now(), false, $6, $7)
		 ON CONFLICT (extractor_class, extractor_version) DO UPDATE SET
		   quality_metrics = EXCLUDED.quality_metrics,
		   changelog       = EXCLUDED.changelog`,
		class, version, sv.Major, sv.Minor, sv.Patch, metricsJSON, changelog,
	)
	if err != nil {
		return eris.Wrapf(err, "registry: register %s/%s", class, version)
	}
	s.log.Info("version registered",
		zap.String("class", class),
		zap.String("version", version))
	return nil
}

// Get returns the entry for an exact class/version pair.
func (s *Store) Get(ctx context.Context, class, version string) (*VersionEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT extractor_class, extractor_version, deployed_at, is_production,
		        quality_metrics, changelog
		 FROM ingest.extractor_versions
		 WHERE extractor_class = $1 AND extractor_version = $2`,
		class, version,
	)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "registry: get %s/%s", class, version)
	}
	return entry, nil
}

// Production returns the single production entry for a class. Finding more
// than one is an invariant violation and is returned as ErrInvariant, never
// repaired here.
func (s *Store) Production(ctx context.Context, class string) (*VersionEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT extractor_class, extractor_version, deployed_at, is_production,
		        quality_metrics, changelog
		 FROM ingest.extractor_versions
		 WHERE extractor_class = $1 AND is_production`,
		class,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: production %s", class)
	}
	defer rows.Close()

	var entries []*VersionEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "registry: scan production %s", class)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "registry: production %s", class)
	}

	switch len(entries) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return entries[0], nil
	}
	return nil, eris.Wrapf(ErrInvariant, "%d production versions for class %s", len(entries), class)
}

// List returns all entries for a class, newest version first.
func (s *Store) List(ctx context.Context, class string) ([]VersionEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT extractor_class, extractor_version, deployed_at, is_production,
		        quality_metrics, changelog
		 FROM ingest.extractor_versions
		 WHERE extractor_class = $1
		 ORDER BY major DESC, minor DESC, patch DESC`,
		class,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: list %s", class)
	}
	defer rows.Close()

	var entries []VersionEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "registry: scan list %s", class)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Promote makes version the production entry for its class. The previous
// holder is demoted first in the same transaction, so a crash window leaves
// zero production versions rather than two.
func (s *Store) Promote(ctx context.Context, class, version string) error {
	return s.setProduction(ctx, class, version, "promote")
}

// Rollback re-promotes an older registered version. Identical mechanics to
// Promote; the distinct name keeps audit logs honest about intent.
func (s *Store) Rollback(ctx context.Context, class, version string) error {
	return s.setProduction(ctx, class, version, "rollback")
}

func (s *Store) setProduction(ctx context.Context, class, version, op string) error {
	if _, err := ParseSemVer(version); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "registry: %s %s/%s: begin", op, class, version)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT true FROM ingest.extractor_versions
		 WHERE extractor_class = $1 AND extractor_version = $2
		 FOR UPDATE`,
		class, version,
	).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return eris.Wrapf(ErrNotFound, "%s/%s", class, version)
		}
		return eris.Wrapf(err, "registry: %s %s/%s: lock target", op, class, version)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE ingest.extractor_versions
		 SET is_production = false
		 WHERE extractor_class = $1 AND is_production`,
		class,
	); err != nil {
		return eris.Wrapf(err, "registry: %s %s/%s: demote", op, class, version)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE ingest.extractor_versions
		 SET is_production = true
		 WHERE extractor_class = $1 AND extractor_version = $2`,
		class, version,
	); err != nil {
		return eris.Wrapf(err, "registry: %s %s/%s: set production", op, class, version)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "registry: %s %s/%s: commit", op, class, version)
	}

	s.log.Info("production version changed",
		zap.String("class", class),
		zap.String("version", version),
		zap.String("operation", op))
	return nil
}

func scanEntry(row pgx.Row) (*VersionEntry, error) {
	var e VersionEntry
	var metricsJSON []byte
	var changelog *string
	if err := row.Scan(&e.Class, &e.Version, &e.DeployedAt, &e.IsProduction,
		&metricsJSON, &changelog); err != nil {
		return nil, err
	}
	if changelog != nil {
		e.Changelog = *changelog
	}
	if len(metricsJSON) > 0 {
		var m quality.Metrics
		if err := json.Unmarshal(metricsJSON, &m); err != nil {
			return nil, eris.Wrap(err, "decode quality metrics")
		}
		e.Metrics = &m
	}
	return &e, nil
}
