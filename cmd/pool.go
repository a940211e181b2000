package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/watermark"
)

// ingestPool creates a pgxpool.Pool from cfg.Store.DatabaseURL.
func ingestPool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := cfg.Store.DatabaseURL
	if dsn == "" {
		return nil, eris.New("ingest: no database_url configured (set store.database_url)")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ingest: ping database")
	}

	return pool, nil
}

// openWatermarks opens the watermark store for the configured driver.
// SQLite keeps single-operator setups off Postgres entirely; everything
// else in the CLI that needs Postgres errors out on its own.
func openWatermarks(ctx context.Context) (watermark.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return watermark.NewSQLite(cfg.Store.DatabaseURL)
	case "", "postgres":
		pool, err := ingestPool(ctx)
		if err != nil {
			return nil, err
		}
		return watermark.NewPostgres(pool, pool.Close), nil
	default:
		return nil, eris.Errorf("ingest: unknown store driver %q", cfg.Store.Driver)
	}
}
