package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the assets table if needed. token_id is unique so a
// replayed reconcile job cannot record the same mint twice; content_hash is
// indexed but deliberately not unique because identical documents may be
// tokenized by different owners. token_id is NUMERIC(20) to hold any uint64;
// the ALTER upgrades tables created with the earlier BIGINT column.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS assets (
	id TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	file_name TEXT NOT NULL,
	content_type TEXT,
	size BIGINT NOT NULL,
	page_count INTEGER,
	metadata_uri TEXT NOT NULL,
	owner TEXT NOT NULL,
	token_id NUMERIC(20) NOT NULL UNIQUE,
	tx_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
ALTER TABLE assets ALTER COLUMN token_id TYPE NUMERIC(20);
CREATE INDEX IF NOT EXISTS idx_assets_content_hash ON assets(content_hash);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
