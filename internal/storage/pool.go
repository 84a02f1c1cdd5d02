// Package storage provides the PostgreSQL storage layer for the survey
// engine.
//
// It manages connection pooling via pgxpool, COPY-based batch ingestion for
// answer records, a forward-only migration runner, and query methods for all
// tables. Generated-question ordinal allocation runs inside transactions here
// so that ordinals stay consecutive per project under concurrent writers.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool.Pool together with the logger used for storage-level
// diagnostics.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a DB backed by a connection pool for the given DSN and verifies
// connectivity with a ping.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}
