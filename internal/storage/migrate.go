package storage

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// migrationLockKey serializes RunMigrations across processes ("fsvc" in hex).
const migrationLockKey = int64(0x66737663)

// RunMigrations applies the unapplied .sql files from migrationsFS in lexical
// order, all inside one transaction together with their schema_migrations
// records: a failed statement rolls the whole run back with no
// applied-but-unrecorded state. The runner is forward-only; there are no down
// migrations.
func (db *DB) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	names, err := sqlFiles(migrationsFS)
	if err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Transaction-scoped advisory lock: concurrently booting processes queue
	// here and see each other's bookkeeping once the first commit lands.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("storage: acquire migration lock: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("storage: create schema_migrations: %w", err)
	}

	applied, err := appliedMigrations(ctx, tx)
	if err != nil {
		return fmt.Errorf("storage: load applied migrations: %w", err)
	}

	ran := 0
	for _, name := range names {
		if applied[name] {
			db.logger.Debug("migration already applied", "file", name)
			continue
		}

		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("storage: read migration %s: %w", name, err)
		}

		db.logger.Info("applying migration", "file", name)
		if _, err := tx.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("storage: apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, name,
		); err != nil {
			return fmt.Errorf("storage: record migration %s: %w", name, err)
		}
		ran++
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit migrations: %w", err)
	}
	if ran > 0 {
		db.logger.Info("migrations applied", "count", ran)
	}
	return nil
}

// sqlFiles lists the .sql entries of fsys in lexical order.
func sqlFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("storage: read migrations dir: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// appliedMigrations returns the set of migration filenames already recorded
// in the schema_migrations table.
func appliedMigrations(ctx context.Context, tx pgx.Tx) (map[string]bool, error) {
	rows, err := tx.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
