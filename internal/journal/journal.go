// Package journal checkpoints reconciliation runs into a local SQLite file so
// a cancelled run resumes without recomputing finished respondents.
//
// The journal is a cache, never a source of truth: every cached resolution is
// re-derivable from Postgres, and cached entries are only reused while the
// catalog fingerprint they were computed against still matches.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Amankrah/fsvc-sub000/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                  TEXT PRIMARY KEY,
	project_id          TEXT NOT NULL,
	scope               TEXT NOT NULL,
	catalog_fingerprint TEXT NOT NULL,
	started_at          TIMESTAMP NOT NULL,
	completed_at        TIMESTAMP
);

CREATE TABLE IF NOT EXISTS checkpoints (
	run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	respondent_id    TEXT NOT NULL,
	unresolved       INTEGER NOT NULL,
	inconsistencies  INTEGER NOT NULL,
	duplicate_claims INTEGER NOT NULL,
	resolutions      TEXT NOT NULL,
	PRIMARY KEY (run_id, respondent_id)
);
`

// Journal is a local checkpoint store. One file may hold many runs.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal file and ensures its schema.
func Open(path string) (*Journal, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection sidesteps busy errors
	// from pooled concurrent checkpoints.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Entry is one respondent's cached reconciliation result.
type Entry struct {
	RespondentID    uuid.UUID
	Resolved        []model.ResolvedAnswer
	Unresolved      int
	Inconsistencies int
	DuplicateClaims int
}

// Run is a handle on one run's checkpoints.
type Run struct {
	j  *Journal
	id uuid.UUID
}

// ID returns the run id the handle is bound to.
func (r *Run) ID() uuid.UUID { return r.id }

// OpenRun binds a run id to (project, scope, fingerprint) and reports whether
// existing checkpoints can be resumed. A known run id whose stored scope or
// fingerprint differs is reset: its checkpoints were computed against another
// catalog view and must not be reused.
func (j *Journal) OpenRun(ctx context.Context, id, projectID uuid.UUID, scope, fingerprint string) (*Run, bool, error) {
	var (
		storedProject     string
		storedScope       string
		storedFingerprint string
	)
	err := j.db.QueryRowContext(ctx,
		`SELECT project_id, scope, catalog_fingerprint FROM runs WHERE id = ?`, id.String(),
	).Scan(&storedProject, &storedScope, &storedFingerprint)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = j.db.ExecContext(ctx,
			`INSERT INTO runs (id, project_id, scope, catalog_fingerprint, started_at) VALUES (?, ?, ?, ?, ?)`,
			id.String(), projectID.String(), scope, fingerprint, time.Now().UTC())
		if err != nil {
			return nil, false, fmt.Errorf("journal: register run: %w", err)
		}
		return &Run{j: j, id: id}, false, nil

	case err != nil:
		return nil, false, fmt.Errorf("journal: look up run: %w", err)
	}

	if storedProject == projectID.String() && storedScope == scope && storedFingerprint == fingerprint {
		return &Run{j: j, id: id}, true, nil
	}

	// Stale run: reset it in place.
	if _, err := j.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE run_id = ?`, id.String()); err != nil {
		return nil, false, fmt.Errorf("journal: reset run checkpoints: %w", err)
	}
	if _, err := j.db.ExecContext(ctx,
		`UPDATE runs SET project_id = ?, scope = ?, catalog_fingerprint = ?, started_at = ?, completed_at = NULL WHERE id = ?`,
		projectID.String(), scope, fingerprint, time.Now().UTC(), id.String()); err != nil {
		return nil, false, fmt.Errorf("journal: reset run: %w", err)
	}
	return &Run{j: j, id: id}, false, nil
}

// Checkpoint stores (or replaces) one respondent's result.
func (r *Run) Checkpoint(ctx context.Context, e Entry) error {
	resolutions, err := json.Marshal(e.Resolved)
	if err != nil {
		return fmt.Errorf("journal: encode resolutions: %w", err)
	}
	_, err = r.j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO checkpoints
		 (run_id, respondent_id, unresolved, inconsistencies, duplicate_claims, resolutions)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.id.String(), e.RespondentID.String(),
		e.Unresolved, e.Inconsistencies, e.DuplicateClaims, string(resolutions))
	if err != nil {
		return fmt.Errorf("journal: checkpoint respondent %s: %w", e.RespondentID, err)
	}
	return nil
}

// Entries loads every checkpointed result of the run, keyed by respondent.
func (r *Run) Entries(ctx context.Context) (map[uuid.UUID]Entry, error) {
	rows, err := r.j.db.QueryContext(ctx,
		`SELECT respondent_id, unresolved, inconsistencies, duplicate_claims, resolutions
		 FROM checkpoints WHERE run_id = ?`, r.id.String())
	if err != nil {
		return nil, fmt.Errorf("journal: load checkpoints: %w", err)
	}
	defer rows.Close()

	entries := make(map[uuid.UUID]Entry)
	for rows.Next() {
		var (
			e           Entry
			respondent  string
			resolutions string
		)
		if err := rows.Scan(&respondent, &e.Unresolved, &e.Inconsistencies, &e.DuplicateClaims, &resolutions); err != nil {
			return nil, fmt.Errorf("journal: scan checkpoint: %w", err)
		}
		e.RespondentID, err = uuid.Parse(respondent)
		if err != nil {
			return nil, fmt.Errorf("journal: parse respondent id: %w", err)
		}
		if err := json.Unmarshal([]byte(resolutions), &e.Resolved); err != nil {
			return nil, fmt.Errorf("journal: decode resolutions: %w", err)
		}
		entries[e.RespondentID] = e
	}
	return entries, rows.Err()
}

// Complete marks the run finished. Checkpoints are kept; a completed run's id
// can still be inspected or reused as a cache for an identical rerun.
func (r *Run) Complete(ctx context.Context) error {
	_, err := r.j.db.ExecContext(ctx,
		`UPDATE runs SET completed_at = ? WHERE id = ?`, time.Now().UTC(), r.id.String())
	if err != nil {
		return fmt.Errorf("journal: complete run: %w", err)
	}
	return nil
}
