package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Amankrah/fsvc-sub000/internal/model"
)

// InsertRunSummary persists the counter row of a completed reconciliation
// run. The full mapping is re-derivable and is not stored.
func (db *DB) InsertRunSummary(ctx context.Context, s model.RunSummary) error {
	var rt, cm, ct *string
	if s.Scope != nil {
		rt, cm, ct = &s.Scope.RespondentType, &s.Scope.Commodity, &s.Scope.Country
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO reconciliation_runs (run_id, project_id, respondent_type, commodity, country,
		 respondents, by_strategy, unresolved, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.RunID, s.ProjectID, rt, cm, ct,
		s.Respondents, s.ByStrategy, s.Unresolved, s.StartedAt, s.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert run summary: %w", err)
	}
	return nil
}

// GetRunSummary retrieves one reconciliation run summary by run ID.
func (db *DB) GetRunSummary(ctx context.Context, runID uuid.UUID) (model.RunSummary, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT run_id, project_id, respondent_type, commodity, country,
		 respondents, by_strategy, unresolved, started_at, completed_at
		 FROM reconciliation_runs WHERE run_id = $1`, runID)

	s, err := scanRunSummary(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RunSummary{}, fmt.Errorf("storage: run %s: %w", runID, ErrNotFound)
		}
		return model.RunSummary{}, fmt.Errorf("storage: get run summary: %w", err)
	}
	return s, nil
}

// ListRunSummaries returns a project's reconciliation runs, most recent
// first. The limit defaults to 100 when non-positive.
func (db *DB) ListRunSummaries(ctx context.Context, projectID uuid.UUID, limit int) ([]model.RunSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, project_id, respondent_type, commodity, country,
		 respondents, by_strategy, unresolved, started_at, completed_at
		 FROM reconciliation_runs WHERE project_id = $1
		 ORDER BY completed_at DESC
		 LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list run summaries: %w", err)
	}
	defer rows.Close()

	var summaries []model.RunSummary
	for rows.Next() {
		s, err := scanRunSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan run summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func scanRunSummary(row pgx.Row) (model.RunSummary, error) {
	var (
		s          model.RunSummary
		rt, cm, ct *string
	)
	err := row.Scan(
		&s.RunID, &s.ProjectID, &rt, &cm, &ct,
		&s.Respondents, &s.ByStrategy, &s.Unresolved, &s.StartedAt, &s.CompletedAt,
	)
	if err != nil {
		return model.RunSummary{}, err
	}
	if rt != nil && cm != nil && ct != nil {
		s.Scope = &model.TargetingTuple{RespondentType: *rt, Commodity: *cm, Country: *ct}
	}
	return s, nil
}
