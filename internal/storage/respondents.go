package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Amankrah/fsvc-sub000/internal/model"
)

// CreateRespondent inserts a respondent and returns it with defaults filled
// in. The state defaults to in-progress.
func (db *DB) CreateRespondent(ctx context.Context, r model.Respondent) (model.Respondent, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.State == "" {
		r.State = model.CompletionInProgress
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO respondents (id, project_id, respondent_type, commodity, country, state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.ProjectID, r.Tuple.RespondentType, r.Tuple.Commodity, r.Tuple.Country,
		string(r.State), r.CreatedAt,
	)
	if err != nil {
		return model.Respondent{}, fmt.Errorf("storage: create respondent: %w", err)
	}
	return r, nil
}

// GetRespondent retrieves a respondent by ID.
func (db *DB) GetRespondent(ctx context.Context, id uuid.UUID) (model.Respondent, error) {
	var r model.Respondent
	err := db.pool.QueryRow(ctx,
		`SELECT id, project_id, respondent_type, commodity, country, state, created_at
		 FROM respondents WHERE id = $1`, id,
	).Scan(&r.ID, &r.ProjectID, &r.Tuple.RespondentType, &r.Tuple.Commodity, &r.Tuple.Country,
		&r.State, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Respondent{}, fmt.Errorf("storage: respondent %s: %w", id, ErrNotFound)
		}
		return model.Respondent{}, fmt.Errorf("storage: get respondent: %w", err)
	}
	return r, nil
}

// ListRespondents returns a project's respondents ordered by creation time.
// A non-nil scope restricts the result to respondents with that exact
// targeting tuple.
func (db *DB) ListRespondents(ctx context.Context, projectID uuid.UUID, scope *model.TargetingTuple) ([]model.Respondent, error) {
	query := `SELECT id, project_id, respondent_type, commodity, country, state, created_at
		 FROM respondents WHERE project_id = $1`
	args := []any{projectID}
	if scope != nil {
		query += ` AND respondent_type = $2 AND commodity = $3 AND country = $4`
		args = append(args, scope.RespondentType, scope.Commodity, scope.Country)
	}
	query += ` ORDER BY created_at, id`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list respondents: %w", err)
	}
	defer rows.Close()

	var respondents []model.Respondent
	for rows.Next() {
		var r model.Respondent
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Tuple.RespondentType, &r.Tuple.Commodity,
			&r.Tuple.Country, &r.State, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan respondent: %w", err)
		}
		respondents = append(respondents, r)
	}
	return respondents, rows.Err()
}

// UpdateRespondentState transitions a respondent's completion state.
func (db *DB) UpdateRespondentState(ctx context.Context, id uuid.UUID, state model.CompletionState) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE respondents SET state = $1 WHERE id = $2`, string(state), id)
	if err != nil {
		return fmt.Errorf("storage: update respondent state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: respondent %s: %w", id, ErrNotFound)
	}
	return nil
}
