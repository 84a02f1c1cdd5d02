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

// CreateProject inserts a project and returns it with defaults filled in.
func (db *DB) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO projects (id, name, respondent_types, commodities, countries, next_ordinal, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, orEmpty(p.RespondentTypes), orEmpty(p.Commodities), orEmpty(p.Countries),
		p.NextOrdinal, p.CreatedAt,
	)
	if err != nil {
		return model.Project{}, fmt.Errorf("storage: create project: %w", err)
	}
	return p, nil
}

// GetProject retrieves a project by ID.
func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (model.Project, error) {
	var p model.Project
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, respondent_types, commodities, countries, next_ordinal, created_at
		 FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.RespondentTypes, &p.Commodities, &p.Countries, &p.NextOrdinal, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, fmt.Errorf("storage: project %s: %w", id, ErrNotFound)
		}
		return model.Project{}, fmt.Errorf("storage: get project: %w", err)
	}
	return p, nil
}

// ListProjects returns all projects ordered by creation time.
func (db *DB) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, respondent_types, commodities, countries, next_ordinal, created_at
		 FROM projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("storage: list projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.RespondentTypes, &p.Commodities, &p.Countries, &p.NextOrdinal, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// orEmpty substitutes an empty slice for nil so text[] columns never receive
// NULL.
func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
