package model

import (
	"time"

	"github.com/google/uuid"
)

// GeneratedQuestion is a concrete, project-scoped question materialized from
// a bank item for one targeting tuple. Ordinals are per-project, append-only,
// and never reused.
type GeneratedQuestion struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`

	// BankItemID is nil for manually authored questions that have no catalog
	// source.
	BankItemID *uuid.UUID `json:"bank_item_id,omitempty"`

	Tuple   TargetingTuple `json:"tuple"`
	Text    string         `json:"text"`
	Ordinal int            `json:"ordinal"`

	CreatedAt time.Time `json:"created_at"`
}

// MaterializeOptions narrows a materialization call.
type MaterializeOptions struct {
	// Categories restricts generation to the given categories. Empty = all.
	Categories []Category

	// WorkPackages restricts generation to items of the given work packages.
	// Empty = all.
	WorkPackages []string

	// ReplaceExisting deletes ALL generated questions of the project before
	// regenerating. Project-wide, not tuple-scoped.
	ReplaceExisting bool
}

// MaterializationResult reports what one materialization call did.
type MaterializationResult struct {
	Created []GeneratedQuestion `json:"created"`

	// Skipped counts items whose dedup key (project, text, tuple) already had
	// a generated question.
	Skipped int `json:"skipped"`

	// Failed counts items that could not be written; each is logged and the
	// batch continues.
	Failed int `json:"failed"`

	// Deleted counts questions removed by ReplaceExisting.
	Deleted int `json:"deleted"`
}
