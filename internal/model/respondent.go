package model

import (
	"time"

	"github.com/google/uuid"
)

// CompletionState tracks how far an interview got. Reconciliation does not
// gate on it — partial interviews still reconcile; the matrix reports their
// emptiness through completion rates.
type CompletionState string

const (
	CompletionInProgress CompletionState = "in_progress"
	CompletionCompleted  CompletionState = "completed"
	CompletionAbandoned  CompletionState = "abandoned"
)

// Valid reports whether s is one of the known states.
func (s CompletionState) Valid() bool {
	switch s {
	case CompletionInProgress, CompletionCompleted, CompletionAbandoned:
		return true
	}
	return false
}

// Respondent is one interviewed subject, pinned to the tuple its interview
// was assembled for.
type Respondent struct {
	ID        uuid.UUID       `json:"id"`
	ProjectID uuid.UUID       `json:"project_id"`
	Tuple     TargetingTuple  `json:"tuple"`
	State     CompletionState `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}
