package model

import (
	"time"

	"github.com/google/uuid"
)

// Strategy identifies which recovery method resolved an answer. Rank order is
// fixed: a higher-confidence strategy's result is never replaced by a
// lower-confidence one.
type Strategy string

const (
	// StrategyDirectLink: the answer's generated question survives and names
	// a bank item present in the catalog.
	StrategyDirectLink Strategy = "direct_link"

	// StrategyCapturedID: the captured context's bank item id is still in the
	// catalog.
	StrategyCapturedID Strategy = "captured_id"

	// StrategyCategoryPosition: positional match within the category view.
	StrategyCategoryPosition Strategy = "category_position"

	// StrategyContentMatch: value-shape classification into a category slot.
	StrategyContentMatch Strategy = "content_match"
)

var strategyRank = map[Strategy]int{
	StrategyDirectLink:       0,
	StrategyCapturedID:       1,
	StrategyCategoryPosition: 2,
	StrategyContentMatch:     3,
}

// Rank returns the strategy's confidence rank; lower is more confident.
// Unknown strategies rank last.
func (s Strategy) Rank() int {
	if r, ok := strategyRank[s]; ok {
		return r
	}
	return len(strategyRank)
}

// Strategies returns all strategies in confidence order.
func Strategies() []Strategy {
	return []Strategy{
		StrategyDirectLink,
		StrategyCapturedID,
		StrategyCategoryPosition,
		StrategyContentMatch,
	}
}

// ResolvedAnswer maps one answer to the bank item it answers.
type ResolvedAnswer struct {
	AnswerID     uuid.UUID `json:"answer_id"`
	RespondentID uuid.UUID `json:"respondent_id"`
	BankItemID   uuid.UUID `json:"bank_item_id"`
	Strategy     Strategy  `json:"strategy"`
}

// ReconciliationReport aggregates one reconciliation run. Unresolved answers
// are an expected, reportable outcome, not an error.
type ReconciliationReport struct {
	ProjectID uuid.UUID `json:"project_id"`

	// Scope is the tuple the run was restricted to; nil means the whole
	// project.
	Scope *TargetingTuple `json:"scope,omitempty"`

	Respondents int              `json:"respondents"`
	ByStrategy  map[Strategy]int `json:"by_strategy"`
	Unresolved  int              `json:"unresolved"`

	// Inconsistencies counts answers that referenced a bank item missing
	// from the catalog (each is also either recovered by a later strategy or
	// counted unresolved).
	Inconsistencies int `json:"inconsistencies"`

	// DuplicateClaims counts answers whose candidate item was already
	// claimed by an earlier answer of the same respondent.
	DuplicateClaims int `json:"duplicate_claims"`

	Mapping []ResolvedAnswer `json:"mapping"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Resolved returns the total number of answers resolved by any strategy.
func (r ReconciliationReport) Resolved() int {
	var n int
	for _, c := range r.ByStrategy {
		n += c
	}
	return n
}

// RunSummary is the persisted counter row of one reconciliation run, kept for
// observability across runs. The mapping itself is re-derivable and is not
// persisted here.
type RunSummary struct {
	RunID       uuid.UUID        `json:"run_id"`
	ProjectID   uuid.UUID        `json:"project_id"`
	Scope       *TargetingTuple  `json:"scope,omitempty"`
	Respondents int              `json:"respondents"`
	ByStrategy  map[Strategy]int `json:"by_strategy"`
	Unresolved  int              `json:"unresolved"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}
