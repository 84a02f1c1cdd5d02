package fsvc

import (
	"time"

	"github.com/google/uuid"
)

// TargetingTuple scopes catalog items, generated questions, and respondents
// to one (respondent type, commodity, country) combination. All three axes
// are mandatory.
type TargetingTuple struct {
	RespondentType string `json:"respondent_type"`
	Commodity      string `json:"commodity"`
	Country        string `json:"country"`
}

// Category classifies a bank item within the fixed research taxonomy.
type Category string

const (
	CategorySociodemographics Category = "sociodemographics"
	CategoryProduction        Category = "production_systems"
	CategoryProcessing        Category = "processing_storage"
	CategoryDistribution      Category = "distribution_markets"
	CategoryConsumption       Category = "consumption_nutrition"
	CategoryIncome            Category = "income_livelihoods"
	CategoryEnvironment       Category = "environment_climate"
	CategoryGovernance        Category = "governance_policy"
)

// Project is a research deployment. The declared axis lists restrict which
// tuples its questions and respondents may use; an empty list leaves that
// axis unrestricted.
type Project struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`

	RespondentTypes []string `json:"respondent_types,omitempty"`
	Commodities     []string `json:"commodities,omitempty"`
	Countries       []string `json:"countries,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BankItem is one reusable catalog question definition. A nil axis list means
// the item applies to every value on that axis.
type BankItem struct {
	ID          uuid.UUID `json:"id"`
	Text        string    `json:"text"`
	Category    Category  `json:"category"`
	Priority    int       `json:"priority"`
	WorkPackage string    `json:"work_package,omitempty"`
	SourceTags  []string  `json:"source_tags,omitempty"`

	RespondentTypes []string `json:"respondent_types,omitempty"`
	Commodities     []string `json:"commodities,omitempty"`
	Countries       []string `json:"countries,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// GeneratedQuestion is a concrete, project-scoped question materialized from
// a bank item for one targeting tuple.
type GeneratedQuestion struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`

	// BankItemID is nil for manually authored questions.
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
	Skipped int                 `json:"skipped"`
	Failed  int                 `json:"failed"`
	Deleted int                 `json:"deleted"`
}

// CompletionState tracks how far an interview got.
type CompletionState string

const (
	CompletionInProgress CompletionState = "in_progress"
	CompletionCompleted  CompletionState = "completed"
	CompletionAbandoned  CompletionState = "abandoned"
)

// Respondent is one interviewed subject, pinned to the tuple its interview
// was assembled for.
type Respondent struct {
	ID        uuid.UUID       `json:"id"`
	ProjectID uuid.UUID       `json:"project_id"`
	Tuple     TargetingTuple  `json:"tuple"`
	State     CompletionState `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// AnswerInput is one raw answer to record. QuestionID links the answer to its
// generated question when the interview knows it; legacy imports leave it nil
// and declare a category instead.
type AnswerInput struct {
	QuestionID       *uuid.UUID `json:"question_id,omitempty"`
	Value            string     `json:"value"`
	CollectedAt      time.Time  `json:"collected_at"`
	DeclaredCategory Category   `json:"declared_category,omitempty"`
}

// AnswerRecord is one stored answer.
type AnswerRecord struct {
	ID           uuid.UUID  `json:"id"`
	RespondentID uuid.UUID  `json:"respondent_id"`
	QuestionID   *uuid.UUID `json:"question_id,omitempty"`
	Value        string     `json:"value"`
	CollectedAt  time.Time  `json:"collected_at"`
	Seq          int64      `json:"seq"`
}

// Strategy identifies which recovery method resolved an answer during
// reconciliation, in descending confidence order.
type Strategy string

const (
	StrategyDirectLink       Strategy = "direct_link"
	StrategyCapturedID       Strategy = "captured_id"
	StrategyCategoryPosition Strategy = "category_position"
	StrategyContentMatch     Strategy = "content_match"
)

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

	Respondents     int              `json:"respondents"`
	ByStrategy      map[Strategy]int `json:"by_strategy"`
	Unresolved      int              `json:"unresolved"`
	Inconsistencies int              `json:"inconsistencies"`
	DuplicateClaims int              `json:"duplicate_claims"`

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

// RunSummary is the persisted counter row of one reconciliation run. The
// mapping itself is re-derivable and is not kept.
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

// Column is one bank item of an exported matrix, in catalog order.
type Column struct {
	BankItemID     uuid.UUID `json:"bank_item_id"`
	Text           string    `json:"text"`
	Category       Category  `json:"category"`
	Filled         int       `json:"filled"`
	CompletionRate float64   `json:"completion_rate"`
}

// Row is one respondent's reconciled values, aligned with the row set's
// columns.
type Row struct {
	RespondentID uuid.UUID       `json:"respondent_id"`
	State        CompletionState `json:"state"`
	Cells        []string        `json:"cells"`
}

// RowSet is the exported respondent × bank-item matrix for one targeting
// tuple. WriteCSV renders it for spreadsheet tooling.
type RowSet struct {
	ProjectID uuid.UUID      `json:"project_id"`
	Tuple     TargetingTuple `json:"tuple"`
	Columns   []Column       `json:"columns"`
	Rows      []Row          `json:"rows"`
}

// SeedResult counts what one seed application wrote.
type SeedResult struct {
	Projects     int `json:"projects"`
	Items        int `json:"items"`
	SkippedItems int `json:"skipped_items"`
	Respondents  int `json:"respondents"`
	Answers      int `json:"answers"`
}
