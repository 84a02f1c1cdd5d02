// Package reconcile recovers the bank item each stored answer belongs to,
// cascading through recovery strategies from the surviving question link down
// to value-shape heuristics.
package reconcile

import (
	"github.com/google/uuid"

	"github.com/Amankrah/fsvc-sub000/internal/catalog"
	"github.com/Amankrah/fsvc-sub000/internal/classify"
	"github.com/Amankrah/fsvc-sub000/internal/model"
)

// Engine runs the recovery cascade for one respondent at a time. It is a pure
// function of its inputs: identical answers against an identical catalog
// always produce the identical mapping, in the fixed strategy order.
type Engine struct {
	classifiers *classify.Set
	shapeGuard  bool
}

// NewEngine creates an Engine. With shapeGuard enabled, a positional
// candidate is withheld when the answer's value definitively matches a
// different slot; disabling it restores the purely positional behavior.
func NewEngine(classifiers *classify.Set, shapeGuard bool) *Engine {
	return &Engine{classifiers: classifiers, shapeGuard: shapeGuard}
}

// SlotTable precomputes the slot-to-item table for one catalog view, using
// the engine's classifier set.
func (e *Engine) SlotTable(items []model.BankItem) classify.SlotTable {
	return e.classifiers.BuildSlotTable(items)
}

// RespondentInput bundles everything one respondent's reconciliation reads.
// Answers must already be in stream order: collected-at ascending, insertion
// sequence breaking ties.
type RespondentInput struct {
	Respondent model.Respondent
	Answers    []model.AnswerRecord

	// Questions holds the surviving generated questions by id. Deleted
	// questions are simply absent.
	Questions map[uuid.UUID]model.GeneratedQuestion

	// Snapshot is the catalog view for the respondent's tuple.
	Snapshot *catalog.Snapshot

	// SlotTable maps slot labels to bank items for the same snapshot.
	SlotTable classify.SlotTable
}

// RespondentResult is one respondent's recovered mapping plus the per-answer
// outcome counters.
type RespondentResult struct {
	// Resolved lists successful recoveries in answer stream order.
	Resolved []model.ResolvedAnswer

	Unresolved int

	// Inconsistencies counts answers that referenced a bank item missing from
	// the catalog, whatever the answer's final outcome.
	Inconsistencies int

	// DuplicateClaims counts answers that lost at least one candidate to an
	// earlier answer's claim.
	DuplicateClaims int
}

// Reconcile recovers the bank item behind every answer of one respondent.
//
// Strategies run per answer in confidence order, first success wins: direct
// question link, captured bank item id, category position, content heuristic.
// A bank item is claimed by at most one answer; on a claim conflict the later
// answer falls through to the next strategy rather than overwriting.
func (e *Engine) Reconcile(in RespondentInput) RespondentResult {
	var result RespondentResult

	claimed := make(map[uuid.UUID]bool, len(in.Answers))
	positions := categoryPositions(in.Answers)

	for i, answer := range in.Answers {
		var (
			inconsistent bool
			lostClaim    bool
		)

		// claim attempts to take the item for this answer. A conflict with an
		// earlier answer is recorded and the answer continues down the
		// cascade.
		claim := func(itemID uuid.UUID, strategy model.Strategy) bool {
			if claimed[itemID] {
				lostClaim = true
				return false
			}
			claimed[itemID] = true
			result.Resolved = append(result.Resolved, model.ResolvedAnswer{
				AnswerID:     answer.ID,
				RespondentID: in.Respondent.ID,
				BankItemID:   itemID,
				Strategy:     strategy,
			})
			return true
		}

		resolved := e.direct(in, answer, claim, &inconsistent) ||
			e.capturedID(in, answer, claim, &inconsistent) ||
			e.position(in, answer, positions[i], claim) ||
			e.content(in, answer, claim)

		if !resolved {
			result.Unresolved++
		}
		if inconsistent {
			result.Inconsistencies++
		}
		if lostClaim {
			result.DuplicateClaims++
		}
	}
	return result
}

// direct resolves through the answer's surviving question link.
func (e *Engine) direct(in RespondentInput, a model.AnswerRecord, claim func(uuid.UUID, model.Strategy) bool, inconsistent *bool) bool {
	if a.QuestionID == nil {
		return false
	}
	q, ok := in.Questions[*a.QuestionID]
	if !ok || q.BankItemID == nil {
		return false
	}
	if !in.Snapshot.Contains(*q.BankItemID) {
		*inconsistent = true
		return false
	}
	return claim(*q.BankItemID, model.StrategyDirectLink)
}

// capturedID resolves through the bank item id stamped into the captured
// context.
func (e *Engine) capturedID(in RespondentInput, a model.AnswerRecord, claim func(uuid.UUID, model.Strategy) bool, inconsistent *bool) bool {
	if a.Context.BankItemID == nil {
		return false
	}
	if !in.Snapshot.Contains(*a.Context.BankItemID) {
		*inconsistent = true
		return false
	}
	return claim(*a.Context.BankItemID, model.StrategyCapturedID)
}

// position resolves by the answer's ordinal within its captured category: the
// pos-th answer of a category maps to the pos-th catalog item of that
// category.
func (e *Engine) position(in RespondentInput, a model.AnswerRecord, pos int, claim func(uuid.UUID, model.Strategy) bool) bool {
	if a.Context.Category == "" {
		return false
	}
	view := in.Snapshot.CategoryItems(a.Context.Category)
	if pos < 0 || pos >= len(view) {
		return false
	}
	candidate := view[pos]
	if e.shapeGuard && !e.classifiers.ShapeAgrees(a.Value, candidate) {
		return false
	}
	return claim(candidate.ID, model.StrategyCategoryPosition)
}

// content resolves by classifying the raw value into a slot and mapping the
// slot to its bank item.
func (e *Engine) content(in RespondentInput, a model.AnswerRecord, claim func(uuid.UUID, model.Strategy) bool) bool {
	for _, c := range e.classifiers.Candidates(a.Value) {
		item, ok := in.SlotTable.Lookup(c.Name())
		if !ok {
			continue
		}
		if claim(item.ID, model.StrategyContentMatch) {
			return true
		}
	}
	return false
}

// categoryPositions assigns each answer its zero-based ordinal among the
// respondent's answers sharing the same captured category, in stream order.
// Every answer of the category occupies a slot, including ones later resolved
// by a higher strategy: the position mirrors the interview's section layout,
// not the resolution outcome.
func categoryPositions(answers []model.AnswerRecord) []int {
	positions := make([]int, len(answers))
	counters := make(map[model.Category]int)
	for i, a := range answers {
		c := a.Context.Category
		if c == "" {
			positions[i] = -1
			continue
		}
		positions[i] = counters[c]
		counters[c]++
	}
	return positions
}
