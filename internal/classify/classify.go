// Package classify recognizes the shape of raw answer values (age ranges,
// enumerations, currency amounts, bounded integers, JSON arrays) and maps
// them to the catalog slots that collect such values. Content-based answer
// recovery and the positional shape guard are both built on it.
package classify

import (
	"strings"

	"github.com/Amankrah/fsvc-sub000/internal/model"
)

// ValueClassifier is one value-shape strategy. A classifier recognizes raw
// values of its shape and the bank items that collect them; its name doubles
// as the slot label in the slot table.
type ValueClassifier interface {
	// Name returns the slot label, unique within a Set.
	Name() string

	// MatchValue reports whether the raw value has this shape.
	MatchValue(value string) bool

	// MatchItem reports whether the bank item is the kind of question that
	// collects values of this shape.
	MatchItem(item model.BankItem) bool

	// Definitive reports whether a value match pins down the value's kind
	// strongly enough to contest a positional assignment. Shapes that admit
	// everyday values (a bare small integer, say) are not definitive: they
	// recover answers but never veto.
	Definitive() bool
}

// Set is an ordered collection of classifiers. Order is significant: when
// several classifiers claim a value, the earlier one wins.
type Set struct {
	classifiers []ValueClassifier
}

// New creates a Set from the given classifiers in order.
func New(classifiers ...ValueClassifier) *Set {
	return &Set{classifiers: classifiers}
}

// With returns a new Set with extra classifiers appended after the existing
// ones. The receiver is unchanged.
func (s *Set) With(extra ...ValueClassifier) *Set {
	combined := make([]ValueClassifier, 0, len(s.classifiers)+len(extra))
	combined = append(combined, s.classifiers...)
	combined = append(combined, extra...)
	return &Set{classifiers: combined}
}

// Len returns the number of classifiers.
func (s *Set) Len() int { return len(s.classifiers) }

// Candidates returns the classifiers claiming the value, in set order.
func (s *Set) Candidates(value string) []ValueClassifier {
	var out []ValueClassifier
	for _, c := range s.classifiers {
		if c.MatchValue(value) {
			out = append(out, c)
		}
	}
	return out
}

// ShapeAgrees reports whether assigning value to item is consistent: if any
// definitive classifier claims the value, at least one of those must also
// accept the item. Values no definitive classifier claims are indeterminate
// and never block an assignment.
func (s *Set) ShapeAgrees(value string, item model.BankItem) bool {
	contested := false
	for _, c := range s.classifiers {
		if !c.Definitive() || !c.MatchValue(value) {
			continue
		}
		contested = true
		if c.MatchItem(item) {
			return true
		}
	}
	return !contested
}

// SlotTable maps slot labels to the single bank item answering that slot in
// one catalog view.
type SlotTable struct {
	bySlot map[string]model.BankItem
}

// BuildSlotTable resolves each classifier's slot against the given items,
// which must be in canonical catalog order: the first matching item wins, so
// the table is deterministic for a given catalog view. Slots with no matching
// item are absent.
func (s *Set) BuildSlotTable(items []model.BankItem) SlotTable {
	table := SlotTable{bySlot: make(map[string]model.BankItem, len(s.classifiers))}
	for _, c := range s.classifiers {
		if _, done := table.bySlot[c.Name()]; done {
			continue
		}
		for _, item := range items {
			if c.MatchItem(item) {
				table.bySlot[c.Name()] = item
				break
			}
		}
	}
	return table
}

// Lookup returns the bank item for a slot label.
func (t SlotTable) Lookup(slot string) (model.BankItem, bool) {
	item, ok := t.bySlot[slot]
	return item, ok
}

// Len returns the number of resolved slots.
func (t SlotTable) Len() int { return len(t.bySlot) }

func normalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
