// Package catalog builds immutable, deterministically ordered views of the
// question bank for one targeting tuple.
package catalog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Amankrah/fsvc-sub000/internal/model"
)

// Snapshot is a point-in-time view of the bank items applicable to one
// targeting tuple, in canonical order. Snapshots are immutable once built;
// two snapshots over the same bank contents and tuple are identical down to
// item order and fingerprint.
type Snapshot struct {
	tuple       model.TargetingTuple
	items       []model.BankItem
	position    map[uuid.UUID]int
	byCategory  map[model.Category][]model.BankItem
	fingerprint string
	takenAt     time.Time
}

// Build filters the full bank down to the items applicable to tuple and
// arranges them in canonical order. The tuple must be complete; axes are
// never defaulted.
func Build(tuple model.TargetingTuple, bank []model.BankItem) (*Snapshot, error) {
	if err := tuple.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	var items []model.BankItem
	for _, item := range bank {
		if item.AppliesTo(tuple) {
			items = append(items, item)
		}
	}
	sortItems(items)

	s := &Snapshot{
		tuple:      tuple,
		items:      items,
		position:   make(map[uuid.UUID]int, len(items)),
		byCategory: make(map[model.Category][]model.BankItem),
		takenAt:    time.Now().UTC(),
	}
	for i, item := range items {
		s.position[item.ID] = i
		s.byCategory[item.Category] = append(s.byCategory[item.Category], item)
	}
	s.fingerprint = fingerprint(tuple, items)
	return s, nil
}

// sortItems applies the canonical order: category rank in the fixed taxonomy,
// then priority descending, then creation time, then ID. The trailing ID
// comparison makes the order total, so equal-priority items created in the
// same instant still sort identically on every run.
func sortItems(items []model.BankItem) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		ar, br := categoryOrder(a.Category), categoryOrder(b.Category)
		if ar != br {
			return ar < br
		}
		// Unknown categories share the trailing rank; order them by name.
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
}

func categoryOrder(c model.Category) int {
	if r, ok := c.Rank(); ok {
		return r
	}
	return len(model.Categories())
}

// fingerprint digests the identity, category, priority, and text of every
// item in order, so any change that could alter ordering or matching
// invalidates journaled work against the old view.
func fingerprint(tuple model.TargetingTuple, items []model.BankItem) string {
	h := sha256.New()
	io.WriteString(h, tuple.Key())
	io.WriteString(h, "\n")
	for _, item := range items {
		io.WriteString(h, item.ID.String())
		io.WriteString(h, "\x1f")
		io.WriteString(h, string(item.Category))
		io.WriteString(h, "\x1f")
		io.WriteString(h, strconv.Itoa(item.Priority))
		io.WriteString(h, "\x1f")
		io.WriteString(h, item.Text)
		io.WriteString(h, "\n")
	}
	return "v1:" + hex.EncodeToString(h.Sum(nil))
}

// Tuple returns the targeting tuple the snapshot was built for.
func (s *Snapshot) Tuple() model.TargetingTuple { return s.tuple }

// Len returns the number of applicable items.
func (s *Snapshot) Len() int { return len(s.items) }

// Items returns all applicable items in canonical order. The slice is shared;
// callers must not modify it.
func (s *Snapshot) Items() []model.BankItem { return s.items }

// Item returns the item at position i in the canonical order.
func (s *Snapshot) Item(i int) model.BankItem { return s.items[i] }

// Position returns the item's index in the canonical order.
func (s *Snapshot) Position(id uuid.UUID) (int, bool) {
	i, ok := s.position[id]
	return i, ok
}

// Contains reports whether the item is present in the snapshot.
func (s *Snapshot) Contains(id uuid.UUID) bool {
	_, ok := s.position[id]
	return ok
}

// ByID returns the item with the given ID.
func (s *Snapshot) ByID(id uuid.UUID) (model.BankItem, bool) {
	i, ok := s.position[id]
	if !ok {
		return model.BankItem{}, false
	}
	return s.items[i], true
}

// CategoryItems returns the items of one category, preserving their relative
// canonical order. The slice is shared; callers must not modify it.
func (s *Snapshot) CategoryItems(c model.Category) []model.BankItem {
	return s.byCategory[c]
}

// Fingerprint returns a stable digest of the snapshot's contents. Two
// snapshots with equal fingerprints order and match identically.
func (s *Snapshot) Fingerprint() string { return s.fingerprint }

// TakenAt returns when the snapshot was built.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }
