package model

import (
	"time"

	"github.com/google/uuid"
)

// BankItem is a reusable question definition in the central bank. Curators
// create and edit items externally; within a catalog snapshot the ordering-key
// fields (category, priority, created-at, id) are treated as immutable.
type BankItem struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	Category Category  `json:"category"`

	// Priority orders items within a category, higher first.
	Priority int `json:"priority"`

	// WorkPackage groups items by research work package (e.g. "wp2").
	WorkPackage string `json:"work_package,omitempty"`

	// SourceTags record where the item came from (instrument name, wave, ...).
	SourceTags []string `json:"source_tags,omitempty"`

	// Per-axis targeting. A match-any filter applies the item everywhere on
	// that axis.
	RespondentTypes AxisFilter `json:"-"`
	Commodities     AxisFilter `json:"-"`
	Countries       AxisFilter `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// AppliesTo reports whether the item targets the given tuple: every axis
// filter must admit the tuple's value on that axis.
func (b BankItem) AppliesTo(t TargetingTuple) bool {
	return b.RespondentTypes.Matches(t.RespondentType) &&
		b.Commodities.Matches(t.Commodity) &&
		b.Countries.Matches(t.Country)
}
