package model

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ErrTupleOutsideProject is returned when a tuple names an axis value the
// project's targeting configuration does not declare.
var ErrTupleOutsideProject = errors.New("model: tuple outside project targeting configuration")

// Project is a research deployment. Its declared targeting axes are supplied
// by the surrounding application and consumed read-only here; an empty axis
// list leaves that axis unrestricted.
type Project struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`

	RespondentTypes []string `json:"respondent_types,omitempty"`
	Commodities     []string `json:"commodities,omitempty"`
	Countries       []string `json:"countries,omitempty"`

	// NextOrdinal is the per-project question ordinal counter. It only ever
	// grows; ordinals are never reused even after deletions.
	NextOrdinal int `json:"next_ordinal"`

	CreatedAt time.Time `json:"created_at"`
}

// AllowsTuple checks the tuple against the project's declared axes.
// The tuple must already be complete (Validate is the caller's concern).
func (p Project) AllowsTuple(t TargetingTuple) error {
	if len(p.RespondentTypes) > 0 && !slices.Contains(p.RespondentTypes, t.RespondentType) {
		return fmt.Errorf("%w: respondent type %q not declared", ErrTupleOutsideProject, t.RespondentType)
	}
	if len(p.Commodities) > 0 && !slices.Contains(p.Commodities, t.Commodity) {
		return fmt.Errorf("%w: commodity %q not declared", ErrTupleOutsideProject, t.Commodity)
	}
	if len(p.Countries) > 0 && !slices.Contains(p.Countries, t.Country) {
		return fmt.Errorf("%w: country %q not declared", ErrTupleOutsideProject, t.Country)
	}
	return nil
}
