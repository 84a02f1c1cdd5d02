// Package model defines the core domain types shared by the catalog,
// materialization, intake, reconciliation, and export packages.
package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrIncompleteTargeting is returned when a targeting tuple is missing one or
// more axes. Operations reject incomplete tuples up front; axes are never
// silently defaulted.
var ErrIncompleteTargeting = errors.New("model: incomplete targeting tuple")

// TargetingTuple scopes catalog items, generated questions, and respondents to
// one (respondent type, commodity, country) combination. All three axes are
// mandatory for materialization, reconciliation, and export.
type TargetingTuple struct {
	RespondentType string `json:"respondent_type"`
	Commodity      string `json:"commodity"`
	Country        string `json:"country"`
}

// Validate checks that all three axes are present.
// The returned error wraps ErrIncompleteTargeting and names the missing axes.
func (t TargetingTuple) Validate() error {
	var missing []string
	if strings.TrimSpace(t.RespondentType) == "" {
		missing = append(missing, "respondent_type")
	}
	if strings.TrimSpace(t.Commodity) == "" {
		missing = append(missing, "commodity")
	}
	if strings.TrimSpace(t.Country) == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteTargeting, strings.Join(missing, ", "))
	}
	return nil
}

// Key returns a stable composite form of the tuple for dedup keys, journal
// scopes, and log fields. Axis values never contain '|' in curated data; the
// key is not meant to be parsed back.
func (t TargetingTuple) Key() string {
	return t.RespondentType + "|" + t.Commodity + "|" + t.Country
}

func (t TargetingTuple) String() string {
	return fmt.Sprintf("(%s, %s, %s)", t.RespondentType, t.Commodity, t.Country)
}

// AxisFilter restricts a single targeting axis of a bank item. It is an
// explicit two-state filter — match any value, or match one of a fixed set —
// replacing the legacy convention where an empty list meant "applies
// everywhere". The zero value matches any value.
type AxisFilter struct {
	values map[string]struct{}
}

// MatchAny returns a filter that matches every axis value.
func MatchAny() AxisFilter { return AxisFilter{} }

// MatchOneOf returns a filter matching exactly the given values. Blank values
// are dropped; an empty result collapses to MatchAny, normalizing legacy
// "empty list means all" data at the construction boundary.
func MatchOneOf(values ...string) AxisFilter {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	if len(set) == 0 {
		return AxisFilter{}
	}
	return AxisFilter{values: set}
}

// IsAny reports whether the filter matches every value.
func (f AxisFilter) IsAny() bool { return f.values == nil }

// Matches reports whether the filter admits the given axis value.
func (f AxisFilter) Matches(value string) bool {
	if f.values == nil {
		return true
	}
	_, ok := f.values[value]
	return ok
}

// Values returns the filter's value set in sorted order, or nil for a
// match-any filter. Sorted output keeps persistence and fingerprinting
// deterministic.
func (f AxisFilter) Values() []string {
	if f.values == nil {
		return nil
	}
	out := make([]string, 0, len(f.values))
	for v := range f.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
