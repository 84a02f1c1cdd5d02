package classify

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/Amankrah/fsvc-sub000/internal/model"
)

// base carries the item-side matching shared by every shape: an optional
// category restriction and keywords checked against item text and source
// tags.
type base struct {
	name       string
	categories map[model.Category]struct{}
	keywords   []*regexp.Regexp
}

func (b base) Name() string { return b.name }

func (b base) MatchItem(item model.BankItem) bool {
	if len(b.categories) > 0 {
		if _, ok := b.categories[item.Category]; !ok {
			return false
		}
	}
	if len(b.keywords) == 0 {
		return true
	}
	hay := strings.ToLower(item.Text + " " + strings.Join(item.SourceTags, " "))
	for _, re := range b.keywords {
		if re.MatchString(hay) {
			return true
		}
	}
	return false
}

// keywordPattern matches the keyword on word boundaries, so "age" does not
// fire inside "village" or "storage".
func keywordPattern(kw string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(kw)) + `\b`)
}

// ageRange matches interval-style age values: "40-49", "18 to 24",
// "under 18", "65+", "over 65".
type ageRange struct {
	base
}

var ageRangePattern = regexp.MustCompile(
	`^(?i)\s*(?:\d{1,3}\s*(?:-|–|to)\s*\d{1,3}|(?:under|below)\s*\d{1,3}|\d{1,3}\s*\+|(?:over|above)\s*\d{1,3})\s*$`)

func (ageRange) MatchValue(value string) bool {
	return ageRangePattern.MatchString(value)
}

func (ageRange) Definitive() bool { return true }

// enumValues matches values from a fixed, case-insensitive vocabulary.
type enumValues struct {
	base
	values map[string]struct{}
}

func (e enumValues) MatchValue(value string) bool {
	_, ok := e.values[normalizeValue(value)]
	return ok
}

func (enumValues) Definitive() bool { return true }

// currencyAmount matches numbers carrying one of the configured currency
// tokens, before or after the amount: "GHS 1,200.50", "GHC10,000", "500 KES".
// A bare number never matches; the token is what makes the shape definitive.
type currencyAmount struct {
	base
	pattern *regexp.Regexp
}

func compileCurrencyPattern(tokens []string) *regexp.Regexp {
	escaped := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		escaped = append(escaped, regexp.QuoteMeta(t))
	}
	alt := strings.Join(escaped, "|")
	return regexp.MustCompile(
		`(?i)^\s*(?:(?:` + alt + `)\s*-?\d[\d,.\s]*|-?\d[\d,.\s]*\s*(?:` + alt + `))\s*$`)
}

func (c currencyAmount) MatchValue(value string) bool {
	return c.pattern.MatchString(value)
}

func (currencyAmount) Definitive() bool { return true }

// boundedInteger matches bare integers within a closed range. Deliberately
// not definitive: a small integer could be an age, a count, or a score, so
// it recovers answers through the slot table but never vetoes a positional
// assignment.
type boundedInteger struct {
	base
	min, max int
}

func (b boundedInteger) MatchValue(value string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return n >= b.min && n <= b.max
}

func (boundedInteger) Definitive() bool { return false }

// jsonArray matches multi-select values captured as a JSON array.
type jsonArray struct {
	base
}

func (jsonArray) MatchValue(value string) bool {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "[") {
		return false
	}
	var arr []any
	return json.Unmarshal([]byte(value), &arr) == nil
}

func (jsonArray) Definitive() bool { return true }
