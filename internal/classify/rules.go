package classify

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/Amankrah/fsvc-sub000/internal/model"
)

//go:embed rules.yaml
var embeddedRules []byte

// Rule is the declarative form of one classifier, as read from a rules file.
// Kind selects the shape; the remaining fields configure it.
type Rule struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// Values configures kind "enum".
	Values []string `yaml:"values,omitempty"`

	// Currencies configures kind "currency": accepted symbols and codes.
	Currencies []string `yaml:"currencies,omitempty"`

	// Min and Max configure kind "bounded_int".
	Min *int `yaml:"min,omitempty"`
	Max *int `yaml:"max,omitempty"`

	// Categories restricts which item categories can answer this slot.
	// Empty means any category.
	Categories []string `yaml:"categories,omitempty"`

	// ItemKeywords are matched case-insensitively against item text and
	// source tags.
	ItemKeywords []string `yaml:"item_keywords,omitempty"`
}

type rulesFile struct {
	Classifiers []Rule `yaml:"classifiers"`
}

// LoadRules reads a YAML rules document and compiles it into a Set.
func LoadRules(r io.Reader) (*Set, error) {
	var file rulesFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("classify: parse rules: %w", err)
	}
	return FromRules(file.Classifiers)
}

// LoadRulesFile reads and compiles a rules file from disk.
func LoadRulesFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("classify: open rules file: %w", err)
	}
	defer f.Close()
	return LoadRules(f)
}

// FromRules compiles declarative rules into a Set, preserving order.
func FromRules(rules []Rule) (*Set, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("classify: no classifier rules defined")
	}

	seen := make(map[string]bool, len(rules))
	classifiers := make([]ValueClassifier, 0, len(rules))
	for i, rule := range rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("classify: rule %d has no name", i)
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("classify: duplicate rule name %q", rule.Name)
		}
		seen[rule.Name] = true

		c, err := compileRule(rule)
		if err != nil {
			return nil, fmt.Errorf("classify: rule %q: %w", rule.Name, err)
		}
		classifiers = append(classifiers, c)
	}
	return New(classifiers...), nil
}

func compileRule(rule Rule) (ValueClassifier, error) {
	b := base{
		name:       rule.Name,
		categories: make(map[model.Category]struct{}, len(rule.Categories)),
	}
	for _, c := range rule.Categories {
		b.categories[model.Category(c)] = struct{}{}
	}
	for _, kw := range rule.ItemKeywords {
		kw = normalizeValue(kw)
		if kw != "" {
			b.keywords = append(b.keywords, keywordPattern(kw))
		}
	}

	switch rule.Kind {
	case "age_range":
		return ageRange{base: b}, nil

	case "enum":
		if len(rule.Values) == 0 {
			return nil, fmt.Errorf("enum kind requires values")
		}
		values := make(map[string]struct{}, len(rule.Values))
		for _, v := range rule.Values {
			values[normalizeValue(v)] = struct{}{}
		}
		return enumValues{base: b, values: values}, nil

	case "currency":
		if len(rule.Currencies) == 0 {
			return nil, fmt.Errorf("currency kind requires currencies")
		}
		return currencyAmount{base: b, pattern: compileCurrencyPattern(rule.Currencies)}, nil

	case "bounded_int":
		if rule.Min == nil || rule.Max == nil {
			return nil, fmt.Errorf("bounded_int kind requires min and max")
		}
		if *rule.Min > *rule.Max {
			return nil, fmt.Errorf("bounded_int min %d exceeds max %d", *rule.Min, *rule.Max)
		}
		if len(rule.ItemKeywords) == 0 {
			return nil, fmt.Errorf("bounded_int kind requires item_keywords; a bare integer matches too much otherwise")
		}
		return boundedInteger{base: b, min: *rule.Min, max: *rule.Max}, nil

	case "json_array":
		return jsonArray{base: b}, nil

	default:
		return nil, fmt.Errorf("unknown kind %q", rule.Kind)
	}
}

var defaultSet = sync.OnceValue(func() *Set {
	set, err := LoadRules(bytes.NewReader(embeddedRules))
	if err != nil {
		panic("classify: embedded rules are invalid: " + err.Error())
	}
	return set
})

// Default returns the Set compiled from the embedded rules. The result is
// shared; use With to extend it without affecting other callers.
func Default() *Set {
	return defaultSet()
}
