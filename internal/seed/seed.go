// Package seed loads curator-authored bank items and development fixtures
// from YAML files into storage.
package seed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Amankrah/fsvc-sub000/internal/intake"
	"github.com/Amankrah/fsvc-sub000/internal/model"
	"github.com/Amankrah/fsvc-sub000/internal/storage"
)

// File is one declarative seed document. Bank items are the primary payload;
// projects and respondents are optional fixtures for development databases.
type File struct {
	Projects    []ProjectSpec    `yaml:"projects,omitempty"`
	BankItems   []ItemSpec       `yaml:"bank_items,omitempty"`
	Respondents []RespondentSpec `yaml:"respondents,omitempty"`
}

// ProjectSpec declares a project and its allowed targeting axes.
type ProjectSpec struct {
	Name            string   `yaml:"name"`
	RespondentTypes []string `yaml:"respondent_types"`
	Commodities     []string `yaml:"commodities"`
	Countries       []string `yaml:"countries"`
}

// ItemSpec is one bank item. An omitted or empty axis list means the item
// applies to every value on that axis.
type ItemSpec struct {
	Text            string   `yaml:"text"`
	Category        string   `yaml:"category"`
	Priority        int      `yaml:"priority"`
	WorkPackage     string   `yaml:"work_package,omitempty"`
	SourceTags      []string `yaml:"source_tags,omitempty"`
	RespondentTypes []string `yaml:"respondent_types,omitempty"`
	Commodities     []string `yaml:"commodities,omitempty"`
	Countries       []string `yaml:"countries,omitempty"`
}

// RespondentSpec registers a fixture respondent in the named project, with
// optional answers.
type RespondentSpec struct {
	Project        string       `yaml:"project"`
	RespondentType string       `yaml:"respondent_type"`
	Commodity      string       `yaml:"commodity"`
	Country        string       `yaml:"country"`
	Answers        []AnswerSpec `yaml:"answers,omitempty"`
}

// AnswerSpec is a fixture answer recorded without a question link, the shape
// a legacy import delivers.
type AnswerSpec struct {
	Category string `yaml:"category"`
	Value    string `yaml:"value"`
}

// Result counts what one Apply wrote.
type Result struct {
	Projects     int
	Items        int
	SkippedItems int
	Respondents  int
	Answers      int
}

// Loader applies seed files to storage.
type Loader struct {
	db       *storage.DB
	recorder *intake.Recorder
	logger   *slog.Logger
}

// New creates a Loader writing items through db and fixture answers through
// recorder.
func New(db *storage.DB, recorder *intake.Recorder, logger *slog.Logger) *Loader {
	return &Loader{db: db, recorder: recorder, logger: logger}
}

// Parse reads one YAML seed document. Unknown fields are rejected, so typos
// in hand-written files fail loudly.
func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("seed: parse: %w", err)
	}
	return f, nil
}

// ParseFile reads a seed document from disk.
func ParseFile(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("seed: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Apply writes the document's contents: projects first, then bank items, then
// respondents with their answers. Projects whose name already exists are
// reused, and bank items already present with the same text and category are
// skipped, so reseeding an amended file only adds what is new.
func (l *Loader) Apply(ctx context.Context, file File) (Result, error) {
	var res Result

	projects, err := l.applyProjects(ctx, file.Projects, &res)
	if err != nil {
		return res, err
	}
	if err := l.applyItems(ctx, file.BankItems, &res); err != nil {
		return res, err
	}
	if err := l.applyRespondents(ctx, file.Respondents, projects, &res); err != nil {
		return res, err
	}

	l.logger.Info("seed: applied",
		"projects", res.Projects,
		"items", res.Items,
		"skipped_items", res.SkippedItems,
		"respondents", res.Respondents,
		"answers", res.Answers,
	)
	return res, nil
}

func (l *Loader) applyProjects(ctx context.Context, specs []ProjectSpec, res *Result) (map[string]uuid.UUID, error) {
	existing, err := l.db.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	projects := make(map[string]uuid.UUID, len(existing))
	for _, p := range existing {
		projects[p.Name] = p.ID
	}

	for i, decl := range specs {
		if strings.TrimSpace(decl.Name) == "" {
			return nil, fmt.Errorf("seed: project %d has no name", i)
		}
		if _, ok := projects[decl.Name]; ok {
			l.logger.Debug("seed: project exists, reusing", "name", decl.Name)
			continue
		}
		p, err := l.db.CreateProject(ctx, model.Project{
			Name:            decl.Name,
			RespondentTypes: decl.RespondentTypes,
			Commodities:     decl.Commodities,
			Countries:       decl.Countries,
		})
		if err != nil {
			return nil, fmt.Errorf("seed: project %q: %w", decl.Name, err)
		}
		projects[p.Name] = p.ID
		res.Projects++
	}
	return projects, nil
}

func (l *Loader) applyItems(ctx context.Context, specs []ItemSpec, res *Result) error {
	if len(specs) == 0 {
		return nil
	}

	existing, err := l.db.ListBankItems(ctx)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, item := range existing {
		seen[itemKey(item.Text, string(item.Category))] = true
	}

	var items []model.BankItem
	for i, decl := range specs {
		if strings.TrimSpace(decl.Text) == "" {
			return fmt.Errorf("seed: bank item %d has no text", i)
		}
		if strings.TrimSpace(decl.Category) == "" {
			return fmt.Errorf("seed: bank item %d (%q) has no category", i, decl.Text)
		}
		cat := model.Category(decl.Category)
		if !cat.Known() {
			l.logger.Warn("seed: bank item category outside the fixed taxonomy",
				"text", decl.Text, "category", decl.Category)
		}
		if seen[itemKey(decl.Text, decl.Category)] {
			res.SkippedItems++
			continue
		}
		seen[itemKey(decl.Text, decl.Category)] = true

		items = append(items, model.BankItem{
			Text:            decl.Text,
			Category:        cat,
			Priority:        decl.Priority,
			WorkPackage:     decl.WorkPackage,
			SourceTags:      decl.SourceTags,
			RespondentTypes: model.MatchOneOf(decl.RespondentTypes...),
			Commodities:     model.MatchOneOf(decl.Commodities...),
			Countries:       model.MatchOneOf(decl.Countries...),
		})
	}

	count, err := l.db.InsertBankItems(ctx, items)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	res.Items = int(count)
	return nil
}

func (l *Loader) applyRespondents(ctx context.Context, specs []RespondentSpec, projects map[string]uuid.UUID, res *Result) error {
	for i, decl := range specs {
		projectID, ok := projects[decl.Project]
		if !ok {
			return fmt.Errorf("seed: respondent %d references unknown project %q", i, decl.Project)
		}
		tuple := model.TargetingTuple{
			RespondentType: decl.RespondentType,
			Commodity:      decl.Commodity,
			Country:        decl.Country,
		}
		r, err := l.recorder.RegisterRespondent(ctx, projectID, tuple)
		if err != nil {
			return fmt.Errorf("seed: respondent %d: %w", i, err)
		}
		res.Respondents++

		if len(decl.Answers) == 0 {
			continue
		}
		inputs := make([]intake.AnswerInput, 0, len(decl.Answers))
		for _, a := range decl.Answers {
			inputs = append(inputs, intake.AnswerInput{
				Value:            a.Value,
				DeclaredCategory: model.Category(a.Category),
			})
		}
		if _, err := l.recorder.RecordBatch(ctx, r.ID, inputs); err != nil {
			return fmt.Errorf("seed: respondent %d answers: %w", i, err)
		}
		res.Answers += len(inputs)
	}
	return nil
}

func itemKey(text, category string) string {
	return text + "\x00" + category
}
