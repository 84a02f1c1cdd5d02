// Package fsvc is the public API for embedding the survey question targeting
// and reconciliation engine.
//
// Research-platform consumers import this package to drive the full question
// lifecycle — catalog targeting, questionnaire materialization, answer
// intake, reconciliation, and matrix export — without touching internal
// packages:
//
//	core, err := fsvc.New(
//	    fsvc.WithVersion(version),
//	    fsvc.WithLogger(logger),
//	    fsvc.WithClassifier(myCropCodeClassifier{}),
//	)
//	if err != nil { ... }
//	defer core.Close(context.Background())
//
//	report, err := core.ReconcileProject(ctx, projectID, nil)
//
// The import graph enforces a strict no-cycle rule: fsvc (root) imports
// internal/*, but internal/* never imports fsvc (root). Public types
// (Project, BankItem, ReconciliationReport, etc.) are standalone structs with
// no internal imports; conversion helpers (toPublicQuestion, toPublicReport)
// live here because this is the only file that sees both sides of the
// boundary.
package fsvc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/Amankrah/fsvc-sub000/internal/catalog"
	"github.com/Amankrah/fsvc-sub000/internal/classify"
	"github.com/Amankrah/fsvc-sub000/internal/config"
	"github.com/Amankrah/fsvc-sub000/internal/export"
	"github.com/Amankrah/fsvc-sub000/internal/intake"
	"github.com/Amankrah/fsvc-sub000/internal/journal"
	"github.com/Amankrah/fsvc-sub000/internal/materialize"
	"github.com/Amankrah/fsvc-sub000/internal/model"
	"github.com/Amankrah/fsvc-sub000/internal/reconcile"
	"github.com/Amankrah/fsvc-sub000/internal/seed"
	"github.com/Amankrah/fsvc-sub000/internal/storage"
	"github.com/Amankrah/fsvc-sub000/internal/telemetry"
	"github.com/Amankrah/fsvc-sub000/migrations"
)

// Public sentinel errors. Internal errors are translated onto these at the
// API boundary so callers can errors.Is without importing internal packages.
var (
	// ErrNotFound is returned when a referenced project, respondent, bank
	// item, or question does not exist.
	ErrNotFound = errors.New("fsvc: not found")

	// ErrIncompleteTargeting is returned when a targeting tuple is missing
	// one or more of its three axes.
	ErrIncompleteTargeting = errors.New("fsvc: incomplete targeting tuple")

	// ErrTupleOutsideProject is returned when a tuple names an axis value the
	// project's targeting configuration does not declare.
	ErrTupleOutsideProject = errors.New("fsvc: tuple outside project targeting configuration")

	// ErrOrdinalConflict is returned when concurrent materializations race on
	// a project's ordinal counter; the caller may retry.
	ErrOrdinalConflict = errors.New("fsvc: ordinal allocation conflict")

	// ErrDuplicateQuestion is returned when a manually appended question
	// duplicates an existing (text, tuple) pair in the project.
	ErrDuplicateQuestion = errors.New("fsvc: question already generated for this text and tuple")
)

// Core is the engine lifecycle. Construct with New(), release with Close().
// Core has no public fields — use New() options to configure it.
type Core struct {
	cfg          config.Config
	db           *storage.DB
	loader       *catalog.Loader
	materializer *materialize.Materializer
	recorder     *intake.Recorder
	runner       *reconcile.Runner
	exporter     *export.Exporter
	seeder       *seed.Loader
	jnl          *journal.Journal // nil when journaling is disabled
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the engine. It connects to the database, runs migrations,
// and wires all subsystems. It starts no goroutines; reconciliation worker
// pools live only for the duration of a Reconcile call.
func New(opts ...Option) (*Core, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// A .env file is a local-development convenience; absence is fine.
	_ = godotenv.Load()

	// Environment first, then explicit options override.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.journalPath != "" {
		cfg.JournalPath = o.journalPath
	}
	if o.rulesPath != "" {
		cfg.ClassifierRulesPath = o.rulesPath
	}
	if o.workers != 0 {
		cfg.Workers = o.workers
	}
	if o.batchSize != 0 {
		cfg.IngestBatchSize = o.batchSize
	}
	if o.shapeGuard != nil {
		cfg.ShapeGuard = *o.shapeGuard
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("fsvc starting", "version", version, "workers", cfg.Workers, "shape_guard", cfg.ShapeGuard)

	otelShutdown, err := telemetry.Init(context.Background(), telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	// Build the classifier set: embedded rules unless overridden, then any
	// registered extensions after the built-ins.
	classifiers := classify.Default()
	if cfg.ClassifierRulesPath != "" {
		classifiers, err = classify.LoadRulesFile(cfg.ClassifierRulesPath)
		if err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("classifier rules: %w", err)
		}
		logger.Info("classifier rules loaded", "path", cfg.ClassifierRulesPath, "classifiers", classifiers.Len())
	}
	if len(o.classifiers) > 0 {
		extra := make([]classify.ValueClassifier, len(o.classifiers))
		for i, c := range o.classifiers {
			extra[i] = &classifierAdapter{c: c}
		}
		classifiers = classifiers.With(extra...)
		logger.Info("external classifiers registered", "count", len(o.classifiers))
	}

	// Open the run journal.
	var jnl *journal.Journal
	if cfg.JournalPath != "" {
		jnl, err = journal.Open(cfg.JournalPath)
		if err != nil {
			db.Close()
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("journal: %w", err)
		}
		logger.Info("run journal", "enabled", true, "path", cfg.JournalPath)
	} else {
		logger.Info("run journal", "enabled", false)
	}

	loader := catalog.NewLoader(db)
	engine := reconcile.NewEngine(classifiers, cfg.ShapeGuard)
	recorder := intake.New(db, cfg.IngestBatchSize, logger)

	return &Core{
		cfg:          cfg,
		db:           db,
		loader:       loader,
		materializer: materialize.New(db, loader, logger),
		recorder:     recorder,
		runner:       reconcile.NewRunner(db, loader, engine, jnl, cfg.Workers, logger),
		exporter:     export.New(db, loader, logger),
		seeder:       seed.New(db, recorder, logger),
		jnl:          jnl,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Close releases the journal, the database pool, and the OTEL provider.
func (c *Core) Close(ctx context.Context) error {
	c.logger.Info("fsvc closing")

	var errs []error
	if c.jnl != nil {
		if err := c.jnl.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal close: %w", err))
		}
	}
	if err := c.otelShutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	c.db.Close()
	return errors.Join(errs...)
}

// ── Projects ───────────────────────────────────────────────────────────────────

// CreateProject creates a research deployment from its name and declared axis
// lists. ID and CreatedAt are assigned by the store.
func (c *Core) CreateProject(ctx context.Context, p Project) (Project, error) {
	created, err := c.db.CreateProject(ctx, model.Project{
		Name:            p.Name,
		RespondentTypes: p.RespondentTypes,
		Commodities:     p.Commodities,
		Countries:       p.Countries,
	})
	if err != nil {
		return Project{}, wrapErr(err)
	}
	return toPublicProject(created), nil
}

// Project retrieves a project by id.
func (c *Core) Project(ctx context.Context, id uuid.UUID) (Project, error) {
	p, err := c.db.GetProject(ctx, id)
	if err != nil {
		return Project{}, wrapErr(err)
	}
	return toPublicProject(p), nil
}

// Projects lists all projects, oldest first.
func (c *Core) Projects(ctx context.Context) ([]Project, error) {
	list, err := c.db.ListProjects(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]Project, len(list))
	for i, p := range list {
		out[i] = toPublicProject(p)
	}
	return out, nil
}

// ── Question bank ──────────────────────────────────────────────────────────────

// CreateBankItem adds one item to the shared question bank. ID and CreatedAt
// are assigned by the store; a nil axis list applies the item to every value
// on that axis.
func (c *Core) CreateBankItem(ctx context.Context, item BankItem) (BankItem, error) {
	created, err := c.db.CreateBankItem(ctx, fromPublicBankItem(item))
	if err != nil {
		return BankItem{}, wrapErr(err)
	}
	return toPublicBankItem(created), nil
}

// BankItems lists the entire question bank.
func (c *Core) BankItems(ctx context.Context) ([]BankItem, error) {
	items, err := c.db.ListBankItems(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]BankItem, len(items))
	for i, it := range items {
		out[i] = toPublicBankItem(it)
	}
	return out, nil
}

// Catalog returns the bank items applicable to the tuple in canonical order:
// taxonomy category first, then priority descending, then text.
func (c *Core) Catalog(ctx context.Context, tuple TargetingTuple) ([]BankItem, error) {
	mt := fromPublicTuple(tuple)
	if err := mt.Validate(); err != nil {
		return nil, wrapErr(err)
	}
	snap, err := c.loader.Snapshot(ctx, mt)
	if err != nil {
		return nil, wrapErr(err)
	}
	items := snap.Items()
	out := make([]BankItem, len(items))
	for i, it := range items {
		out[i] = toPublicBankItem(it)
	}
	return out, nil
}

// ── Materialization ────────────────────────────────────────────────────────────

// Materialize generates the project's questions for one targeting tuple from
// the applicable catalog items. Repeating a call is a no-op for items already
// materialized; ordinals only ever grow.
func (c *Core) Materialize(ctx context.Context, projectID uuid.UUID, tuple TargetingTuple, opts MaterializeOptions) (MaterializationResult, error) {
	categories := make([]model.Category, len(opts.Categories))
	for i, cat := range opts.Categories {
		categories[i] = model.Category(cat)
	}
	res, err := c.materializer.Materialize(ctx, projectID, fromPublicTuple(tuple), model.MaterializeOptions{
		Categories:      categories,
		WorkPackages:    opts.WorkPackages,
		ReplaceExisting: opts.ReplaceExisting,
	})
	if err != nil {
		return MaterializationResult{}, wrapErr(err)
	}
	return toPublicResult(res), nil
}

// AppendQuestion adds a manually authored question to the project, allocating
// the next ordinal. The question has no bank item source; reconciliation
// falls back to its captured category and position.
func (c *Core) AppendQuestion(ctx context.Context, projectID uuid.UUID, tuple TargetingTuple, text string) (GeneratedQuestion, error) {
	mt := fromPublicTuple(tuple)
	if err := mt.Validate(); err != nil {
		return GeneratedQuestion{}, wrapErr(err)
	}
	p, err := c.db.GetProject(ctx, projectID)
	if err != nil {
		return GeneratedQuestion{}, wrapErr(err)
	}
	if err := p.AllowsTuple(mt); err != nil {
		return GeneratedQuestion{}, wrapErr(err)
	}
	q, err := c.db.AppendQuestion(ctx, model.GeneratedQuestion{
		ProjectID: projectID,
		Tuple:     mt,
		Text:      text,
	})
	if err != nil {
		return GeneratedQuestion{}, wrapErr(err)
	}
	return toPublicQuestion(q), nil
}

// Questions lists the project's generated questions in ordinal order — the
// sequence an interview client asks them in.
func (c *Core) Questions(ctx context.Context, projectID uuid.UUID) ([]GeneratedQuestion, error) {
	list, err := c.db.ListQuestionsByProject(ctx, projectID)
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]GeneratedQuestion, len(list))
	for i, q := range list {
		out[i] = toPublicQuestion(q)
	}
	return out, nil
}

// ── Intake ─────────────────────────────────────────────────────────────────────

// RegisterRespondent enrols a respondent under the project for one targeting
// tuple. The tuple must be complete and inside the project's declared axes.
func (c *Core) RegisterRespondent(ctx context.Context, projectID uuid.UUID, tuple TargetingTuple) (Respondent, error) {
	r, err := c.recorder.RegisterRespondent(ctx, projectID, fromPublicTuple(tuple))
	if err != nil {
		return Respondent{}, wrapErr(err)
	}
	return toPublicRespondent(r), nil
}

// RecordAnswers stores a batch of raw answers for the respondent, stamping
// each with a captured context frozen at write time.
func (c *Core) RecordAnswers(ctx context.Context, respondentID uuid.UUID, inputs []AnswerInput) ([]AnswerRecord, error) {
	in := make([]intake.AnswerInput, len(inputs))
	for i, a := range inputs {
		in[i] = intake.AnswerInput{
			QuestionID:       a.QuestionID,
			Value:            a.Value,
			CollectedAt:      a.CollectedAt,
			DeclaredCategory: model.Category(a.DeclaredCategory),
		}
	}
	records, err := c.recorder.RecordBatch(ctx, respondentID, in)
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]AnswerRecord, len(records))
	for i, r := range records {
		out[i] = toPublicAnswer(r)
	}
	return out, nil
}

// SetCompletionState moves the respondent to the given interview state.
func (c *Core) SetCompletionState(ctx context.Context, respondentID uuid.UUID, state CompletionState) error {
	return wrapErr(c.recorder.SetCompletionState(ctx, respondentID, model.CompletionState(state)))
}

// ── Reconciliation ─────────────────────────────────────────────────────────────

// ReconcileProject reconciles every answer of the project (or of one tuple
// when scope is non-nil) against the current catalog and returns the full
// report. Each call is a fresh run; use ReconcileRun to resume one.
func (c *Core) ReconcileProject(ctx context.Context, projectID uuid.UUID, scope *TargetingTuple) (ReconciliationReport, error) {
	return c.ReconcileRun(ctx, projectID, scope, uuid.New())
}

// ReconcileRun reconciles under a caller-chosen run id. When journaling is
// enabled, re-running a finished id returns the recorded report, and an
// interrupted run resumes past its checkpointed respondents — provided the
// catalog fingerprint still matches.
func (c *Core) ReconcileRun(ctx context.Context, projectID uuid.UUID, scope *TargetingTuple, runID uuid.UUID) (ReconciliationReport, error) {
	runCtx, cancel := c.runContext(ctx)
	defer cancel()

	var ms *model.TargetingTuple
	if scope != nil {
		t := fromPublicTuple(*scope)
		ms = &t
	}
	report, err := c.runner.Run(runCtx, projectID, ms, runID)
	if err != nil {
		return ReconciliationReport{}, wrapErr(err)
	}
	return toPublicReport(report), nil
}

// RunSummaries lists the persisted counters of the project's past
// reconciliation runs, most recent first.
func (c *Core) RunSummaries(ctx context.Context, projectID uuid.UUID, limit int) ([]RunSummary, error) {
	list, err := c.db.ListRunSummaries(ctx, projectID, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make([]RunSummary, len(list))
	for i, s := range list {
		out[i] = toPublicRunSummary(s)
	}
	return out, nil
}

// ── Export ─────────────────────────────────────────────────────────────────────

// ExportMatrix reconciles the tuple's answers and assembles them into the
// respondent × bank-item matrix, with per-column completion statistics.
func (c *Core) ExportMatrix(ctx context.Context, projectID uuid.UUID, tuple TargetingTuple) (RowSet, error) {
	runCtx, cancel := c.runContext(ctx)
	defer cancel()

	mt := fromPublicTuple(tuple)
	report, err := c.runner.Run(runCtx, projectID, &mt, uuid.New())
	if err != nil {
		return RowSet{}, wrapErr(err)
	}
	rs, err := c.exporter.Matrix(runCtx, projectID, mt, report)
	if err != nil {
		return RowSet{}, wrapErr(err)
	}
	return toPublicRowSet(rs), nil
}

// ── Seeding ────────────────────────────────────────────────────────────────────

// Seed applies a YAML seed document: projects, bank items, and development
// fixture respondents. Reapplying a document only adds what is missing.
func (c *Core) Seed(ctx context.Context, r io.Reader) (SeedResult, error) {
	file, err := seed.Parse(r)
	if err != nil {
		return SeedResult{}, err
	}
	return c.applySeed(ctx, file)
}

// SeedFile is Seed reading from a file path.
func (c *Core) SeedFile(ctx context.Context, path string) (SeedResult, error) {
	file, err := seed.ParseFile(path)
	if err != nil {
		return SeedResult{}, err
	}
	return c.applySeed(ctx, file)
}

func (c *Core) applySeed(ctx context.Context, file seed.File) (SeedResult, error) {
	res, err := c.seeder.Apply(ctx, file)
	if err != nil {
		return SeedResult{}, wrapErr(err)
	}
	return SeedResult{
		Projects:     res.Projects,
		Items:        res.Items,
		SkippedItems: res.SkippedItems,
		Respondents:  res.Respondents,
		Answers:      res.Answers,
	}, nil
}

// ── Classifier adapter ─────────────────────────────────────────────────────────

// classifierAdapter wraps a public ValueClassifier to satisfy the internal
// classify.ValueClassifier. It converts internal bank items to public ones at
// the boundary.
type classifierAdapter struct {
	c ValueClassifier
}

func (a *classifierAdapter) Name() string { return a.c.Name() }

func (a *classifierAdapter) MatchValue(value string) bool { return a.c.MatchValue(value) }

func (a *classifierAdapter) MatchItem(item model.BankItem) bool {
	return a.c.MatchItem(toPublicBankItem(item))
}

func (a *classifierAdapter) Definitive() bool { return a.c.Definitive() }

// ── Boundary conversions ───────────────────────────────────────────────────────

// fromPublicTuple converts a public TargetingTuple to the internal model.
// Lives here because this is the only file that imports both sides of the
// boundary.
func fromPublicTuple(t TargetingTuple) model.TargetingTuple {
	return model.TargetingTuple{
		RespondentType: t.RespondentType,
		Commodity:      t.Commodity,
		Country:        t.Country,
	}
}

func toPublicTuple(t model.TargetingTuple) TargetingTuple {
	return TargetingTuple{
		RespondentType: t.RespondentType,
		Commodity:      t.Commodity,
		Country:        t.Country,
	}
}

func toPublicProject(p model.Project) Project {
	return Project{
		ID:              p.ID,
		Name:            p.Name,
		RespondentTypes: p.RespondentTypes,
		Commodities:     p.Commodities,
		Countries:       p.Countries,
		CreatedAt:       p.CreatedAt,
	}
}

func fromPublicBankItem(b BankItem) model.BankItem {
	return model.BankItem{
		Text:            b.Text,
		Category:        model.Category(b.Category),
		Priority:        b.Priority,
		WorkPackage:     b.WorkPackage,
		SourceTags:      b.SourceTags,
		RespondentTypes: model.MatchOneOf(b.RespondentTypes...),
		Commodities:     model.MatchOneOf(b.Commodities...),
		Countries:       model.MatchOneOf(b.Countries...),
	}
}

func toPublicBankItem(b model.BankItem) BankItem {
	return BankItem{
		ID:              b.ID,
		Text:            b.Text,
		Category:        Category(b.Category),
		Priority:        b.Priority,
		WorkPackage:     b.WorkPackage,
		SourceTags:      b.SourceTags,
		RespondentTypes: b.RespondentTypes.Values(),
		Commodities:     b.Commodities.Values(),
		Countries:       b.Countries.Values(),
		CreatedAt:       b.CreatedAt,
	}
}

func toPublicQuestion(q model.GeneratedQuestion) GeneratedQuestion {
	return GeneratedQuestion{
		ID:         q.ID,
		ProjectID:  q.ProjectID,
		BankItemID: q.BankItemID,
		Tuple:      toPublicTuple(q.Tuple),
		Text:       q.Text,
		Ordinal:    q.Ordinal,
		CreatedAt:  q.CreatedAt,
	}
}

func toPublicResult(r model.MaterializationResult) MaterializationResult {
	created := make([]GeneratedQuestion, len(r.Created))
	for i, q := range r.Created {
		created[i] = toPublicQuestion(q)
	}
	return MaterializationResult{
		Created: created,
		Skipped: r.Skipped,
		Failed:  r.Failed,
		Deleted: r.Deleted,
	}
}

func toPublicRespondent(r model.Respondent) Respondent {
	return Respondent{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		Tuple:     toPublicTuple(r.Tuple),
		State:     CompletionState(r.State),
		CreatedAt: r.CreatedAt,
	}
}

// toPublicAnswer drops the captured context: it is the reconciliation
// engine's evidence, not part of the public answer.
func toPublicAnswer(a model.AnswerRecord) AnswerRecord {
	return AnswerRecord{
		ID:           a.ID,
		RespondentID: a.RespondentID,
		QuestionID:   a.QuestionID,
		Value:        a.Value,
		CollectedAt:  a.CollectedAt,
		Seq:          a.Seq,
	}
}

func toPublicReport(r model.ReconciliationReport) ReconciliationReport {
	var scope *TargetingTuple
	if r.Scope != nil {
		t := toPublicTuple(*r.Scope)
		scope = &t
	}
	byStrategy := make(map[Strategy]int, len(r.ByStrategy))
	for s, n := range r.ByStrategy {
		byStrategy[Strategy(s)] = n
	}
	mapping := make([]ResolvedAnswer, len(r.Mapping))
	for i, m := range r.Mapping {
		mapping[i] = ResolvedAnswer{
			AnswerID:     m.AnswerID,
			RespondentID: m.RespondentID,
			BankItemID:   m.BankItemID,
			Strategy:     Strategy(m.Strategy),
		}
	}
	return ReconciliationReport{
		ProjectID:       r.ProjectID,
		Scope:           scope,
		Respondents:     r.Respondents,
		ByStrategy:      byStrategy,
		Unresolved:      r.Unresolved,
		Inconsistencies: r.Inconsistencies,
		DuplicateClaims: r.DuplicateClaims,
		Mapping:         mapping,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
	}
}

func toPublicRunSummary(s model.RunSummary) RunSummary {
	var scope *TargetingTuple
	if s.Scope != nil {
		t := toPublicTuple(*s.Scope)
		scope = &t
	}
	byStrategy := make(map[Strategy]int, len(s.ByStrategy))
	for st, n := range s.ByStrategy {
		byStrategy[Strategy(st)] = n
	}
	return RunSummary{
		RunID:       s.RunID,
		ProjectID:   s.ProjectID,
		Scope:       scope,
		Respondents: s.Respondents,
		ByStrategy:  byStrategy,
		Unresolved:  s.Unresolved,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
	}
}

func toPublicRowSet(rs export.RowSet) RowSet {
	columns := make([]Column, len(rs.Columns))
	for i, col := range rs.Columns {
		columns[i] = Column{
			BankItemID:     col.BankItemID,
			Text:           col.Text,
			Category:       Category(col.Category),
			Filled:         col.Filled,
			CompletionRate: col.CompletionRate,
		}
	}
	rows := make([]Row, len(rs.Rows))
	for i, row := range rs.Rows {
		rows[i] = Row{
			RespondentID: row.RespondentID,
			State:        CompletionState(row.State),
			Cells:        row.Cells,
		}
	}
	return RowSet{
		ProjectID: rs.ProjectID,
		Tuple:     toPublicTuple(rs.Tuple),
		Columns:   columns,
		Rows:      rows,
	}
}

// WriteCSV renders the row set as CSV: a header of respondent_id and
// completion_state followed by one column per bank item, then one line per
// respondent. Defined on the public type here so it can share the internal
// renderer.
func (rs RowSet) WriteCSV(w io.Writer) error {
	columns := make([]export.Column, len(rs.Columns))
	for i, col := range rs.Columns {
		columns[i] = export.Column{
			BankItemID:     col.BankItemID,
			Text:           col.Text,
			Category:       model.Category(col.Category),
			Filled:         col.Filled,
			CompletionRate: col.CompletionRate,
		}
	}
	rows := make([]export.Row, len(rs.Rows))
	for i, row := range rs.Rows {
		rows[i] = export.Row{
			RespondentID: row.RespondentID,
			State:        model.CompletionState(row.State),
			Cells:        row.Cells,
		}
	}
	return export.WriteCSV(w, export.RowSet{
		ProjectID: rs.ProjectID,
		Tuple:     fromPublicTuple(rs.Tuple),
		Columns:   columns,
		Rows:      rows,
	})
}

// ── Helpers ────────────────────────────────────────────────────────────────────

// wrapErr translates internal sentinel errors onto their public counterparts
// at the API boundary. Errors with no public counterpart pass through as-is.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	for _, m := range []struct{ internal, public error }{
		{storage.ErrNotFound, ErrNotFound},
		{storage.ErrOrdinalConflict, ErrOrdinalConflict},
		{storage.ErrDuplicateQuestion, ErrDuplicateQuestion},
		{model.ErrIncompleteTargeting, ErrIncompleteTargeting},
		{model.ErrTupleOutsideProject, ErrTupleOutsideProject},
	} {
		if errors.Is(err, m.internal) {
			return fmt.Errorf("%w: %v", m.public, err)
		}
	}
	return err
}

// runContext derives the context for a full pass, applying the configured run
// timeout when one is set.
func (c *Core) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.RunTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.cfg.RunTimeout)
}
