package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Amankrah/fsvc-sub000/internal/catalog"
	"github.com/Amankrah/fsvc-sub000/internal/classify"
	"github.com/Amankrah/fsvc-sub000/internal/journal"
	"github.com/Amankrah/fsvc-sub000/internal/model"
	"github.com/Amankrah/fsvc-sub000/internal/storage"
	"github.com/Amankrah/fsvc-sub000/internal/telemetry"
)

const defaultWorkers = 8

// Runner reconciles whole projects: it loads the catalog views and answer
// streams, fans respondents out to an engine worker pool, checkpoints
// progress, and assembles the report.
type Runner struct {
	db      *storage.DB
	loader  *catalog.Loader
	engine  *Engine
	journal *journal.Journal
	workers int
	logger  *slog.Logger

	tracer     trace.Tracer
	duration   metric.Float64Histogram
	resolved   metric.Int64Counter
	unresolved metric.Int64Counter
}

// NewRunner creates a Runner. jnl may be nil to disable checkpointing;
// workers <= 0 falls back to the default pool size.
func NewRunner(db *storage.DB, loader *catalog.Loader, engine *Engine, jnl *journal.Journal, workers int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = defaultWorkers
	}
	meter := telemetry.Meter("fsvc/reconcile")
	dur, _ := meter.Float64Histogram("fsvc.reconcile.run.duration",
		metric.WithDescription("Time to reconcile one project run (ms)"),
		metric.WithUnit("ms"),
	)
	resolved, _ := meter.Int64Counter("fsvc.reconcile.answers_resolved",
		metric.WithDescription("Answers resolved to a bank item"),
	)
	unresolved, _ := meter.Int64Counter("fsvc.reconcile.answers_unresolved",
		metric.WithDescription("Answers left unresolved"),
	)
	return &Runner{
		db:         db,
		loader:     loader,
		engine:     engine,
		journal:    jnl,
		workers:    workers,
		logger:     logger,
		tracer:     telemetry.Tracer("fsvc/reconcile"),
		duration:   dur,
		resolved:   resolved,
		unresolved: unresolved,
	}
}

// tupleView pairs a catalog snapshot with its precomputed slot table.
type tupleView struct {
	snapshot  *catalog.Snapshot
	slotTable classify.SlotTable
}

// Run reconciles every respondent of the project, restricted to one tuple
// when scope is non-nil. runID names the run for journal checkpointing;
// passing uuid.Nil starts a fresh run, passing a previous run's id resumes it
// if the catalog is unchanged.
//
// Respondents reconcile independently on a bounded worker pool; the report
// aggregates them in respondent order, so the output is deterministic for
// unchanged inputs regardless of worker interleaving.
func (r *Runner) Run(ctx context.Context, projectID uuid.UUID, scope *model.TargetingTuple, runID uuid.UUID) (model.ReconciliationReport, error) {
	startedAt := time.Now().UTC()
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	ctx, span := r.tracer.Start(ctx, "reconcile.run", trace.WithAttributes(
		attribute.String("fsvc.run_id", runID.String()),
		attribute.String("fsvc.project_id", projectID.String()),
	))
	defer span.End()

	if scope != nil {
		if err := scope.Validate(); err != nil {
			return model.ReconciliationReport{}, fmt.Errorf("reconcile: %w", err)
		}
	}
	project, err := r.db.GetProject(ctx, projectID)
	if err != nil {
		return model.ReconciliationReport{}, fmt.Errorf("reconcile: %w", err)
	}
	if scope != nil {
		if err := project.AllowsTuple(*scope); err != nil {
			return model.ReconciliationReport{}, fmt.Errorf("reconcile: %w", err)
		}
	}

	respondents, err := r.db.ListRespondents(ctx, projectID, scope)
	if err != nil {
		return model.ReconciliationReport{}, fmt.Errorf("reconcile: %w", err)
	}
	questionList, err := r.db.ListQuestionsByProject(ctx, projectID)
	if err != nil {
		return model.ReconciliationReport{}, fmt.Errorf("reconcile: %w", err)
	}
	questions := make(map[uuid.UUID]model.GeneratedQuestion, len(questionList))
	for _, q := range questionList {
		questions[q.ID] = q
	}

	views, err := r.loadViews(ctx, respondents)
	if err != nil {
		return model.ReconciliationReport{}, err
	}

	span.SetAttributes(attribute.Int("fsvc.respondents", len(respondents)))
	if scope != nil {
		span.SetAttributes(attribute.String("fsvc.scope", scope.Key()))
	}

	jrun, cached, err := r.openJournalRun(ctx, runID, projectID, scope, views)
	if err != nil {
		return model.ReconciliationReport{}, err
	}

	r.logger.Info("reconcile: run started",
		"run_id", runID,
		"project_id", projectID,
		"respondents", len(respondents),
		"checkpointed", len(cached),
	)

	results := make([]RespondentResult, len(respondents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, respondent := range respondents {
		if entry, ok := cached[respondent.ID]; ok {
			results[i] = RespondentResult{
				Resolved:        entry.Resolved,
				Unresolved:      entry.Unresolved,
				Inconsistencies: entry.Inconsistencies,
				DuplicateClaims: entry.DuplicateClaims,
			}
			continue
		}
		g.Go(func() error {
			answers, err := r.db.ListAnswersByRespondent(gctx, respondent.ID)
			if err != nil {
				return fmt.Errorf("reconcile: respondent %s: %w", respondent.ID, err)
			}
			view := views[respondent.Tuple.Key()]
			results[i] = r.engine.Reconcile(RespondentInput{
				Respondent: respondent,
				Answers:    answers,
				Questions:  questions,
				Snapshot:   view.snapshot,
				SlotTable:  view.slotTable,
			})
			r.checkpoint(gctx, jrun, respondent.ID, results[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.ReconciliationReport{}, err
	}

	report := model.ReconciliationReport{
		ProjectID:   projectID,
		Scope:       scope,
		Respondents: len(respondents),
		ByStrategy:  make(map[model.Strategy]int),
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
	}
	for _, res := range results {
		for _, m := range res.Resolved {
			report.ByStrategy[m.Strategy]++
		}
		report.Mapping = append(report.Mapping, res.Resolved...)
		report.Unresolved += res.Unresolved
		report.Inconsistencies += res.Inconsistencies
		report.DuplicateClaims += res.DuplicateClaims
	}

	r.persistSummary(ctx, runID, report)
	if jrun != nil {
		if err := jrun.Complete(ctx); err != nil {
			r.logger.Warn("reconcile: failed to mark journal run complete", "run_id", runID, "error", err)
		}
	}

	r.duration.Record(ctx, float64(time.Since(startedAt).Milliseconds()))
	r.resolved.Add(ctx, int64(report.Resolved()))
	r.unresolved.Add(ctx, int64(report.Unresolved))
	r.logger.Info("reconcile: run complete",
		"run_id", runID,
		"project_id", projectID,
		"respondents", report.Respondents,
		"resolved", report.Resolved(),
		"unresolved", report.Unresolved,
		"inconsistencies", report.Inconsistencies,
		"duplicate_claims", report.DuplicateClaims,
	)
	return report, nil
}

// loadViews builds one catalog view per distinct respondent tuple. Snapshot
// loads are shared through the loader's singleflight, so a wide project does
// not hammer the bank table.
func (r *Runner) loadViews(ctx context.Context, respondents []model.Respondent) (map[string]tupleView, error) {
	views := make(map[string]tupleView)
	for _, respondent := range respondents {
		key := respondent.Tuple.Key()
		if _, ok := views[key]; ok {
			continue
		}
		snap, err := r.loader.Snapshot(ctx, respondent.Tuple)
		if err != nil {
			return nil, fmt.Errorf("reconcile: load catalog for %s: %w", key, err)
		}
		views[key] = tupleView{
			snapshot:  snap,
			slotTable: r.engine.SlotTable(snap.Items()),
		}
	}
	return views, nil
}

// openJournalRun binds the run to the journal and loads reusable checkpoints.
// Reuse is keyed on the combined catalog fingerprint: any checkpoint written
// against a different bank state is discarded.
func (r *Runner) openJournalRun(ctx context.Context, runID, projectID uuid.UUID, scope *model.TargetingTuple, views map[string]tupleView) (*journal.Run, map[uuid.UUID]journal.Entry, error) {
	if r.journal == nil {
		return nil, nil, nil
	}
	scopeKey := ""
	if scope != nil {
		scopeKey = scope.Key()
	}

	jrun, resumed, err := r.journal.OpenRun(ctx, runID, projectID, scopeKey, runFingerprint(views))
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile: %w", err)
	}
	if !resumed {
		return jrun, nil, nil
	}
	cached, err := jrun.Entries(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile: %w", err)
	}
	return jrun, cached, nil
}

// checkpoint records one finished respondent. A journal failure degrades the
// run to non-resumable; it never fails the computation.
func (r *Runner) checkpoint(ctx context.Context, jrun *journal.Run, respondentID uuid.UUID, res RespondentResult) {
	if jrun == nil {
		return
	}
	err := jrun.Checkpoint(ctx, journal.Entry{
		RespondentID:    respondentID,
		Resolved:        res.Resolved,
		Unresolved:      res.Unresolved,
		Inconsistencies: res.Inconsistencies,
		DuplicateClaims: res.DuplicateClaims,
	})
	if err != nil {
		r.logger.Warn("reconcile: checkpoint failed", "respondent_id", respondentID, "error", err)
	}
}

func (r *Runner) persistSummary(ctx context.Context, runID uuid.UUID, report model.ReconciliationReport) {
	err := r.db.InsertRunSummary(ctx, model.RunSummary{
		RunID:       runID,
		ProjectID:   report.ProjectID,
		Scope:       report.Scope,
		Respondents: report.Respondents,
		ByStrategy:  report.ByStrategy,
		Unresolved:  report.Unresolved,
		StartedAt:   report.StartedAt,
		CompletedAt: report.CompletedAt,
	})
	if err != nil {
		r.logger.Warn("reconcile: failed to persist run summary", "run_id", runID, "error", err)
	}
}

// runFingerprint digests every tuple view's fingerprint into one value, so a
// change to any involved catalog view invalidates the whole run's journal.
func runFingerprint(views map[string]tupleView) string {
	parts := make([]string, 0, len(views))
	for key, view := range views {
		parts = append(parts, key+"="+view.snapshot.Fingerprint())
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return "v1:" + hex.EncodeToString(sum[:])
}
