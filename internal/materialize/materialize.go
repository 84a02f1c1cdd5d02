// Package materialize turns catalog items into concrete, persisted questions
// for one project and targeting tuple.
package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/Amankrah/fsvc-sub000/internal/catalog"
	"github.com/Amankrah/fsvc-sub000/internal/model"
	"github.com/Amankrah/fsvc-sub000/internal/storage"
	"github.com/Amankrah/fsvc-sub000/internal/telemetry"
)

const (
	ordinalRetries    = 3
	ordinalRetryDelay = 25 * time.Millisecond
)

// Materializer generates project questions from catalog snapshots.
type Materializer struct {
	db     *storage.DB
	loader *catalog.Loader
	logger *slog.Logger

	duration metric.Float64Histogram
	created  metric.Int64Counter
}

// New creates a Materializer reading the bank through loader and writing
// questions through db.
func New(db *storage.DB, loader *catalog.Loader, logger *slog.Logger) *Materializer {
	meter := telemetry.Meter("fsvc/materialize")
	dur, _ := meter.Float64Histogram("fsvc.materialize.duration",
		metric.WithDescription("Time to materialize questions for one tuple (ms)"),
		metric.WithUnit("ms"),
	)
	created, _ := meter.Int64Counter("fsvc.materialize.questions_created",
		metric.WithDescription("Generated questions created"),
	)
	return &Materializer{
		db:       db,
		loader:   loader,
		logger:   logger,
		duration: dur,
		created:  created,
	}
}

// Materialize generates questions for every catalog item applicable to the
// tuple, narrowed by the optional category and work-package filters. Items
// that already have a question with the same text and tuple in the project
// are skipped, so repeat calls are idempotent. Individual bad items are
// counted and logged, never fatal; only a missing project, a tuple outside
// the project's targeting configuration, or a failed catalog load abort the
// call.
//
// Ordinal allocation is serialized per project. Transient serialization and
// deadlock conflicts retry with backoff; exhausted retries surface as
// storage.ErrOrdinalConflict.
func (m *Materializer) Materialize(ctx context.Context, projectID uuid.UUID, tuple model.TargetingTuple, opts model.MaterializeOptions) (model.MaterializationResult, error) {
	start := time.Now()

	if err := tuple.Validate(); err != nil {
		return model.MaterializationResult{}, fmt.Errorf("materialize: %w", err)
	}

	project, err := m.db.GetProject(ctx, projectID)
	if err != nil {
		return model.MaterializationResult{}, fmt.Errorf("materialize: %w", err)
	}
	if err := project.AllowsTuple(tuple); err != nil {
		return model.MaterializationResult{}, fmt.Errorf("materialize: %w", err)
	}

	snap, err := m.loader.Snapshot(ctx, tuple)
	if err != nil {
		return model.MaterializationResult{}, fmt.Errorf("materialize: load catalog: %w", err)
	}

	candidates, failed := m.candidates(snap, tuple, opts)

	var result model.MaterializationResult
	err = storage.WithRetry(ctx, ordinalRetries, ordinalRetryDelay, func() error {
		var insertErr error
		result, insertErr = m.db.InsertGeneratedQuestions(ctx, projectID, candidates, opts.ReplaceExisting)
		return insertErr
	})
	if err != nil {
		if storage.IsRetriable(err) {
			return model.MaterializationResult{}, fmt.Errorf("materialize: %w after %d attempts: %v",
				storage.ErrOrdinalConflict, ordinalRetries+1, err)
		}
		return model.MaterializationResult{}, fmt.Errorf("materialize: %w", err)
	}
	result.Failed = failed

	if opts.ReplaceExisting {
		m.logger.Info("materialize: replaced existing questions",
			"project_id", projectID, "deleted", result.Deleted)
	}
	m.logger.Info("materialized questions",
		"project_id", projectID,
		"tuple", tuple.Key(),
		"created", len(result.Created),
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	m.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
	m.created.Add(ctx, int64(len(result.Created)))
	return result, nil
}

// candidates builds insertion candidates from the snapshot in canonical
// order, applying the optional narrowing filters. Items that cannot become a
// question are counted as failed and logged.
func (m *Materializer) candidates(snap *catalog.Snapshot, tuple model.TargetingTuple, opts model.MaterializeOptions) ([]model.GeneratedQuestion, int) {
	categories := toSet(opts.Categories)
	workPackages := toSet(opts.WorkPackages)

	var (
		candidates []model.GeneratedQuestion
		failed     int
	)
	for _, item := range snap.Items() {
		if len(categories) > 0 {
			if _, ok := categories[item.Category]; !ok {
				continue
			}
		}
		if len(workPackages) > 0 {
			if _, ok := workPackages[item.WorkPackage]; !ok {
				continue
			}
		}
		if strings.TrimSpace(item.Text) == "" {
			failed++
			m.logger.Warn("materialize: skipping bank item with empty text",
				"bank_item_id", item.ID)
			continue
		}

		id := item.ID
		candidates = append(candidates, model.GeneratedQuestion{
			BankItemID: &id,
			Tuple:      tuple,
			Text:       item.Text,
		})
	}
	return candidates, failed
}

func toSet[T comparable](values []T) map[T]struct{} {
	set := make(map[T]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
