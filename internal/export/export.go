package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/Amankrah/fsvc-sub000/internal/catalog"
	"github.com/Amankrah/fsvc-sub000/internal/model"
	"github.com/Amankrah/fsvc-sub000/internal/storage"
	"github.com/Amankrah/fsvc-sub000/internal/telemetry"
)

// Exporter builds matrices from stored respondents and answers.
type Exporter struct {
	db     *storage.DB
	loader *catalog.Loader
	logger *slog.Logger

	duration metric.Float64Histogram
	rows     metric.Int64Counter
}

// New creates an Exporter reading the bank through loader and respondent data
// through db.
func New(db *storage.DB, loader *catalog.Loader, logger *slog.Logger) *Exporter {
	meter := telemetry.Meter("fsvc/export")
	dur, _ := meter.Float64Histogram("fsvc.export.duration",
		metric.WithDescription("Time to build one matrix (ms)"),
		metric.WithUnit("ms"),
	)
	rows, _ := meter.Int64Counter("fsvc.export.rows",
		metric.WithDescription("Matrix rows exported"),
	)
	return &Exporter{
		db:       db,
		loader:   loader,
		logger:   logger,
		duration: dur,
		rows:     rows,
	}
}

// Matrix builds the respondent × item matrix for one tuple of the project,
// placing values through the report's answer-to-item mapping. Columns are the
// tuple's catalog items in canonical order; rows are the tuple's respondents
// in listing order.
func (e *Exporter) Matrix(ctx context.Context, projectID uuid.UUID, tuple model.TargetingTuple, report model.ReconciliationReport) (RowSet, error) {
	start := time.Now()

	if err := tuple.Validate(); err != nil {
		return RowSet{}, fmt.Errorf("export: %w", err)
	}
	project, err := e.db.GetProject(ctx, projectID)
	if err != nil {
		return RowSet{}, fmt.Errorf("export: %w", err)
	}
	if err := project.AllowsTuple(tuple); err != nil {
		return RowSet{}, fmt.Errorf("export: %w", err)
	}

	snap, err := e.loader.Snapshot(ctx, tuple)
	if err != nil {
		return RowSet{}, fmt.Errorf("export: load catalog: %w", err)
	}
	respondents, err := e.db.ListRespondents(ctx, projectID, &tuple)
	if err != nil {
		return RowSet{}, fmt.Errorf("export: %w", err)
	}

	answers := make(map[uuid.UUID]model.AnswerRecord)
	for _, r := range respondents {
		list, err := e.db.ListAnswersByRespondent(ctx, r.ID)
		if err != nil {
			return RowSet{}, fmt.Errorf("export: respondent %s: %w", r.ID, err)
		}
		for _, a := range list {
			answers[a.ID] = a
		}
	}

	rs := BuildRowSet(snap, respondents, answers, report.Mapping)
	rs.ProjectID = projectID

	e.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
	e.rows.Add(ctx, int64(len(rs.Rows)))
	e.logger.Info("export: matrix built",
		"project_id", projectID,
		"tuple", tuple.Key(),
		"columns", len(rs.Columns),
		"rows", len(rs.Rows),
		"filled", rs.Filled(),
	)
	return rs, nil
}
