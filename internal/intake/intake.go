// Package intake captures interview answers and stamps each one with an
// immutable targeting/category context at write time.
//
// The context snapshot is the answer's fallback identity: once written it
// never changes, regardless of what happens to the generated question or the
// bank item it pointed at. External capture frontends feed answers through
// this package only.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/Amankrah/fsvc-sub000/internal/model"
	"github.com/Amankrah/fsvc-sub000/internal/storage"
	"github.com/Amankrah/fsvc-sub000/internal/telemetry"
)

const defaultBatchSize = 500

// AnswerInput is one answer as supplied by a capture client.
type AnswerInput struct {
	// QuestionID links the answer to its generated question. Nil when the
	// client never had a question row (legacy imports); a stale id is stored
	// as given, since the link may break at any time anyway.
	QuestionID *uuid.UUID

	Value string

	// CollectedAt defaults to the capture time when zero.
	CollectedAt time.Time

	// DeclaredCategory seeds the captured category when no bank item is
	// resolvable through the question (manually authored questions, legacy
	// imports). Ignored when resolution succeeds.
	DeclaredCategory model.Category
}

// Recorder writes answers with captured contexts, in single inserts or
// COPY-based batches.
type Recorder struct {
	db        *storage.DB
	logger    *slog.Logger
	batchSize int

	recorded      metric.Int64Counter
	batchDuration metric.Float64Histogram
}

// New creates a Recorder. batchSize bounds the rows per COPY; values <= 0
// fall back to the default.
func New(db *storage.DB, batchSize int, logger *slog.Logger) *Recorder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	meter := telemetry.Meter("fsvc/intake")
	recorded, _ := meter.Int64Counter("fsvc.intake.answers_recorded",
		metric.WithDescription("Answer records written"),
	)
	batchDur, _ := meter.Float64Histogram("fsvc.intake.batch.duration",
		metric.WithDescription("Time to capture one answer batch (ms)"),
		metric.WithUnit("ms"),
	)
	return &Recorder{
		db:            db,
		logger:        logger,
		batchSize:     batchSize,
		recorded:      recorded,
		batchDuration: batchDur,
	}
}

// RegisterRespondent creates a respondent pinned to the tuple its interview
// was assembled for. The tuple must be complete and within the project's
// declared targeting configuration.
func (r *Recorder) RegisterRespondent(ctx context.Context, projectID uuid.UUID, tuple model.TargetingTuple) (model.Respondent, error) {
	if err := tuple.Validate(); err != nil {
		return model.Respondent{}, fmt.Errorf("intake: %w", err)
	}
	project, err := r.db.GetProject(ctx, projectID)
	if err != nil {
		return model.Respondent{}, fmt.Errorf("intake: %w", err)
	}
	if err := project.AllowsTuple(tuple); err != nil {
		return model.Respondent{}, fmt.Errorf("intake: %w", err)
	}
	respondent, err := r.db.CreateRespondent(ctx, model.Respondent{
		ProjectID: projectID,
		Tuple:     tuple,
	})
	if err != nil {
		return model.Respondent{}, fmt.Errorf("intake: %w", err)
	}
	return respondent, nil
}

// RecordAnswer captures a single answer for the respondent.
func (r *Recorder) RecordAnswer(ctx context.Context, respondentID uuid.UUID, input AnswerInput) (model.AnswerRecord, error) {
	records, err := r.RecordBatch(ctx, respondentID, []AnswerInput{input})
	if err != nil {
		return model.AnswerRecord{}, err
	}
	return records[0], nil
}

// RecordBatch captures a whole interview's answers in input order. Sequence
// numbers are reserved up front, so the input order survives as the stable
// stream order even when collected-at timestamps collide. Large batches are
// written in COPY chunks of the configured size.
func (r *Recorder) RecordBatch(ctx context.Context, respondentID uuid.UUID, inputs []AnswerInput) ([]model.AnswerRecord, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	start := time.Now()

	respondent, err := r.db.GetRespondent(ctx, respondentID)
	if err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}

	records, err := r.capture(ctx, respondent, inputs)
	if err != nil {
		return nil, err
	}

	seqs, err := r.db.ReserveCaptureSeqs(ctx, len(records))
	if err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}
	for i := range records {
		records[i].Seq = seqs[i]
	}

	if len(records) == 1 {
		if err := r.db.InsertAnswer(ctx, records[0]); err != nil {
			return nil, fmt.Errorf("intake: %w", err)
		}
	} else {
		for off := 0; off < len(records); off += r.batchSize {
			end := min(off+r.batchSize, len(records))
			if _, err := r.db.InsertAnswers(ctx, records[off:end]); err != nil {
				return nil, fmt.Errorf("intake: %w", err)
			}
		}
	}

	r.recorded.Add(ctx, int64(len(records)))
	r.batchDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	return records, nil
}

// SetCompletionState transitions the respondent's interview state.
// Reconciliation does not gate on it; partial interviews reconcile too.
func (r *Recorder) SetCompletionState(ctx context.Context, respondentID uuid.UUID, state model.CompletionState) error {
	if !state.Valid() {
		return fmt.Errorf("intake: invalid completion state %q", state)
	}
	if err := r.db.UpdateRespondentState(ctx, respondentID, state); err != nil {
		return fmt.Errorf("intake: %w", err)
	}
	return nil
}

// capture builds answer records with stamped contexts, resolving every
// referenced question and bank item in two bulk reads. Resolution is
// best-effort: a question or item that is already gone leaves the context on
// its declared fallback, never fails the capture.
func (r *Recorder) capture(ctx context.Context, respondent model.Respondent, inputs []AnswerInput) ([]model.AnswerRecord, error) {
	var questionIDs []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	for _, in := range inputs {
		if in.QuestionID != nil && !seen[*in.QuestionID] {
			seen[*in.QuestionID] = true
			questionIDs = append(questionIDs, *in.QuestionID)
		}
	}

	questions, err := r.db.GetQuestionsByIDs(ctx, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}

	var itemIDs []uuid.UUID
	seenItems := make(map[uuid.UUID]bool)
	for _, q := range questions {
		if q.ProjectID != respondent.ProjectID {
			continue
		}
		if q.BankItemID != nil && !seenItems[*q.BankItemID] {
			seenItems[*q.BankItemID] = true
			itemIDs = append(itemIDs, *q.BankItemID)
		}
	}
	items, err := r.db.GetBankItemsByIDs(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}

	now := time.Now().UTC()
	records := make([]model.AnswerRecord, len(inputs))
	for i, in := range inputs {
		captured := model.CapturedContext{
			Tuple:    respondent.Tuple,
			Category: in.DeclaredCategory,
		}

		if in.QuestionID != nil {
			q, ok := questions[*in.QuestionID]
			switch {
			case !ok:
				r.logger.Warn("intake: question gone before capture, context falls back to declared category",
					"question_id", *in.QuestionID, "respondent_id", respondent.ID)
			case q.ProjectID != respondent.ProjectID:
				r.logger.Warn("intake: question belongs to another project, ignoring for context",
					"question_id", q.ID, "respondent_id", respondent.ID)
			default:
				captured.Tuple = q.Tuple
				if q.BankItemID != nil {
					if item, ok := items[*q.BankItemID]; ok {
						captured.BankItemID = q.BankItemID
						captured.Category = item.Category
						captured.Priority = item.Priority
						captured.SourceTags = item.SourceTags
					} else {
						r.logger.Warn("intake: bank item gone before capture, context falls back to declared category",
							"bank_item_id", *q.BankItemID, "question_id", q.ID)
					}
				}
			}
		}

		collectedAt := in.CollectedAt
		if collectedAt.IsZero() {
			collectedAt = now
		}
		records[i] = model.AnswerRecord{
			ID:           uuid.New(),
			RespondentID: respondent.ID,
			QuestionID:   in.QuestionID,
			Context:      captured,
			ContextHash:  captured.ContentHash(),
			Value:        in.Value,
			CollectedAt:  collectedAt,
			CreatedAt:    now,
		}
	}
	return records, nil
}
