package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Amankrah/fsvc-sub000/internal/model"
)

// copyTimeout bounds a single COPY flush; a stalled server fails the batch
// instead of hanging it.
const copyTimeout = 30 * time.Second

// answerColumns lists answer_records columns in model.AnswerRecord field
// order, which lets queries scan rows positionally.
var answerColumns = []string{
	"id", "respondent_id", "question_id", "captured_context", "context_hash",
	"value", "collected_at", "seq", "created_at",
}

func answerValues(a model.AnswerRecord) []any {
	return []any{
		a.ID, a.RespondentID, a.QuestionID, a.Context, a.ContextHash,
		a.Value, a.CollectedAt, a.Seq, a.CreatedAt,
	}
}

// ReserveCaptureSeqs allocates n values from the global capture sequence in
// one round trip. Values are unique and increasing; gaps appear when another
// session allocates concurrently, which is harmless for tie-breaking.
func (db *DB) ReserveCaptureSeqs(ctx context.Context, n int) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, _ := db.pool.Query(ctx,
		`SELECT nextval('answer_seq') FROM generate_series(1, $1)`, n)
	seqs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("storage: reserve capture seqs: %w", err)
	}
	return seqs, nil
}

// InsertAnswer writes one answer record. Answers are insert-only; neither the
// value nor the captured context has an update path.
func (db *DB) InsertAnswer(ctx context.Context, a model.AnswerRecord) error {
	sql := fmt.Sprintf(
		`INSERT INTO answer_records (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		strings.Join(answerColumns, ", "))
	if _, err := db.pool.Exec(ctx, sql, answerValues(a)...); err != nil {
		return fmt.Errorf("storage: insert answer: %w", err)
	}
	return nil
}

// InsertAnswers bulk-loads answer records over the COPY protocol. Records
// must already carry their Seq from ReserveCaptureSeqs.
func (db *DB) InsertAnswers(ctx context.Context, answers []model.AnswerRecord) (int64, error) {
	if len(answers) == 0 {
		return 0, nil
	}
	copyCtx, cancel := context.WithTimeout(ctx, copyTimeout)
	defer cancel()

	count, err := db.pool.CopyFrom(copyCtx, pgx.Identifier{"answer_records"}, answerColumns,
		pgx.CopyFromSlice(len(answers), func(i int) ([]any, error) {
			return answerValues(answers[i]), nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: copy answers: %w", err)
	}
	return count, nil
}

// ListAnswersByRespondent returns a respondent's answers in capture order:
// collected-at ascending, capture sequence breaking ties.
func (db *DB) ListAnswersByRespondent(ctx context.Context, respondentID uuid.UUID) ([]model.AnswerRecord, error) {
	sql := fmt.Sprintf(
		`SELECT %s FROM answer_records WHERE respondent_id = $1 ORDER BY collected_at, seq`,
		strings.Join(answerColumns, ", "))
	rows, _ := db.pool.Query(ctx, sql, respondentID)
	answers, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.AnswerRecord])
	if err != nil {
		return nil, fmt.Errorf("storage: list answers: %w", err)
	}
	return answers, nil
}

// CountAnswersByProject returns the number of answer records across all of a
// project's respondents.
func (db *DB) CountAnswersByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM answer_records a
		 JOIN respondents r ON r.id = a.respondent_id
		 WHERE r.project_id = $1`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count answers: %w", err)
	}
	return n, nil
}
