package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Amankrah/fsvc-sub000/internal/model"
)

// ErrDuplicateQuestion is returned when a question's dedup key (project,
// text, tuple) already has a generated question.
var ErrDuplicateQuestion = errors.New("storage: question already generated for this text and tuple")

// InsertGeneratedQuestions appends candidate questions to a project inside a
// single transaction, assigning consecutive ordinals from the project's
// counter. Candidates whose dedup key (text + tuple) already exists in the
// project are skipped, making repeat calls idempotent. With replaceExisting,
// all of the project's questions are deleted first; the ordinal counter keeps
// advancing past deleted rows, so ordinals are never reused.
//
// The SELECT ... FOR UPDATE on the project row serializes concurrent calls
// for the same project: two materializations cannot interleave ordinals or
// double-insert the same key. Callers wrap this in WithRetry for deadlocks
// against unrelated transactions.
func (db *DB) InsertGeneratedQuestions(ctx context.Context, projectID uuid.UUID, candidates []model.GeneratedQuestion, replaceExisting bool) (model.MaterializationResult, error) {
	var result model.MaterializationResult

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("storage: begin questions tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var next int
	err = tx.QueryRow(ctx,
		`SELECT next_ordinal FROM projects WHERE id = $1 FOR UPDATE`, projectID,
	).Scan(&next)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return result, fmt.Errorf("storage: project %s: %w", projectID, ErrNotFound)
		}
		return result, fmt.Errorf("storage: lock project: %w", err)
	}

	existing := make(map[string]bool)
	if replaceExisting {
		tag, err := tx.Exec(ctx,
			`DELETE FROM generated_questions WHERE project_id = $1`, projectID)
		if err != nil {
			return result, fmt.Errorf("storage: delete questions: %w", err)
		}
		result.Deleted = int(tag.RowsAffected())
	} else {
		rows, err := tx.Query(ctx,
			`SELECT text, respondent_type, commodity, country
			 FROM generated_questions WHERE project_id = $1`, projectID)
		if err != nil {
			return result, fmt.Errorf("storage: load question keys: %w", err)
		}
		for rows.Next() {
			var text string
			var t model.TargetingTuple
			if err := rows.Scan(&text, &t.RespondentType, &t.Commodity, &t.Country); err != nil {
				rows.Close()
				return result, fmt.Errorf("storage: scan question key: %w", err)
			}
			existing[questionKey(text, t)] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return result, fmt.Errorf("storage: load question keys: %w", err)
		}
	}

	now := time.Now().UTC()
	var toInsert []model.GeneratedQuestion
	for _, q := range candidates {
		key := questionKey(q.Text, q.Tuple)
		if existing[key] {
			result.Skipped++
			continue
		}
		existing[key] = true

		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		if q.CreatedAt.IsZero() {
			q.CreatedAt = now
		}
		q.ProjectID = projectID
		q.Ordinal = next
		next++
		toInsert = append(toInsert, q)
	}

	if len(toInsert) > 0 {
		columns := []string{"id", "project_id", "bank_item_id", "text",
			"respondent_type", "commodity", "country", "ordinal", "created_at"}
		rows := make([][]any, len(toInsert))
		for i, q := range toInsert {
			rows[i] = []any{
				q.ID, q.ProjectID, q.BankItemID, q.Text,
				q.Tuple.RespondentType, q.Tuple.Commodity, q.Tuple.Country,
				q.Ordinal, q.CreatedAt,
			}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"generated_questions"}, columns, pgx.CopyFromRows(rows),
		); err != nil {
			return result, fmt.Errorf("storage: copy questions: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE projects SET next_ordinal = $1 WHERE id = $2`, next, projectID,
		); err != nil {
			return result, fmt.Errorf("storage: advance ordinal counter: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("storage: commit questions: %w", err)
	}

	result.Created = toInsert
	return result, nil
}

// AppendQuestion inserts a single manually authored question, allocating the
// next ordinal. Returns ErrDuplicateQuestion if the project already has a
// question with the same text and tuple.
func (db *DB) AppendQuestion(ctx context.Context, q model.GeneratedQuestion) (model.GeneratedQuestion, error) {
	result, err := db.InsertGeneratedQuestions(ctx, q.ProjectID, []model.GeneratedQuestion{q}, false)
	if err != nil {
		return model.GeneratedQuestion{}, err
	}
	if len(result.Created) == 0 {
		return model.GeneratedQuestion{}, fmt.Errorf("storage: append question: %w", ErrDuplicateQuestion)
	}
	return result.Created[0], nil
}

// GetQuestion retrieves a generated question by ID.
func (db *DB) GetQuestion(ctx context.Context, id uuid.UUID) (model.GeneratedQuestion, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, project_id, bank_item_id, text, respondent_type, commodity, country, ordinal, created_at
		 FROM generated_questions WHERE id = $1`, id)

	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.GeneratedQuestion{}, fmt.Errorf("storage: question %s: %w", id, ErrNotFound)
		}
		return model.GeneratedQuestion{}, fmt.Errorf("storage: get question: %w", err)
	}
	return q, nil
}

// GetQuestionsByIDs retrieves the subset of the given question IDs that still
// exist, keyed by ID. Missing IDs are simply absent from the map; callers
// treat absence as drift, not an error.
func (db *DB) GetQuestionsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.GeneratedQuestion, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]model.GeneratedQuestion{}, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, project_id, bank_item_id, text, respondent_type, commodity, country, ordinal, created_at
		 FROM generated_questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("storage: get questions by ids: %w", err)
	}
	defer rows.Close()

	questions := make(map[uuid.UUID]model.GeneratedQuestion, len(ids))
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan question: %w", err)
		}
		questions[q.ID] = q
	}
	return questions, rows.Err()
}

// ListQuestionsByProject returns a project's generated questions in ordinal
// order.
func (db *DB) ListQuestionsByProject(ctx context.Context, projectID uuid.UUID) ([]model.GeneratedQuestion, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, project_id, bank_item_id, text, respondent_type, commodity, country, ordinal, created_at
		 FROM generated_questions WHERE project_id = $1
		 ORDER BY ordinal`, projectID)
	if err != nil {
		return nil, fmt.Errorf("storage: list questions: %w", err)
	}
	defer rows.Close()

	var questions []model.GeneratedQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// DeleteQuestion removes a single generated question. Answers that referenced
// it keep their captured context; reconciliation recovers the link later.
func (db *DB) DeleteQuestion(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM generated_questions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: question %s: %w", id, ErrNotFound)
	}
	return nil
}

func questionKey(text string, t model.TargetingTuple) string {
	return text + "\x1f" + t.Key()
}

func scanQuestion(row pgx.Row) (model.GeneratedQuestion, error) {
	var q model.GeneratedQuestion
	err := row.Scan(
		&q.ID, &q.ProjectID, &q.BankItemID, &q.Text,
		&q.Tuple.RespondentType, &q.Tuple.Commodity, &q.Tuple.Country,
		&q.Ordinal, &q.CreatedAt,
	)
	if err != nil {
		return model.GeneratedQuestion{}, err
	}
	return q, nil
}
