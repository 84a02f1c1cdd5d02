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

// CreateBankItem inserts a single bank item and returns it with defaults
// filled in.
func (db *DB) CreateBankItem(ctx context.Context, item model.BankItem) (model.BankItem, error) {
	item = withBankItemDefaults(item)

	_, err := db.pool.Exec(ctx,
		`INSERT INTO bank_items (id, text, category, priority, work_package, source_tags,
		 respondent_types, commodities, countries, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.Text, string(item.Category), item.Priority, item.WorkPackage,
		orEmpty(item.SourceTags), axisValues(item.RespondentTypes),
		axisValues(item.Commodities), axisValues(item.Countries), item.CreatedAt,
	)
	if err != nil {
		return model.BankItem{}, fmt.Errorf("storage: create bank item: %w", err)
	}
	return item, nil
}

// InsertBankItems bulk-inserts bank items using the COPY protocol. Used by
// catalog seeding, where a whole bank file lands at once.
func (db *DB) InsertBankItems(ctx context.Context, items []model.BankItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	columns := []string{"id", "text", "category", "priority", "work_package", "source_tags",
		"respondent_types", "commodities", "countries", "created_at"}

	rows := make([][]any, len(items))
	for i, item := range items {
		item = withBankItemDefaults(item)
		rows[i] = []any{
			item.ID,
			item.Text,
			string(item.Category),
			item.Priority,
			item.WorkPackage,
			orEmpty(item.SourceTags),
			axisValues(item.RespondentTypes),
			axisValues(item.Commodities),
			axisValues(item.Countries),
			item.CreatedAt,
		}
	}

	count, err := db.pool.CopyFrom(ctx,
		pgx.Identifier{"bank_items"},
		columns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: copy bank items: %w", err)
	}
	return count, nil
}

// GetBankItem retrieves a bank item by ID.
func (db *DB) GetBankItem(ctx context.Context, id uuid.UUID) (model.BankItem, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, text, category, priority, work_package, source_tags,
		 respondent_types, commodities, countries, created_at
		 FROM bank_items WHERE id = $1`, id)

	item, err := scanBankItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.BankItem{}, fmt.Errorf("storage: bank item %s: %w", id, ErrNotFound)
		}
		return model.BankItem{}, fmt.Errorf("storage: get bank item: %w", err)
	}
	return item, nil
}

// GetBankItemsByIDs retrieves the subset of the given bank item IDs that
// still exist, keyed by ID. Missing IDs are simply absent from the map.
func (db *DB) GetBankItemsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.BankItem, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]model.BankItem{}, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, text, category, priority, work_package, source_tags,
		 respondent_types, commodities, countries, created_at
		 FROM bank_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("storage: get bank items by ids: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID]model.BankItem, len(ids))
	for rows.Next() {
		item, err := scanBankItem(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan bank item: %w", err)
		}
		items[item.ID] = item
	}
	return items, rows.Err()
}

// ListBankItems returns the entire question bank. Callers build catalog
// snapshots from this; the deterministic ordering happens there, so the read
// order here only needs to be stable.
func (db *DB) ListBankItems(ctx context.Context) ([]model.BankItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, text, category, priority, work_package, source_tags,
		 respondent_types, commodities, countries, created_at
		 FROM bank_items ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("storage: list bank items: %w", err)
	}
	defer rows.Close()

	var items []model.BankItem
	for rows.Next() {
		item, err := scanBankItem(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan bank item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func withBankItemDefaults(item model.BankItem) model.BankItem {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	return item
}

func scanBankItem(row pgx.Row) (model.BankItem, error) {
	var (
		item     model.BankItem
		category string
		rts      []string
		cms      []string
		cts      []string
	)
	err := row.Scan(
		&item.ID, &item.Text, &category, &item.Priority, &item.WorkPackage,
		&item.SourceTags, &rts, &cms, &cts, &item.CreatedAt,
	)
	if err != nil {
		return model.BankItem{}, err
	}
	item.Category = model.Category(category)
	item.RespondentTypes = model.MatchOneOf(rts...)
	item.Commodities = model.MatchOneOf(cms...)
	item.Countries = model.MatchOneOf(cts...)
	return item, nil
}

// axisValues flattens an axis filter to its stored representation: an empty
// array means the item applies to every value on that axis.
func axisValues(f model.AxisFilter) []string {
	if vals := f.Values(); vals != nil {
		return vals
	}
	return []string{}
}
