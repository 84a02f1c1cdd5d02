// Package export assembles reconciled answers into the respondent × bank-item
// matrix handed to tabular sinks.
package export

import (
	"github.com/google/uuid"

	"github.com/Amankrah/fsvc-sub000/internal/catalog"
	"github.com/Amankrah/fsvc-sub000/internal/model"
)

// Column is one bank item of the exported matrix, in catalog order.
type Column struct {
	BankItemID uuid.UUID      `json:"bank_item_id"`
	Text       string         `json:"text"`
	Category   model.Category `json:"category"`

	// Filled counts rows carrying a reconciled value in this column.
	Filled int `json:"filled"`

	// CompletionRate is Filled over the row count, 0 for an empty row set.
	CompletionRate float64 `json:"completion_rate"`
}

// Row is one respondent's reconciled values. Cells align with the row set's
// columns; a column the respondent never answered holds the empty string.
type Row struct {
	RespondentID uuid.UUID             `json:"respondent_id"`
	State        model.CompletionState `json:"state"`
	Cells        []string              `json:"cells"`
}

// RowSet is the exported matrix for one targeting tuple.
type RowSet struct {
	ProjectID uuid.UUID            `json:"project_id"`
	Tuple     model.TargetingTuple `json:"tuple"`
	Columns   []Column             `json:"columns"`
	Rows      []Row                `json:"rows"`
}

// Filled returns the total number of filled cells across all columns.
func (rs RowSet) Filled() int {
	var n int
	for _, c := range rs.Columns {
		n += c.Filled
	}
	return n
}

// BuildRowSet lays reconciled answers out as a matrix: one column per
// snapshot item in catalog order, one row per respondent in the given order.
// Mapping entries are applied first-resolved-wins; a cell, once filled, is
// never overwritten. Entries for respondents outside the row set or items
// outside the snapshot are ignored, so a report computed over a broader scope
// can feed a narrower export.
func BuildRowSet(snap *catalog.Snapshot, respondents []model.Respondent, answers map[uuid.UUID]model.AnswerRecord, mapping []model.ResolvedAnswer) RowSet {
	items := snap.Items()

	rs := RowSet{Tuple: snap.Tuple()}
	rs.Columns = make([]Column, len(items))
	for i, item := range items {
		rs.Columns[i] = Column{
			BankItemID: item.ID,
			Text:       item.Text,
			Category:   item.Category,
		}
	}

	rowIndex := make(map[uuid.UUID]int, len(respondents))
	rs.Rows = make([]Row, len(respondents))
	for i, r := range respondents {
		rowIndex[r.ID] = i
		rs.Rows[i] = Row{
			RespondentID: r.ID,
			State:        r.State,
			Cells:        make([]string, len(items)),
		}
	}

	// An empty answer value still fills its cell, so fill state is tracked
	// apart from the cell contents.
	filled := make([][]bool, len(respondents))
	for i := range filled {
		filled[i] = make([]bool, len(items))
	}

	for _, m := range mapping {
		row, ok := rowIndex[m.RespondentID]
		if !ok {
			continue
		}
		col, ok := snap.Position(m.BankItemID)
		if !ok {
			continue
		}
		if filled[row][col] {
			continue
		}
		answer, ok := answers[m.AnswerID]
		if !ok {
			continue
		}
		rs.Rows[row].Cells[col] = answer.Value
		filled[row][col] = true
		rs.Columns[col].Filled++
	}

	if len(rs.Rows) > 0 {
		for i := range rs.Columns {
			rs.Columns[i].CompletionRate = float64(rs.Columns[i].Filled) / float64(len(rs.Rows))
		}
	}
	return rs
}
