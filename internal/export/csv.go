package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV renders the row set as CSV: a header of respondent_id,
// completion_state and one column per bank item, then one line per
// respondent.
func WriteCSV(w io.Writer, rs RowSet) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(rs.Columns)+2)
	header = append(header, "respondent_id", "completion_state")
	for _, c := range rs.Columns {
		header = append(header, c.Text)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}

	line := make([]string, 0, len(rs.Columns)+2)
	for _, row := range rs.Rows {
		line = append(line[:0], row.RespondentID.String(), string(row.State))
		line = append(line, row.Cells...)
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}
