package postings

import (
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SchemaMismatchError reports configured columns that are absent from the
// postings workbook.
type SchemaMismatchError struct {
	Set     string
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("missing columns in the dataset for %s: %s", e.Set, strings.Join(e.Missing, ", "))
}

// Table is an in-memory view of the job postings workbook. The first row of
// the first sheet is treated as the header; every other row is one posting.
type Table struct {
	columns  []string
	colIndex map[string]int
	rows     [][]string
}

// Load reads the postings workbook from disk. A missing file wraps
// fs.ErrNotExist so callers can branch on it.
func Load(path string) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("postings file %q: %w", path, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open postings file %q: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("postings file %q has no sheets", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("postings file %q has no header row", path)
	}

	return New(rows[0], rows[1:]), nil
}

// New builds a table from a header and data rows. Short rows are padded so
// every cell lookup is defined.
func New(columns []string, rows [][]string) *Table {
	colIndex := make(map[string]int, len(columns))
	for i, name := range columns {
		colIndex[name] = i
	}

	padded := make([][]string, len(rows))
	for i, row := range rows {
		if len(row) < len(columns) {
			full := make([]string, len(columns))
			copy(full, row)
			row = full
		}
		padded[i] = row
	}

	return &Table{columns: columns, colIndex: colIndex, rows: padded}
}

// Columns returns the header names in sheet order.
func (t *Table) Columns() []string { return t.columns }

// Len returns the number of posting rows.
func (t *Table) Len() int { return len(t.rows) }

// Require validates that every column of the configured set exists. The set
// name is included in the error so the operator knows which configuration key
// to fix.
func (t *Table) Require(set string, cols []string) error {
	var missing []string
	for _, col := range cols {
		if _, ok := t.colIndex[col]; !ok {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		return &SchemaMismatchError{Set: set, Missing: missing}
	}

	return nil
}

// Value returns the cell at the given row for the named column, or an empty
// string when the column is unknown.
func (t *Table) Value(row int, col string) string {
	idx, ok := t.colIndex[col]
	if !ok || row < 0 || row >= len(t.rows) {
		return ""
	}
	return t.rows[row][idx]
}

// Concat joins the given columns of a row with single spaces. This is the
// text fed to the embedding encoder.
func (t *Table) Concat(row int, cols []string) string {
	values := make([]string, 0, len(cols))
	for _, col := range cols {
		values = append(values, t.Value(row, col))
	}
	return strings.Join(values, " ")
}

// FormatRow renders the given columns of a row as "Column: value" lines.
func (t *Table) FormatRow(row int, cols []string) string {
	lines := make([]string, 0, len(cols))
	for _, col := range cols {
		lines = append(lines, fmt.Sprintf("%s: %s", col, t.Value(row, col)))
	}
	return strings.Join(lines, "\n")
}
