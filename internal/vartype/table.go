package vartype

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Table is the dataframe type: named columns over rows of loosely typed
// cells. Scenario tables, selection tables and samples are all Tables.
type Table struct {
	Columns []string `json:"columns" yaml:"columns"`
	Rows    [][]any  `json:"rows" yaml:"rows"`
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...), Rows: [][]any{}}
}

// Len is the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of col or -1.
func (t *Table) Index(col string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Has reports whether col exists.
func (t *Table) Has(col string) bool { return t.Index(col) >= 0 }

// AddRow appends one row. The number of values must match the columns.
func (t *Table) AddRow(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, append([]any(nil), values...))
	return nil
}

// Value returns the cell at row/col, nil when the column is unknown.
func (t *Table) Value(row int, col string) any {
	i := t.Index(col)
	if i < 0 || row < 0 || row >= t.Len() {
		return nil
	}
	return t.Rows[row][i]
}

// Set writes the cell at row/col.
func (t *Table) Set(row int, col string, v any) error {
	i := t.Index(col)
	if i < 0 {
		return fmt.Errorf("unknown column '%s'", col)
	}
	if row < 0 || row >= t.Len() {
		return fmt.Errorf("row %d out of range", row)
	}
	t.Rows[row][i] = v
	return nil
}

// Column returns a copy of the cells of col.
func (t *Table) Column(col string) []any {
	i := t.Index(col)
	if i < 0 {
		return nil
	}
	out := make([]any, t.Len())
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// Floats returns col as float64s.
func (t *Table) Floats(col string) ([]float64, error) {
	if !t.Has(col) {
		return nil, fmt.Errorf("unknown column '%s'", col)
	}
	return toFloats(t.Column(col))
}

// Clone deep-copies the table structure. Cells are copied by value.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := NewTable(t.Columns...)
	for _, row := range t.Rows {
		out.Rows = append(out.Rows, append([]any(nil), row...))
	}
	return out
}

// Records returns one map per row.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, t.Len())
	for r, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			rec[c] = row[i]
		}
		out[r] = rec
	}
	return out
}

// Reshape returns a table with exactly columns, keeping the cells of
// columns that already existed and filling new ones with fill. The row
// count is preserved.
func (t *Table) Reshape(columns []string, fill any) *Table {
	out := NewTable(columns...)
	for r := 0; r < t.Len(); r++ {
		row := make([]any, len(columns))
		for i, c := range columns {
			if j := t.Index(c); j >= 0 {
				row[i] = t.Rows[r][j]
			} else {
				row[i] = fill
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// TableFromRecords builds a table from row maps. Leading columns come first
// in the given order, the rest follow sorted by name.
func TableFromRecords(records []map[string]any, leading ...string) *Table {
	seen := make(map[string]bool)
	columns := make([]string, 0)
	for _, c := range leading {
		if !seen[c] {
			seen[c] = true
			columns = append(columns, c)
		}
	}
	var extra []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	columns = append(columns, extra...)

	t := NewTable(columns...)
	for _, rec := range records {
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = rec[c]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// ToTable converts the shapes a dataframe arrives in: a *Table, a list of
// row objects, or a {columns, rows} map.
func ToTable(v any) (*Table, error) {
	switch tv := v.(type) {
	case *Table:
		return tv, nil
	case Table:
		return &tv, nil
	case []map[string]any:
		return TableFromRecords(tv), nil
	case []any:
		records := make([]map[string]any, len(tv))
		for i, e := range tv {
			rec, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("row %d: expected an object, got %T", i, e)
			}
			records[i] = rec
		}
		return TableFromRecords(records), nil
	case map[string]any:
		cols, okc := tv["columns"].([]any)
		rows, okr := tv["rows"].([]any)
		if !okc || !okr {
			return nil, fmt.Errorf("dataframe map must carry 'columns' and 'rows'")
		}
		t := &Table{Rows: [][]any{}}
		for _, c := range cols {
			name, ok := c.(string)
			if !ok {
				return nil, fmt.Errorf("column names must be strings, got %T", c)
			}
			t.Columns = append(t.Columns, name)
		}
		for i, r := range rows {
			cells, ok := r.([]any)
			if !ok {
				return nil, fmt.Errorf("row %d: expected a list, got %T", i, r)
			}
			if err := t.AddRow(cells...); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
		}
		return t, nil
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, Dataframe)
}

// UnmarshalJSON accepts the {columns, rows} shape.
func (t *Table) UnmarshalJSON(data []byte) error {
	var raw struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Columns = raw.Columns
	t.Rows = raw.Rows
	if t.Rows == nil {
		t.Rows = [][]any{}
	}
	return nil
}
