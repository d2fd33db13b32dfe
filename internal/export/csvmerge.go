// internal/export/csvmerge.go
package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Table is tabular data as a header plus string rows keyed by column.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// Empty reports whether the table holds no rows.
func (t *Table) Empty() bool {
	return len(t.Rows) == 0
}

// SetColumn stamps every row with a constant value, registering the
// column if new.
func (t *Table) SetColumn(name, value string) {
	if !t.hasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
	for _, row := range t.Rows {
		row[name] = value
	}
}

func (t *Table) hasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ReadTable parses delimiter-separated values with the first record as
// the header. Ragged rows are tolerated; extra cells are dropped and
// missing cells stay empty.
func ReadTable(r io.Reader, delimiter rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t := &Table{Columns: header}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// MergeTables outer-joins tables: the result's columns are the union in
// first-seen order, rows are concatenated, and cells absent from a
// source table stay empty.
func MergeTables(tables ...*Table) *Table {
	merged := &Table{}
	seen := make(map[string]struct{})
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, col := range t.Columns {
			if _, ok := seen[col]; ok {
				continue
			}
			seen[col] = struct{}{}
			merged.Columns = append(merged.Columns, col)
		}
		merged.Rows = append(merged.Rows, t.Rows...)
	}
	return merged
}

// MoveColumnFirst reorders the header so name leads; rows are untouched
// since they are keyed maps.
func (t *Table) MoveColumnFirst(name string) {
	if !t.hasColumn(name) {
		return
	}
	cols := make([]string, 0, len(t.Columns))
	cols = append(cols, name)
	for _, c := range t.Columns {
		if c != name {
			cols = append(cols, c)
		}
	}
	t.Columns = cols
}

// WriteCSV writes the table as comma-separated values.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			record[i] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
