// Package table provides in-memory tables, lazy transform pipelines, and the
// named table graph that materializes them. Tables are column-ordered;
// values are float64, string, bool, time.Time, or nil.
//
// "Lazy" here means deferred-until-forced: a pipeline is a description of
// scans and transform steps that only touches data when the graph forces it.
// Nothing is asynchronous.
package table

import (
	"fmt"
	"time"
)

// Column is a named column of values.
type Column struct {
	Name   string
	Values []any
}

// Table is an immutable-by-convention columnar table. Column order is
// significant and preserved through transforms.
type Table struct {
	cols   []Column
	byName map[string]int
}

// FromColumns builds a table from columns, validating that names are unique
// and lengths agree.
func FromColumns(cols []Column) (*Table, error) {
	t := &Table{cols: cols, byName: make(map[string]int, len(cols))}
	rows := -1
	for i, c := range cols {
		if _, dup := t.byName[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		t.byName[c.Name] = i
		if rows == -1 {
			rows = len(c.Values)
		} else if len(c.Values) != rows {
			return nil, fmt.Errorf("column %q has %d values, expected %d", c.Name, len(c.Values), rows)
		}
	}
	return t, nil
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0].Values)
}

// NumCols returns the column count.
func (t *Table) NumCols() int {
	return len(t.cols)
}

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Column returns the values of a named column.
func (t *Table) Column(name string) ([]any, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.cols[i].Values, true
}

// Row returns the values of row i, one per column, in column order.
func (t *Table) Row(i int) []any {
	row := make([]any, len(t.cols))
	for c := range t.cols {
		row[c] = t.cols[c].Values[i]
	}
	return row
}

// rowMap returns row i keyed by column name, used by per-row expressions.
func (t *Table) rowMap(i int) map[string]any {
	m := make(map[string]any, len(t.cols))
	for _, c := range t.cols {
		m[c.Name] = c.Values[i]
	}
	return m
}

// selectRows builds a new table containing only the given row indices, in
// the given order.
func (t *Table) selectRows(idx []int) *Table {
	cols := make([]Column, len(t.cols))
	for c, col := range t.cols {
		vals := make([]any, len(idx))
		for j, i := range idx {
			vals[j] = col.Values[i]
		}
		cols[c] = Column{Name: col.Name, Values: vals}
	}
	out, _ := FromColumns(cols)
	return out
}

// Type families used for join-key compatibility checks.
const (
	familyNumeric = "numeric"
	familyString  = "string"
	familyBool    = "bool"
	familyDate    = "date"
	familyNull    = "null"
)

// family classifies a value into a type family. Nil values belong to no
// family and are ignored by compatibility checks.
func family(v any) string {
	switch v.(type) {
	case float64, int, int64:
		return familyNumeric
	case string:
		return familyString
	case bool:
		return familyBool
	case time.Time:
		return familyDate
	default:
		return familyNull
	}
}

// columnFamily returns the family of the first non-null value, or familyNull
// for an all-null column.
func columnFamily(values []any) string {
	for _, v := range values {
		if f := family(v); f != familyNull {
			return f
		}
	}
	return familyNull
}

// asFloat widens numeric values to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
