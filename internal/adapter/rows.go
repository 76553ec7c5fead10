package adapter

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/calcstack/calcbook/pkg/table"
)

// rowsToTable drains a result set into a column-oriented table,
// mapping driver values onto the engine's value model: float64,
// string, bool, time.Time, or nil.
func rowsToTable(rows *sql.Rows) (*table.Table, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	values := make([][]any, len(names))
	scan := make([]any, len(names))
	for rows.Next() {
		for i := range scan {
			scan[i] = new(any)
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, cell := range scan {
			v, err := normalizeValue(*cell.(*any))
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", names[i], err)
			}
			values[i] = append(values[i], v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	cols := make([]table.Column, len(names))
	for i, name := range names {
		cols[i] = table.Column{Name: name, Values: values[i]}
	}
	return table.FromColumns(cols)
}

func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case bool:
		return x, nil
	case string:
		return x, nil
	case time.Time:
		return x, nil
	case []byte:
		// Some drivers hand numerics back as raw text.
		if f, err := strconv.ParseFloat(string(x), 64); err == nil {
			return f, nil
		}
		return string(x), nil
	}
	return nil, fmt.Errorf("unsupported driver value %T", v)
}
