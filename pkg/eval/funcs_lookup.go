package eval

// Table lookup functions resolve against the run's materialized table
// cache. Tables are referenced by name as strings.

func lookupColumn(fn string, ev *Evaluator, tableName, column string) ([]any, error) {
	t, ok := ev.Tables[tableName]
	if !ok {
		return nil, funcErrorf(fn, "unknown table %q", tableName)
	}
	vals, ok := t.Column(column)
	if !ok {
		return nil, funcErrorf(fn, "table %q has no column %q", tableName, column)
	}
	return vals, nil
}

// fnMatch returns the 1-based index of the first value in table.column equal
// to the probe value.
func fnMatch(ev *Evaluator, args []any) (any, error) {
	if len(args) != 3 {
		return nil, funcErrorf("MATCH", "expected 3 arguments (value, table, column), got %d", len(args))
	}
	tableName, err := argString("MATCH", args, 1)
	if err != nil {
		return nil, err
	}
	column, err := argString("MATCH", args, 2)
	if err != nil {
		return nil, err
	}
	vals, err := lookupColumn("MATCH", ev, tableName, column)
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		eq, err := equalValues(v, args[0])
		if err != nil {
			return nil, err
		}
		if eq {
			return float64(i + 1), nil
		}
	}
	return nil, funcErrorf("MATCH", "value %v not found in %s.%s", args[0], tableName, column)
}

// fnIndex fetches the value at 1-based row n of table.column.
func fnIndex(ev *Evaluator, args []any) (any, error) {
	if len(args) != 3 {
		return nil, funcErrorf("INDEX", "expected 3 arguments (table, column, n), got %d", len(args))
	}
	tableName, err := argString("INDEX", args, 0)
	if err != nil {
		return nil, err
	}
	column, err := argString("INDEX", args, 1)
	if err != nil {
		return nil, err
	}
	n, err := argNumber("INDEX", args, 2)
	if err != nil {
		return nil, err
	}
	vals, err := lookupColumn("INDEX", ev, tableName, column)
	if err != nil {
		return nil, err
	}
	i := int(n)
	if i < 1 || i > len(vals) {
		return nil, funcErrorf("INDEX", "index %d out of range 1..%d for %s.%s", i, len(vals), tableName, column)
	}
	return vals[i-1], nil
}

// fnXlookup performs an exact-match lookup: the first row of table where
// key_column equals the probe value yields value_column. A fifth argument
// is the default returned on a miss; without one, a miss is an error.
func fnXlookup(ev *Evaluator, args []any) (any, error) {
	if len(args) != 4 && len(args) != 5 {
		return nil, funcErrorf("XLOOKUP", "expected 4 or 5 arguments (value, table, key_column, value_column, default?), got %d", len(args))
	}
	tableName, err := argString("XLOOKUP", args, 1)
	if err != nil {
		return nil, err
	}
	keyCol, err := argString("XLOOKUP", args, 2)
	if err != nil {
		return nil, err
	}
	valCol, err := argString("XLOOKUP", args, 3)
	if err != nil {
		return nil, err
	}

	keys, err := lookupColumn("XLOOKUP", ev, tableName, keyCol)
	if err != nil {
		return nil, err
	}
	vals, err := lookupColumn("XLOOKUP", ev, tableName, valCol)
	if err != nil {
		return nil, err
	}

	for i, k := range keys {
		eq, err := equalValues(k, args[0])
		if err != nil {
			return nil, err
		}
		if eq {
			return vals[i], nil
		}
	}
	if len(args) == 5 {
		return args[4], nil
	}
	return nil, funcErrorf("XLOOKUP", "value %v not found in %s.%s", args[0], tableName, keyCol)
}
