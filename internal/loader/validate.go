package loader

import (
	"fmt"
)

var stepNames = map[string]bool{
	"select":      true,
	"filter":      true,
	"group_agg":   true,
	"sort":        true,
	"with_column": true,
	"join_left":   true,
}

func (wb *Workbook) validate() error {
	if wb.Name == "" {
		return fmt.Errorf("workbook must have a name")
	}
	for name, r := range wb.NamedRanges {
		if r.Sheet == "" || r.Start == "" || r.End == "" {
			return fmt.Errorf("named range %q must set sheet, start, and end", name)
		}
		if _, ok := wb.Sheets[r.Sheet]; !ok {
			return fmt.Errorf("named range %q references unknown sheet %q", name, r.Sheet)
		}
	}

	seen := make(map[string]bool, len(wb.Tables))
	for i, td := range wb.Tables {
		if td.Name == "" {
			return fmt.Errorf("table at index %d must have a name", i)
		}
		if seen[td.Name] {
			return fmt.Errorf("table %q is defined twice", td.Name)
		}
		seen[td.Name] = true

		sources := 0
		if td.CSV != "" {
			sources++
		}
		if td.Parquet != "" {
			sources++
		}
		if td.Query != nil {
			sources++
		}
		if td.Input != "" {
			sources++
		}
		if sources != 1 {
			return fmt.Errorf("table %q must have exactly one of csv, parquet, query, or input", td.Name)
		}
		if td.Query != nil && (td.Query.Adapter == "" || td.Query.SQL == "") {
			return fmt.Errorf("table %q: query source must set adapter and sql", td.Name)
		}
		if td.Input == "" && len(td.Steps) > 0 {
			return fmt.Errorf("table %q: steps require an input pipeline", td.Name)
		}
		if td.Input != "" && !seen[td.Input] {
			return fmt.Errorf("table %q: input %q is not declared before it", td.Name, td.Input)
		}
		for _, raw := range td.Steps {
			if len(raw) != 1 {
				return fmt.Errorf("table %q: each step must be a single name: spec mapping", td.Name)
			}
			for name := range raw {
				if !stepNames[name] {
					return fmt.Errorf("table %q: unknown step %q", td.Name, name)
				}
			}
		}
	}
	return nil
}
