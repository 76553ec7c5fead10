package table

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// csv cells are inferred per column: a column where every non-empty cell
// parses as a number becomes numeric, likewise for bools and dates;
// otherwise it stays string. Empty cells become nil.
var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

// ScanCSV returns a lazy scan of a CSV file with a header row.
func ScanCSV(path string) ScanFunc {
	return func() (*Table, error) {
		return readCSV(path)
	}
}

func readCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv %s has no header row", path)
	}

	header := records[0]
	cols := make([]Column, len(header))
	for i, name := range header {
		cols[i] = Column{Name: strings.TrimSpace(name)}
	}

	for _, rec := range records[1:] {
		for i := range cols {
			cell := ""
			if i < len(rec) {
				cell = rec[i]
			}
			cols[i].Values = append(cols[i].Values, cell)
		}
	}

	for i := range cols {
		cols[i].Values = inferColumn(cols[i].Values)
	}
	return FromColumns(cols)
}

// inferColumn converts a column of raw strings to typed values when every
// non-empty cell agrees on a type.
func inferColumn(raw []any) []any {
	allNumber, allBool, allDate := true, true, true
	empty := 0
	for _, v := range raw {
		s := v.(string)
		if s == "" {
			empty++
			continue
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			allNumber = false
		}
		if !isBoolCell(s) {
			allBool = false
		}
		if _, ok := parseDateCell(s); !ok {
			allDate = false
		}
	}
	if empty == len(raw) {
		out := make([]any, len(raw))
		return out
	}

	out := make([]any, len(raw))
	for i, v := range raw {
		s := v.(string)
		if s == "" {
			out[i] = nil
			continue
		}
		switch {
		case allNumber:
			n, _ := strconv.ParseFloat(s, 64)
			out[i] = n
		case allBool:
			out[i] = strings.EqualFold(s, "true")
		case allDate:
			d, _ := parseDateCell(s)
			out[i] = d
		default:
			out[i] = s
		}
	}
	return out
}

func isBoolCell(s string) bool {
	return strings.EqualFold(s, "true") || strings.EqualFold(s, "false")
}

func parseDateCell(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.UTC(), true
		}
	}
	return time.Time{}, false
}
