package table

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Step is one named transform in a lazy pipeline. Steps receive the
// materialized upstream table and an environment for resolving sibling
// pipelines (used only by joins).
type Step interface {
	StepName() string
	Apply(t *Table, env *stepEnv) (*Table, error)
}

// SelectStep keeps only the named columns, in the given order.
type SelectStep struct {
	Columns []string
}

func (s *SelectStep) StepName() string { return "select" }

func (s *SelectStep) Apply(t *Table, _ *stepEnv) (*Table, error) {
	cols := make([]Column, 0, len(s.Columns))
	for _, name := range s.Columns {
		vals, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("select: unknown column %q", name)
		}
		cols = append(cols, Column{Name: name, Values: vals})
	}
	return FromColumns(cols)
}

// FilterStep keeps rows where column op value holds. Rows with a null in the
// column never match.
type FilterStep struct {
	Column string
	Op     string // > >= < <= == !=
	Value  any
}

func (s *FilterStep) StepName() string { return "filter" }

func (s *FilterStep) Apply(t *Table, _ *stepEnv) (*Table, error) {
	vals, ok := t.Column(s.Column)
	if !ok {
		return nil, fmt.Errorf("filter: unknown column %q", s.Column)
	}
	var keep []int
	for i, v := range vals {
		if v == nil {
			continue
		}
		match, err := compareFilter(v, s.Op, s.Value)
		if err != nil {
			return nil, fmt.Errorf("filter on %q: %w", s.Column, err)
		}
		if match {
			keep = append(keep, i)
		}
	}
	return t.selectRows(keep), nil
}

func compareFilter(v any, op string, want any) (bool, error) {
	switch op {
	case "==", "!=":
		eq, err := valuesEqual(v, want)
		if err != nil {
			return false, err
		}
		if op == "!=" {
			return !eq, nil
		}
		return eq, nil
	case ">", ">=", "<", "<=":
		cmp, err := orderValues(v, want)
		if err != nil {
			return false, err
		}
		switch op {
		case ">":
			return cmp > 0, nil
		case ">=":
			return cmp >= 0, nil
		case "<":
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

func valuesEqual(a, b any) (bool, error) {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb, nil
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return av == bv, nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			return av == bv, nil
		}
	case time.Time:
		if bv, ok := toDate(b); ok {
			return av.Equal(bv), nil
		}
	}
	return false, fmt.Errorf("cannot compare %s with %s", family(a), family(b))
}

// orderValues returns -1, 0, or 1 for comparable value kinds.
func orderValues(a, b any) (int, error) {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1, nil
			case fa > fb:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), nil
		}
	}
	if da, ok := a.(time.Time); ok {
		if db, ok := toDate(b); ok {
			switch {
			case da.Before(db):
				return -1, nil
			case da.After(db):
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	return 0, fmt.Errorf("cannot order %s against %s", family(a), family(b))
}

// toDate accepts time.Time or an ISO date string, so filters loaded from
// YAML can compare against date columns.
func toDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, true
	case string:
		return parseDateCell(d)
	}
	return time.Time{}, false
}

// Agg is a single aggregation in a group_agg step: OutName = Func(Col).
type Agg struct {
	OutName string
	Func    string // sum, mean, min, max, count
	Col     string
}

var aggSpecPattern = regexp.MustCompile(`^(sum|mean|min|max|count)\((\w+)\)$`)

// ParseAggSpec parses an aggregation spec string like "sum(amount)".
func ParseAggSpec(outName, spec string) (Agg, error) {
	m := aggSpecPattern.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return Agg{}, fmt.Errorf("invalid aggregation %q for %q, expected func(column) with func in sum/mean/min/max/count", spec, outName)
	}
	return Agg{OutName: outName, Func: m[1], Col: m[2]}, nil
}

// GroupAggStep groups by key columns and computes aggregations. Output rows
// follow first-encounter order of the group keys.
type GroupAggStep struct {
	GroupBy []string
	Aggs    []Agg
}

func (s *GroupAggStep) StepName() string { return "group_agg" }

func (s *GroupAggStep) Apply(t *Table, _ *stepEnv) (*Table, error) {
	for _, g := range s.GroupBy {
		if !t.HasColumn(g) {
			return nil, fmt.Errorf("group_agg: unknown group column %q", g)
		}
	}
	for _, a := range s.Aggs {
		if !t.HasColumn(a.Col) {
			return nil, fmt.Errorf("group_agg: unknown column %q in %s(%s)", a.Col, a.Func, a.Col)
		}
	}

	type group struct {
		key  []any
		rows []int
	}
	var groups []*group
	seen := map[string]*group{}

	for i := 0; i < t.NumRows(); i++ {
		key := make([]any, len(s.GroupBy))
		for j, g := range s.GroupBy {
			vals, _ := t.Column(g)
			key[j] = vals[i]
		}
		k := keyString(key)
		grp, ok := seen[k]
		if !ok {
			grp = &group{key: key}
			seen[k] = grp
			groups = append(groups, grp)
		}
		grp.rows = append(grp.rows, i)
	}

	cols := make([]Column, 0, len(s.GroupBy)+len(s.Aggs))
	for j, g := range s.GroupBy {
		vals := make([]any, len(groups))
		for gi, grp := range groups {
			vals[gi] = grp.key[j]
		}
		cols = append(cols, Column{Name: g, Values: vals})
	}
	for _, a := range s.Aggs {
		src, _ := t.Column(a.Col)
		vals := make([]any, len(groups))
		for gi, grp := range groups {
			v, err := aggregate(a.Func, src, grp.rows)
			if err != nil {
				return nil, fmt.Errorf("group_agg %s(%s): %w", a.Func, a.Col, err)
			}
			vals[gi] = v
		}
		cols = append(cols, Column{Name: a.OutName, Values: vals})
	}
	return FromColumns(cols)
}

// aggregate computes one aggregation over the non-null values of the given
// rows. Aggregations over no non-null values yield null (count yields 0).
func aggregate(fn string, src []any, rows []int) (any, error) {
	if fn == "count" {
		n := 0.0
		for _, i := range rows {
			if src[i] != nil {
				n++
			}
		}
		return n, nil
	}

	var nums []float64
	for _, i := range rows {
		if src[i] == nil {
			continue
		}
		f, ok := asFloat(src[i])
		if !ok {
			return nil, fmt.Errorf("non-numeric value %v", src[i])
		}
		nums = append(nums, f)
	}
	if len(nums) == 0 {
		return nil, nil
	}

	switch fn {
	case "sum", "mean":
		total := 0.0
		for _, n := range nums {
			total += n
		}
		if fn == "mean" {
			return total / float64(len(nums)), nil
		}
		return total, nil
	case "min":
		m := nums[0]
		for _, n := range nums[1:] {
			if n < m {
				m = n
			}
		}
		return m, nil
	case "max":
		m := nums[0]
		for _, n := range nums[1:] {
			if n > m {
				m = n
			}
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown aggregation %q", fn)
}

// SortStep sorts rows by the given columns. Descending may hold one flag for
// all columns or one per column. The sort is stable and nulls always sort
// last, regardless of direction.
type SortStep struct {
	By         []string
	Descending []bool
}

func (s *SortStep) StepName() string { return "sort" }

func (s *SortStep) Apply(t *Table, _ *stepEnv) (*Table, error) {
	if len(s.Descending) > 1 && len(s.Descending) != len(s.By) {
		return nil, fmt.Errorf("sort: %d descending flags for %d columns", len(s.Descending), len(s.By))
	}
	colVals := make([][]any, len(s.By))
	for i, name := range s.By {
		vals, ok := t.Column(name)
		if !ok {
			return nil, fmt.Errorf("sort: unknown column %q", name)
		}
		colVals[i] = vals
	}

	desc := func(i int) bool {
		if len(s.Descending) == 0 {
			return false
		}
		if len(s.Descending) == 1 {
			return s.Descending[0]
		}
		return s.Descending[i]
	}

	idx := make([]int, t.NumRows())
	for i := range idx {
		idx[i] = i
	}

	var sortErr error
	sort.SliceStable(idx, func(a, b int) bool {
		for ci := range s.By {
			va, vb := colVals[ci][idx[a]], colVals[ci][idx[b]]
			if va == nil && vb == nil {
				continue
			}
			if va == nil {
				return false // nulls last
			}
			if vb == nil {
				return true
			}
			cmp, err := orderValues(va, vb)
			if err != nil {
				if sortErr == nil {
					sortErr = fmt.Errorf("sort on %q: %w", s.By[ci], err)
				}
				return false
			}
			if cmp == 0 {
				continue
			}
			if desc(ci) {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return t.selectRows(idx), nil
}

// WithColumnStep adds (or replaces) a column computed row-by-row from an
// arithmetic expression over existing columns.
type WithColumnStep struct {
	Name string
	Expr string
}

func (s *WithColumnStep) StepName() string { return "with_column" }

func (s *WithColumnStep) Apply(t *Table, _ *stepEnv) (*Table, error) {
	compiled, err := compileRowExpr(s.Expr)
	if err != nil {
		return nil, fmt.Errorf("with_column %q: %w", s.Name, err)
	}
	for _, ref := range compiled.refs {
		if !t.HasColumn(ref) {
			return nil, fmt.Errorf("with_column %q: unknown column %q", s.Name, ref)
		}
	}

	values := make([]any, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		v, err := compiled.eval(t.rowMap(i))
		if err != nil {
			return nil, fmt.Errorf("with_column %q, row %d: %w", s.Name, i, err)
		}
		values[i] = v
	}

	cols := make([]Column, len(t.cols))
	copy(cols, t.cols)
	if i, ok := t.byName[s.Name]; ok {
		cols[i] = Column{Name: s.Name, Values: values}
	} else {
		cols = append(cols, Column{Name: s.Name, Values: values})
	}
	return FromColumns(cols)
}

// keyString renders a key combination deterministically for map grouping
// and duplicate-sample reporting.
func keyString(key []any) string {
	parts := make([]string, len(key))
	for i, v := range key {
		switch t := v.(type) {
		case nil:
			parts[i] = "null"
		case time.Time:
			parts[i] = t.Format("2006-01-02")
		default:
			parts[i] = fmt.Sprintf("%v", t)
		}
	}
	return strings.Join(parts, "|")
}
