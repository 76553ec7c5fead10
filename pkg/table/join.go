package table

import (
	"fmt"
)

// Join validation modes. The default is ValidateManyToOne: a left join is
// usually a lookup, and a duplicated right key silently multiplying left
// rows is the classic silent corruption this check exists for.
const (
	ValidateOneToOne   = "one_to_one"
	ValidateManyToOne  = "many_to_one"
	ValidateOneToMany  = "one_to_many"
	ValidateManyToMany = "many_to_many"
	ValidateNone       = "none"
)

const maxDuplicateSamples = 5

// JoinLeftStep left-joins a sibling pipeline onto the current table.
// Keys are either shared column names (On) or separate left/right lists.
type JoinLeftStep struct {
	Right    string
	On       []string
	LeftOn   []string
	RightOn  []string
	Validate string
}

func (s *JoinLeftStep) StepName() string { return "join_left" }

func (s *JoinLeftStep) Apply(t *Table, env *stepEnv) (*Table, error) {
	right, err := env.sibling(s.Right)
	if err != nil {
		return nil, err
	}

	leftKeys, rightKeys := s.On, s.On
	if len(s.On) == 0 {
		leftKeys, rightKeys = s.LeftOn, s.RightOn
	}
	if len(leftKeys) == 0 || len(leftKeys) != len(rightKeys) {
		return nil, fmt.Errorf("join_left with %q: join keys missing or mismatched", s.Right)
	}

	mode := s.Validate
	if mode == "" {
		mode = ValidateManyToOne
	}

	if err := validateJoin(t, right, leftKeys, rightKeys, mode); err != nil {
		return nil, err
	}

	// Index right rows by key combination. Null keys never match.
	rightIdx := map[string][]int{}
	rightKeyCols := make([][]any, len(rightKeys))
	for i, k := range rightKeys {
		rightKeyCols[i], _ = right.Column(k)
	}
	for r := 0; r < right.NumRows(); r++ {
		key, hasNull := rowKey(rightKeyCols, r)
		if hasNull {
			continue
		}
		rightIdx[key] = append(rightIdx[key], r)
	}

	leftKeyCols := make([][]any, len(leftKeys))
	for i, k := range leftKeys {
		leftKeyCols[i], _ = t.Column(k)
	}

	// Right output columns: everything except the key columns, renamed on
	// collision with a left column.
	rightKeySet := map[string]struct{}{}
	for _, k := range rightKeys {
		rightKeySet[k] = struct{}{}
	}
	var rightOutNames []string
	var rightOutCols [][]any
	for _, name := range right.ColumnNames() {
		if _, isKey := rightKeySet[name]; isKey {
			continue
		}
		outName := name
		if t.HasColumn(outName) {
			outName += "_right"
		}
		vals, _ := right.Column(name)
		rightOutNames = append(rightOutNames, outName)
		rightOutCols = append(rightOutCols, vals)
	}

	var leftRows []int
	var rightRows []int // -1 = no match
	for l := 0; l < t.NumRows(); l++ {
		key, hasNull := rowKey(leftKeyCols, l)
		matches := rightIdx[key]
		if hasNull || len(matches) == 0 {
			leftRows = append(leftRows, l)
			rightRows = append(rightRows, -1)
			continue
		}
		for _, r := range matches {
			leftRows = append(leftRows, l)
			rightRows = append(rightRows, r)
		}
	}

	cols := make([]Column, 0, t.NumCols()+len(rightOutNames))
	for _, c := range t.cols {
		vals := make([]any, len(leftRows))
		for i, l := range leftRows {
			vals[i] = c.Values[l]
		}
		cols = append(cols, Column{Name: c.Name, Values: vals})
	}
	for ci, name := range rightOutNames {
		vals := make([]any, len(rightRows))
		for i, r := range rightRows {
			if r >= 0 {
				vals[i] = rightOutCols[ci][r]
			}
		}
		cols = append(cols, Column{Name: name, Values: vals})
	}
	return FromColumns(cols)
}

// validateJoin runs the pre-join checks: key existence, type-family
// compatibility, and (under strict modes) right-side null and duplicate
// key detection via a group-count pass.
func validateJoin(left, right *Table, leftKeys, rightKeys []string, mode string) error {
	switch mode {
	case ValidateOneToOne, ValidateManyToOne, ValidateOneToMany, ValidateManyToMany, ValidateNone:
	default:
		return fmt.Errorf("unknown join validation mode %q", mode)
	}

	for i := range leftKeys {
		lv, ok := left.Column(leftKeys[i])
		if !ok {
			return fmt.Errorf("join_left: left key column %q does not exist", leftKeys[i])
		}
		rv, ok := right.Column(rightKeys[i])
		if !ok {
			return fmt.Errorf("join_left: right key column %q does not exist", rightKeys[i])
		}

		lf, rf := columnFamily(lv), columnFamily(rv)
		if lf != familyNull && rf != familyNull && lf != rf {
			return &TypeMismatchError{
				LeftColumn: leftKeys[i], RightColumn: rightKeys[i],
				LeftFamily: lf, RightFamily: rf,
			}
		}
	}

	if mode != ValidateOneToOne && mode != ValidateManyToOne {
		return nil
	}

	rightKeyCols := make([][]any, len(rightKeys))
	for i, k := range rightKeys {
		rightKeyCols[i], _ = right.Column(k)
	}

	counts := map[string]int{}
	var order []string
	nulls := 0
	for r := 0; r < right.NumRows(); r++ {
		key, hasNull := rowKey(rightKeyCols, r)
		if hasNull {
			nulls++
			continue
		}
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
	}

	if nulls > 0 {
		return &ValidationError{
			Mode:   mode,
			Reason: fmt.Sprintf("right side has %d null join key(s)", nulls),
		}
	}

	var samples []string
	dups := 0
	for _, key := range order {
		if counts[key] > 1 {
			dups++
			if len(samples) < maxDuplicateSamples {
				samples = append(samples, key)
			}
		}
	}
	if dups > 0 {
		return &ValidationError{
			Mode:    mode,
			Reason:  fmt.Sprintf("right side has %d duplicate join key(s)", dups),
			Samples: samples,
		}
	}
	return nil
}

// rowKey renders row r's key combination; hasNull reports a null component.
func rowKey(keyCols [][]any, r int) (string, bool) {
	key := make([]any, len(keyCols))
	hasNull := false
	for i, col := range keyCols {
		key[i] = col[r]
		if col[r] == nil {
			hasNull = true
		}
	}
	return keyString(key), hasNull
}
