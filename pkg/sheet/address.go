// Package sheet evaluates cell formulas over a set of named sheets.
// It implements the resolver consumed by the expression evaluator and
// memoizes every cell it touches, detecting reference cycles with an
// explicit visitation stack.
package sheet

import (
	"fmt"
	"strings"
)

// parseAddr splits an A1-style address into a 1-based column and row.
// Addresses are case-normalized before lookup, so "b12" and "B12" name
// the same cell.
func parseAddr(addr string) (col, row int, err error) {
	s := strings.ToUpper(strings.TrimSpace(addr))
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		col = col*26 + int(s[i]-'A'+1)
		i++
	}
	if i == 0 || i > 3 {
		return 0, 0, fmt.Errorf("invalid cell address %q", addr)
	}
	if i == len(s) {
		return 0, 0, fmt.Errorf("invalid cell address %q: missing row", addr)
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, 0, fmt.Errorf("invalid cell address %q", addr)
		}
		row = row*10 + int(s[i]-'0')
	}
	if row == 0 {
		return 0, 0, fmt.Errorf("invalid cell address %q: row is 1-based", addr)
	}
	return col, row, nil
}

func formatAddr(col, row int) string {
	var letters []byte
	for col > 0 {
		col--
		letters = append([]byte{byte('A' + col%26)}, letters...)
		col /= 26
	}
	return fmt.Sprintf("%s%d", letters, row)
}

// NormalizeAddr uppercases an address and validates its shape.
func NormalizeAddr(addr string) (string, error) {
	col, row, err := parseAddr(addr)
	if err != nil {
		return "", err
	}
	return formatAddr(col, row), nil
}
