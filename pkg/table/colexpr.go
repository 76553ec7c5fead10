package table

import (
	"fmt"
	"math"
	"strings"

	"github.com/calcstack/calcbook/pkg/expr"
)

// rowExpr is a compiled with_column expression: arithmetic over existing
// columns, one evaluation per row. Only numeric literals, column names,
// the arithmetic operators, percent, and parentheses are allowed; function
// calls and references belong in formulas, not in table pipelines.
type rowExpr struct {
	tree expr.Node
	refs []string // referenced column names
}

func compileRowExpr(text string) (*rowExpr, error) {
	src := strings.TrimSpace(text)
	if !strings.HasPrefix(src, "=") {
		src = "=" + src
	}
	tree, err := expr.Parse(src)
	if err != nil {
		return nil, err
	}
	if err := checkRowExpr(tree); err != nil {
		return nil, err
	}
	return &rowExpr{tree: tree, refs: expr.CollectRefs(tree).Names}, nil
}

func checkRowExpr(n expr.Node) error {
	switch t := n.(type) {
	case *expr.NumberLit:
		return nil
	case *expr.NameRef:
		if t.Dollar {
			return fmt.Errorf("$-references are not allowed in column expressions")
		}
		return nil
	case *expr.Unary:
		return checkRowExpr(t.X)
	case *expr.Percent:
		return checkRowExpr(t.X)
	case *expr.Binary:
		switch t.Op {
		case "+", "-", "*", "/", "^":
		default:
			return fmt.Errorf("operator %q is not allowed in column expressions", t.Op)
		}
		if err := checkRowExpr(t.L); err != nil {
			return err
		}
		return checkRowExpr(t.R)
	case *expr.CellRef:
		return fmt.Errorf("cell references are not allowed in column expressions")
	default:
		return fmt.Errorf("%s is not allowed in column expressions", n)
	}
}

// eval computes the expression for one row. A null operand anywhere
// propagates: the result is null.
func (e *rowExpr) eval(row map[string]any) (any, error) {
	v, null, err := evalRowNode(e.tree, row)
	if err != nil || null {
		return nil, err
	}
	return v, nil
}

func evalRowNode(n expr.Node, row map[string]any) (float64, bool, error) {
	switch t := n.(type) {
	case *expr.NumberLit:
		return t.Value, false, nil

	case *expr.NameRef:
		v, ok := row[t.Name]
		if !ok {
			return 0, false, fmt.Errorf("unknown column %q", t.Name)
		}
		if v == nil {
			return 0, true, nil
		}
		f, ok := asFloat(v)
		if !ok {
			return 0, false, fmt.Errorf("column %q is not numeric", t.Name)
		}
		return f, false, nil

	case *expr.Unary:
		v, null, err := evalRowNode(t.X, row)
		if err != nil || null {
			return 0, null, err
		}
		if t.Op == "-" {
			return -v, false, nil
		}
		return v, false, nil

	case *expr.Percent:
		v, null, err := evalRowNode(t.X, row)
		if err != nil || null {
			return 0, null, err
		}
		return v / 100, false, nil

	case *expr.Binary:
		l, null, err := evalRowNode(t.L, row)
		if err != nil || null {
			return 0, null, err
		}
		r, null, err := evalRowNode(t.R, row)
		if err != nil || null {
			return 0, null, err
		}
		switch t.Op {
		case "+":
			return l + r, false, nil
		case "-":
			return l - r, false, nil
		case "*":
			return l * r, false, nil
		case "/":
			if r == 0 {
				return 0, false, fmt.Errorf("division by zero")
			}
			return l / r, false, nil
		case "^":
			return math.Pow(l, r), false, nil
		}
	}
	return 0, false, fmt.Errorf("unexpected node %s", n)
}
