// Package eval walks expression trees against a scalar context, a table
// cache, and an optional Resolver capability, dispatching function calls
// into an immutable function registry.
//
// Evaluation is pure and single-threaded: identical inputs always produce
// identical outputs, and referenced values are computed synchronously inside
// the caller's evaluation.
package eval

import (
	"math"
	"sort"
	"time"

	"github.com/calcstack/calcbook/pkg/expr"
	"github.com/calcstack/calcbook/pkg/table"
)

// Resolver lets the evaluator fetch cell and named-range values without
// knowing how they are computed. The cell graph implements it.
type Resolver interface {
	// ResolveCell returns the value of sheet!addr.
	ResolveCell(sheet, addr string) (any, error)
	// ResolveRange expands a named range to its non-empty values in
	// row-major order.
	ResolveRange(name string) ([]any, error)
	// HasNamedRange reports whether name denotes a named range.
	HasNamedRange(name string) bool
}

// Evaluator evaluates expression trees. Scalars and Tables are the run's
// scalar context and materialized table cache; Resolver may be nil when no
// sheet data is in play. Sheet is the current sheet and is set only while a
// specific cell's formula is being evaluated.
type Evaluator struct {
	Registry *Registry
	Scalars  map[string]any
	Tables   map[string]*table.Table
	Resolver Resolver
	Sheet    string
}

// Eval evaluates a tree to a value. Values are float64, string, bool,
// time.Time, []any (ranges), or nil.
func (ev *Evaluator) Eval(tree expr.Node) (any, error) {
	switch n := tree.(type) {
	case *expr.NumberLit:
		return n.Value, nil
	case *expr.StringLit:
		return n.Value, nil
	case *expr.BoolLit:
		return n.Value, nil

	case *expr.Unary:
		return ev.evalUnary(n)
	case *expr.Binary:
		return ev.evalBinary(n)
	case *expr.Percent:
		x, err := ev.Eval(n.X)
		if err != nil {
			return nil, err
		}
		f, ok := toNumber(x)
		if !ok {
			return nil, funcErrorf("%", "operand %v is not numeric", x)
		}
		return f / 100, nil

	case *expr.Call:
		return ev.evalCall(n)
	case *expr.NameRef:
		return ev.resolveName(n.Name)
	case *expr.CellRef:
		return ev.resolveCellRef(n)
	}
	return nil, funcErrorf("eval", "unexpected expression node %s", tree)
}

// resolveName resolves a bare or $-prefixed reference: scalar context first,
// then named ranges through the resolver.
func (ev *Evaluator) resolveName(name string) (any, error) {
	if v, ok := ev.Scalars[name]; ok {
		return v, nil
	}
	if ev.Resolver != nil && ev.Resolver.HasNamedRange(name) {
		return ev.Resolver.ResolveRange(name)
	}

	available := make([]string, 0, len(ev.Scalars))
	for k := range ev.Scalars {
		available = append(available, k)
	}
	sort.Strings(available)
	return nil, &RefError{Name: name, Available: available}
}

func (ev *Evaluator) resolveCellRef(n *expr.CellRef) (any, error) {
	if ev.Resolver == nil {
		return nil, &RefError{Name: n.String(), Reason: "cell reference " + n.String() + " used without sheet data"}
	}
	sheet := n.Sheet
	if sheet == "" {
		if ev.Sheet == "" {
			return nil, &RefError{Name: n.Addr, Reason: "in-sheet reference " + n.Addr + " outside any sheet; qualify it with a sheet name"}
		}
		sheet = ev.Sheet
	}
	return ev.Resolver.ResolveCell(sheet, n.Addr)
}

func (ev *Evaluator) evalCall(n *expr.Call) (any, error) {
	if fn, ok := ev.Registry.lazyFunc(n.Name); ok {
		return fn(ev, n.Args)
	}
	fn, ok := ev.Registry.eagerFunc(n.Name)
	if !ok {
		return nil, funcErrorf(n.Name, "unknown function")
	}

	args := make([]any, len(n.Args))
	for i, argNode := range n.Args {
		v, err := ev.Eval(argNode)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return fn(ev, args)
}

// Call invokes an eager function by name with pre-evaluated arguments.
// This is the dispatch path for structured (non-formula) calls; lazy
// functions have no value form and resolve as unknown here.
func (ev *Evaluator) Call(name string, args []any) (any, error) {
	fn, ok := ev.Registry.eagerFunc(name)
	if !ok {
		return nil, funcErrorf(name, "unknown function")
	}
	return fn(ev, args)
}

func (ev *Evaluator) evalUnary(n *expr.Unary) (any, error) {
	x, err := ev.Eval(n.X)
	if err != nil {
		return nil, err
	}
	f, ok := toNumber(x)
	if !ok {
		return nil, funcErrorf(n.Op, "operand %v is not numeric", x)
	}
	if n.Op == "-" {
		return -f, nil
	}
	return f, nil
}

func (ev *Evaluator) evalBinary(n *expr.Binary) (any, error) {
	l, err := ev.Eval(n.L)
	if err != nil {
		return nil, err
	}
	r, err := ev.Eval(n.R)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "+", "-", "*", "/", "^":
		lf, ok := toNumber(l)
		if !ok {
			return nil, funcErrorf(n.Op, "left operand %v is not numeric", l)
		}
		rf, ok := toNumber(r)
		if !ok {
			return nil, funcErrorf(n.Op, "right operand %v is not numeric", r)
		}
		switch n.Op {
		case "+":
			return lf + rf, nil
		case "-":
			return lf - rf, nil
		case "*":
			return lf * rf, nil
		case "/":
			if rf == 0 {
				return nil, &DivisionError{}
			}
			return lf / rf, nil
		default:
			return math.Pow(lf, rf), nil
		}

	case "=", "<>":
		eq, err := equalValues(l, r)
		if err != nil {
			return nil, err
		}
		if n.Op == "<>" {
			return !eq, nil
		}
		return eq, nil

	case "<", ">", "<=", ">=":
		cmp, err := compareValues(n.Op, l, r)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "<":
			return cmp < 0, nil
		case ">":
			return cmp > 0, nil
		case "<=":
			return cmp <= 0, nil
		default:
			return cmp >= 0, nil
		}
	}
	return nil, funcErrorf(n.Op, "unknown operator")
}

// toNumber widens a value to float64 for arithmetic. Empty cells (nil)
// participate as zero, matching spreadsheet convention.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
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

// equalValues compares two values for equality. Values of different kinds
// are unequal rather than an error, so = and <> stay total; ordering
// comparisons are stricter.
func equalValues(l, r any) (bool, error) {
	if l == nil || r == nil {
		return l == nil && r == nil, nil
	}
	if lf, ok := toNumber(l); ok {
		if rf, ok := toNumber(r); ok {
			return lf == rf, nil
		}
		return false, nil
	}
	switch lv := l.(type) {
	case string:
		rv, ok := r.(string)
		return ok && lv == rv, nil
	case bool:
		rv, ok := r.(bool)
		return ok && lv == rv, nil
	case time.Time:
		rv, ok := r.(time.Time)
		return ok && lv.Equal(rv), nil
	}
	return false, nil
}

// compareValues orders two values of comparable kinds, returning -1, 0, 1.
func compareValues(op string, l, r any) (int, error) {
	if lf, lok := toNumber(l); lok {
		if rf, rok := toNumber(r); rok {
			switch {
			case lf < rf:
				return -1, nil
			case lf > rf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok {
			switch {
			case ls < rs:
				return -1, nil
			case ls > rs:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if ld, ok := l.(time.Time); ok {
		if rd, ok := r.(time.Time); ok {
			switch {
			case ld.Before(rd):
				return -1, nil
			case ld.After(rd):
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	return 0, funcErrorf(op, "cannot compare %v with %v", l, r)
}
