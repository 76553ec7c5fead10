package eval

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/calcstack/calcbook/pkg/expr"
)

// flattenNumbers collects the numeric values of args, descending into range
// sequences and skipping nils (blank cells). Non-numeric values are an
// error for fn.
func flattenNumbers(fn string, args []any) ([]float64, error) {
	var out []float64
	var walk func(v any) error
	walk = func(v any) error {
		switch t := v.(type) {
		case nil:
			return nil
		case []any:
			for _, e := range t {
				if err := walk(e); err != nil {
					return err
				}
			}
			return nil
		default:
			f, ok := toNumber(v)
			if !ok {
				return funcErrorf(fn, "argument %v is not numeric", v)
			}
			out = append(out, f)
			return nil
		}
	}
	for _, a := range args {
		if err := walk(a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func argNumber(fn string, args []any, i int) (float64, error) {
	if i >= len(args) {
		return 0, funcErrorf(fn, "missing argument %d", i+1)
	}
	f, ok := toNumber(args[i])
	if !ok {
		return 0, funcErrorf(fn, "argument %d (%v) is not numeric", i+1, args[i])
	}
	return f, nil
}

func argString(fn string, args []any, i int) (string, error) {
	if i >= len(args) {
		return "", funcErrorf(fn, "missing argument %d", i+1)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", funcErrorf(fn, "argument %d (%v) is not a string", i+1, args[i])
	}
	return s, nil
}

func argBool(fn string, args []any, i int) (bool, error) {
	if i >= len(args) {
		return false, funcErrorf(fn, "missing argument %d", i+1)
	}
	b, ok := args[i].(bool)
	if !ok {
		return false, funcErrorf(fn, "argument %d (%v) is not a boolean", i+1, args[i])
	}
	return b, nil
}

func argDate(fn string, args []any, i int) (time.Time, error) {
	if i >= len(args) {
		return time.Time{}, funcErrorf(fn, "missing argument %d", i+1)
	}
	d, ok := args[i].(time.Time)
	if !ok {
		return time.Time{}, funcErrorf(fn, "argument %d (%v) is not a date", i+1, args[i])
	}
	return d, nil
}

func fnSum(_ *Evaluator, args []any) (any, error) {
	nums, err := flattenNumbers("SUM", args)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total, nil
}

func fnMean(_ *Evaluator, args []any) (any, error) {
	nums, err := flattenNumbers("MEAN", args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, funcErrorf("MEAN", "no numeric values")
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total / float64(len(nums)), nil
}

func fnMin(_ *Evaluator, args []any) (any, error) {
	nums, err := flattenNumbers("MIN", args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, funcErrorf("MIN", "no numeric values")
	}
	m := nums[0]
	for _, n := range nums[1:] {
		if n < m {
			m = n
		}
	}
	return m, nil
}

func fnMax(_ *Evaluator, args []any) (any, error) {
	nums, err := flattenNumbers("MAX", args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, funcErrorf("MAX", "no numeric values")
	}
	m := nums[0]
	for _, n := range nums[1:] {
		if n > m {
			m = n
		}
	}
	return m, nil
}

func fnAbs(_ *Evaluator, args []any) (any, error) {
	if len(args) != 1 {
		return nil, funcErrorf("ABS", "expected 1 argument, got %d", len(args))
	}
	x, err := argNumber("ABS", args, 0)
	if err != nil {
		return nil, err
	}
	return math.Abs(x), nil
}

// fnRound rounds half away from zero, to the given number of digits
// (default 0).
func fnRound(_ *Evaluator, args []any) (any, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, funcErrorf("ROUND", "expected 1 or 2 arguments, got %d", len(args))
	}
	x, err := argNumber("ROUND", args, 0)
	if err != nil {
		return nil, err
	}
	digits := 0.0
	if len(args) == 2 {
		digits, err = argNumber("ROUND", args, 1)
		if err != nil {
			return nil, err
		}
	}
	pow := math.Pow(10, digits)
	return math.Round(x*pow) / pow, nil
}

func fnMultiply(_ *Evaluator, args []any) (any, error) {
	nums, err := flattenNumbers("MULTIPLY", args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, funcErrorf("MULTIPLY", "no numeric values")
	}
	p := 1.0
	for _, n := range nums {
		p *= n
	}
	return p, nil
}

func fnSubtract(_ *Evaluator, args []any) (any, error) {
	if len(args) != 2 {
		return nil, funcErrorf("SUBTRACT", "expected 2 arguments, got %d", len(args))
	}
	a, err := argNumber("SUBTRACT", args, 0)
	if err != nil {
		return nil, err
	}
	b, err := argNumber("SUBTRACT", args, 1)
	if err != nil {
		return nil, err
	}
	return a - b, nil
}

func fnDivide(_ *Evaluator, args []any) (any, error) {
	if len(args) != 2 {
		return nil, funcErrorf("DIVIDE", "expected 2 arguments, got %d", len(args))
	}
	a, err := argNumber("DIVIDE", args, 0)
	if err != nil {
		return nil, err
	}
	b, err := argNumber("DIVIDE", args, 1)
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, &DivisionError{Detail: "DIVIDE"}
	}
	return a / b, nil
}

func fnAnd(_ *Evaluator, args []any) (any, error) {
	if len(args) == 0 {
		return nil, funcErrorf("AND", "expected at least 1 argument")
	}
	for i := range args {
		b, err := argBool("AND", args, i)
		if err != nil {
			return nil, err
		}
		if !b {
			return false, nil
		}
	}
	return true, nil
}

func fnOr(_ *Evaluator, args []any) (any, error) {
	if len(args) == 0 {
		return nil, funcErrorf("OR", "expected at least 1 argument")
	}
	for i := range args {
		b, err := argBool("OR", args, i)
		if err != nil {
			return nil, err
		}
		if b {
			return true, nil
		}
	}
	return false, nil
}

func fnNot(_ *Evaluator, args []any) (any, error) {
	if len(args) != 1 {
		return nil, funcErrorf("NOT", "expected 1 argument, got %d", len(args))
	}
	b, err := argBool("NOT", args, 0)
	if err != nil {
		return nil, err
	}
	return !b, nil
}

// fnIf returns the second or third argument depending on the condition.
// The else branch is optional and defaults to null. Both branches are
// already evaluated; IF is a selector, not a control structure. Use
// ISERROR for probing failing expressions.
func fnIf(_ *Evaluator, args []any) (any, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, funcErrorf("IF", "expected 2 or 3 arguments, got %d", len(args))
	}
	cond, err := argBool("IF", args, 0)
	if err != nil {
		return nil, err
	}
	if cond {
		return args[1], nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return nil, nil
}

func fnDate(_ *Evaluator, args []any) (any, error) {
	if len(args) != 3 {
		return nil, funcErrorf("DATE", "expected 3 arguments, got %d", len(args))
	}
	y, err := argNumber("DATE", args, 0)
	if err != nil {
		return nil, err
	}
	m, err := argNumber("DATE", args, 1)
	if err != nil {
		return nil, err
	}
	d, err := argNumber("DATE", args, 2)
	if err != nil {
		return nil, err
	}
	return time.Date(int(y), time.Month(int(m)), int(d), 0, 0, 0, 0, time.UTC), nil
}

func fnYear(_ *Evaluator, args []any) (any, error) {
	d, err := argDate("YEAR", args, 0)
	if err != nil {
		return nil, err
	}
	return float64(d.Year()), nil
}

func fnMonth(_ *Evaluator, args []any) (any, error) {
	d, err := argDate("MONTH", args, 0)
	if err != nil {
		return nil, err
	}
	return float64(int(d.Month())), nil
}

func fnDay(_ *Evaluator, args []any) (any, error) {
	d, err := argDate("DAY", args, 0)
	if err != nil {
		return nil, err
	}
	return float64(d.Day()), nil
}

// fnEomonth returns the last day of the month offset months from the given
// date. The target year and month come from (year*12 + month - 1) + offset
// in integer arithmetic, which stays correct across year boundaries and
// variable month lengths.
func fnEomonth(_ *Evaluator, args []any) (any, error) {
	if len(args) != 2 {
		return nil, funcErrorf("EOMONTH", "expected 2 arguments, got %d", len(args))
	}
	d, err := argDate("EOMONTH", args, 0)
	if err != nil {
		return nil, err
	}
	offset, err := argNumber("EOMONTH", args, 1)
	if err != nil {
		return nil, err
	}

	months := d.Year()*12 + int(d.Month()) - 1 + int(offset)
	year, month := months/12, months%12
	if month < 0 {
		month += 12
		year--
	}
	// Day 0 of the following month is the last day of the target month.
	return time.Date(year, time.Month(month+2), 0, 0, 0, 0, 0, time.UTC), nil
}

// fnParam resolves a run parameter. Parameters are folded into the scalar
// context by the orchestrator, so PARAM("x") behaves exactly like $x.
func fnParam(ev *Evaluator, args []any) (any, error) {
	if len(args) != 1 {
		return nil, funcErrorf("PARAM", "expected 1 argument, got %d", len(args))
	}
	name, err := argString("PARAM", args, 0)
	if err != nil {
		return nil, err
	}
	v, ok := ev.Scalars[name]
	if !ok {
		available := make([]string, 0, len(ev.Scalars))
		for k := range ev.Scalars {
			available = append(available, k)
		}
		sort.Strings(available)
		return nil, &RefError{Name: name, Available: available}
	}
	return v, nil
}

// fnIsError attempts evaluation of its single argument sub-tree and reports
// whether it failed with an engine-defined error. A CycleError is never
// swallowed: cycles are a structural defect of the workbook, not a value
// condition a formula may probe.
func fnIsError(ev *Evaluator, args []expr.Node) (any, error) {
	if len(args) != 1 {
		return nil, funcErrorf("ISERROR", "expected 1 argument, got %d", len(args))
	}
	_, err := ev.Eval(args[0])
	if err == nil {
		return false, nil
	}
	var cyc *CycleError
	if errors.As(err, &cyc) {
		return nil, err
	}
	if IsEngineError(err) {
		return true, nil
	}
	return nil, err
}
