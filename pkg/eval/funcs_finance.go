package eval

import (
	"math"
	"time"
)

// Numerical parameters for IRR/XIRR root finding. Newton-Raphson runs
// first; when it fails to converge or its derivative underflows, a
// bracketing bisection over rate in [-0.99, 10] takes over.
const (
	newtonGuess   = 0.1
	newtonMaxIter = 100
	newtonTol     = 1e-10

	bisectLo      = -0.99
	bisectHi      = 10.0
	bisectMaxIter = 200

	xnpvCheckTol = 1e-6
	daysPerYear  = 365.0 // Actual/365 day count
)

// fnNPV discounts cashflows starting at period 1: NPV(rate, cf1..cfn) =
// sum of cf_i / (1+rate)^i. There is no period-0 flow; add it outside.
func fnNPV(_ *Evaluator, args []any) (any, error) {
	if len(args) < 2 {
		return nil, funcErrorf("NPV", "expected rate and at least one cashflow")
	}
	rate, err := argNumber("NPV", args, 0)
	if err != nil {
		return nil, err
	}
	cfs, err := flattenNumbers("NPV", args[1:])
	if err != nil {
		return nil, err
	}
	total := 0.0
	for i, cf := range cfs {
		total += cf / math.Pow(1+rate, float64(i+1))
	}
	return total, nil
}

// fnIRR finds the rate where the net present value of cashflows at periods
// 0..n is zero.
func fnIRR(_ *Evaluator, args []any) (any, error) {
	cfs, err := flattenNumbers("IRR", args)
	if err != nil {
		return nil, err
	}
	if len(cfs) < 2 {
		return nil, funcErrorf("IRR", "expected at least 2 cashflows, got %d", len(cfs))
	}

	npv := func(rate float64) float64 {
		total := 0.0
		for i, cf := range cfs {
			total += cf / math.Pow(1+rate, float64(i))
		}
		return total
	}
	deriv := func(rate float64) float64 {
		total := 0.0
		for i, cf := range cfs {
			total -= float64(i) * cf / math.Pow(1+rate, float64(i+1))
		}
		return total
	}

	rate, ok := solveRate(npv, deriv)
	if !ok {
		return nil, funcErrorf("IRR", "failed to converge")
	}
	return rate, nil
}

// fnXNPV discounts dated cashflows with an Actual/365 day count measured
// from the first date in the series: XNPV(rate, table, date_col, value_col).
func fnXNPV(ev *Evaluator, args []any) (any, error) {
	if len(args) != 4 {
		return nil, funcErrorf("XNPV", "expected 4 arguments (rate, table, date_column, value_column), got %d", len(args))
	}
	rate, err := argNumber("XNPV", args, 0)
	if err != nil {
		return nil, err
	}
	dates, values, err := datedCashflows("XNPV", ev, args[1:])
	if err != nil {
		return nil, err
	}
	return xnpv(rate, dates, values), nil
}

// fnXIRR finds the rate where XNPV of the dated series is zero:
// XIRR(table, date_col, value_col).
func fnXIRR(ev *Evaluator, args []any) (any, error) {
	if len(args) != 3 {
		return nil, funcErrorf("XIRR", "expected 3 arguments (table, date_column, value_column), got %d", len(args))
	}
	dates, values, err := datedCashflows("XIRR", ev, args)
	if err != nil {
		return nil, err
	}

	f := func(rate float64) float64 { return xnpv(rate, dates, values) }
	df := func(rate float64) float64 {
		total := 0.0
		for i := range values {
			years := dates[i].Sub(dates[0]).Hours() / 24 / daysPerYear
			total -= years * values[i] / math.Pow(1+rate, years+1)
		}
		return total
	}

	rate, ok := solveRate(f, df)
	if !ok {
		return nil, funcErrorf("XIRR", "failed to converge")
	}
	// Guard against a spurious fixed point far from the root.
	if math.Abs(f(rate)) >= xnpvCheckTol {
		return nil, funcErrorf("XIRR", "converged rate %g does not zero the series", rate)
	}
	return rate, nil
}

// datedCashflows extracts parallel (date, value) series from a cached
// table. Rows with a null in either column are rejected rather than
// silently skipped: a dated series with holes is an authoring error.
func datedCashflows(fn string, ev *Evaluator, args []any) ([]time.Time, []float64, error) {
	tableName, err := argString(fn, args, 0)
	if err != nil {
		return nil, nil, err
	}
	dateCol, err := argString(fn, args, 1)
	if err != nil {
		return nil, nil, err
	}
	valueCol, err := argString(fn, args, 2)
	if err != nil {
		return nil, nil, err
	}

	rawDates, err := lookupColumn(fn, ev, tableName, dateCol)
	if err != nil {
		return nil, nil, err
	}
	rawValues, err := lookupColumn(fn, ev, tableName, valueCol)
	if err != nil {
		return nil, nil, err
	}
	if len(rawDates) == 0 {
		return nil, nil, funcErrorf(fn, "table %q is empty", tableName)
	}

	dates := make([]time.Time, len(rawDates))
	values := make([]float64, len(rawValues))
	for i := range rawDates {
		d, ok := rawDates[i].(time.Time)
		if !ok {
			return nil, nil, funcErrorf(fn, "%s.%s row %d is not a date", tableName, dateCol, i+1)
		}
		v, ok := toNumber(rawValues[i])
		if !ok || rawValues[i] == nil {
			return nil, nil, funcErrorf(fn, "%s.%s row %d is not numeric", tableName, valueCol, i+1)
		}
		dates[i] = d
		values[i] = v
	}
	return dates, values, nil
}

func xnpv(rate float64, dates []time.Time, values []float64) float64 {
	total := 0.0
	for i := range values {
		years := dates[i].Sub(dates[0]).Hours() / 24 / daysPerYear
		total += values[i] / math.Pow(1+rate, years)
	}
	return total
}

// solveRate runs Newton-Raphson from the standard initial guess, falling
// back to bisection when the derivative underflows, an iterate leaves the
// valid domain, or the step fails to shrink below tolerance.
func solveRate(f, df func(float64) float64) (float64, bool) {
	rate := newtonGuess
	for i := 0; i < newtonMaxIter; i++ {
		d := df(rate)
		if math.Abs(d) < 1e-12 || math.IsNaN(d) || math.IsInf(d, 0) {
			break
		}
		next := rate - f(rate)/d
		if math.IsNaN(next) || next <= -1 {
			break
		}
		if math.Abs(next-rate) < newtonTol {
			return next, true
		}
		rate = next
	}
	return bisectRate(f)
}

// bisectRate brackets a root in [bisectLo, bisectHi]; it needs a sign
// change over the interval.
func bisectRate(f func(float64) float64) (float64, bool) {
	lo, hi := bisectLo, bisectHi
	flo, fhi := f(lo), f(hi)
	if flo == 0 {
		return lo, true
	}
	if fhi == 0 {
		return hi, true
	}
	if flo*fhi > 0 {
		return 0, false
	}

	for i := 0; i < bisectMaxIter; i++ {
		mid := (lo + hi) / 2
		fmid := f(mid)
		if fmid == 0 || (hi-lo)/2 < newtonTol {
			return mid, true
		}
		if flo*fmid < 0 {
			hi = mid
		} else {
			lo, flo = mid, fmid
		}
	}
	return (lo + hi) / 2, true
}
