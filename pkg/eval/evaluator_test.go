package eval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calcstack/calcbook/pkg/expr"
	"github.com/calcstack/calcbook/pkg/table"
)

func evalString(t *testing.T, ev *Evaluator, formula string) (any, error) {
	t.Helper()
	tree, err := expr.Parse(formula)
	require.NoError(t, err)
	return ev.Eval(tree)
}

func newEvaluator() *Evaluator {
	return &Evaluator{
		Registry: Default(),
		Scalars:  map[string]any{},
		Tables:   map[string]*table.Table{},
	}
}

func TestEval_OperatorSemantics(t *testing.T) {
	ev := newEvaluator()
	tests := []struct {
		formula string
		want    any
	}{
		{"=1+2*3", 7.0},
		{"=(1+2)*3", 9.0},
		{"=2^3", 8.0},
		{"=2^3^2", 512.0}, // right-associative
		{"=-2^2", -4.0},
		{"=50%*2", 1.0},
		{"=200%", 2.0},
		{"=10/4", 2.5},
		{"=1+2=3", true},
		{"=1<>2", true},
		{"=2>=2", true},
		{"=\"a\"<\"b\"", true},
		{"=TRUE", true},
		{"=NOT(FALSE)", true},
	}
	for _, tt := range tests {
		got, err := evalString(t, ev, tt.formula)
		require.NoError(t, err, tt.formula)
		require.Equal(t, tt.want, got, tt.formula)
	}
}

func TestEval_DivisionByZero(t *testing.T) {
	ev := newEvaluator()
	_, err := evalString(t, ev, "=1/0")
	var derr *DivisionError
	require.ErrorAs(t, err, &derr)

	_, err = evalString(t, ev, "=DIVIDE(1, 0)")
	require.ErrorAs(t, err, &derr)
}

func TestEval_NullArithmetic(t *testing.T) {
	// An empty cell participates in arithmetic as zero.
	ev := newEvaluator()
	ev.Scalars["empty"] = nil
	got, err := evalString(t, ev, "=empty+5")
	require.NoError(t, err)
	require.Equal(t, 5.0, got)
}

func TestEval_RefErrorListsAvailableNames(t *testing.T) {
	ev := newEvaluator()
	ev.Scalars["alpha"] = 1.0
	ev.Scalars["beta"] = 2.0

	_, err := evalString(t, ev, "=gamma+1")
	var rerr *RefError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "gamma", rerr.Name)
	require.Equal(t, []string{"alpha", "beta"}, rerr.Available)
}

func TestEval_DollarAndParam(t *testing.T) {
	ev := newEvaluator()
	ev.Scalars["rate"] = 0.08

	got, err := evalString(t, ev, "=$rate*100")
	require.NoError(t, err)
	require.Equal(t, 8.0, got)

	got, err = evalString(t, ev, `=PARAM("rate")*100`)
	require.NoError(t, err)
	require.Equal(t, 8.0, got)

	_, err = evalString(t, ev, `=PARAM("missing")`)
	var rerr *RefError
	require.ErrorAs(t, err, &rerr)
}

func TestEval_UnknownFunction(t *testing.T) {
	ev := newEvaluator()
	_, err := evalString(t, ev, "=FROB(1)")
	var ferr *FunctionError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, "FROB", ferr.Func)
}

func TestEval_FunctionNameCaseInsensitive(t *testing.T) {
	ev := newEvaluator()
	got, err := evalString(t, ev, "=sum(1, 2, 3)")
	require.NoError(t, err)
	require.Equal(t, 6.0, got)
}

type fakeResolver struct {
	cells  map[string]any // "Sheet!A1" -> value
	ranges map[string][]any
}

func (r *fakeResolver) ResolveCell(sheet, addr string) (any, error) {
	return r.cells[sheet+"!"+addr], nil
}

func (r *fakeResolver) ResolveRange(name string) ([]any, error) {
	return r.ranges[name], nil
}

func (r *fakeResolver) HasNamedRange(name string) bool {
	_, ok := r.ranges[name]
	return ok
}

func TestEval_NamedRangeThroughResolver(t *testing.T) {
	ev := newEvaluator()
	ev.Resolver = &fakeResolver{
		ranges: map[string][]any{"cashflows": {100.0, 200.0, 300.0}},
	}

	got, err := evalString(t, ev, "=SUM(cashflows)")
	require.NoError(t, err)
	require.Equal(t, 600.0, got)

	// Scalar context shadows a named range of the same name.
	ev.Scalars["cashflows"] = 42.0
	got, err = evalString(t, ev, "=cashflows")
	require.NoError(t, err)
	require.Equal(t, 42.0, got)
}

func TestEval_InSheetRefRequiresCurrentSheet(t *testing.T) {
	ev := newEvaluator()
	ev.Resolver = &fakeResolver{cells: map[string]any{"S!A1": 1.0}}

	_, err := evalString(t, ev, "=A1")
	var rerr *RefError
	require.ErrorAs(t, err, &rerr)

	ev.Sheet = "S"
	got, err := evalString(t, ev, "=A1")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	// Cross-sheet references resolve regardless of the current sheet.
	ev.Sheet = ""
	got, err = evalString(t, ev, "=S!A1")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)
}

func TestEval_IsError(t *testing.T) {
	ev := newEvaluator()

	got, err := evalString(t, ev, "=ISERROR(1/0)")
	require.NoError(t, err)
	require.Equal(t, true, got)

	got, err = evalString(t, ev, "=ISERROR(unknown_name)")
	require.NoError(t, err)
	require.Equal(t, true, got)

	got, err = evalString(t, ev, "=ISERROR(1+1)")
	require.NoError(t, err)
	require.Equal(t, false, got)

	// The probe result feeds a surrounding formula without aborting it.
	got, err = evalString(t, ev, "=IF(ISERROR(1/0), -1, 1)")
	require.NoError(t, err)
	require.Equal(t, -1.0, got)

	_, err = evalString(t, ev, "=ISERROR(1, 2)")
	var ferr *FunctionError
	require.ErrorAs(t, err, &ferr)
}

func TestEval_IsErrorDoesNotSwallowCycles(t *testing.T) {
	ev := newEvaluator()
	cyc := &CycleError{Path: []string{"S!A1", "S!B1", "S!A1"}}
	ev.Registry = Default()
	ev.Resolver = &cyclingResolver{err: cyc}
	ev.Sheet = "S"

	_, err := evalString(t, ev, "=ISERROR(A1)")
	var got *CycleError
	require.ErrorAs(t, err, &got)
}

type cyclingResolver struct{ err error }

func (r *cyclingResolver) ResolveCell(_, _ string) (any, error) { return nil, r.err }
func (r *cyclingResolver) ResolveRange(_ string) ([]any, error) { return nil, r.err }
func (r *cyclingResolver) HasNamedRange(_ string) bool          { return false }

func TestEval_Comparisons(t *testing.T) {
	ev := newEvaluator()

	// Equality across kinds is false, not an error.
	got, err := evalString(t, ev, `=1="a"`)
	require.NoError(t, err)
	require.Equal(t, false, got)

	// Ordering across kinds is an error.
	_, err = evalString(t, ev, `=1<"a"`)
	var ferr *FunctionError
	require.ErrorAs(t, err, &ferr)
}

func TestFuncs_Dates(t *testing.T) {
	ev := newEvaluator()

	got, err := evalString(t, ev, "=YEAR(DATE(2024, 2, 29))")
	require.NoError(t, err)
	require.Equal(t, 2024.0, got)

	// Leap-year February.
	got, err = evalString(t, ev, "=DAY(EOMONTH(DATE(2024, 1, 15), 1))")
	require.NoError(t, err)
	require.Equal(t, 29.0, got)

	// Crossing a year boundary backwards.
	got, err = evalString(t, ev, "=MONTH(EOMONTH(DATE(2024, 1, 15), -2))")
	require.NoError(t, err)
	require.Equal(t, 11.0, got)

	got, err = evalString(t, ev, "=DAY(EOMONTH(DATE(2023, 11, 1), 15))")
	require.NoError(t, err)
	require.Equal(t, 28.0, got)
}

func TestFuncs_Aggregates(t *testing.T) {
	ev := newEvaluator()
	ev.Scalars["xs"] = []any{1.0, nil, 3.0}

	got, err := evalString(t, ev, "=SUM(xs, 6)")
	require.NoError(t, err)
	require.Equal(t, 10.0, got)

	got, err = evalString(t, ev, "=MEAN(xs)")
	require.NoError(t, err)
	require.Equal(t, 2.0, got)

	got, err = evalString(t, ev, "=MIN(xs)")
	require.NoError(t, err)
	require.Equal(t, 1.0, got)

	got, err = evalString(t, ev, "=MAX(xs)")
	require.NoError(t, err)
	require.Equal(t, 3.0, got)

	got, err = evalString(t, ev, "=ROUND(2.5)")
	require.NoError(t, err)
	require.Equal(t, 3.0, got)

	got, err = evalString(t, ev, "=ROUND(-2.5)")
	require.NoError(t, err)
	require.Equal(t, -3.0, got)

	got, err = evalString(t, ev, "=ROUND(1.2345, 2)")
	require.NoError(t, err)
	require.InDelta(t, 1.23, got.(float64), 1e-9)
}

func TestFuncs_Lookups(t *testing.T) {
	ev := newEvaluator()
	tbl, err := table.FromColumns([]table.Column{
		{Name: "region", Values: []any{"us", "eu", "apac"}},
		{Name: "rate", Values: []any{0.05, 0.03, 0.07}},
	})
	require.NoError(t, err)
	ev.Tables["rates"] = tbl

	got, err := evalString(t, ev, `=MATCH("eu", "rates", "region")`)
	require.NoError(t, err)
	require.Equal(t, 2.0, got)

	got, err = evalString(t, ev, `=INDEX("rates", "rate", 3)`)
	require.NoError(t, err)
	require.Equal(t, 0.07, got)

	got, err = evalString(t, ev, `=XLOOKUP("eu", "rates", "region", "rate")`)
	require.NoError(t, err)
	require.Equal(t, 0.03, got)

	got, err = evalString(t, ev, `=XLOOKUP("mars", "rates", "region", "rate", 0)`)
	require.NoError(t, err)
	require.Equal(t, 0.0, got)

	var ferr *FunctionError
	_, err = evalString(t, ev, `=XLOOKUP("mars", "rates", "region", "rate")`)
	require.ErrorAs(t, err, &ferr)

	_, err = evalString(t, ev, `=INDEX("rates", "rate", 9)`)
	require.ErrorAs(t, err, &ferr)

	_, err = evalString(t, ev, `=INDEX("ghost", "rate", 1)`)
	require.ErrorAs(t, err, &ferr)
}

func TestFinance_NPV(t *testing.T) {
	ev := newEvaluator()
	// NPV discounts from period 1: 100/(1.1) + 100/(1.1)^2.
	got, err := evalString(t, ev, "=NPV(0.1, 100, 100)")
	require.NoError(t, err)
	require.InDelta(t, 100/1.1+100/1.21, got.(float64), 1e-9)
}

func TestFinance_IRRRoundTrip(t *testing.T) {
	ev := newEvaluator()
	got, err := evalString(t, ev, "=IRR(-1000, 300, 400, 500, 600)")
	require.NoError(t, err)

	r := got.(float64)
	npv := -1000.0
	cfs := []float64{300, 400, 500, 600}
	for i, cf := range cfs {
		pow := 1.0
		for j := 0; j <= i; j++ {
			pow *= 1 + r
		}
		npv += cf / pow
	}
	require.InDelta(t, 0, npv, 1e-6)
}

func TestFinance_IRRNoSignChange(t *testing.T) {
	ev := newEvaluator()
	_, err := evalString(t, ev, "=IRR(100, 100, 100)")
	var ferr *FunctionError
	require.ErrorAs(t, err, &ferr)
}

func financeTable(t *testing.T, days []int, values []float64) *table.Table {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]any, len(days))
	vals := make([]any, len(values))
	for i := range days {
		dates[i] = start.AddDate(0, 0, days[i])
		vals[i] = values[i]
	}
	tbl, err := table.FromColumns([]table.Column{
		{Name: "dt", Values: dates},
		{Name: "cf", Values: vals},
	})
	require.NoError(t, err)
	return tbl
}

func TestFinance_XNPVActual365(t *testing.T) {
	ev := newEvaluator()
	ev.Tables["cf"] = financeTable(t, []int{0, 365}, []float64{-1000, 1100})

	// Two flows exactly 365 days apart: XNPV(r) == cf0 + cf1/(1+r).
	got, err := evalString(t, ev, `=XNPV(0.1, "cf", "dt", "cf")`)
	require.NoError(t, err)
	require.InDelta(t, -1000+1100/1.1, got.(float64), 1e-9)
}

func TestFinance_XIRR(t *testing.T) {
	ev := newEvaluator()
	ev.Tables["cf"] = financeTable(t, []int{0, 365}, []float64{-1000, 1100})

	got, err := evalString(t, ev, `=XIRR("cf", "dt", "cf")`)
	require.NoError(t, err)
	require.InDelta(t, 0.1, got.(float64), 1e-6)
}

func TestRegistry_Names(t *testing.T) {
	names := Default().Names()
	require.Contains(t, names, "SUM")
	require.Contains(t, names, "ISERROR")
	require.IsIncreasing(t, names)
}
