package table

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func staticSource(cols []Column) ScanFunc {
	return func() (*Table, error) {
		return FromColumns(cols)
	}
}

func TestGraph_EvaluateForcesAll(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddSource("raw", staticSource([]Column{
		{Name: "k", Values: []any{1.0, 2.0}},
		{Name: "v", Values: []any{10.0, 20.0}},
	})))
	require.NoError(t, g.AddPlan("big", "raw", []Step{
		&FilterStep{Column: "v", Op: ">", Value: 15.0},
	}))

	out, err := g.Evaluate()
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 2, out["raw"].NumRows())
	require.Equal(t, 1, out["big"].NumRows())
}

func TestGraph_UpstreamMustExist(t *testing.T) {
	g := NewGraph(nil)
	err := g.AddPlan("x", "missing", nil)
	require.ErrorContains(t, err, `upstream "missing" is not defined`)
}

func TestGraph_DuplicateName(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddSource("t", staticSource(nil)))
	require.ErrorContains(t, g.AddSource("t", staticSource(nil)), "already defined")
}

func TestGraph_JoinForwardReferenceFailsAtExecution(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddSource("left", staticSource([]Column{
		{Name: "k", Values: []any{1.0}},
	})))
	// "joined" references "right", declared after it. Registration succeeds;
	// the error surfaces when the join step executes.
	require.NoError(t, g.AddPlan("joined", "left", []Step{
		&JoinLeftStep{Right: "right", On: []string{"k"}},
	}))
	require.NoError(t, g.AddSource("right", staticSource([]Column{
		{Name: "k", Values: []any{1.0}},
	})))

	_, err := g.Evaluate()
	require.ErrorContains(t, err, `defined after "joined"`)
}

func TestJoinLeft_Basic(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddSource("rates", staticSource([]Column{
		{Name: "region", Values: []any{"us", "eu"}},
		{Name: "rate", Values: []any{0.05, 0.03}},
	})))
	require.NoError(t, g.AddSource("sales", staticSource([]Column{
		{Name: "region", Values: []any{"us", "eu", "apac"}},
		{Name: "amount", Values: []any{100.0, 200.0, 300.0}},
	})))
	require.NoError(t, g.AddPlan("joined", "sales", []Step{
		&JoinLeftStep{Right: "rates", On: []string{"region"}},
	}))

	out, err := g.Evaluate()
	require.NoError(t, err)
	joined := out["joined"]
	require.Equal(t, []string{"region", "amount", "rate"}, joined.ColumnNames())

	rate, _ := joined.Column("rate")
	require.Equal(t, []any{0.05, 0.03, nil}, rate, "unmatched left rows keep nulls")
}

func TestJoinLeft_DuplicateDetection(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddSource("rates", staticSource([]Column{
		{Name: "region", Values: []any{"us", "us", "eu"}},
		{Name: "rate", Values: []any{0.05, 0.06, 0.03}},
	})))
	require.NoError(t, g.AddSource("sales", staticSource([]Column{
		{Name: "region", Values: []any{"us"}},
		{Name: "amount", Values: []any{100.0}},
	})))
	// Default validation is many_to_one.
	require.NoError(t, g.AddPlan("joined", "sales", []Step{
		&JoinLeftStep{Right: "rates", On: []string{"region"}},
	}))

	_, err := g.Evaluate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Samples, "us")

	// many_to_many skips the duplicate check and multiplies rows.
	g2 := NewGraph(nil)
	require.NoError(t, g2.AddSource("rates", staticSource([]Column{
		{Name: "region", Values: []any{"us", "us"}},
		{Name: "rate", Values: []any{0.05, 0.06}},
	})))
	require.NoError(t, g2.AddSource("sales", staticSource([]Column{
		{Name: "region", Values: []any{"us"}},
		{Name: "amount", Values: []any{100.0}},
	})))
	require.NoError(t, g2.AddPlan("joined", "sales", []Step{
		&JoinLeftStep{Right: "rates", On: []string{"region"}, Validate: ValidateManyToMany},
	}))
	out, err := g2.Evaluate()
	require.NoError(t, err)
	require.Equal(t, 2, out["joined"].NumRows())
}

func TestJoinLeft_NullRightKeys(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddSource("rates", staticSource([]Column{
		{Name: "region", Values: []any{"us", nil}},
		{Name: "rate", Values: []any{0.05, 0.03}},
	})))
	require.NoError(t, g.AddSource("sales", staticSource([]Column{
		{Name: "region", Values: []any{"us"}},
	})))
	require.NoError(t, g.AddPlan("joined", "sales", []Step{
		&JoinLeftStep{Right: "rates", On: []string{"region"}},
	}))

	_, err := g.Evaluate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Error(), "null join key")
}

func TestJoinLeft_TypeMismatch(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddSource("rates", staticSource([]Column{
		{Name: "region", Values: []any{1.0, 2.0}},
		{Name: "rate", Values: []any{0.05, 0.03}},
	})))
	require.NoError(t, g.AddSource("sales", staticSource([]Column{
		{Name: "region", Values: []any{"us"}},
	})))
	require.NoError(t, g.AddPlan("joined", "sales", []Step{
		&JoinLeftStep{Right: "rates", On: []string{"region"}},
	}))

	_, err := g.Evaluate()
	var terr *TypeMismatchError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, "string", terr.LeftFamily)
	require.Equal(t, "numeric", terr.RightFamily)
}

func TestJoinLeft_SeparateKeyLists(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddSource("rates", staticSource([]Column{
		{Name: "r", Values: []any{"us"}},
		{Name: "rate", Values: []any{0.05}},
	})))
	require.NoError(t, g.AddSource("sales", staticSource([]Column{
		{Name: "region", Values: []any{"us"}},
	})))
	require.NoError(t, g.AddPlan("joined", "sales", []Step{
		&JoinLeftStep{Right: "rates", LeftOn: []string{"region"}, RightOn: []string{"r"}},
	}))

	out, err := g.Evaluate()
	require.NoError(t, err)
	rate, _ := out["joined"].Column("rate")
	require.Equal(t, []any{0.05}, rate)
}

func TestScanCSV_Inference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cf.csv")
	data := "date,amount,label,flag\n2024-01-01,-1000,seed,true\n2024-07-15,250.5,,false\n2025-01-01,,exit,true\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	tbl, err := ScanCSV(path)()
	require.NoError(t, err)
	require.Equal(t, []string{"date", "amount", "label", "flag"}, tbl.ColumnNames())

	amount, _ := tbl.Column("amount")
	require.Equal(t, []any{-1000.0, 250.5, nil}, amount)

	label, _ := tbl.Column("label")
	require.Equal(t, []any{"seed", nil, "exit"}, label)

	flag, _ := tbl.Column("flag")
	require.Equal(t, []any{true, false, true}, flag)

	dates, _ := tbl.Column("date")
	require.Equal(t, "date", columnFamily(dates))
}

func TestScanCSV_MissingFile(t *testing.T) {
	_, err := ScanCSV(filepath.Join(t.TempDir(), "nope.csv"))()
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestGraph_ForwardRefToTotallyUndefined(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddSource("left", staticSource([]Column{
		{Name: "k", Values: []any{1.0}},
	})))
	require.NoError(t, g.AddPlan("joined", "left", []Step{
		&JoinLeftStep{Right: "ghost", On: []string{"k"}},
	}))
	_, err := g.Evaluate()
	require.ErrorContains(t, err, `undefined table "ghost"`)
}
