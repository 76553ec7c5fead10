package scalar

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calcstack/calcbook/pkg/table"
)

func TestSolve_FormulaChain(t *testing.T) {
	g := NewGraph(nil)
	// Defined in reverse dependency order to force multiple passes.
	require.NoError(t, g.AddFormula("net", "=gross-costs"))
	require.NoError(t, g.AddFormula("costs", "=gross*0.4"))
	require.NoError(t, g.AddLiteral("gross", 1000.0))

	out, err := g.Solve()
	require.NoError(t, err)
	require.Equal(t, 1000.0, out["gross"])
	require.Equal(t, 400.0, out["costs"])
	require.Equal(t, 600.0, out["net"])
}

func TestSolve_StructuredCall(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddLiteral("cf0", -1000.0))
	require.NoError(t, g.AddCall("total", "SUM", []any{"$cf0", []any{300.0, "$bonus"}}))
	require.NoError(t, g.AddLiteral("bonus", 700.0))

	out, err := g.Solve()
	require.NoError(t, err)
	require.Equal(t, 0.0, out["total"])
}

func TestSolve_NestedMapArgs(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddLiteral("r", 0.1))
	require.NoError(t, g.AddCall("picked", "IF", []any{true, "$r", 0.0}))

	out, err := g.Solve()
	require.NoError(t, err)
	require.Equal(t, 0.1, out["picked"])
}

func TestSolve_CallDependsOnFormula(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddCall("rounded", "ROUND", []any{"$ratio", 2.0}))
	require.NoError(t, g.AddFormula("ratio", "=1/3"))

	out, err := g.Solve()
	require.NoError(t, err)
	require.InDelta(t, 0.33, out["rounded"].(float64), 1e-9)
}

func TestSolve_TableCache(t *testing.T) {
	tbl, err := table.FromColumns([]table.Column{
		{Name: "k", Values: []any{"a", "b"}},
		{Name: "v", Values: []any{1.0, 2.0}},
	})
	require.NoError(t, err)

	g := NewGraph(nil)
	g.SetTables(map[string]*table.Table{"rates": tbl})
	require.NoError(t, g.AddFormula("picked", `=XLOOKUP("b", "rates", "k", "v")`))

	out, err := g.Solve()
	require.NoError(t, err)
	require.Equal(t, 2.0, out["picked"])
}

func TestSolve_CycleReportsAllStuck(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddFormula("a", "=b+1"))
	require.NoError(t, g.AddFormula("b", "=a+1"))
	require.NoError(t, g.AddLiteral("c", 1.0))

	_, err := g.Solve()
	var uerr *UnresolvedError
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, []string{"a", "b"}, uerr.Entries)
}

func TestSolve_UndefinedReference(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddCall("x", "SUM", []any{"$ghost", 1.0}))

	_, err := g.Solve()
	var uerr *UnresolvedError
	require.ErrorAs(t, err, &uerr)
	require.Equal(t, []string{"x"}, uerr.Entries)
}

func TestSolve_DuplicateName(t *testing.T) {
	g := NewGraph(nil)
	require.NoError(t, g.AddLiteral("x", 1.0))
	require.Error(t, g.AddFormula("x", "=2"))
	require.Error(t, g.AddCall("x", "SUM", nil))
}

func TestAddFormula_RejectsCellRefs(t *testing.T) {
	g := NewGraph(nil)
	require.Error(t, g.AddFormula("bad", "=A1+1"))
}

func TestAddFormula_ParseErrorAtDefinition(t *testing.T) {
	g := NewGraph(nil)
	require.Error(t, g.AddFormula("bad", "=1+"))
}
