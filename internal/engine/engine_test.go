package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calcstack/calcbook/internal/loader"
)

const testWorkbook = `
name: demo
params:
  growth: 0.10
sheets:
  Model:
    A1: 100
    A2: "=A1*(1+$growth)"
    A3: "=SUM(revenues)"
    B1: "=PARAM(\"growth\")*100"
named_ranges:
  revenues: { sheet: Model, start: A1, end: A2 }
scalars:
  base_costs: 40
  profit: "=total_revenue-base_costs"
  total_revenue: { call: SUM, args: ["$unit_price", 50] }
  unit_price: 25
tables:
  - name: cashflows
    csv: data/cf.csv
  - name: positive
    input: cashflows
    steps:
      - filter: { column: amount, op: ">", value: 0 }
`

const testCSV = `dt,amount
2024-01-01,-1000
2024-02-01,300
2024-03-01,500
`

func setupProject(t *testing.T) (string, *loader.Workbook) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "cf.csv"), []byte(testCSV), 0o644))
	wb, err := loader.Parse([]byte(testWorkbook))
	require.NoError(t, err)
	return root, wb
}

func TestEngine_Run(t *testing.T) {
	root, wb := setupProject(t)
	e := New(root, nil, nil)

	res, err := e.Run(context.Background(), wb, nil)
	require.NoError(t, err)

	// Tables evaluate first.
	require.Equal(t, 3, res.Tables["cashflows"].NumRows())
	require.Equal(t, 2, res.Tables["positive"].NumRows())

	// Scalars next, with params folded in.
	require.Equal(t, 0.10, res.Scalars["growth"])
	require.Equal(t, 75.0, res.Scalars["total_revenue"])
	require.Equal(t, 35.0, res.Scalars["profit"])

	// Cells last, seeing both scalars and tables.
	model := res.Sheets["Model"]
	require.Equal(t, 100.0, model["A1"])
	require.InDelta(t, 110.0, model["A2"].(float64), 1e-9)
	require.InDelta(t, 210.0, model["A3"].(float64), 1e-9)
	require.InDelta(t, 10.0, model["B1"].(float64), 1e-9)
	require.Empty(t, res.CellErrors)
}

func TestEngine_ParamOverrides(t *testing.T) {
	root, wb := setupProject(t)
	e := New(root, nil, nil)

	res, err := e.Run(context.Background(), wb, map[string]any{"growth": 0.50})
	require.NoError(t, err)
	require.Equal(t, 0.50, res.Params["growth"])
	require.InDelta(t, 150.0, res.Sheets["Model"]["A2"].(float64), 1e-9)
}

func TestEngine_ScalarParamCollision(t *testing.T) {
	root, _ := setupProject(t)
	wb, err := loader.Parse([]byte(`
name: clash
scalars:
  growth: 1
`))
	require.NoError(t, err)

	e := New(root, nil, nil)
	_, err = e.Run(context.Background(), wb, map[string]any{"growth": 2.0})
	require.ErrorContains(t, err, "already defined")
}

func TestEngine_BrokenCellRecorded(t *testing.T) {
	root, _ := setupProject(t)
	wb, err := loader.Parse([]byte(`
name: broken
sheets:
  S:
    A1: "=1/0"
    A2: "=2+2"
`))
	require.NoError(t, err)

	e := New(root, nil, nil)
	res, err := e.Run(context.Background(), wb, nil)
	require.NoError(t, err)
	require.Equal(t, 4.0, res.Sheets["S"]["A2"])
	require.Contains(t, res.CellErrors["S!A1"], "division by zero")
}

func TestEngine_MissingDataFile(t *testing.T) {
	root := t.TempDir()
	wb, err := loader.Parse([]byte(`
name: missing
tables:
  - name: t
    csv: nope.csv
`))
	require.NoError(t, err)

	e := New(root, nil, nil)
	_, err = e.Run(context.Background(), wb, nil)
	require.ErrorContains(t, err, "tables:")
}
