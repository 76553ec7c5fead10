// Package engine orchestrates one computation run: it wires a loaded
// workbook into table, scalar, and cell graph instances, evaluates
// them in dependency order (tables, then scalars, then cells), and
// collects the three output mappings. Every run owns private graph
// instances; nothing is shared across runs.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/calcstack/calcbook/internal/adapter"
	"github.com/calcstack/calcbook/internal/loader"
	"github.com/calcstack/calcbook/pkg/scalar"
	"github.com/calcstack/calcbook/pkg/sheet"
	"github.com/calcstack/calcbook/pkg/table"
)

// Results holds one run's outputs.
type Results struct {
	// Workbook is the evaluated workbook's name.
	Workbook string

	// Sheets maps sheet name to address -> display value.
	Sheets map[string]map[string]any

	// CellErrors maps Sheet!ADDR keys to the message recorded for
	// cells that failed to evaluate.
	CellErrors map[string]string

	// Scalars is the solved scalar-name -> value mapping, run
	// parameters included.
	Scalars map[string]any

	// Tables maps table name to its materialized table.
	Tables map[string]*table.Table

	// Params is the effective parameter mapping for the run.
	Params map[string]any
}

// Engine runs workbooks.
type Engine struct {
	root     string
	adapters map[string]adapter.Config
	logger   *slog.Logger
}

// New creates an engine. Data file paths in workbooks resolve against
// root; adapters configures the SQL engines available to query-backed
// table sources, keyed by adapter type. A nil logger means discard.
func New(root string, adapters map[string]adapter.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{root: root, adapters: adapters, logger: logger}
}

// Run evaluates a workbook. Parameters in overrides replace the
// workbook's declared defaults for this run only.
func (e *Engine) Run(ctx context.Context, wb *loader.Workbook, overrides map[string]any) (*Results, error) {
	params := make(map[string]any, len(wb.Params)+len(overrides))
	for k, v := range wb.Params {
		params[k] = v
	}
	for k, v := range overrides {
		params[k] = v
	}

	tables, err := e.evaluateTables(ctx, wb)
	if err != nil {
		return nil, fmt.Errorf("tables: %w", err)
	}

	scalars, err := e.solveScalars(wb, params, tables)
	if err != nil {
		return nil, fmt.Errorf("scalars: %w", err)
	}

	values, cellErrs, err := e.evaluateCells(wb, scalars, tables)
	if err != nil {
		return nil, fmt.Errorf("cells: %w", err)
	}

	e.logger.Info("run complete",
		"workbook", wb.Name,
		"sheets", len(values),
		"scalars", len(scalars),
		"tables", len(tables),
		"cell_errors", len(cellErrs))

	return &Results{
		Workbook:   wb.Name,
		Sheets:     values,
		CellErrors: cellErrs,
		Scalars:    scalars,
		Tables:     tables,
		Params:     params,
	}, nil
}

func (e *Engine) evaluateTables(ctx context.Context, wb *loader.Workbook) (map[string]*table.Table, error) {
	g := table.NewGraph(e.logger)
	for _, td := range wb.Tables {
		switch {
		case td.CSV != "":
			if err := g.AddSource(td.Name, table.ScanCSV(filepath.Join(e.root, td.CSV))); err != nil {
				return nil, err
			}
		case td.Parquet != "":
			if err := g.AddSource(td.Name, table.ScanParquet(filepath.Join(e.root, td.Parquet))); err != nil {
				return nil, err
			}
		case td.Query != nil:
			if err := g.AddSource(td.Name, e.queryScan(ctx, td)); err != nil {
				return nil, err
			}
		default:
			steps, err := loader.BuildSteps(td)
			if err != nil {
				return nil, err
			}
			if err := g.AddPlan(td.Name, td.Input, steps); err != nil {
				return nil, err
			}
		}
	}
	return g.Evaluate()
}

// queryScan defers the adapter connection until the pipeline is
// actually forced, keeping unreferenced query sources free.
func (e *Engine) queryScan(ctx context.Context, td loader.TableDef) table.ScanFunc {
	return func() (*table.Table, error) {
		cfg, ok := e.adapters[td.Query.Adapter]
		if !ok {
			return nil, fmt.Errorf("no adapter configured for %q", td.Query.Adapter)
		}
		a, err := adapter.New(cfg, e.logger)
		if err != nil {
			return nil, err
		}
		if err := a.Connect(ctx, cfg); err != nil {
			return nil, err
		}
		defer func() {
			_ = a.Close()
		}()
		return a.QueryTable(ctx, td.Query.SQL)
	}
}

// solveScalars folds run parameters into the resolved pool, then adds
// the workbook's scalar definitions. A scalar colliding with a
// parameter name is a definition error.
func (e *Engine) solveScalars(wb *loader.Workbook, params map[string]any, tables map[string]*table.Table) (map[string]any, error) {
	g := scalar.NewGraph(e.logger)
	g.SetTables(tables)

	for _, name := range sortedKeys(params) {
		if err := g.AddLiteral(name, params[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range sortedKeys(wb.Scalars) {
		def := wb.Scalars[name]
		var err error
		switch {
		case def.Formula != "":
			err = g.AddFormula(name, def.Formula)
		case def.Call != nil:
			err = g.AddCall(name, def.Call.Fn, def.Call.Args)
		default:
			err = g.AddLiteral(name, def.Value)
		}
		if err != nil {
			return nil, err
		}
	}
	return g.Solve()
}

func (e *Engine) evaluateCells(wb *loader.Workbook, scalars map[string]any, tables map[string]*table.Table) (map[string]map[string]any, map[string]string, error) {
	g, err := sheet.NewGraph(wb.Sheets, e.logger)
	if err != nil {
		return nil, nil, err
	}
	for _, name := range sortedKeys(wb.NamedRanges) {
		r := wb.NamedRanges[name]
		err := g.AddNamedRange(name, sheet.NamedRange{Sheet: r.Sheet, Start: r.Start, End: r.End})
		if err != nil {
			return nil, nil, err
		}
	}
	g.SetScalars(scalars)
	g.SetTables(tables)
	return g.EvaluateAll()
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
