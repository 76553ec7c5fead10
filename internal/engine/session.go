package engine

import (
	"context"
	"fmt"

	"github.com/calcstack/calcbook/internal/loader"
	"github.com/calcstack/calcbook/pkg/eval"
	"github.com/calcstack/calcbook/pkg/expr"
	"github.com/calcstack/calcbook/pkg/sheet"
)

// Session holds one evaluated workbook and answers ad-hoc formulas
// against it, for interactive use.
type Session struct {
	results *Results
	graph   *sheet.Graph
	sheet   string
}

// NewSession runs the workbook and keeps its graphs alive for ad-hoc
// evaluation.
func (e *Engine) NewSession(ctx context.Context, wb *loader.Workbook, overrides map[string]any) (*Session, error) {
	res, err := e.Run(ctx, wb, overrides)
	if err != nil {
		return nil, err
	}

	g, err := sheet.NewGraph(wb.Sheets, e.logger)
	if err != nil {
		return nil, err
	}
	for _, name := range sortedKeys(wb.NamedRanges) {
		r := wb.NamedRanges[name]
		if err := g.AddNamedRange(name, sheet.NamedRange{Sheet: r.Sheet, Start: r.Start, End: r.End}); err != nil {
			return nil, err
		}
	}
	g.SetScalars(res.Scalars)
	g.SetTables(res.Tables)

	s := &Session{results: res, graph: g}
	if names := g.SheetNames(); len(names) > 0 {
		s.sheet = names[0]
	}
	return s, nil
}

// Results returns the session's run outputs.
func (s *Session) Results() *Results {
	return s.results
}

// Sheet returns the current sheet for in-sheet references.
func (s *Session) Sheet() string {
	return s.sheet
}

// UseSheet switches the current sheet.
func (s *Session) UseSheet(name string) error {
	for _, n := range s.graph.SheetNames() {
		if n == name {
			s.sheet = name
			return nil
		}
	}
	return fmt.Errorf("unknown sheet %q", name)
}

// Evaluate parses and evaluates one formula against the session's
// scalars, tables, and cells.
func (s *Session) Evaluate(formula string) (any, error) {
	tree, err := expr.Parse(formula)
	if err != nil {
		return nil, err
	}
	ev := &eval.Evaluator{
		Registry: eval.Default(),
		Scalars:  s.results.Scalars,
		Tables:   s.results.Tables,
		Resolver: s.graph,
		Sheet:    s.sheet,
	}
	return ev.Eval(tree)
}
