package sheet

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/calcstack/calcbook/pkg/eval"
	"github.com/calcstack/calcbook/pkg/expr"
	"github.com/calcstack/calcbook/pkg/table"
)

type cellState int

const (
	stateUnvisited cellState = iota
	stateInProgress
	stateCached
	stateErrored
)

// Graph is a memoized, cycle-detecting evaluator over a set of sheets.
// Cell contents are either literal values or formula strings starting
// with "=". Evaluating a cell recursively evaluates whatever it
// references, so a single Evaluate call may fill much of the cache.
//
// One Graph serves one computation run. After editing cell contents,
// call Invalidate before evaluating again.
type Graph struct {
	sheets  map[string]map[string]any
	ranges  map[string]NamedRange
	reg     *eval.Registry
	scalars map[string]any
	tables  map[string]*table.Table
	logger  *slog.Logger

	state  map[string]cellState
	values map[string]any
	errs   map[string]string
	stack  []string
	parsed map[string]expr.Node
}

var _ eval.Resolver = (*Graph)(nil)

// NewGraph creates a graph over the given sheets. Addresses are
// normalized to uppercase; sheet names stay case-sensitive.
func NewGraph(sheets map[string]map[string]any, logger *slog.Logger) (*Graph, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	g := &Graph{
		sheets:  make(map[string]map[string]any, len(sheets)),
		ranges:  make(map[string]NamedRange),
		reg:     eval.Default(),
		scalars: make(map[string]any),
		tables:  make(map[string]*table.Table),
		logger:  logger,
		state:   make(map[string]cellState),
		values:  make(map[string]any),
		errs:    make(map[string]string),
		parsed:  make(map[string]expr.Node),
	}
	for name, cells := range sheets {
		norm := make(map[string]any, len(cells))
		for addr, content := range cells {
			a, err := NormalizeAddr(addr)
			if err != nil {
				return nil, fmt.Errorf("sheet %q: %w", name, err)
			}
			norm[a] = content
		}
		g.sheets[name] = norm
	}
	return g, nil
}

// AddNamedRange registers a named rectangle. The corners are validated
// up front so a bad range fails at load time, not mid-evaluation.
func (g *Graph) AddNamedRange(name string, r NamedRange) error {
	if _, dup := g.ranges[name]; dup {
		return fmt.Errorf("named range %q is already defined", name)
	}
	if _, ok := g.sheets[r.Sheet]; !ok {
		return fmt.Errorf("named range %q: unknown sheet %q", name, r.Sheet)
	}
	if _, err := r.Addresses(); err != nil {
		return fmt.Errorf("named range %q: %w", name, err)
	}
	start, _ := NormalizeAddr(r.Start)
	end, _ := NormalizeAddr(r.End)
	g.ranges[name] = NamedRange{Sheet: r.Sheet, Start: start, End: end}
	return nil
}

// SetScalars supplies the scalar context visible to cell formulas.
func (g *Graph) SetScalars(scalars map[string]any) {
	g.scalars = scalars
}

// SetTables supplies the table cache consumed by lookup functions.
func (g *Graph) SetTables(tables map[string]*table.Table) {
	g.tables = tables
}

func cellKey(sheet, addr string) string {
	return sheet + "!" + addr
}

// Evaluate computes one cell, memoizing the result. A cell that failed
// for a non-cycle reason memoizes to nil and records its message; only
// a CycleError propagates out.
func (g *Graph) Evaluate(sheet, addr string) (any, error) {
	a, err := NormalizeAddr(addr)
	if err != nil {
		return nil, err
	}
	return g.evaluateCell(sheet, a)
}

func (g *Graph) evaluateCell(sheet, addr string) (any, error) {
	key := cellKey(sheet, addr)
	switch g.state[key] {
	case stateCached, stateErrored:
		return g.values[key], nil
	case stateInProgress:
		return nil, g.cycleError(key)
	}

	cells, ok := g.sheets[sheet]
	if !ok {
		return nil, &eval.RefError{Name: key, Reason: "unknown sheet " + sheet}
	}
	content, ok := cells[addr]
	if !ok || content == nil {
		g.memoize(key, nil)
		return nil, nil
	}

	formula, isFormula := content.(string)
	if !isFormula || !strings.HasPrefix(formula, "=") {
		g.memoize(key, content)
		return content, nil
	}

	g.state[key] = stateInProgress
	g.stack = append(g.stack, key)
	defer func() {
		g.stack = g.stack[:len(g.stack)-1]
	}()

	val, err := g.evalFormula(sheet, formula)
	if err != nil {
		var cyc *eval.CycleError
		if errors.As(err, &cyc) {
			g.state[key] = stateUnvisited
			return nil, err
		}
		g.logger.Debug("cell evaluation failed", "cell", key, "error", err)
		g.state[key] = stateErrored
		g.values[key] = nil
		g.errs[key] = err.Error()
		return nil, nil
	}

	g.memoize(key, val)
	return val, nil
}

func (g *Graph) evalFormula(sheet, formula string) (any, error) {
	tree, ok := g.parsed[formula]
	if !ok {
		var err error
		tree, err = expr.Parse(formula)
		if err != nil {
			return nil, err
		}
		g.parsed[formula] = tree
	}
	ev := &eval.Evaluator{
		Registry: g.reg,
		Scalars:  g.scalars,
		Tables:   g.tables,
		Resolver: g,
		Sheet:    sheet,
	}
	return ev.Eval(tree)
}

// cycleError builds the ordered path from the repeated key's first
// stack entry back around to itself.
func (g *Graph) cycleError(key string) *eval.CycleError {
	start := 0
	for i, k := range g.stack {
		if k == key {
			start = i
			break
		}
	}
	path := make([]string, 0, len(g.stack)-start+1)
	path = append(path, g.stack[start:]...)
	path = append(path, key)
	return &eval.CycleError{Path: path}
}

func (g *Graph) memoize(key string, val any) {
	g.state[key] = stateCached
	g.values[key] = val
}

// ResolveCell implements eval.Resolver.
func (g *Graph) ResolveCell(sheet, addr string) (any, error) {
	return g.Evaluate(sheet, addr)
}

// ResolveRange implements eval.Resolver. Blank and absent cells are
// skipped, mirroring how spreadsheet aggregates ignore empty cells.
func (g *Graph) ResolveRange(name string) ([]any, error) {
	r, ok := g.ranges[name]
	if !ok {
		return nil, &eval.RefError{Name: name, Reason: "unknown named range " + name}
	}
	addrs, err := r.Addresses()
	if err != nil {
		return nil, err
	}
	var out []any
	for _, addr := range addrs {
		v, err := g.evaluateCell(r.Sheet, addr)
		if err != nil {
			return nil, err
		}
		if v == nil || v == "" {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// HasNamedRange implements eval.Resolver.
func (g *Graph) HasNamedRange(name string) bool {
	_, ok := g.ranges[name]
	return ok
}

// SheetNames returns the sheet names in sorted order.
func (g *Graph) SheetNames() []string {
	names := make([]string, 0, len(g.sheets))
	for name := range g.sheets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Addresses returns one sheet's populated addresses in row-major order.
func (g *Graph) Addresses(sheet string) []string {
	cells := g.sheets[sheet]
	addrs := make([]string, 0, len(cells))
	for addr := range cells {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		ci, ri, _ := parseAddr(addrs[i])
		cj, rj, _ := parseAddr(addrs[j])
		if ri != rj {
			return ri < rj
		}
		return ci < cj
	})
	return addrs
}

// EvaluateAll fills the cache for every populated cell and returns the
// per-sheet address -> value mapping plus an address -> message mapping
// for failed cells. A cycle is recorded against every cell on its path
// and does not stop the remaining cells.
func (g *Graph) EvaluateAll() (map[string]map[string]any, map[string]string, error) {
	for _, sheet := range g.SheetNames() {
		for _, addr := range g.Addresses(sheet) {
			if _, err := g.evaluateCell(sheet, addr); err != nil {
				var cyc *eval.CycleError
				if !errors.As(err, &cyc) {
					return nil, nil, err
				}
				for _, key := range cyc.Path {
					if g.errs[key] == "" {
						g.errs[key] = cyc.Error()
					}
					g.state[key] = stateErrored
					g.values[key] = nil
				}
			}
		}
	}

	values := make(map[string]map[string]any, len(g.sheets))
	for _, sheet := range g.SheetNames() {
		out := make(map[string]any)
		for _, addr := range g.Addresses(sheet) {
			out[addr] = g.values[cellKey(sheet, addr)]
		}
		values[sheet] = out
	}
	errs := make(map[string]string, len(g.errs))
	for k, v := range g.errs {
		errs[k] = v
	}
	return values, errs, nil
}

// Errors returns the recorded per-cell error messages.
func (g *Graph) Errors() map[string]string {
	out := make(map[string]string, len(g.errs))
	for k, v := range g.errs {
		out[k] = v
	}
	return out
}

// Set replaces one cell's content. The graph must be invalidated
// before re-evaluating.
func (g *Graph) Set(sheet, addr string, content any) error {
	a, err := NormalizeAddr(addr)
	if err != nil {
		return err
	}
	cells, ok := g.sheets[sheet]
	if !ok {
		cells = make(map[string]any)
		g.sheets[sheet] = cells
	}
	cells[a] = content
	return nil
}

// Invalidate clears all evaluation state so the graph can be
// re-evaluated after edits. Parsed formula trees are kept; they are a
// pure function of their text.
func (g *Graph) Invalidate() {
	g.state = make(map[string]cellState)
	g.values = make(map[string]any)
	g.errs = make(map[string]string)
	g.stack = nil
}
