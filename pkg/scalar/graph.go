// Package scalar resolves named scalar definitions by repeated
// relaxation. A definition is a literal, a formula string, or a
// structured call whose arguments may nest "$name" references inside
// lists and maps. Because a structured call's effective dependency set
// is only known once its argument values are substituted, the graph is
// solved by passes over the remaining pool rather than a static
// topological sort.
package scalar

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/calcstack/calcbook/pkg/eval"
	"github.com/calcstack/calcbook/pkg/expr"
	"github.com/calcstack/calcbook/pkg/table"
)

// UnresolvedError reports the entries still unresolved after a pass
// that made no progress. It covers both true cycles and references to
// names that were never defined.
type UnresolvedError struct {
	Entries []string // sorted
}

func (e *UnresolvedError) Error() string {
	return "unresolved scalar dependencies: " + strings.Join(e.Entries, ", ")
}

type formulaEntry struct {
	name string
	tree expr.Node
	deps []string
}

type callEntry struct {
	name string
	fn   string
	args []any
}

// Graph accumulates scalar definitions and solves them in Solve. One
// Graph serves one computation run.
type Graph struct {
	resolved map[string]any
	formulas []*formulaEntry
	calls    []*callEntry
	tables   map[string]*table.Table
	reg      *eval.Registry
	logger   *slog.Logger
}

func NewGraph(logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Graph{
		resolved: make(map[string]any),
		tables:   make(map[string]*table.Table),
		reg:      eval.Default(),
		logger:   logger,
	}
}

// SetTables supplies the table cache consumed by lookup and finance
// functions.
func (g *Graph) SetTables(tables map[string]*table.Table) {
	g.tables = tables
}

// AddLiteral seeds the resolved pool directly.
func (g *Graph) AddLiteral(name string, value any) error {
	if err := g.checkName(name); err != nil {
		return err
	}
	g.resolved[name] = value
	return nil
}

// AddFormula registers a formula-valued scalar. The formula is parsed
// here so malformed text fails at definition time, and its static
// dependency set is captured for the relaxation loop.
func (g *Graph) AddFormula(name, formula string) error {
	if err := g.checkName(name); err != nil {
		return err
	}
	tree, err := expr.Parse(formula)
	if err != nil {
		return fmt.Errorf("scalar %q: %w", name, err)
	}
	refs := expr.CollectRefs(tree)
	if len(refs.Cells) > 0 {
		return fmt.Errorf("scalar %q: cell references are not allowed in scalar formulas", name)
	}
	g.formulas = append(g.formulas, &formulaEntry{name: name, tree: tree, deps: refs.Names})
	return nil
}

// AddCall registers a structured call. Arguments may be literals,
// "$name" reference strings, or lists and maps nesting either.
func (g *Graph) AddCall(name, fn string, args []any) error {
	if err := g.checkName(name); err != nil {
		return err
	}
	g.calls = append(g.calls, &callEntry{name: name, fn: fn, args: args})
	return nil
}

func (g *Graph) checkName(name string) error {
	if name == "" {
		return fmt.Errorf("scalar name must not be empty")
	}
	if _, dup := g.resolved[name]; dup {
		return fmt.Errorf("scalar %q is already defined", name)
	}
	for _, e := range g.formulas {
		if e.name == name {
			return fmt.Errorf("scalar %q is already defined", name)
		}
	}
	for _, e := range g.calls {
		if e.name == name {
			return fmt.Errorf("scalar %q is already defined", name)
		}
	}
	return nil
}

// Solve relaxes the remaining pools until everything resolves. Each
// pass resolves every entry whose dependencies are all present; the
// pass count is bounded by the initial remaining count plus one, and a
// pass with no progress while entries remain fails with an
// UnresolvedError naming every stuck entry.
func (g *Graph) Solve() (map[string]any, error) {
	remaining := len(g.formulas) + len(g.calls)
	for pass := 0; pass <= remaining; pass++ {
		if len(g.formulas) == 0 && len(g.calls) == 0 {
			break
		}
		progress := false

		var stuckCalls []*callEntry
		for _, e := range g.calls {
			refs := collectDollarRefs(e.args, nil)
			if !g.allResolved(refs) {
				stuckCalls = append(stuckCalls, e)
				continue
			}
			val, err := g.invoke(e)
			if err != nil {
				return nil, fmt.Errorf("scalar %q: %w", e.name, err)
			}
			g.resolved[e.name] = val
			progress = true
		}
		g.calls = stuckCalls

		var stuckFormulas []*formulaEntry
		for _, e := range g.formulas {
			if !g.allResolved(e.deps) {
				stuckFormulas = append(stuckFormulas, e)
				continue
			}
			ev := &eval.Evaluator{
				Registry: g.reg,
				Scalars:  g.resolved,
				Tables:   g.tables,
			}
			val, err := ev.Eval(e.tree)
			if err != nil {
				return nil, fmt.Errorf("scalar %q: %w", e.name, err)
			}
			g.resolved[e.name] = val
			progress = true
		}
		g.formulas = stuckFormulas

		if !progress {
			break
		}
	}

	if len(g.formulas) > 0 || len(g.calls) > 0 {
		stuck := make([]string, 0, len(g.formulas)+len(g.calls))
		for _, e := range g.formulas {
			stuck = append(stuck, e.name)
		}
		for _, e := range g.calls {
			stuck = append(stuck, e.name)
		}
		sort.Strings(stuck)
		return nil, &UnresolvedError{Entries: stuck}
	}

	out := make(map[string]any, len(g.resolved))
	for k, v := range g.resolved {
		out[k] = v
	}
	g.logger.Debug("scalar graph solved", "count", len(out))
	return out, nil
}

func (g *Graph) allResolved(deps []string) bool {
	for _, d := range deps {
		if _, ok := g.resolved[d]; !ok {
			return false
		}
	}
	return true
}

// invoke substitutes "$name" references throughout the call's
// arguments and dispatches into the function library.
func (g *Graph) invoke(e *callEntry) (any, error) {
	args := make([]any, len(e.args))
	for i, a := range e.args {
		args[i] = g.substitute(a)
	}
	ev := &eval.Evaluator{
		Registry: g.reg,
		Scalars:  g.resolved,
		Tables:   g.tables,
	}
	return ev.Call(e.fn, args)
}

func (g *Graph) substitute(arg any) any {
	switch v := arg.(type) {
	case string:
		if name, ok := dollarRef(v); ok {
			return g.resolved[name]
		}
		return v
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = g.substitute(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = g.substitute(item)
		}
		return out
	}
	return arg
}

// collectDollarRefs walks an argument value recursively and appends
// every "$name" reference it finds.
func collectDollarRefs(arg any, acc []string) []string {
	switch v := arg.(type) {
	case string:
		if name, ok := dollarRef(v); ok {
			acc = append(acc, name)
		}
	case []any:
		for _, item := range v {
			acc = collectDollarRefs(item, acc)
		}
	case map[string]any:
		for _, item := range v {
			acc = collectDollarRefs(item, acc)
		}
	}
	return acc
}

func dollarRef(s string) (string, bool) {
	if len(s) > 1 && s[0] == '$' {
		return s[1:], true
	}
	return "", false
}
