package table

import (
	"fmt"
	"log/slog"
)

// ScanFunc lazily produces a source table when the pipeline is forced.
type ScanFunc func() (*Table, error)

// Plan is one named lazy pipeline: a source scan, or an upstream pipeline
// name plus an ordered sequence of transform steps.
type Plan struct {
	name  string
	order int
	scan  ScanFunc
	input string
	steps []Step
}

// Graph is the named-pipeline registry. Pipelines reference each other by
// name (upstream inputs and join siblings); a pipeline may only reference a
// name registered earlier in declaration order. Registration is cheap;
// Evaluate forces everything.
type Graph struct {
	plans  map[string]*Plan
	order  []string
	forced map[string]*Table
	logger *slog.Logger
}

// NewGraph creates an empty table graph.
func NewGraph(logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Graph{
		plans:  make(map[string]*Plan),
		forced: make(map[string]*Table),
		logger: logger,
	}
}

// AddSource registers a named lazy source scan.
func (g *Graph) AddSource(name string, scan ScanFunc) error {
	return g.add(&Plan{name: name, scan: scan})
}

// AddPlan registers a named pipeline applying steps to an upstream pipeline.
// The upstream must already be registered.
func (g *Graph) AddPlan(name, input string, steps []Step) error {
	if _, ok := g.plans[input]; !ok {
		return fmt.Errorf("table %q: upstream %q is not defined", name, input)
	}
	return g.add(&Plan{name: name, input: input, steps: steps})
}

func (g *Graph) add(p *Plan) error {
	if _, dup := g.plans[p.name]; dup {
		return fmt.Errorf("table %q is already defined", p.name)
	}
	p.order = len(g.order)
	g.plans[p.name] = p
	g.order = append(g.order, p.name)
	return nil
}

// Names returns the registered pipeline names in declaration order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Evaluate forces every registered pipeline in declaration order and
// returns the full name -> table mapping.
func (g *Graph) Evaluate() (map[string]*Table, error) {
	for _, name := range g.order {
		if _, err := g.force(name); err != nil {
			return nil, fmt.Errorf("table %q: %w", name, err)
		}
	}
	out := make(map[string]*Table, len(g.forced))
	for name, t := range g.forced {
		out[name] = t
	}
	return out, nil
}

// force materializes a single pipeline, memoizing the result.
func (g *Graph) force(name string) (*Table, error) {
	if t, ok := g.forced[name]; ok {
		return t, nil
	}
	p := g.plans[name]

	var t *Table
	var err error
	if p.scan != nil {
		t, err = p.scan()
	} else {
		t, err = g.force(p.input)
	}
	if err != nil {
		return nil, err
	}

	env := &stepEnv{graph: g, owner: p}
	for _, step := range p.steps {
		t, err = step.Apply(t, env)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", step.StepName(), err)
		}
	}

	g.logger.Debug("materialized table", "name", name, "rows", t.NumRows(), "cols", t.NumCols())
	g.forced[name] = t
	return t, nil
}

// stepEnv lets a step resolve sibling pipelines. A sibling must have been
// declared before the owning pipeline; a forward reference is reported
// here, at step execution, not at registration.
type stepEnv struct {
	graph *Graph
	owner *Plan
}

func (e *stepEnv) sibling(name string) (*Table, error) {
	p, ok := e.graph.plans[name]
	if !ok {
		return nil, fmt.Errorf("references undefined table %q", name)
	}
	if p.order >= e.owner.order {
		return nil, fmt.Errorf("references table %q which is defined after %q", name, e.owner.name)
	}
	return e.graph.force(name)
}
