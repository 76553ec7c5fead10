package eval

import (
	"sort"
	"strings"

	"github.com/calcstack/calcbook/pkg/expr"
)

// EagerFunc receives fully pre-evaluated arguments.
type EagerFunc func(ev *Evaluator, args []any) (any, error)

// LazyFunc receives its raw argument sub-trees plus the evaluator, and
// decides itself what (and whether) to evaluate.
type LazyFunc func(ev *Evaluator, args []expr.Node) (any, error)

// Registry is an immutable pair of dispatch tables, eager and lazy,
// selected by name before dispatch. It is built once at process start and
// shared read-only across computation runs; separate runs therefore never
// share mutable registry state.
type Registry struct {
	eager map[string]EagerFunc
	lazy  map[string]LazyFunc
}

// Default returns the shared registry with the full function library.
func Default() *Registry {
	return defaultRegistry
}

var defaultRegistry = buildRegistry()

func buildRegistry() *Registry {
	r := &Registry{
		eager: map[string]EagerFunc{},
		lazy:  map[string]LazyFunc{},
	}

	// Arithmetic and aggregates.
	r.eager["SUM"] = fnSum
	r.eager["MEAN"] = fnMean
	r.eager["MIN"] = fnMin
	r.eager["MAX"] = fnMax
	r.eager["ABS"] = fnAbs
	r.eager["ROUND"] = fnRound
	r.eager["MULTIPLY"] = fnMultiply
	r.eager["SUBTRACT"] = fnSubtract
	r.eager["DIVIDE"] = fnDivide

	// Logic and conditionals.
	r.eager["AND"] = fnAnd
	r.eager["OR"] = fnOr
	r.eager["NOT"] = fnNot
	r.eager["IF"] = fnIf

	// Dates.
	r.eager["DATE"] = fnDate
	r.eager["YEAR"] = fnYear
	r.eager["MONTH"] = fnMonth
	r.eager["DAY"] = fnDay
	r.eager["EOMONTH"] = fnEomonth

	// Table lookups.
	r.eager["MATCH"] = fnMatch
	r.eager["INDEX"] = fnIndex
	r.eager["XLOOKUP"] = fnXlookup

	// Finance.
	r.eager["NPV"] = fnNPV
	r.eager["IRR"] = fnIRR
	r.eager["XNPV"] = fnXNPV
	r.eager["XIRR"] = fnXIRR

	// Run parameters.
	r.eager["PARAM"] = fnParam

	// ISERROR is the single lazy function: it probes its argument's
	// evaluation instead of receiving a value.
	r.lazy["ISERROR"] = fnIsError

	return r
}

// Names returns every registered function name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.eager)+len(r.lazy))
	for n := range r.eager {
		names = append(names, n)
	}
	for n := range r.lazy {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) eagerFunc(name string) (EagerFunc, bool) {
	fn, ok := r.eager[strings.ToUpper(name)]
	return fn, ok
}

func (r *Registry) lazyFunc(name string) (LazyFunc, bool) {
	fn, ok := r.lazy[strings.ToUpper(name)]
	return fn, ok
}
