package eval

import (
	"errors"
	"fmt"
	"strings"

	"github.com/calcstack/calcbook/pkg/expr"
	"github.com/calcstack/calcbook/pkg/table"
)

// RefError reports a reference to an unknown name, listing the names that
// were available at the point of resolution.
type RefError struct {
	Name      string
	Available []string // sorted
	Reason    string   // optional, overrides the default message
}

func (e *RefError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("reference error: %s", e.Reason)
	}
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown name %q (no names in scope)", e.Name)
	}
	return fmt.Sprintf("unknown name %q, available: %s", e.Name, strings.Join(e.Available, ", "))
}

// FunctionError reports an unknown function, wrong arity, or a function's
// own precondition failure (missing table or column, out-of-range index,
// failed numerical convergence).
type FunctionError struct {
	Func    string
	Message string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Func, e.Message)
}

func funcErrorf(fn, format string, args ...any) error {
	return &FunctionError{Func: fn, Message: fmt.Sprintf(format, args...)}
}

// DivisionError reports division by zero.
type DivisionError struct {
	Detail string
}

func (e *DivisionError) Error() string {
	if e.Detail == "" {
		return "division by zero"
	}
	return "division by zero in " + e.Detail
}

// CycleError reports a circular cell reference. Path holds the ordered
// reference chain from the first occurrence of the repeated key back around
// to it, each entry formatted as Sheet!ADDR.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "circular reference: " + strings.Join(e.Path, " -> ")
}

// IsEngineError reports whether err belongs to the engine's error taxonomy.
// ISERROR uses this to distinguish an intentionally failing probe from an
// unexpected failure (I/O, programming bugs) that must still propagate.
func IsEngineError(err error) bool {
	var (
		parseErr *expr.ParseError
		refErr   *RefError
		fnErr    *FunctionError
		divErr   *DivisionError
		cycErr   *CycleError
		typeErr  *table.TypeMismatchError
		valErr   *table.ValidationError
	)
	return errors.As(err, &parseErr) ||
		errors.As(err, &refErr) ||
		errors.As(err, &fnErr) ||
		errors.As(err, &divErr) ||
		errors.As(err, &cycErr) ||
		errors.As(err, &typeErr) ||
		errors.As(err, &valErr)
}
