// Package expr provides parsing of workbook formula expressions into
// immutable expression trees. A formula is text beginning with '=' followed
// by an expression over numbers, strings, booleans, cell references, named
// values and function calls.
//
// Trees are pure values: parsing the same text always yields an equivalent
// tree, and a tree may be cached and shared across evaluations.
package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is an expression tree node.
type Node interface {
	node()
	String() string
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
}

// StringLit is a double-quoted string literal.
type StringLit struct {
	Value string
}

// BoolLit is a TRUE/FALSE literal.
type BoolLit struct {
	Value bool
}

// Unary is a unary +/- expression.
type Unary struct {
	Op string // "+" or "-"
	X  Node
}

// Binary is a binary arithmetic or comparison expression.
type Binary struct {
	Op string // "+", "-", "*", "/", "^", "=", "<>", "<", ">", "<=", ">="
	L  Node
	R  Node
}

// Percent is a postfix percent expression: X% evaluates to X/100.
type Percent struct {
	X Node
}

// Call is a function call with ordered argument sub-trees.
type Call struct {
	Name string
	Args []Node
}

// NameRef is a bare or $-prefixed reference to a named value.
type NameRef struct {
	Name   string
	Dollar bool
}

// CellRef is a cell reference. Sheet is empty for an in-sheet reference;
// cross-sheet references carry the (case-sensitive) sheet name. Addr is
// normalized to upper case.
type CellRef struct {
	Sheet string
	Addr  string
}

func (*NumberLit) node() {}
func (*StringLit) node() {}
func (*BoolLit) node()   {}
func (*Unary) node()     {}
func (*Binary) node()    {}
func (*Percent) node()   {}
func (*Call) node()      {}
func (*NameRef) node()   {}
func (*CellRef) node()   {}

func (n *NumberLit) String() string {
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}

func (n *StringLit) String() string {
	return strconv.Quote(n.Value)
}

func (n *BoolLit) String() string {
	if n.Value {
		return "TRUE"
	}
	return "FALSE"
}

func (n *Unary) String() string {
	return n.Op + n.X.String()
}

func (n *Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", n.L, n.Op, n.R)
}

func (n *Percent) String() string {
	return n.X.String() + "%"
}

func (n *Call) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Name + "(" + strings.Join(args, ", ") + ")"
}

func (n *NameRef) String() string {
	if n.Dollar {
		return "$" + n.Name
	}
	return n.Name
}

func (n *CellRef) String() string {
	if n.Sheet == "" {
		return n.Addr
	}
	if strings.ContainsAny(n.Sheet, " \t") {
		return "'" + n.Sheet + "'!" + n.Addr
	}
	return n.Sheet + "!" + n.Addr
}
