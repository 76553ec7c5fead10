package expr

import "sort"

// Refs holds the static reference sets of an expression tree: the names it
// mentions (bare or $-prefixed) and the cell references it mentions.
// Dependents use these to build dependency edges before evaluation.
type Refs struct {
	Names []string  // sorted, unique
	Cells []CellRef // sorted by (sheet, addr), unique
}

// CollectRefs traverses a tree and returns its reference sets. Function
// argument sub-trees are traversed like any other node; no evaluation
// happens here, so even the lazily evaluated ISERROR argument contributes
// its references.
func CollectRefs(tree Node) Refs {
	names := map[string]struct{}{}
	cells := map[CellRef]struct{}{}
	collect(tree, names, cells)

	out := Refs{}
	for n := range names {
		out.Names = append(out.Names, n)
	}
	sort.Strings(out.Names)
	for c := range cells {
		out.Cells = append(out.Cells, c)
	}
	sort.Slice(out.Cells, func(i, j int) bool {
		if out.Cells[i].Sheet != out.Cells[j].Sheet {
			return out.Cells[i].Sheet < out.Cells[j].Sheet
		}
		return out.Cells[i].Addr < out.Cells[j].Addr
	})
	return out
}

func collect(n Node, names map[string]struct{}, cells map[CellRef]struct{}) {
	switch t := n.(type) {
	case *Unary:
		collect(t.X, names, cells)
	case *Binary:
		collect(t.L, names, cells)
		collect(t.R, names, cells)
	case *Percent:
		collect(t.X, names, cells)
	case *Call:
		for _, a := range t.Args {
			collect(a, names, cells)
		}
	case *NameRef:
		names[t.Name] = struct{}{}
	case *CellRef:
		cells[*t] = struct{}{}
	}
}
