package artifact

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Change is one difference between two artifacts of the same kind,
// addressed by a dotted JSON path.
type Change struct {
	Path string
	Old  string // "" when added
	New  string // "" when removed
}

func (c Change) String() string {
	switch {
	case c.Old == "":
		return fmt.Sprintf("+ %s = %s", c.Path, c.New)
	case c.New == "":
		return fmt.Sprintf("- %s = %s", c.Path, c.Old)
	}
	return fmt.Sprintf("~ %s: %s -> %s", c.Path, c.Old, c.New)
}

// Diff compares two artifact documents and returns the changes sorted
// by path. Values are compared after flattening, so a moved row shows
// as changes at its indexed paths.
func Diff(oldData, newData []byte) ([]Change, error) {
	oldFlat, err := flatten(oldData)
	if err != nil {
		return nil, fmt.Errorf("old artifact: %w", err)
	}
	newFlat, err := flatten(newData)
	if err != nil {
		return nil, fmt.Errorf("new artifact: %w", err)
	}

	paths := make(map[string]bool, len(oldFlat)+len(newFlat))
	for p := range oldFlat {
		paths[p] = true
	}
	for p := range newFlat {
		paths[p] = true
	}

	var changes []Change
	for p := range paths {
		o, inOld := oldFlat[p]
		n, inNew := newFlat[p]
		switch {
		case !inOld:
			changes = append(changes, Change{Path: p, New: n})
		case !inNew:
			changes = append(changes, Change{Path: p, Old: o})
		case o != n:
			changes = append(changes, Change{Path: p, Old: o, New: n})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

// flatten maps dotted paths to rendered leaf values.
func flatten(data []byte) (map[string]string, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	walk(doc, "", out)
	return out, nil
}

func walk(v any, path string, out map[string]string) {
	switch x := v.(type) {
	case map[string]any:
		for k, item := range x {
			walk(item, joinPath(path, k), out)
		}
	case []any:
		for i, item := range x {
			walk(item, joinPath(path, strconv.Itoa(i)), out)
		}
	default:
		out[path] = renderLeaf(v)
	}
}

func joinPath(path, seg string) string {
	if path == "" {
		return seg
	}
	return path + "." + seg
}

func renderLeaf(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}
