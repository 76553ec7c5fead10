// Package loader reads workbook definition files. A workbook names its
// sheets, named ranges, scalar definitions, and table pipelines; the
// engine wires the loaded definition into graph instances for a run.
package loader

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Workbook is a parsed workbook definition.
type Workbook struct {
	Name        string                    `yaml:"name"`
	Params      map[string]any            `yaml:"params"`
	Sheets      map[string]map[string]any `yaml:"sheets"`
	NamedRanges map[string]RangeDef       `yaml:"named_ranges"`
	Scalars     map[string]ScalarDef      `yaml:"scalars"`

	// Tables is a sequence, not a mapping: pipeline declaration order
	// is significant, a pipeline may only reference names declared
	// before it.
	Tables []TableDef `yaml:"tables"`
}

// RangeDef is a named rectangle on one sheet.
type RangeDef struct {
	Sheet string `yaml:"sheet"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// CallDef is a structured function call. Args may nest "$name"
// references inside lists and maps.
type CallDef struct {
	Fn   string `yaml:"call"`
	Args []any  `yaml:"args"`
}

// ScalarDef is one scalar definition: a literal value, a formula
// string starting with "=", or a structured call. Exactly one of the
// three is set.
type ScalarDef struct {
	Value   any
	Formula string
	Call    *CallDef
}

// UnmarshalYAML accepts the three scalar shapes:
//
//	seed: 42
//	profit: "=revenue-costs"
//	irr: { call: IRR, args: ["$cf"] }
func (d *ScalarDef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return err
		}
		if s, ok := v.(string); ok && strings.HasPrefix(s, "=") {
			d.Formula = s
			return nil
		}
		d.Value = normalizeScalar(v)
		return nil
	case yaml.MappingNode:
		var c CallDef
		if err := node.Decode(&c); err != nil {
			return err
		}
		if c.Fn == "" {
			return fmt.Errorf("line %d: scalar mapping must have a call field", node.Line)
		}
		c.Args = normalizeScalar(c.Args).([]any)
		d.Call = &c
		return nil
	}
	return fmt.Errorf("line %d: unsupported scalar definition", node.Line)
}

// TableDef is one table pipeline: a source (csv, parquet, or query) or
// an upstream input plus steps.
type TableDef struct {
	Name    string           `yaml:"name"`
	CSV     string           `yaml:"csv"`
	Parquet string           `yaml:"parquet"`
	Query   *QueryDef        `yaml:"query"`
	Input   string           `yaml:"input"`
	Steps   []map[string]any `yaml:"steps"`
}

// QueryDef is a SQL-backed table source.
type QueryDef struct {
	Adapter string `yaml:"adapter"`
	SQL     string `yaml:"sql"`
}

// Load reads and validates a workbook file.
func Load(path string) (*Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	wb, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wb, nil
}

// Parse parses and validates workbook YAML.
func Parse(data []byte) (*Workbook, error) {
	var wb Workbook
	if err := yaml.Unmarshal(data, &wb); err != nil {
		return nil, fmt.Errorf("invalid workbook yaml: %w", err)
	}
	for name, cells := range wb.Sheets {
		norm := make(map[string]any, len(cells))
		for addr, v := range cells {
			norm[addr] = normalizeScalar(v)
		}
		wb.Sheets[name] = norm
	}
	wb.Params = normalizeMap(wb.Params)
	if err := wb.validate(); err != nil {
		return nil, err
	}
	return &wb, nil
}

// normalizeScalar maps YAML decode output onto the engine's value
// model. Integers become float64 and nested containers are normalized
// recursively.
func normalizeScalar(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalizeScalar(item)
		}
		return out
	case map[string]any:
		return normalizeMap(x)
	}
	return v
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeScalar(v)
	}
	return out
}
