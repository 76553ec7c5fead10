package loader

import (
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"

	"github.com/calcstack/calcbook/pkg/table"
)

type selectSpec struct {
	Columns []string `mapstructure:"columns"`
}

type filterSpec struct {
	Column string `mapstructure:"column"`
	Op     string `mapstructure:"op"`
	Value  any    `mapstructure:"value"`
}

type groupAggSpec struct {
	By   []string          `mapstructure:"by"`
	Aggs map[string]string `mapstructure:"aggs"`
}

type sortSpec struct {
	By         []string `mapstructure:"by"`
	Descending []bool   `mapstructure:"descending"`
}

type withColumnSpec struct {
	Name string `mapstructure:"name"`
	Expr string `mapstructure:"expr"`
}

type joinLeftSpec struct {
	Right    string   `mapstructure:"right"`
	On       []string `mapstructure:"on"`
	LeftOn   []string `mapstructure:"left_on"`
	RightOn  []string `mapstructure:"right_on"`
	Validate string   `mapstructure:"validate"`
}

// BuildSteps converts one table definition's raw step mappings into
// pipeline steps.
func BuildSteps(td TableDef) ([]table.Step, error) {
	steps := make([]table.Step, 0, len(td.Steps))
	for _, raw := range td.Steps {
		for name, payload := range raw {
			step, err := buildStep(name, payload)
			if err != nil {
				return nil, fmt.Errorf("table %q: step %s: %w", td.Name, name, err)
			}
			steps = append(steps, step)
		}
	}
	return steps, nil
}

func buildStep(name string, payload any) (table.Step, error) {
	switch name {
	case "select":
		var spec selectSpec
		if err := decodeStep(payload, &spec); err != nil {
			return nil, err
		}
		return &table.SelectStep{Columns: spec.Columns}, nil
	case "filter":
		var spec filterSpec
		if err := decodeStep(payload, &spec); err != nil {
			return nil, err
		}
		return &table.FilterStep{Column: spec.Column, Op: spec.Op, Value: normalizeScalar(spec.Value)}, nil
	case "group_agg":
		var spec groupAggSpec
		if err := decodeStep(payload, &spec); err != nil {
			return nil, err
		}
		// Output columns in name order; the mapping has no inherent one.
		outNames := make([]string, 0, len(spec.Aggs))
		for out := range spec.Aggs {
			outNames = append(outNames, out)
		}
		sort.Strings(outNames)
		aggs := make([]table.Agg, 0, len(outNames))
		for _, out := range outNames {
			agg, err := table.ParseAggSpec(out, spec.Aggs[out])
			if err != nil {
				return nil, err
			}
			aggs = append(aggs, agg)
		}
		return &table.GroupAggStep{GroupBy: spec.By, Aggs: aggs}, nil
	case "sort":
		var spec sortSpec
		if err := decodeStep(payload, &spec); err != nil {
			return nil, err
		}
		return &table.SortStep{By: spec.By, Descending: spec.Descending}, nil
	case "with_column":
		var spec withColumnSpec
		if err := decodeStep(payload, &spec); err != nil {
			return nil, err
		}
		return &table.WithColumnStep{Name: spec.Name, Expr: spec.Expr}, nil
	case "join_left":
		var spec joinLeftSpec
		if err := decodeStep(payload, &spec); err != nil {
			return nil, err
		}
		return &table.JoinLeftStep{
			Right:    spec.Right,
			On:       spec.On,
			LeftOn:   spec.LeftOn,
			RightOn:  spec.RightOn,
			Validate: spec.Validate,
		}, nil
	}
	return nil, fmt.Errorf("unknown step %q", name)
}

func decodeStep(payload any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("invalid step spec: %w", err)
	}
	return nil
}
