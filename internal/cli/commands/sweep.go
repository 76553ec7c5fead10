package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/calcstack/calcbook/internal/artifact"
	"github.com/calcstack/calcbook/internal/engine"
	"github.com/calcstack/calcbook/internal/eventlog"
	"github.com/calcstack/calcbook/internal/loader"
	"github.com/calcstack/calcbook/internal/state"
)

// NewSweepCommand creates the sweep command.
func NewSweepCommand() *cobra.Command {
	var (
		sets     []string
		parallel int
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the workbook across a parameter grid",
		Long: `Sweep evaluates the workbook once per combination in the cartesian
product of the given parameter values. Each combination is an
independent run with its own artifacts. Evaluations run concurrently;
every run owns private graph instances, so no state is shared.

Example:
  calcbook sweep --set growth=0.05,0.10,0.15 --set churn=0.01,0.02`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := loggerFrom(cmd)

			grid, err := parseGrid(sets)
			if err != nil {
				return err
			}
			combos := expandGrid(grid)
			if len(combos) == 0 {
				return fmt.Errorf("sweep needs at least one --set name=v1,v2 flag")
			}

			if err := cfg.EnsureStateDirs(); err != nil {
				return err
			}
			wb, err := loader.Load(cfg.Workbook)
			if err != nil {
				return err
			}

			// Evaluate concurrently, then persist sequentially: the
			// state database is a single writer.
			results := make([]*engine.Results, len(combos))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(parallel)
			for i, combo := range combos {
				g.Go(func() error {
					eng := engine.New(cfg.ProjectRoot, cfg.Adapters, logger)
					res, err := eng.Run(ctx, wb, combo)
					if err != nil {
						return fmt.Errorf("combination %s: %w", renderCombo(combo), err)
					}
					results[i] = res
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			store, err := state.Open(cfg.StatePath, logger)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()
			events, err := eventlog.Open(cfg.EventLog)
			if err != nil {
				return err
			}
			defer func() {
				_ = events.Close()
			}()

			for i, res := range results {
				paramsJSON, err := json.Marshal(combos[i])
				if err != nil {
					return err
				}
				run, err := store.CreateRun(wb.Name, string(paramsJSON))
				if err != nil {
					return err
				}
				events.RunStarted(run.ID, wb.Name)

				manifest, err := artifact.Write(cfg.ArtifactsDir, run.ID, res)
				if err != nil {
					return err
				}
				for _, kind := range artifact.Kinds {
					if err := store.RecordArtifact(run.ID, kind, manifest.Hashes[kind]); err != nil {
						return err
					}
				}
				if err := store.CompleteRun(run.ID, state.RunStatusCompleted, ""); err != nil {
					return err
				}
				events.RunCompleted(run.ID, manifest.Hashes)

				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", shortID(run.ID), renderCombo(combos[i]))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d runs completed\n", len(results))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "parameter values to sweep (name=v1,v2,..., repeatable)")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "maximum concurrent evaluations")
	return cmd
}

// parseGrid turns --set flags into name -> candidate values.
func parseGrid(sets []string) (map[string][]any, error) {
	grid := make(map[string][]any, len(sets))
	for _, s := range sets {
		name, raw, ok := strings.Cut(s, "=")
		if !ok || name == "" || raw == "" {
			return nil, fmt.Errorf("invalid --set %q, expected name=v1,v2", s)
		}
		for _, part := range strings.Split(raw, ",") {
			grid[name] = append(grid[name], parseParamValue(part))
		}
	}
	return grid, nil
}

// expandGrid builds the cartesian product in sorted-name order so the
// combination sequence is stable.
func expandGrid(grid map[string][]any) []map[string]any {
	names := make([]string, 0, len(grid))
	for name := range grid {
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []map[string]any{{}}
	for _, name := range names {
		var next []map[string]any
		for _, combo := range combos {
			for _, v := range grid[name] {
				c := make(map[string]any, len(combo)+1)
				for k, cv := range combo {
					c[k] = cv
				}
				c[name] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	if len(combos) == 1 && len(combos[0]) == 0 {
		return nil
	}
	return combos
}

func renderCombo(combo map[string]any) string {
	names := make([]string, 0, len(combo))
	for name := range combo {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%v", name, combo[name])
	}
	return strings.Join(parts, " ")
}
