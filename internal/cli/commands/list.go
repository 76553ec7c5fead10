package commands

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/calcstack/calcbook/internal/state"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}

			store, err := state.Open(cfg.StatePath, loggerFrom(cmd))
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"RUN", "WORKBOOK", "STATUS", "STARTED", "DURATION", "ERROR"})
			for _, run := range runs {
				t.AppendRow(table.Row{
					shortID(run.ID),
					run.Workbook,
					run.Status,
					run.StartedAt.Format(time.RFC3339),
					runDuration(run),
					truncate(run.Error, 60),
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(run *state.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
