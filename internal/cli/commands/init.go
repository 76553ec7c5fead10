package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const initConfig = `# calcbook project configuration
workbook: workbook.yaml
state_path: .calcbook/state.db
artifacts_dir: .calcbook/artifacts
event_log: .calcbook/events.jsonl
addr: localhost:8085

# adapters:
#   analytics:
#     type: duckdb
#     path: analytics.duckdb
`

const initWorkbook = `name: starter
params:
  growth: 0.1

sheets:
  Model:
    A1: 100
    A2: "=A1*(1+growth)"
    A3: "=SUM(north_sales, A2)"

scalars:
  north_sales: '=XLOOKUP("north", "sales", "region", "amount")'
  profit: "=north_sales*0.4"

tables:
  - name: sales_raw
    csv: data/sales.csv
  - name: sales
    input: sales_raw
    steps:
      - filter: {column: amount, op: ">", value: 0}
      - sort: {by: [amount], descending: [true]}
`

const initCSV = `region,amount
north,120
south,80
west,45
`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Scaffold a new calcbook project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
				return err
			}

			files := []struct {
				path    string
				content string
			}{
				{filepath.Join(dir, "calcbook.yaml"), initConfig},
				{filepath.Join(dir, "workbook.yaml"), initWorkbook},
				{filepath.Join(dir, "data", "sales.csv"), initCSV},
			}
			out := cmd.OutOrStdout()
			for _, f := range files {
				if !force {
					if _, err := os.Stat(f.path); err == nil {
						return fmt.Errorf("%s already exists, use --force to overwrite", f.path)
					}
				}
				if err := os.WriteFile(f.path, []byte(f.content), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(out, "created", f.path)
			}
			fmt.Fprintln(out, "run \"calcbook run\" in the project directory to evaluate the workbook")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}
