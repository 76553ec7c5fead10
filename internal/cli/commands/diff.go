package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calcstack/calcbook/internal/artifact"
)

// NewDiffCommand creates the diff command.
func NewDiffCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "diff <run-id> <run-id>",
		Short: "Compare the artifacts of two runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}

			kinds := artifact.Kinds
			if kind != "" {
				kinds = []string{kind}
			}

			total := 0
			for _, k := range kinds {
				oldData, err := artifact.ReadKind(cfg.ArtifactsDir, args[0], k)
				if err != nil {
					return err
				}
				newData, err := artifact.ReadKind(cfg.ArtifactsDir, args[1], k)
				if err != nil {
					return err
				}

				changes, err := artifact.Diff(oldData, newData)
				if err != nil {
					return err
				}
				if len(changes) == 0 {
					continue
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", k)
				for _, c := range changes {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", c)
				}
				total += len(changes)
			}

			if total == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "runs are identical")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "limit the diff to one artifact kind (cells|scalars|tables)")
	return cmd
}
