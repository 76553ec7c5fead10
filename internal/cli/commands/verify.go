package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calcstack/calcbook/internal/artifact"
	"github.com/calcstack/calcbook/internal/state"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [run-id]",
		Short: "Check stored artifacts against their recorded hashes",
		Long: `Verify rehashes a run's artifact files and compares them against both
the run manifest and the hashes recorded in the state database. With no
argument the most recent run is verified.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			run, err := resolveRun(store, args)
			if err != nil {
				return err
			}

			bad, err := artifact.Verify(cfg.ArtifactsDir, run.ID)
			if err != nil {
				return err
			}
			if len(bad) > 0 {
				return fmt.Errorf("run %s: artifacts modified since the run: %s", run.ID, strings.Join(bad, ", "))
			}

			// The manifest itself could have been rewritten; the state
			// database is the second witness.
			recs, err := store.GetArtifacts(run.ID)
			if err != nil {
				return err
			}
			m, err := artifact.ReadManifest(cfg.ArtifactsDir, run.ID)
			if err != nil {
				return err
			}
			for _, rec := range recs {
				if m.Hashes[rec.Kind] != rec.Hash {
					return fmt.Errorf("run %s: %s hash disagrees with the state database", run.ID, rec.Kind)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s verified: %d artifacts intact\n", run.ID, len(artifact.Kinds))
			return nil
		},
	}
}

// resolveRun picks the run named by args, or the most recent run.
func resolveRun(store state.Store, args []string) (*state.Run, error) {
	if len(args) == 1 {
		return store.GetRun(args[0])
	}
	runs, err := store.ListRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs recorded yet")
	}
	return runs[0], nil
}
