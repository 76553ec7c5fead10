package commands

import (
	"github.com/spf13/cobra"

	"github.com/calcstack/calcbook/internal/server"
	"github.com/calcstack/calcbook/internal/state"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve run history and artifacts over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if err := cfg.EnsureStateDirs(); err != nil {
				return err
			}
			logger := loggerFrom(cmd)

			store, err := state.Open(cfg.StatePath, logger)
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			logger.Info("starting api server", "addr", cfg.Addr)
			srv := server.New(store, cfg.ArtifactsDir, logger)
			return srv.Start(cmd.Context(), cfg.Addr)
		},
	}
}
