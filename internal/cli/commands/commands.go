// Package commands implements the calcbook subcommands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/calcstack/calcbook/internal/artifact"
	"github.com/calcstack/calcbook/internal/cli/config"
	"github.com/calcstack/calcbook/internal/engine"
	"github.com/calcstack/calcbook/internal/eventlog"
	"github.com/calcstack/calcbook/internal/loader"
	"github.com/calcstack/calcbook/internal/state"
)

// ConfigKey stores the loaded *config.Config in the command context.
type ConfigKey struct{}

// LoggerKey stores the *slog.Logger in the command context.
type LoggerKey struct{}

func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(ConfigKey{}).(*config.Config)
	if !ok {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

func loggerFrom(cmd *cobra.Command) *slog.Logger {
	if logger, ok := cmd.Context().Value(LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.New(slog.DiscardHandler)
}

// parseSetFlags turns repeated --set name=value flags into a parameter
// mapping. Values parse as number, bool, or fall back to string.
func parseSetFlags(sets []string) (map[string]any, error) {
	if len(sets) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(sets))
	for _, s := range sets {
		name, raw, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, expected name=value", s)
		}
		params[name] = parseParamValue(raw)
	}
	return params, nil
}

func parseParamValue(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

// executeRun performs one full run: evaluate the workbook, persist
// artifacts, record the run, and append events. The run is recorded as
// failed when evaluation errors.
func executeRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, overrides map[string]any) (*state.Run, *artifact.Manifest, error) {
	if err := cfg.EnsureStateDirs(); err != nil {
		return nil, nil, err
	}

	wb, err := loader.Load(cfg.Workbook)
	if err != nil {
		return nil, nil, err
	}

	store, err := state.Open(cfg.StatePath, logger)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = store.Close()
	}()

	events, err := eventlog.Open(cfg.EventLog)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = events.Close()
	}()

	paramsJSON, err := json.Marshal(overrides)
	if err != nil {
		return nil, nil, err
	}
	run, err := store.CreateRun(wb.Name, string(paramsJSON))
	if err != nil {
		return nil, nil, err
	}
	events.RunStarted(run.ID, wb.Name)

	eng := engine.New(cfg.ProjectRoot, cfg.Adapters, logger)
	res, err := eng.Run(ctx, wb, overrides)
	if err != nil {
		_ = store.CompleteRun(run.ID, state.RunStatusFailed, err.Error())
		events.RunFailed(run.ID, err)
		return run, nil, err
	}

	manifest, err := artifact.Write(cfg.ArtifactsDir, run.ID, res)
	if err != nil {
		_ = store.CompleteRun(run.ID, state.RunStatusFailed, err.Error())
		events.RunFailed(run.ID, err)
		return run, nil, err
	}
	for _, kind := range artifact.Kinds {
		if err := store.RecordArtifact(run.ID, kind, manifest.Hashes[kind]); err != nil {
			return run, manifest, err
		}
	}

	if err := store.CompleteRun(run.ID, state.RunStatusCompleted, ""); err != nil {
		return run, manifest, err
	}
	events.RunCompleted(run.ID, manifest.Hashes)
	return run, manifest, nil
}
