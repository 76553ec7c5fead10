package commands

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// debounceWindow coalesces editor save bursts into one re-run.
const debounceWindow = 250 * time.Millisecond

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	var (
		sets  []string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate the workbook and store run artifacts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := loggerFrom(cmd)

			overrides, err := parseSetFlags(sets)
			if err != nil {
				return err
			}

			runOnce := func() error {
				run, manifest, err := executeRun(cmd.Context(), cfg, logger, overrides)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "run %s completed\n", run.ID)
				for _, kind := range sortedHashKinds(manifest.Hashes) {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", manifest.Hashes[kind][:12], kind)
				}
				return nil
			}

			if !watch {
				return runOnce()
			}

			if err := runOnce(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "run failed: %v\n", err)
			}
			return watchAndRerun(cmd, cfg.Workbook, cfg.ProjectRoot, runOnce)
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "override a parameter (name=value, repeatable)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-run when the workbook or data files change")
	return cmd
}

// watchAndRerun blocks, re-running on changes to the workbook file or
// anything under the project's data directory, until the context is
// cancelled.
func watchAndRerun(cmd *cobra.Command, workbook, root string, runOnce func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(filepath.Dir(workbook)); err != nil {
		return fmt.Errorf("failed to watch workbook dir: %w", err)
	}
	dataDir := filepath.Join(root, "data")
	_ = watcher.Add(dataDir) // optional, the directory may not exist

	fmt.Fprintln(cmd.OutOrStdout(), "watching for changes (ctrl-c to stop)")

	var timer *time.Timer
	rerun := make(chan struct{}, 1)
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case rerun <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		case <-rerun:
			if err := runOnce(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "run failed: %v\n", err)
			}
		}
	}
}

func sortedHashKinds(hashes map[string]string) []string {
	kinds := make([]string, 0, len(hashes))
	for kind := range hashes {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
