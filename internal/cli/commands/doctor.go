package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/calcstack/calcbook/internal/adapter"
	"github.com/calcstack/calcbook/internal/cli/config"
	"github.com/calcstack/calcbook/internal/loader"
	"github.com/calcstack/calcbook/internal/state"
)

type checkResult struct {
	name string
	err  error
	note string
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the project is in a runnable state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}

			results := []checkResult{
				checkWorkbook(cfg),
				checkDataFiles(cfg),
				checkAdapters(cfg),
				checkStateDB(cmd, cfg),
				checkWritableDir("artifacts directory", cfg.ArtifactsDir),
				checkWritableDir("event log directory", filepath.Dir(cfg.EventLog)),
			}

			out := cmd.OutOrStdout()
			titler := cases.Title(language.English)
			useMarks := term.IsTerminal(int(os.Stdout.Fd()))

			failed := 0
			for _, r := range results {
				printCheck(out, titler.String(r.name), r, useMarks)
				if r.err != nil {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(results))
			}
			fmt.Fprintln(out, "all checks passed")
			return nil
		},
	}
}

func printCheck(out io.Writer, title string, r checkResult, useMarks bool) {
	mark := "ok"
	if useMarks {
		mark = "✓"
	}
	if r.err != nil {
		mark = "FAIL"
		if useMarks {
			mark = "✗"
		}
		fmt.Fprintf(out, "%-4s %s: %v\n", mark, title, r.err)
		return
	}
	if r.note != "" {
		fmt.Fprintf(out, "%-4s %s (%s)\n", mark, title, r.note)
		return
	}
	fmt.Fprintf(out, "%-4s %s\n", mark, title)
}

func checkWorkbook(cfg *config.Config) checkResult {
	r := checkResult{name: "workbook definition"}
	wb, err := loader.Load(cfg.Workbook)
	if err != nil {
		r.err = err
		return r
	}
	r.note = fmt.Sprintf("%d sheets, %d scalars, %d tables", len(wb.Sheets), len(wb.Scalars), len(wb.Tables))
	return r
}

func checkDataFiles(cfg *config.Config) checkResult {
	r := checkResult{name: "data files"}
	wb, err := loader.Load(cfg.Workbook)
	if err != nil {
		r.err = fmt.Errorf("workbook not loadable")
		return r
	}
	var missing []string
	count := 0
	for _, td := range wb.Tables {
		path := td.CSV
		if path == "" {
			path = td.Parquet
		}
		if path == "" {
			continue
		}
		count++
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.ProjectRoot, path)
		}
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, td.Name)
		}
	}
	if len(missing) > 0 {
		r.err = fmt.Errorf("missing source files for tables %v", missing)
		return r
	}
	r.note = fmt.Sprintf("%d file-backed tables", count)
	return r
}

func checkAdapters(cfg *config.Config) checkResult {
	r := checkResult{name: "sql adapters"}
	var unknown []string
	for name, ac := range cfg.Adapters {
		if !adapter.IsRegistered(ac.Type) {
			unknown = append(unknown, fmt.Sprintf("%s (type %s)", name, ac.Type))
		}
	}
	if len(unknown) > 0 {
		r.err = fmt.Errorf("unknown adapter types: %v, registered: %v", unknown, adapter.List())
		return r
	}
	r.note = fmt.Sprintf("%d configured", len(cfg.Adapters))
	return r
}

func checkStateDB(cmd *cobra.Command, cfg *config.Config) checkResult {
	r := checkResult{name: "state database"}
	if err := cfg.EnsureStateDirs(); err != nil {
		r.err = err
		return r
	}
	store, err := state.Open(cfg.StatePath, loggerFrom(cmd))
	if err != nil {
		r.err = err
		return r
	}
	defer func() {
		_ = store.Close()
	}()
	runs, err := store.ListRuns(1)
	if err != nil {
		r.err = err
		return r
	}
	if len(runs) == 0 {
		r.note = "no runs recorded yet"
	}
	return r
}

func checkWritableDir(name, dir string) checkResult {
	r := checkResult{name: name}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.err = err
		return r
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		r.err = fmt.Errorf("not writable: %w", err)
		return r
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
	return r
}
