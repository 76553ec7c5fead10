package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/calcstack/calcbook/internal/engine"
	"github.com/calcstack/calcbook/internal/loader"
)

// NewReplCommand creates the repl command.
func NewReplCommand() *cobra.Command {
	var sets []string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Evaluate formulas interactively against the workbook",
		Long: `Repl runs the workbook once, then reads formulas from the prompt and
evaluates them against the run's scalars, tables, and cells. Formulas
start with "=". Meta commands: .sheets, .use <sheet>, .scalars,
.tables, .quit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			overrides, err := parseSetFlags(sets)
			if err != nil {
				return err
			}

			wb, err := loader.Load(cfg.Workbook)
			if err != nil {
				return err
			}
			eng := engine.New(cfg.ProjectRoot, cfg.Adapters, loggerFrom(cmd))
			session, err := eng.NewSession(cmd.Context(), wb, overrides)
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          promptFor(session),
				HistoryLimit:    500,
				InterruptPrompt: "^C",
			})
			if err != nil {
				return fmt.Errorf("failed to start repl: %w", err)
			}
			defer func() {
				_ = rl.Close()
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "workbook %q loaded, %d sheets\n", wb.Name, len(wb.Sheets))

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}

				line = strings.TrimSpace(line)
				switch {
				case line == "":
					continue
				case line == ".quit" || line == ".exit":
					return nil
				case line == ".sheets":
					fmt.Fprintln(out, strings.Join(sheetNames(session), ", "))
				case strings.HasPrefix(line, ".use "):
					name := strings.TrimSpace(strings.TrimPrefix(line, ".use "))
					if err := session.UseSheet(name); err != nil {
						fmt.Fprintln(out, err)
						continue
					}
					rl.SetPrompt(promptFor(session))
				case line == ".scalars":
					printScalars(out, session.Results().Scalars)
				case line == ".tables":
					printTables(out, session)
				case strings.HasPrefix(line, "="):
					v, err := session.Evaluate(line)
					if err != nil {
						fmt.Fprintln(out, "error:", err)
						continue
					}
					fmt.Fprintln(out, renderValue(v))
				default:
					fmt.Fprintln(out, `formulas start with "=" (try .quit, .sheets, .scalars, .tables)`)
				}
			}
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "override a parameter (name=value, repeatable)")
	return cmd
}

func promptFor(s *engine.Session) string {
	return s.Sheet() + "> "
}

func sheetNames(s *engine.Session) []string {
	names := make([]string, 0, len(s.Results().Sheets))
	for name := range s.Results().Sheets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func printScalars(out io.Writer, scalars map[string]any) {
	names := make([]string, 0, len(scalars))
	for name := range scalars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s = %s\n", name, renderValue(scalars[name]))
	}
}

func printTables(out io.Writer, s *engine.Session) {
	names := make([]string, 0, len(s.Results().Tables))
	for name := range s.Results().Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t := s.Results().Tables[name]
		fmt.Fprintf(out, "%s: %d rows, columns %s\n", name, t.NumRows(), strings.Join(t.ColumnNames(), ", "))
	}
}

func renderValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case time.Time:
		return x.Format("2006-01-02")
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = renderValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("%v", v)
}
