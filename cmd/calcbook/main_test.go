// Package main provides end-to-end tests for the calcbook CLI.
package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calcstack/calcbook/internal/cli"
)

const e2eWorkbook = `name: e2e
params:
  growth: 0.1
sheets:
  Model:
    A1: 100
    A2: "=A1*(1+growth)"
scalars:
  north: '=XLOOKUP("north", "sales", "region", "amount")'
tables:
  - name: sales
    csv: data/sales.csv
`

const e2eCSV = "region,amount\nnorth,120\nsouth,80\n"

// setupProject writes a runnable project and returns its root.
func setupProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"calcbook.yaml":  "workbook: workbook.yaml\n",
		"workbook.yaml":  e2eWorkbook,
		"data/sales.csv": e2eCSV,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.Contains(out, "calcbook") {
		t.Errorf("version output should contain 'calcbook', got: %s", out)
	}
}

func TestHelpCommand(t *testing.T) {
	out, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("help command error = %v", err)
	}
	for _, expected := range []string{"run", "list", "verify", "diff", "sweep", "repl", "doctor", "serve", "init"} {
		if !strings.Contains(out, expected) {
			t.Errorf("help output should contain %q, got: %s", expected, out)
		}
	}
}

func TestRunCommand(t *testing.T) {
	root := setupProject(t)
	out, err := execute(t, "run", "--config", filepath.Join(root, "calcbook.yaml"))
	if err != nil {
		t.Fatalf("run command error = %v, output: %s", err, out)
	}
	if !strings.Contains(out, "completed") {
		t.Errorf("run output should report completion, got: %s", out)
	}
	if _, err := os.Stat(filepath.Join(root, ".calcbook", "state.db")); err != nil {
		t.Errorf("state database not created: %v", err)
	}
}

func TestRunThenListAndVerify(t *testing.T) {
	root := setupProject(t)
	cfg := filepath.Join(root, "calcbook.yaml")

	if out, err := execute(t, "run", "--config", cfg); err != nil {
		t.Fatalf("run command error = %v, output: %s", err, out)
	}

	out, err := execute(t, "list", "--config", cfg)
	if err != nil {
		t.Fatalf("list command error = %v", err)
	}
	if !strings.Contains(out, "e2e") {
		t.Errorf("list output should contain the workbook name, got: %s", out)
	}

	out, err = execute(t, "verify", "--config", cfg)
	if err != nil {
		t.Fatalf("verify command error = %v, output: %s", err, out)
	}
}

func TestRunWithSetOverride(t *testing.T) {
	root := setupProject(t)
	cfg := filepath.Join(root, "calcbook.yaml")

	if out, err := execute(t, "run", "--config", cfg, "--set", "growth=0.5"); err != nil {
		t.Fatalf("run command error = %v, output: %s", err, out)
	}
}

func TestDoctorCommand(t *testing.T) {
	root := setupProject(t)
	out, err := execute(t, "doctor", "--config", filepath.Join(root, "calcbook.yaml"))
	if err != nil {
		t.Fatalf("doctor command error = %v, output: %s", err, out)
	}
	if !strings.Contains(out, "all checks passed") {
		t.Errorf("doctor output should report success, got: %s", out)
	}
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "init", dir)
	if err != nil {
		t.Fatalf("init command error = %v, output: %s", err, out)
	}
	for _, name := range []string{"calcbook.yaml", "workbook.yaml", filepath.Join("data", "sales.csv")} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("init did not create %s: %v", name, err)
		}
	}

	// Scaffolded project is runnable as-is.
	if out, err := execute(t, "run", "--config", filepath.Join(dir, "calcbook.yaml")); err != nil {
		t.Errorf("run on scaffolded project error = %v, output: %s", err, out)
	}

	// Refuses to clobber without --force.
	if _, err := execute(t, "init", dir); err == nil {
		t.Error("init over an existing project should return an error")
	}
}

func TestUnknownCommand(t *testing.T) {
	if _, err := execute(t, "unknown-command"); err == nil {
		t.Error("unknown command should return an error")
	}
}
