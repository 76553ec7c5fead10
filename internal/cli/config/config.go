// Package config loads CLI configuration. Precedence, highest to
// lowest: flags, CALCBOOK_ environment variables, the project's
// calcbook.yaml, built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/calcstack/calcbook/internal/adapter"
)

// Defaults.
const (
	DefaultWorkbook     = "workbook.yaml"
	DefaultStatePath    = ".calcbook/state.db"
	DefaultArtifactsDir = ".calcbook/artifacts"
	DefaultEventLog     = ".calcbook/events.jsonl"
	DefaultAddr         = "localhost:8085"
)

// maxUpwardSearchLevels limits how far up the directory tree the
// project root search goes.
const maxUpwardSearchLevels = 10

// Config holds all CLI configuration options. Relative paths are
// resolved against ProjectRoot after loading.
type Config struct {
	Workbook     string                    `koanf:"workbook"`
	StatePath    string                    `koanf:"state_path"`
	ArtifactsDir string                    `koanf:"artifacts_dir"`
	EventLog     string                    `koanf:"event_log"`
	Addr         string                    `koanf:"addr"`
	Verbose      bool                      `koanf:"verbose"`
	Adapters     map[string]adapter.Config `koanf:"adapters"`

	// ProjectRoot is inferred, not configured.
	ProjectRoot string `koanf:"-"`
}

func configExistsIn(dir string) bool {
	for _, name := range []string{"calcbook.yaml", "calcbook.yml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// findProjectRoot searches upward from startDir for a calcbook config
// file, falling back to startDir itself.
func findProjectRoot(startDir string) string {
	dir := startDir
	for range maxUpwardSearchLevels {
		if configExistsIn(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return startDir
}

// resolvePathRelativeTo anchors a relative path at baseDir.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Load builds the configuration. With an explicit cfgFile its
// directory is the project root; otherwise the root is searched upward
// from the working directory.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"workbook":      DefaultWorkbook,
		"state_path":    DefaultStatePath,
		"artifacts_dir": DefaultArtifactsDir,
		"event_log":     DefaultEventLog,
		"addr":          DefaultAddr,
		"verbose":       false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	var projectRoot string
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err != nil {
			return nil, err
		}
		cfgFile = abs
		projectRoot = filepath.Dir(abs)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		projectRoot = findProjectRoot(cwd)
		for _, name := range []string{"calcbook.yaml", "calcbook.yml"} {
			candidate := filepath.Join(projectRoot, name)
			if _, err := os.Stat(candidate); err == nil {
				cfgFile = candidate
				break
			}
		}
	}

	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// CALCBOOK_STATE_PATH -> state_path
	if err := k.Load(env.Provider("CALCBOOK_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "CALCBOOK_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ProjectRoot = projectRoot
	cfg.Workbook = resolvePathRelativeTo(cfg.Workbook, projectRoot)
	cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	cfg.ArtifactsDir = resolvePathRelativeTo(cfg.ArtifactsDir, projectRoot)
	cfg.EventLog = resolvePathRelativeTo(cfg.EventLog, projectRoot)
	return &cfg, nil
}

// EnsureStateDirs creates the directories holding the state database,
// artifacts, and event log.
func (c *Config) EnsureStateDirs() error {
	for _, dir := range []string{filepath.Dir(c.StatePath), c.ArtifactsDir, filepath.Dir(c.EventLog)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
