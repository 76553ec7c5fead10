// Package adapter connects workbook table sources to SQL engines. A
// query-backed table source names an adapter type and a SQL statement;
// the adapter runs the statement and hands the rows back as a table.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/calcstack/calcbook/pkg/table"
)

// Config holds the connection settings for one adapter.
type Config struct {
	// Type selects the adapter ("duckdb", "postgres").
	Type string `koanf:"type"`

	// Path is the database file for file-based engines. Use ":memory:"
	// for an in-memory database.
	Path string `koanf:"path"`

	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// Options carries driver-specific settings such as sslmode.
	Options map[string]string `koanf:"options"`
}

// Adapter is a SQL engine usable as a workbook table source.
type Adapter interface {
	// Connect establishes the connection described by cfg.
	Connect(ctx context.Context, cfg Config) error

	// Close releases the connection.
	Close() error

	// QueryTable runs a statement and materializes its result set.
	QueryTable(ctx context.Context, query string) (*table.Table, error)

	// DialectName identifies the engine ("duckdb", "postgres").
	DialectName() string
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func(*slog.Logger) Adapter)
)

// Register adds an adapter factory to the registry. Called by adapter
// implementations in their init functions.
func Register(name string, factory func(*slog.Logger) Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New creates an adapter instance for the config's type. A nil logger
// means discard.
func New(cfg Config, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, fmt.Errorf("adapter type not specified")
	}
	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: List()}
	}
	return factory(logger), nil
}

// List returns all registered adapter names, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks whether an adapter type is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// UnknownAdapterError is returned when an unknown adapter type is
// requested.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter type %q, available: %v", e.Type, e.Available)
}
