package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/calcstack/calcbook/pkg/table"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

func init() {
	Register("duckdb", func(logger *slog.Logger) Adapter { return NewDuckDB(logger) })
}

// DuckDB runs table-source queries against an embedded DuckDB database.
type DuckDB struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDuckDB creates a DuckDB adapter. A nil logger means discard.
func NewDuckDB(logger *slog.Logger) *DuckDB {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDB{logger: logger}
}

// DialectName implements Adapter.
func (a *DuckDB) DialectName() string { return "duckdb" }

// Connect opens the database file, or an in-memory database when the
// path is empty or ":memory:".
func (a *DuckDB) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == ":memory:" {
		path = ""
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}
	a.db = db
	return nil
}

// Close implements Adapter.
func (a *DuckDB) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// QueryTable implements Adapter.
func (a *DuckDB) QueryTable(ctx context.Context, query string) (*table.Table, error) {
	if a.db == nil {
		return nil, fmt.Errorf("duckdb adapter is not connected")
	}
	a.logger.Debug("running table-source query", "dialect", "duckdb")
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()
	return rowsToTable(rows)
}
