package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/calcstack/calcbook/pkg/table"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

func init() {
	Register("postgres", func(logger *slog.Logger) Adapter { return NewPostgres(logger) })
}

// Postgres runs table-source queries against a PostgreSQL server.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgres creates a PostgreSQL adapter. A nil logger means discard.
func NewPostgres(logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Postgres{logger: logger}
}

// DialectName implements Adapter.
func (a *Postgres) DialectName() string { return "postgres" }

// Connect implements Adapter.
func (a *Postgres) Connect(ctx context.Context, cfg Config) error {
	dsn := buildPostgresDSN(cfg)
	a.logger.Debug("connecting to postgres", "host", cfg.Host, "database", cfg.Database)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	a.db = db
	return nil
}

// buildPostgresDSN constructs a key=value connection string with
// localhost defaults and sslmode disabled unless overridden in
// Options.
func buildPostgresDSN(cfg Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok {
		sslmode = mode
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", host, port, cfg.Database, sslmode)
	if cfg.Username != "" {
		dsn += " user=" + cfg.Username
	}
	if cfg.Password != "" {
		dsn += " password=" + cfg.Password
	}
	return dsn
}

// Close implements Adapter.
func (a *Postgres) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// QueryTable implements Adapter.
func (a *Postgres) QueryTable(ctx context.Context, query string) (*table.Table, error) {
	if a.db == nil {
		return nil, fmt.Errorf("postgres adapter is not connected")
	}
	a.logger.Debug("running table-source query", "dialect", "postgres")
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()
	return rowsToTable(rows)
}
