// Package postgres provides a PostgreSQL table store adapter.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/leapstack-labs/medallion/pkg/adapter"
	"github.com/leapstack-labs/medallion/pkg/core"
)

var dialect = &core.Dialect{
	Name:             "postgres",
	DefaultSchema:    "public",
	Placeholder:      core.PlaceholderDollar,
	BackslashEscapes: true,
	Types: map[string]string{
		"DOUBLE": "DOUBLE PRECISION",
	},
}

// Adapter implements the adapter.Adapter interface for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return dialect.Name
}

// Dialect returns the PostgreSQL SQL settings.
func (a *Adapter) Dialect() *core.Dialect {
	return dialect
}

// Connect establishes a connection to PostgreSQL.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildPostgresDSN(cfg)

	a.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildPostgresDSN constructs a key=value PostgreSQL connection string.
// Option keys are appended in a stable order after the core fields.
func buildPostgresDSN(cfg adapter.Config) string {
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

	parts := []string{
		fmt.Sprintf("host=%s", host),
		fmt.Sprintf("port=%d", port),
		fmt.Sprintf("dbname=%s", cfg.Database),
		fmt.Sprintf("sslmode=%s", sslmode),
	}
	if cfg.Username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", cfg.Username))
	}
	if cfg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", cfg.Password))
	}
	if cfg.Schema != "" {
		parts = append(parts, fmt.Sprintf("search_path=%s", cfg.Schema))
	}
	return strings.Join(parts, " ")
}

// GetTableMetadata retrieves metadata for a specified table.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	return a.GetTableMetadataCommon(ctx, table, dialect)
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
