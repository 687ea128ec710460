// Package duckdb provides a DuckDB table store adapter.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/medallion/pkg/adapter"
	"github.com/leapstack-labs/medallion/pkg/core"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

var dialect = &core.Dialect{
	Name:          "duckdb",
	DefaultSchema: "main",
	Placeholder:   core.PlaceholderQuestion,
	Types: map[string]string{
		// DuckDB TIMESTAMP is already microsecond precision.
		"TIMESTAMP(6)": "TIMESTAMP",
	},
}

// Adapter implements the adapter.Adapter interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
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

// Dialect returns the DuckDB SQL settings.
func (a *Adapter) Dialect() *core.Dialect {
	return dialect
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" as the path for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := ParseParams(cfg.Params)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	a.Logger.Debug("opening duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	// In-memory databases are per-connection; keep one so every
	// statement sees the same catalog.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range params.setupStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply duckdb setting %q: %w", stmt, err)
		}
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// GetTableMetadata retrieves metadata for a specified table.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	return a.GetTableMetadataCommon(ctx, table, dialect)
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
