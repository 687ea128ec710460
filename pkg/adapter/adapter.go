// Package adapter provides the table store interface used by the medallion
// pipeline's seeder and validators.
//
// This package contains the public contract that all table store adapters must
// implement. Concrete adapter implementations are in pkg/adapters/ subdirectories.
package adapter

import (
	"context"

	"github.com/leapstack-labs/medallion/pkg/core"
)

// Type aliases for the core types used in adapter signatures.
type (
	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Column is an alias for core.Column.
	Column = core.Column

	// Metadata is an alias for core.TableMetadata.
	Metadata = core.TableMetadata

	// Rows is an alias for core.Rows.
	Rows = core.Rows
)

// Adapter defines the interface that all table store adapters must implement.
type Adapter interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// Exec executes a SQL statement that doesn't return rows (e.g., INSERT, CREATE).
	Exec(ctx context.Context, sql string) error

	// ExecBatch executes statements as one unit. On stores with transactions
	// either all statements apply or none do.
	ExecBatch(ctx context.Context, stmts []string) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// GetTableMetadata retrieves column metadata and row count for a table.
	GetTableMetadata(ctx context.Context, table string) (*Metadata, error)

	// DialectName returns the dialect identifier.
	DialectName() string

	// Dialect returns the static SQL settings for this store.
	Dialect() *core.Dialect
}
