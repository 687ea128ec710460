package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/medallion/pkg/core"
)

// ErrNotConnected is returned when an operation runs before Connect.
var ErrNotConnected = errors.New("database connection not established")

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec, ExecBatch, and Query implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    core.AdapterConfig
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		err := b.DB.Close()
		b.DB = nil
		return err
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string) error {
	if b.DB == nil {
		return ErrNotConnected
	}
	_, err := b.DB.ExecContext(ctx, sqlStr)
	if err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// ExecBatch executes all statements inside one transaction.
// Any failure rolls back the whole batch.
func (b *BaseSQLAdapter) ExecBatch(ctx context.Context, stmts []string) error {
	if b.DB == nil {
		return ErrNotConnected
	}
	if len(stmts) == 0 {
		return nil
	}

	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return errors.Join(fmt.Errorf("failed to execute statement %d of %d: %w", i+1, len(stmts), err), rbErr)
			}
			return fmt.Errorf("failed to execute statement %d of %d: %w", i+1, len(stmts), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ExecEach executes statements one at a time without a transaction.
// Used by stores whose drivers reject BEGIN.
func (b *BaseSQLAdapter) ExecEach(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if err := b.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d of %d: %w", i+1, len(stmts), err)
		}
	}
	return nil
}

// Query executes a SQL statement that returns rows.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string) (*core.Rows, error) {
	if b.DB == nil {
		return nil, ErrNotConnected
	}
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := b.DB.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &core.Rows{Rows: rows}, nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// ParseQualifiedName splits a table reference into schema and name.
// Uses the dialect's default schema if not specified.
func ParseQualifiedName(table string, d *core.Dialect) (schema, name string) {
	if parts := strings.Split(table, "."); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return d.DefaultSchema, table
}

// GetTableMetadataCommon provides a shared implementation of GetTableMetadata.
// Uses information_schema.columns with dialect-appropriate placeholders.
func (b *BaseSQLAdapter) GetTableMetadataCommon(ctx context.Context, table string, d *core.Dialect) (*core.TableMetadata, error) {
	if b.DB == nil {
		return nil, ErrNotConnected
	}

	schema, tableName := ParseQualifiedName(table, d)

	//nolint:gosec // Placeholders come from the dialect and are safe (? or $N)
	query := fmt.Sprintf(`
		SELECT
			column_name,
			data_type,
			is_nullable,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = %s AND table_name = %s
		ORDER BY ordinal_position
	`, d.FormatPlaceholder(1), d.FormatPlaceholder(2))

	rows, err := b.DB.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []core.Column
	for rows.Next() {
		var col core.Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}

	countQuery := "SELECT COUNT(*) FROM " + core.QualifiedName(schema, tableName)
	var rowCount int64
	if err := b.DB.QueryRowContext(ctx, countQuery).Scan(&rowCount); err != nil {
		// Non-fatal error, just set to 0
		rowCount = 0
	}

	return &core.TableMetadata{
		Schema:   schema,
		Name:     tableName,
		Columns:  columns,
		RowCount: rowCount,
	}, nil
}

// QueryInt64 runs a query expected to return a single integer.
func QueryInt64(ctx context.Context, a Adapter, sqlStr string) (int64, error) {
	rows, err := a.Query(ctx, sqlStr)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("failed to read result: %w", err)
		}
		return 0, fmt.Errorf("query returned no rows")
	}
	var n int64
	if err := rows.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to scan result: %w", err)
	}
	return n, rows.Err()
}
