// Package trino provides a Trino table store adapter for Iceberg-backed lakehouses.
package trino

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/trinodb/trino-go-client/trino" // trino database/sql driver

	"github.com/leapstack-labs/medallion/pkg/adapter"
	"github.com/leapstack-labs/medallion/pkg/core"
)

func newDialect(format string) *core.Dialect {
	return &core.Dialect{
		Name:          "trino",
		DefaultSchema: "bronze",
		Placeholder:   core.PlaceholderQuestion,
		TableOptions:  fmt.Sprintf("WITH (format = '%s')", format),
	}
}

// Adapter implements the adapter.Adapter interface for Trino.
type Adapter struct {
	adapter.BaseSQLAdapter
	dialect *core.Dialect
}

// New creates a new Trino adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
		dialect:        newDialect("PARQUET"),
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "trino"
}

// Dialect returns the Trino SQL settings. The table format hint reflects
// the connected target's params.
func (a *Adapter) Dialect() *core.Dialect {
	return a.dialect
}

// Connect establishes a connection to a Trino coordinator.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := ParseParams(cfg.Params)
	if err != nil {
		return err
	}

	dsn, err := buildTrinoDSN(cfg, params)
	if err != nil {
		return err
	}

	a.Logger.Debug("connecting to trino",
		slog.String("host", cfg.Host),
		slog.String("catalog", params.Catalog),
		slog.String("schema", cfg.Schema))

	db, err := sql.Open("trino", dsn)
	if err != nil {
		return fmt.Errorf("failed to open trino connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping trino: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	a.dialect = newDialect(params.TableFormat)
	if cfg.Schema != "" {
		a.dialect.DefaultSchema = cfg.Schema
	}
	return nil
}

// ExecBatch runs a batch without database/sql transactions, which the
// trino driver lacks. INSERTs into one table are merged into a single
// statement, so the batch commits as one Iceberg snapshot. Anything else
// runs statement by statement and is not atomic.
func (a *Adapter) ExecBatch(ctx context.Context, stmts []string) error {
	if a.DB == nil {
		return adapter.ErrNotConnected
	}
	if merged, ok := mergeInserts(stmts); ok {
		a.Logger.Debug("merged insert batch", slog.Int("statements", len(stmts)))
		return a.Exec(ctx, merged)
	}
	return a.ExecEach(ctx, stmts)
}

const valuesKeyword = " VALUES "

// mergeInserts joins multi-row INSERTs sharing one target and column list
// into a single INSERT. It reports false when stmts cannot be merged.
func mergeInserts(stmts []string) (string, bool) {
	if len(stmts) < 2 || !strings.HasPrefix(stmts[0], "INSERT INTO ") {
		return "", false
	}
	i := strings.Index(stmts[0], valuesKeyword)
	if i < 0 {
		return "", false
	}
	prefix := stmts[0][:i+len(valuesKeyword)]

	var b strings.Builder
	b.WriteString(stmts[0])
	for _, stmt := range stmts[1:] {
		rows, ok := strings.CutPrefix(stmt, prefix)
		if !ok || rows == "" {
			return "", false
		}
		b.WriteString(", ")
		b.WriteString(rows)
	}
	return b.String(), true
}

// GetTableMetadata retrieves metadata for a specified table.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*adapter.Metadata, error) {
	return a.GetTableMetadataCommon(ctx, table, a.dialect)
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
