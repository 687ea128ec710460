package validate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/leapstack-labs/medallion/internal/fixtures"
	"github.com/leapstack-labs/medallion/pkg/adapter"
	"github.com/leapstack-labs/medallion/pkg/core"
)

// BronzeSQL holds the table store checks for the raw bronze tables.
type BronzeSQL struct {
	store  adapter.Adapter
	schema string
	tables []fixtures.Table
	logger *slog.Logger
}

// NewBronzeSQL creates checks over tables in schema.
func NewBronzeSQL(store adapter.Adapter, schema string, tables []fixtures.Table, logger *slog.Logger) *BronzeSQL {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BronzeSQL{store: store, schema: schema, tables: tables, logger: logger}
}

// Options returns validator options installing every bronze check.
func (b *BronzeSQL) Options() []Option {
	return []Option{
		WithCheck("null_checks", b.NullKeys),
		WithCheck("duplicate_checks", b.DuplicateKeys),
		WithCheck("schema_checks", b.Schema),
		WithCheck("row_count_check", b.RowCount),
	}
}

func (b *BronzeSQL) table(t fixtures.Table) string {
	return core.QualifiedName(b.schema, t.Name)
}

// NullKeys fails when any table has rows without a key value.
func (b *BronzeSQL) NullKeys(ctx context.Context) (core.Verdict, error) {
	return b.eachTable(ctx, func(ctx context.Context, t fixtures.Table) (bool, error) {
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NULL", b.table(t), core.QuoteIdentifier(t.Key))
		n, err := adapter.QueryInt64(ctx, b.store, q)
		if err != nil {
			return false, err
		}
		if n > 0 {
			b.logger.Warn("null keys found", slog.String("table", t.Name), slog.String("column", t.Key), slog.Int64("rows", n))
		}
		return n == 0, nil
	})
}

// DuplicateKeys fails when a key value appears more than once in a table.
func (b *BronzeSQL) DuplicateKeys(ctx context.Context) (core.Verdict, error) {
	return b.eachTable(ctx, func(ctx context.Context, t fixtures.Table) (bool, error) {
		key := core.QuoteIdentifier(t.Key)
		q := fmt.Sprintf("SELECT COUNT(%s) - COUNT(DISTINCT %s) FROM %s", key, key, b.table(t))
		n, err := adapter.QueryInt64(ctx, b.store, q)
		if err != nil {
			return false, err
		}
		if n > 0 {
			b.logger.Warn("duplicate keys found", slog.String("table", t.Name), slog.String("column", t.Key), slog.Int64("rows", n))
		}
		return n == 0, nil
	})
}

// Schema fails when a table's columns differ from its header contract.
func (b *BronzeSQL) Schema(ctx context.Context) (core.Verdict, error) {
	return b.eachTable(ctx, func(ctx context.Context, t fixtures.Table) (bool, error) {
		meta, err := b.store.GetTableMetadata(ctx, b.schema+"."+t.Name)
		if err != nil {
			return false, err
		}
		got := meta.ColumnNames()
		if !slices.Equal(got, t.Columns) {
			b.logger.Warn("schema mismatch", slog.String("table", t.Name), slog.Any("want", t.Columns), slog.Any("got", got))
			return false, nil
		}
		return true, nil
	})
}

// RowCount fails when a table is empty.
func (b *BronzeSQL) RowCount(ctx context.Context) (core.Verdict, error) {
	return b.eachTable(ctx, func(ctx context.Context, t fixtures.Table) (bool, error) {
		n, err := adapter.QueryInt64(ctx, b.store, "SELECT COUNT(*) FROM "+b.table(t))
		if err != nil {
			return false, err
		}
		if n == 0 {
			b.logger.Warn("table is empty", slog.String("table", t.Name))
		}
		return n > 0, nil
	})
}

// eachTable passes only if fn passes for every table. The first error aborts.
func (b *BronzeSQL) eachTable(ctx context.Context, fn func(context.Context, fixtures.Table) (bool, error)) (core.Verdict, error) {
	verdict := core.VerdictPassed
	for _, t := range b.tables {
		ok, err := fn(ctx, t)
		if err != nil {
			return core.VerdictFailed, fmt.Errorf("%s: %w", t.Name, err)
		}
		if !ok {
			verdict = core.VerdictFailed
		}
	}
	return verdict, nil
}
