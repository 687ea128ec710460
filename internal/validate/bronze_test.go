package validate

import (
	"context"
	"testing"

	"github.com/leapstack-labs/medallion/internal/fixtures"
	"github.com/leapstack-labs/medallion/internal/testutil"
	"github.com/leapstack-labs/medallion/pkg/adapter"
	"github.com/leapstack-labs/medallion/pkg/adapters/duckdb"
	"github.com/leapstack-labs/medallion/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orders = fixtures.Table{Name: "orders", Key: "order_id", Columns: []string{"order_id", "amount"}}

func newBronzeStore(t *testing.T, stmts ...string) adapter.Adapter {
	t.Helper()
	ctx := context.Background()
	store := duckdb.New(testutil.NewTestLogger(t))
	require.NoError(t, store.Connect(ctx, core.AdapterConfig{}))
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.ExecBatch(ctx, append([]string{
		`CREATE SCHEMA bronze`,
		`CREATE TABLE bronze.orders (order_id VARCHAR, amount DOUBLE)`,
	}, stmts...)))
	return store
}

func TestBronzeSQL(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		stmts []string
		want  map[string]core.Verdict
	}{
		{
			name:  "clean",
			stmts: []string{`INSERT INTO bronze.orders VALUES ('ORD1', 10.5), ('ORD2', 3)`},
			want: map[string]core.Verdict{
				"null_checks": core.VerdictPassed, "duplicate_checks": core.VerdictPassed,
				"schema_checks": core.VerdictPassed, "row_count_check": core.VerdictPassed,
			},
		},
		{
			name:  "empty",
			stmts: nil,
			want: map[string]core.Verdict{
				"null_checks": core.VerdictPassed, "duplicate_checks": core.VerdictPassed,
				"schema_checks": core.VerdictPassed, "row_count_check": core.VerdictFailed,
			},
		},
		{
			name:  "null and duplicate keys",
			stmts: []string{`INSERT INTO bronze.orders VALUES ('ORD1', 1), ('ORD1', 2), (NULL, 3)`},
			want: map[string]core.Verdict{
				"null_checks": core.VerdictFailed, "duplicate_checks": core.VerdictFailed,
				"schema_checks": core.VerdictPassed, "row_count_check": core.VerdictPassed,
			},
		},
		{
			name:  "extra column",
			stmts: []string{`ALTER TABLE bronze.orders ADD COLUMN note VARCHAR`, `INSERT INTO bronze.orders VALUES ('ORD1', 1, 'x')`},
			want: map[string]core.Verdict{
				"null_checks": core.VerdictPassed, "duplicate_checks": core.VerdictPassed,
				"schema_checks": core.VerdictFailed, "row_count_check": core.VerdictPassed,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newBronzeStore(t, tt.stmts...)
			checks := NewBronzeSQL(store, "bronze", []fixtures.Table{orders}, testutil.NewTestLogger(t))

			v, err := New(core.LayerBronzeValidation, nil, append(checks.Options(), clock)...)
			require.NoError(t, err)

			res := v.Validate(ctx, upstream(core.LayerBronzeTransform))
			assert.True(t, res.OK(), "advisory mode never fails the stage")
			assert.Equal(t, tt.want, res.Checks().Map())
		})
	}
}

func TestBronzeSQL_MissingTable(t *testing.T) {
	store := newBronzeStore(t)
	missing := fixtures.Table{Name: "refunds", Key: "refund_id", Columns: []string{"refund_id"}}
	checks := NewBronzeSQL(store, "bronze", []fixtures.Table{orders, missing}, nil)

	verdict, err := checks.RowCount(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refunds")
	assert.Equal(t, core.VerdictFailed, verdict)
}
