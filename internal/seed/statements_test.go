package seed

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leapstack-labs/medallion/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTableSQL(t *testing.T) {
	cols := []ColumnSpec{
		{Name: "event_id", Type: TypeString},
		{Name: "quantity", Type: TypeInt},
		{Name: "amount", Type: TypeFloat},
		{Name: "event_timestamp", Type: TypeDatetime},
	}

	tests := []struct {
		name    string
		dialect *core.Dialect
		want    string
	}{
		{
			name:    "canonical types",
			dialect: &core.Dialect{},
			want:    `CREATE TABLE "bronze"."t" ("event_id" VARCHAR, "quantity" BIGINT, "amount" DOUBLE, "event_timestamp" TIMESTAMP(6))`,
		},
		{
			name: "type overrides",
			dialect: &core.Dialect{Types: map[string]string{
				"DOUBLE":       "DOUBLE PRECISION",
				"TIMESTAMP(6)": "TIMESTAMP",
			}},
			want: `CREATE TABLE "bronze"."t" ("event_id" VARCHAR, "quantity" BIGINT, "amount" DOUBLE PRECISION, "event_timestamp" TIMESTAMP)`,
		},
		{
			name:    "table options",
			dialect: &core.Dialect{TableOptions: "WITH (format = 'PARQUET')"},
			want:    `CREATE TABLE "bronze"."t" ("event_id" VARCHAR, "quantity" BIGINT, "amount" DOUBLE, "event_timestamp" TIMESTAMP(6)) WITH (format = 'PARQUET')`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, createTableSQL("bronze", "t", cols, tt.dialect))
		})
	}

	assert.Equal(t, `DROP TABLE IF EXISTS "bronze"."t"`, dropTableSQL("bronze", "t"))
	assert.Equal(t, `CREATE SCHEMA IF NOT EXISTS "bronze"`, createSchemaSQL("bronze"))
}

func makeRows(n int) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("ID%06d", i), fmt.Sprint(i)}
	}
	return rows
}

func TestInsertStatements_Chunking(t *testing.T) {
	cols := []ColumnSpec{{Name: "id", Type: TypeString}, {Name: "n", Type: TypeInt}}

	for _, n := range []int{0, 1, 999, 1000, 1001, 2500, 5000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			stmts, err := insertStatements("bronze", "t", cols, makeRows(n), 1000, standardDialect)
			require.NoError(t, err)
			assert.Len(t, stmts, (n+999)/1000)

			// Every row appears exactly once, in order.
			seen := 0
			for _, s := range stmts {
				require.True(t, strings.HasPrefix(s, `INSERT INTO "bronze"."t" ("id", "n") VALUES `))
				tuples := strings.Count(s, "('ID")
				assert.LessOrEqual(t, tuples, 1000)
				for i := 0; i < tuples; i++ {
					assert.Contains(t, s, fmt.Sprintf("('ID%06d', %d)", seen, seen))
					seen++
				}
			}
			assert.Equal(t, n, seen)
		})
	}
}

func TestInsertStatements_LiteralError(t *testing.T) {
	cols := []ColumnSpec{{Name: "n", Type: TypeInt}}
	_, err := insertStatements("bronze", "t", cols, [][]string{{"1"}, {"oops"}}, 1000, standardDialect)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2 column n")
}
