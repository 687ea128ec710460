package seed

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/medallion/pkg/core"
)

// Default batching.
const (
	DefaultBatchSize  = 5000
	DefaultChunkSize  = 1000
	DefaultQueueDepth = 2
)

// DefaultSchema is the schema raw fixture tables load into.
const DefaultSchema = "bronze"

// createSchemaSQL returns CREATE SCHEMA IF NOT EXISTS for schema.
func createSchemaSQL(schema string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + core.QuoteIdentifier(schema)
}

// dropTableSQL returns DROP TABLE IF EXISTS for the qualified table.
func dropTableSQL(schema, table string) string {
	return "DROP TABLE IF EXISTS " + core.QualifiedName(schema, table)
}

// createTableSQL renders CREATE TABLE with dialect type names and the
// dialect's table options, if any.
func createTableSQL(schema, table string, cols []ColumnSpec, d *core.Dialect) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = core.QuoteIdentifier(c.Name) + " " + d.TypeName(c.Type.SQLType())
	}
	sql := fmt.Sprintf("CREATE TABLE %s (%s)", core.QualifiedName(schema, table), strings.Join(defs, ", "))
	if d.TableOptions != "" {
		sql += " " + d.TableOptions
	}
	return sql
}

// insertStatements renders rows as multi-row INSERT statements holding at
// most chunk rows each. It returns ceil(len(rows)/chunk) statements.
func insertStatements(schema, table string, cols []ColumnSpec, rows [][]string, chunk int, d *core.Dialect) ([]string, error) {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = core.QuoteIdentifier(c.Name)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", core.QualifiedName(schema, table), strings.Join(names, ", "))

	stmts := make([]string, 0, (len(rows)+chunk-1)/chunk)
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))

		var b strings.Builder
		b.WriteString(prefix)
		for i, row := range rows[start:end] {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('(')
			for j, c := range cols {
				if j > 0 {
					b.WriteString(", ")
				}
				lit, err := Literal(row[j], c.Type, d)
				if err != nil {
					return nil, fmt.Errorf("row %d column %s: %w", start+i+1, c.Name, err)
				}
				b.WriteString(lit)
			}
			b.WriteByte(')')
		}
		stmts = append(stmts, b.String())
	}
	return stmts, nil
}
