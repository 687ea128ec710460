package core

import (
	"fmt"
	"strings"
)

// PlaceholderStyle defines how query parameters are formatted.
type PlaceholderStyle int

const (
	// PlaceholderQuestion uses ? for all parameters (DuckDB, Trino).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar uses $1, $2, etc. for parameters (PostgreSQL).
	PlaceholderDollar
)

// Dialect holds the static SQL settings of a table store.
// This is pure data; the seeder and validators render SQL from it.
type Dialect struct {
	// Name is the dialect identifier (e.g., "duckdb", "postgres", "trino")
	Name string

	// DefaultSchema is used when a table reference is unqualified
	DefaultSchema string

	// Placeholder defines how query parameters are formatted
	Placeholder PlaceholderStyle

	// BackslashEscapes reports whether backslash escapes are honored in
	// string literals. When true, literals are rendered as E'...'.
	BackslashEscapes bool

	// TableOptions is appended to CREATE TABLE (e.g., WITH (format = 'PARQUET'))
	TableOptions string

	// Types overrides canonical column type names (BIGINT, DOUBLE, ...)
	Types map[string]string
}

// FormatPlaceholder returns the placeholder for the nth parameter (1-based).
func (d *Dialect) FormatPlaceholder(n int) string {
	if d.Placeholder == PlaceholderDollar {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// TypeName maps a canonical type name to the dialect's spelling.
func (d *Dialect) TypeName(canonical string) string {
	if t, ok := d.Types[canonical]; ok {
		return t
	}
	return canonical
}

// QuoteIdentifier wraps an identifier in double quotes, doubling embedded quotes.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifiedName renders schema.table with both parts quoted.
// An empty schema yields just the quoted table.
func QualifiedName(schema, table string) string {
	if schema == "" {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(schema) + "." + QuoteIdentifier(table)
}
