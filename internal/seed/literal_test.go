package seed

import (
	"strings"
	"testing"

	"github.com/leapstack-labs/medallion/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	standardDialect = &core.Dialect{Name: "duckdb"}
	escapeDialect   = &core.Dialect{Name: "postgres", BackslashEscapes: true}
)

// unquote reads a SQL string literal back the way the dialect would.
func unquote(t *testing.T, lit string, d *core.Dialect) string {
	t.Helper()
	escapes := false
	if strings.HasPrefix(lit, "E'") {
		require.True(t, d.BackslashEscapes, "E'' literal on a dialect without escapes")
		escapes = true
		lit = lit[1:]
	}
	require.True(t, strings.HasPrefix(lit, "'") && strings.HasSuffix(lit, "'"), "not quoted: %s", lit)
	body := lit[1 : len(lit)-1]

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\'':
			require.True(t, i+1 < len(body) && body[i+1] == '\'', "lone quote in %s", lit)
			b.WriteByte('\'')
			i++
		case c == '\\' && escapes:
			require.True(t, i+1 < len(body), "dangling backslash in %s", lit)
			b.WriteByte(body[i+1])
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func TestStringLiteral_RoundTrip(t *testing.T) {
	inputs := []string{
		"plain",
		"O'Brien",
		"''",
		`C:\temp\new`,
		`\'`,
		`trailing\`,
		`it's a \"test\"`,
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		"",
		"unicode café ✓",
	}

	for _, d := range []*core.Dialect{standardDialect, escapeDialect} {
		for _, in := range inputs {
			t.Run(d.Name+"/"+in, func(t *testing.T) {
				assert.Equal(t, in, unquote(t, StringLiteral(in, d), d))
			})
		}
	}
}

func TestStringLiteral_Forms(t *testing.T) {
	assert.Equal(t, "'O''Brien'", StringLiteral("O'Brien", standardDialect))
	assert.Equal(t, `'a\b'`, StringLiteral(`a\b`, standardDialect))
	assert.Equal(t, `E'a\\b'`, StringLiteral(`a\b`, escapeDialect))
	assert.Equal(t, "'O''Brien'", StringLiteral("O'Brien", escapeDialect), "no E prefix without backslashes")
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		typ     PhysicalType
		want    string
		wantErr bool
	}{
		{"null string", "", TypeString, "NULL", false},
		{"null int", "", TypeInt, "NULL", false},
		{"int", "42", TypeInt, "42", false},
		{"signed int", "+5", TypeInt, "5", false},
		{"float", "10.50", TypeFloat, "10.5", false},
		{"int in float column", "3", TypeFloat, "3", false},
		{"bool upper", "TRUE", TypeBool, "true", false},
		{"bool lower", "false", TypeBool, "false", false},
		{"date", "2024-06-30", TypeDate, "DATE '2024-06-30'", false},
		{"datetime", "2024-06-30 12:01:02", TypeDatetime, "TIMESTAMP '2024-06-30 12:01:02.000000'", false},
		{"datetime fraction", "2024-06-30 12:01:02.5", TypeDatetime, "TIMESTAMP '2024-06-30 12:01:02.500000'", false},
		{"date in datetime column", "2024-06-30", TypeDatetime, "TIMESTAMP '2024-06-30 00:00:00.000000'", false},
		{"rfc3339 in datetime column", "2024-06-30T12:00:00+02:00", TypeDatetime, "TIMESTAMP '2024-06-30 10:00:00.000000'", false},
		{"string", "it's", TypeString, "'it''s'", false},
		{"20-digit id", "12345678901234567890", TypeString, "'12345678901234567890'", false},
		{"bad int", "x", TypeInt, "", true},
		{"bad bool", "maybe", TypeBool, "", true},
		{"bad date", "2024-13-01", TypeDate, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Literal(tt.raw, tt.typ, standardDialect)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
