package seed

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/medallion/pkg/core"
)

// StringLiteral quotes s for the dialect. Single quotes are doubled; on
// dialects that honor backslash escapes the literal uses E'' form and
// backslashes are doubled too. Reading the literal back yields s.
func StringLiteral(s string, d *core.Dialect) string {
	escaped := strings.ReplaceAll(s, "'", "''")
	if d.BackslashEscapes {
		escaped = strings.ReplaceAll(escaped, `\`, `\\`)
		if strings.Contains(s, `\`) {
			return "E'" + escaped + "'"
		}
	}
	return "'" + escaped + "'"
}

// Literal renders one raw CSV field as a SQL literal for a column of type t.
// Empty fields are NULL. A field that does not parse as t is an error.
func Literal(raw string, t PhysicalType, d *core.Dialect) (string, error) {
	if raw == "" {
		return "NULL", nil
	}

	switch t {
	case TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid integer %q", raw)
		}
		return strconv.FormatInt(n, 10), nil
	case TypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", fmt.Errorf("invalid float %q", raw)
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case TypeBool:
		if strings.EqualFold(raw, "true") {
			return "true", nil
		}
		if strings.EqualFold(raw, "false") {
			return "false", nil
		}
		return "", fmt.Errorf("invalid boolean %q", raw)
	case TypeDate:
		v, ok := parseDate(raw)
		if !ok {
			return "", fmt.Errorf("invalid date %q", raw)
		}
		return "DATE '" + v.Format(dateLayout) + "'", nil
	case TypeDatetime:
		v, ok := parseDatetime(raw)
		if !ok {
			// Date-only values widen into datetime columns.
			v, ok = parseDate(raw)
		}
		if !ok {
			return "", fmt.Errorf("invalid timestamp %q", raw)
		}
		return "TIMESTAMP '" + v.Format(timestampFormat) + "'", nil
	default:
		return StringLiteral(raw, d), nil
	}
}
