package seed

import (
	"strconv"
	"strings"
	"time"
)

// PhysicalType is the value type inferred for a CSV column.
type PhysicalType int

// Inferred column types, ordered from least to most specific.
const (
	TypeString PhysicalType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeDate
	TypeDatetime
	// typeUnknown marks a column with no non-empty values yet.
	typeUnknown
)

// SQLType returns the canonical target type for the physical type.
func (t PhysicalType) SQLType() string {
	switch t {
	case TypeInt:
		return "BIGINT"
	case TypeFloat:
		return "DOUBLE"
	case TypeBool:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeDatetime:
		return "TIMESTAMP(6)"
	default:
		return "VARCHAR"
	}
}

func (t PhysicalType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeDate:
		return "date"
	case TypeDatetime:
		return "datetime"
	case typeUnknown:
		return "unknown"
	default:
		return "string"
	}
}

const (
	dateLayout      = "2006-01-02"
	datetimeLayout  = "2006-01-02 15:04:05.999999999"
	timestampFormat = "2006-01-02 15:04:05.000000"
)

// classify returns the most specific type for one non-empty value.
// temporal controls whether date and datetime shapes are recognized.
func classify(v string, temporal bool) PhysicalType {
	if isInt(v) {
		return TypeInt
	}
	if isFloat(v) {
		return TypeFloat
	}
	if strings.EqualFold(v, "true") || strings.EqualFold(v, "false") {
		return TypeBool
	}
	if temporal {
		if _, ok := parseDate(v); ok {
			return TypeDate
		}
		if _, ok := parseDatetime(v); ok {
			return TypeDatetime
		}
	}
	return TypeString
}

// widen merges the type seen so far with the type of a new value.
func widen(cur, next PhysicalType) PhysicalType {
	switch {
	case cur == typeUnknown:
		return next
	case cur == next:
		return cur
	case (cur == TypeInt && next == TypeFloat) || (cur == TypeFloat && next == TypeInt):
		return TypeFloat
	case (cur == TypeDate && next == TypeDatetime) || (cur == TypeDatetime && next == TypeDate):
		return TypeDatetime
	default:
		return TypeString
	}
}

// isInt accepts optionally signed base-10 integers without redundant
// leading zeros, so identifiers like "007" stay strings.
func isInt(v string) bool {
	digits := strings.TrimLeft(v, "+-")
	if len(v)-len(digits) > 1 || digits == "" {
		return false
	}
	if len(digits) > 1 && digits[0] == '0' {
		return false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return false
		}
	}
	_, err := strconv.ParseInt(v, 10, 64)
	return err == nil
}

// isFloat accepts decimal and exponent notation only; words like "NaN"
// or hex floats are strings. A value needs a point or an exponent, so
// digit runs that overflow int64 stay strings instead of losing precision.
func isFloat(v string) bool {
	if !strings.ContainsAny(v, ".eE") {
		return false
	}
	hasDigit := false
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case c == '.', c == 'e', c == 'E', c == '+', c == '-':
		default:
			return false
		}
	}
	if !hasDigit {
		return false
	}
	mantissa := strings.TrimLeft(v, "+-")
	if len(mantissa) > 1 && mantissa[0] == '0' && mantissa[1] != '.' && mantissa[1] != 'e' && mantissa[1] != 'E' {
		return false
	}
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}

func parseDate(v string) (time.Time, bool) {
	if len(v) != len(dateLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, v)
	return t, err == nil
}

func parseDatetime(v string) (time.Time, bool) {
	if t, err := time.Parse(datetimeLayout, v); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// Inferrer accumulates column types over a full scan of a file.
type Inferrer struct {
	header   []string
	types    []PhysicalType
	temporal bool
}

// NewInferrer starts inference for the given header.
func NewInferrer(header []string, temporal bool) *Inferrer {
	types := make([]PhysicalType, len(header))
	for i := range types {
		types[i] = typeUnknown
	}
	return &Inferrer{header: header, types: types, temporal: temporal}
}

// Observe folds one record into the column types. Empty fields are NULL
// and do not affect inference.
func (in *Inferrer) Observe(record []string) {
	for i, v := range record {
		if i >= len(in.types) || v == "" || in.types[i] == TypeString {
			continue
		}
		in.types[i] = widen(in.types[i], classify(v, in.temporal))
	}
}

// Columns returns the inferred columns. All-empty columns are strings.
func (in *Inferrer) Columns() []ColumnSpec {
	cols := make([]ColumnSpec, len(in.header))
	for i, name := range in.header {
		t := in.types[i]
		if t == typeUnknown {
			t = TypeString
		}
		cols[i] = ColumnSpec{Name: name, Type: t}
	}
	return cols
}

// ColumnSpec is one column of a table to be created.
type ColumnSpec struct {
	Name string
	Type PhysicalType
}
