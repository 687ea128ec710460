package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhysicalType_SQLType(t *testing.T) {
	tests := []struct {
		typ  PhysicalType
		want string
	}{
		{TypeInt, "BIGINT"},
		{TypeFloat, "DOUBLE"},
		{TypeBool, "BOOLEAN"},
		{TypeDate, "DATE"},
		{TypeDatetime, "TIMESTAMP(6)"},
		{TypeString, "VARCHAR"},
		{typeUnknown, "VARCHAR"},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.SQLType())
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		value string
		want  PhysicalType
	}{
		{"42", TypeInt},
		{"-7", TypeInt},
		{"0", TypeInt},
		{"007", TypeString},
		{"00", TypeString},
		{"3.14", TypeFloat},
		{"0.5", TypeFloat},
		{"-0.25", TypeFloat},
		{"1e6", TypeFloat},
		{".5", TypeFloat},
		{"00.5", TypeString},
		{"NaN", TypeString},
		{"Inf", TypeString},
		{"0x1p-2", TypeString},
		{"99999999999999999999", TypeString},
		{"-99999999999999999999", TypeString},
		{"9.9999999999999999999e19", TypeFloat},
		{"true", TypeBool},
		{"FALSE", TypeBool},
		{"yes", TypeString},
		{"2024-03-15", TypeDate},
		{"2024-3-15", TypeString},
		{"2024-03-15 10:22:01", TypeDatetime},
		{"2024-03-15 10:22:01.123456", TypeDatetime},
		{"2024-03-15T10:22:01Z", TypeDatetime},
		{"CUST000123", TypeString},
		{"192.168.1.1", TypeString},
		{"-", TypeString},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.value, true))
		})
	}

	assert.Equal(t, TypeString, classify("2024-03-15", false), "temporal inference disabled")
}

func TestInferrer(t *testing.T) {
	header := []string{"id", "amount", "flag", "day", "ts", "mixed", "empty", "code"}
	in := NewInferrer(header, true)

	in.Observe([]string{"1", "10", "true", "2024-01-01", "2024-01-01 00:00:00", "5", "", "01"})
	in.Observe([]string{"2", "10.5", "false", "2024-01-02", "2024-01-02", "abc", "", "02"})
	in.Observe([]string{"", "", "", "", "", "", "", ""})

	got := map[string]PhysicalType{}
	for _, c := range in.Columns() {
		got[c.Name] = c.Type
	}

	assert.Equal(t, map[string]PhysicalType{
		"id":     TypeInt,
		"amount": TypeFloat,
		"flag":   TypeBool,
		"day":    TypeDate,
		"ts":     TypeDatetime,
		"mixed":  TypeString,
		"empty":  TypeString,
		"code":   TypeString,
	}, got)
}

func TestInferrer_OverflowingIntegers(t *testing.T) {
	ids := []string{"12345678901234567890", "12345678901234567891"}
	in := NewInferrer([]string{"txn_ref"}, true)
	for _, id := range ids {
		in.Observe([]string{id})
	}

	cols := in.Columns()
	assert.Equal(t, TypeString, cols[0].Type, "ids past int64 range must not become DOUBLE")

	first, err := Literal(ids[0], cols[0].Type, standardDialect)
	assert.NoError(t, err)
	second, err := Literal(ids[1], cols[0].Type, standardDialect)
	assert.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "'12345678901234567890'", first)
}

func TestWiden(t *testing.T) {
	assert.Equal(t, TypeInt, widen(typeUnknown, TypeInt))
	assert.Equal(t, TypeFloat, widen(TypeInt, TypeFloat))
	assert.Equal(t, TypeFloat, widen(TypeFloat, TypeInt))
	assert.Equal(t, TypeDatetime, widen(TypeDate, TypeDatetime))
	assert.Equal(t, TypeString, widen(TypeBool, TypeInt))
	assert.Equal(t, TypeString, widen(TypeDate, TypeFloat))
}
