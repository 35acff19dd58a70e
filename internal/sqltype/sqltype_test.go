package sqltype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap_IntegerTypes(t *testing.T) {
	intTypes := []string{
		"TINYINT", "tinyint",
		"SMALLINT", "smallint",
		"MEDIUMINT", "mediumint",
		"INT", "int", "int(11) unsigned",
		"INTEGER", "integer",
		"BIGINT", "bigint",
		"int4", "int8", "bigserial",
	}

	for _, sqlType := range intTypes {
		t.Run(sqlType, func(t *testing.T) {
			assert.Equal(t, CategoryInt, Map(sqlType))
			assert.True(t, Map(sqlType).IsNumeric())
		})
	}
}

func TestMap_OtherTypes(t *testing.T) {
	tests := []struct {
		sqlType  string
		expected Category
	}{
		{"tinyint(1)", CategoryBool},
		{"boolean", CategoryBool},
		{"bit(1)", CategoryBool},
		{"double precision", CategoryFloat},
		{"DECIMAL(10,2)", CategoryDecimal},
		{"datetime", CategoryTime},
		{"timestamp with time zone", CategoryTime},
		{"varbinary(16)", CategoryBytes},
		{"bytea", CategoryBytes},
		{"jsonb", CategoryJSON},
		{"uuid", CategoryUUID},
		{"VARCHAR(255)", CategoryString},
		{"enum('a','b')", CategoryString},
		{"geometry", CategoryString},
	}

	for _, tt := range tests {
		t.Run(tt.sqlType, func(t *testing.T) {
			assert.Equal(t, tt.expected, Map(tt.sqlType))
		})
	}
}

func TestGoType(t *testing.T) {
	tests := []struct {
		sqlType  string
		expected string
	}{
		{"tinyint", "int8"},
		{"smallint", "int16"},
		{"int", "int32"},
		{"int(10) unsigned", "uint32"},
		{"bigint", "int64"},
		{"float", "float32"},
		{"double", "float64"},
		{"numeric(12,4)", "float64"},
		{"tinyint(1)", "bool"},
		{"timestamp", "time.Time"},
		{"blob", "[]byte"},
		{"json", "json.RawMessage"},
		{"uuid", "uuid.UUID"},
		{"text", "string"},
	}

	for _, tt := range tests {
		t.Run(tt.sqlType, func(t *testing.T) {
			assert.Equal(t, tt.expected, GoType(tt.sqlType))
		})
	}
}

func TestResolveSystemType(t *testing.T) {
	assert.Equal(t, "int32", ResolveSystemType("int", false))
	assert.Equal(t, "*int32", ResolveSystemType("int", true))
	assert.Equal(t, "*time.Time", ResolveSystemType("datetime", true))
	assert.Equal(t, "[]byte", ResolveSystemType("blob", true))
	assert.Equal(t, "json.RawMessage", ResolveSystemType("json", true))
	assert.Equal(t, "int32", BaseSystemType("*int32"))
}

func TestNativeTypePredicates(t *testing.T) {
	assert.True(t, IsUnicode("NVARCHAR(50)"))
	assert.False(t, IsUnicode("varchar"))

	assert.True(t, IsFixedLength("char(2)"))
	assert.True(t, IsFixedLength("bpchar"))
	assert.False(t, IsFixedLength("varchar"))

	assert.True(t, IsRowVersion("rowversion"))
	assert.False(t, IsRowVersion("timestamp"))

	assert.True(t, IsEnumKey("int"))
	assert.True(t, IsEnumKey("SMALLINT"))
	assert.False(t, IsEnumKey("varchar"))

	assert.True(t, IsString("varchar(20)"))
	assert.False(t, IsString("int"))
}

func TestBaseType(t *testing.T) {
	assert.Equal(t, "varchar", BaseType("VARCHAR(255)"))
	assert.Equal(t, "int", BaseType("int(11) unsigned"))
	assert.Equal(t, "text", BaseType("text[]"))
}
