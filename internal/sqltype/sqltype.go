// Package sqltype provides a shared mapping from native SQL data types to Go
// types and type categories. MySQL/TiDB and PostgreSQL spellings are both
// understood.
package sqltype

import "strings"

// Category represents the broad kind of value a SQL column holds.
type Category int

const (
	// CategoryString is the default for text, enum and unknown SQL types.
	CategoryString Category = iota
	// CategoryInt represents integer numeric types.
	CategoryInt
	// CategoryFloat represents floating-point types.
	CategoryFloat
	// CategoryDecimal represents fixed-point numeric types.
	CategoryDecimal
	// CategoryBool represents boolean types.
	CategoryBool
	// CategoryTime represents date and time types.
	CategoryTime
	// CategoryBytes represents binary types.
	CategoryBytes
	// CategoryJSON represents JSON data types.
	CategoryJSON
	// CategoryUUID represents native UUID types.
	CategoryUUID
)

// String returns the category label used in rendered documents.
func (c Category) String() string {
	switch c {
	case CategoryInt:
		return "int"
	case CategoryFloat:
		return "float"
	case CategoryDecimal:
		return "decimal"
	case CategoryBool:
		return "bool"
	case CategoryTime:
		return "time"
	case CategoryBytes:
		return "bytes"
	case CategoryJSON:
		return "json"
	case CategoryUUID:
		return "uuid"
	default:
		return "string"
	}
}

// IsNumeric reports whether values of the category are numbers.
func (c Category) IsNumeric() bool {
	return c == CategoryInt || c == CategoryFloat || c == CategoryDecimal
}

// BaseType lowercases a SQL type and strips size specifiers and modifiers.
// Example: "VARCHAR(255)" -> "varchar", "int(11) unsigned" -> "int"
func BaseType(sqlType string) string {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	if idx := strings.Index(t, "("); idx != -1 {
		t = t[:idx]
	}
	t = strings.TrimSuffix(t, " unsigned")
	t = strings.TrimSuffix(t, " zerofill")
	t = strings.TrimSuffix(t, "[]")
	return strings.TrimSpace(t)
}

// Map converts a SQL data type string to its category.
// The input is case-insensitive. tinyint(1) and bit(1) are booleans.
func Map(sqlType string) Category {
	lower := strings.ToLower(strings.TrimSpace(sqlType))
	if strings.HasPrefix(lower, "tinyint(1)") || lower == "bit(1)" {
		return CategoryBool
	}
	switch BaseType(sqlType) {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"int2", "int4", "int8", "serial", "smallserial", "bigserial", "bit", "year", "byte":
		return CategoryInt
	case "float", "double", "double precision", "real", "float4", "float8":
		return CategoryFloat
	case "decimal", "numeric", "money", "smallmoney":
		return CategoryDecimal
	case "bool", "boolean":
		return CategoryBool
	case "date", "datetime", "datetime2", "smalldatetime", "datetimeoffset", "timestamp",
		"timestamp without time zone", "timestamp with time zone", "timestamptz",
		"time", "time without time zone", "time with time zone", "timetz":
		return CategoryTime
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob", "bytea",
		"image", "rowversion":
		return CategoryBytes
	case "json", "jsonb":
		return CategoryJSON
	case "uuid", "uniqueidentifier":
		return CategoryUUID
	default:
		return CategoryString
	}
}

// GoType returns the Go type for a non-null column of sqlType.
func GoType(sqlType string) string {
	unsigned := strings.Contains(strings.ToLower(sqlType), "unsigned")
	switch Map(sqlType) {
	case CategoryInt:
		var t string
		switch BaseType(sqlType) {
		case "tinyint", "byte":
			t = "int8"
		case "smallint", "int2", "smallserial", "year":
			t = "int16"
		case "bigint", "int8", "bigserial", "bit":
			t = "int64"
		default:
			t = "int32"
		}
		if unsigned {
			t = "u" + t
		}
		return t
	case CategoryFloat:
		switch BaseType(sqlType) {
		case "float", "real", "float4":
			return "float32"
		}
		return "float64"
	case CategoryDecimal:
		return "float64"
	case CategoryBool:
		return "bool"
	case CategoryTime:
		return "time.Time"
	case CategoryBytes:
		return "[]byte"
	case CategoryJSON:
		return "json.RawMessage"
	case CategoryUUID:
		return "uuid.UUID"
	default:
		return "string"
	}
}

// ResolveSystemType returns the Go type for a column, boxing nullable scalar
// types in a pointer. Slices and raw JSON already carry a nil state.
func ResolveSystemType(sqlType string, nullable bool) string {
	t := GoType(sqlType)
	if !nullable || strings.HasPrefix(t, "[]") || t == "json.RawMessage" {
		return t
	}
	return "*" + t
}

// BaseSystemType strips the nullable pointer from a resolved system type.
func BaseSystemType(systemType string) string {
	return strings.TrimPrefix(systemType, "*")
}

// IsUnicode reports whether the native type stores national characters.
func IsUnicode(nativeType string) bool {
	switch BaseType(nativeType) {
	case "nchar", "nvarchar", "ntext", "xml":
		return true
	}
	return false
}

// IsFixedLength reports whether the native type is fixed width.
func IsFixedLength(nativeType string) bool {
	switch BaseType(nativeType) {
	case "char", "nchar", "binary", "bpchar", "character":
		return true
	}
	return false
}

// IsRowVersion reports whether the native type is a server-maintained row
// version. Auto-updated timestamps are flagged by the schema reader instead.
func IsRowVersion(nativeType string) bool {
	return BaseType(nativeType) == "rowversion"
}

// IsEnumKey reports whether the native type can key an enum table.
func IsEnumKey(nativeType string) bool {
	switch BaseType(nativeType) {
	case "int", "integer", "int4", "bigint", "int8", "tinyint", "byte", "smallint", "int2":
		return true
	}
	return false
}

// IsString reports whether the native type maps to a Go string.
func IsString(nativeType string) bool {
	return GoType(nativeType) == "string"
}
