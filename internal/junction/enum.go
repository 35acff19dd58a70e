package junction

import (
	"schemamap/internal/introspection"
	"schemamap/internal/sqltype"
)

// IsEnum reports whether t is a lookup table that can map to an enum: its
// name matches the enum rules, it has a single integer key column, and it has
// a column that can label the members.
func (r Rules) IsEnum(t *introspection.Table) bool {
	if t == nil || r.EnumMatch == nil || !r.EnumMatch(t.FullName()) {
		return false
	}
	keys := introspection.PrimaryKeyColumns(*t)
	if len(keys) != 1 || !sqltype.IsEnumKey(keys[0].NativeType()) {
		return false
	}
	return r.EnumNameColumn(t) != ""
}

// EnumNameColumn returns the column that labels enum members: the first
// column matching EnumNameMatch, else the first string column.
func (r Rules) EnumNameColumn(t *introspection.Table) string {
	if t == nil {
		return ""
	}
	if r.EnumNameMatch != nil {
		for _, col := range t.Columns {
			if r.EnumNameMatch(col.Name) {
				return col.Name
			}
		}
	}
	for _, col := range t.Columns {
		if sqltype.IsString(col.NativeType()) {
			return col.Name
		}
	}
	return ""
}
