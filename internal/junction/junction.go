// Package junction classifies raw tables by their foreign key topology. It
// recognises many-to-many junction tables, finds the far side of a junction
// from either end, and identifies lookup tables that can map to enums.
package junction

import (
	"regexp"
	"strings"

	"schemamap/internal/introspection"
	"schemamap/internal/sqltype"
)

// Type describes the shape of a junction table.
type Type int

const (
	// NotJunction indicates the table is not a junction table.
	NotJunction Type = iota
	// PureJunction indicates a junction whose columns are all key or
	// server-maintained columns.
	PureJunction
	// AttributeJunction indicates a junction forced by an extended property
	// that also carries payload columns.
	AttributeJunction
)

// String returns the name used for t in rendered documents.
func (t Type) String() string {
	switch t {
	case NotJunction:
		return "none"
	case PureJunction:
		return "pure"
	case AttributeJunction:
		return "attribute"
	default:
		return "unknown"
	}
}

// Rules holds the configuration the predicates depend on.
type Rules struct {
	IncludeManyToManyAssociations bool

	// Extended property keys.
	ManyToManyKey string
	IdentityKey   string
	ComputedKey   string

	// RowVersionPattern switches row version detection from native type to
	// column name matching when set.
	RowVersionPattern *regexp.Regexp

	// EnumMatch selects enum tables by qualified name; EnumNameMatch selects
	// the description column of an enum table. Nil matchers never match.
	EnumMatch     func(fullName string) bool
	EnumNameMatch func(columnName string) bool
}

// IsRowVersion reports whether col is a server-maintained version column.
func (r Rules) IsRowVersion(col *introspection.Column) bool {
	if col == nil {
		return false
	}
	if r.RowVersionPattern != nil {
		return r.RowVersionPattern.MatchString(col.Name)
	}
	return col.IsRowVersion || sqltype.IsRowVersion(col.NativeType())
}

// IsIdentity reports whether col is generated by the server on insert.
func (r Rules) IsIdentity(col *introspection.Column) bool {
	if col == nil {
		return false
	}
	return col.IsAutoIncrement || col.ExtendedProperties.IsTrue(r.IdentityKey)
}

// IsComputed reports whether the server computes col. Identity and row
// version columns count as computed.
func (r Rules) IsComputed(col *introspection.Column) bool {
	if col == nil {
		return false
	}
	return col.IsGenerated || r.IsRowVersion(col) || r.IsIdentity(col) ||
		col.ExtendedProperties.IsTrue(r.ComputedKey)
}

// IsManyToMany reports whether t links two other tables. The ManyToMany
// extended property overrides detection: false disables it, true only needs
// two foreign keys. Otherwise the table needs exactly two foreign keys and
// every column must be a non-null foreign key member or a non-identity
// computed column.
func (r Rules) IsManyToMany(cat *introspection.Catalog, t *introspection.Table) bool {
	if !r.IncludeManyToManyAssociations || cat == nil || t == nil {
		return false
	}
	keys := cat.ForeignKeys(t)

	if forced, ok := t.ExtendedProperties.Bool(r.ManyToManyKey); ok {
		return forced && len(keys) >= 2
	}

	if len(t.Columns) < 2 || len(keys) != 2 {
		return false
	}
	for i := range t.Columns {
		col := &t.Columns[i]
		member := col.IsForeignKey ||
			(r.IsComputed(col) && !r.IsIdentity(col)) ||
			(r.RowVersionPattern != nil && r.RowVersionPattern.MatchString(col.Name))
		if !member || col.IsNullable {
			return false
		}
	}
	return true
}

// Classify describes t as a junction. Tables that pass IsManyToMany only
// through the extended property override may carry payload columns.
func (r Rules) Classify(cat *introspection.Catalog, t *introspection.Table) Type {
	if !r.IsManyToMany(cat, t) {
		return NotJunction
	}
	for i := range t.Columns {
		col := &t.Columns[i]
		if !col.IsForeignKey && !r.IsComputed(col) {
			return AttributeJunction
		}
	}
	return PureJunction
}

// ToManyTable returns the table a junction links source to. When m2m is not
// a junction and references source, there is no far side. Otherwise the
// referenced table of the first key not pointing at source is returned.
func (r Rules) ToManyTable(cat *introspection.Catalog, m2m, source *introspection.Table) *introspection.Table {
	if cat == nil || m2m == nil || source == nil {
		return nil
	}
	keys := cat.ForeignKeys(m2m)
	if !r.IsManyToMany(cat, m2m) {
		for _, key := range keys {
			if sameTable(key.PrimaryKeyTable, source) {
				return nil
			}
		}
	}
	for _, key := range keys {
		if !sameTable(key.PrimaryKeyTable, source) {
			return key.PrimaryKeyTable
		}
	}
	return nil
}

func sameTable(a, b *introspection.Table) bool {
	return a == b || strings.EqualFold(a.FullName(), b.FullName())
}
