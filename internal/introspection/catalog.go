package introspection

import (
	"fmt"
	"strings"
)

// TableKey is a resolved foreign key constraint with both tables and their
// ordered member columns. ForeignKeyColumns[i] references PrimaryKeyColumns[i].
type TableKey struct {
	Name              string
	ForeignKeyTable   *Table
	PrimaryKeyTable   *Table
	ForeignKeyColumns []*Column
	PrimaryKeyColumns []*Column
}

// Catalog indexes a Schema's tables by qualified name and resolves foreign
// key rows into TableKeys in both directions.
type Catalog struct {
	tables   []*Table
	byName   map[string]*Table
	outgoing map[*Table][]TableKey
	incoming map[*Table][]TableKey
}

// NewCatalog indexes schema. Keys whose referenced table or columns are not
// part of schema are skipped. The catalog holds pointers into schema, which
// must not be modified afterwards.
func NewCatalog(schema *Schema) *Catalog {
	c := &Catalog{
		byName:   make(map[string]*Table),
		outgoing: make(map[*Table][]TableKey),
		incoming: make(map[*Table][]TableKey),
	}
	if schema == nil {
		return c
	}
	for i := range schema.Tables {
		t := &schema.Tables[i]
		c.tables = append(c.tables, t)
		c.byName[strings.ToLower(t.FullName())] = t
	}
	for _, t := range c.tables {
		for i, constraint := range ForeignKeyConstraints(*t) {
			ref := c.byName[strings.ToLower(constraint.ReferencedFullName())]
			if ref == nil {
				continue
			}
			key, ok := resolveKey(t, ref, constraint)
			if !ok {
				continue
			}
			if key.Name == "" {
				key.Name = fmt.Sprintf("fk_%s_%s_%d", t.Name, ref.Name, i+1)
			}
			c.outgoing[t] = append(c.outgoing[t], key)
			c.incoming[ref] = append(c.incoming[ref], key)
		}
	}
	return c
}

func resolveKey(t, ref *Table, constraint ForeignKeyConstraint) (TableKey, bool) {
	key := TableKey{
		Name:            constraint.ConstraintName,
		ForeignKeyTable: t,
		PrimaryKeyTable: ref,
	}
	for i, name := range constraint.ColumnNames {
		local := t.Column(name)
		remote := ref.Column(constraint.ReferencedColumns[i])
		if local == nil || remote == nil {
			return TableKey{}, false
		}
		key.ForeignKeyColumns = append(key.ForeignKeyColumns, local)
		key.PrimaryKeyColumns = append(key.PrimaryKeyColumns, remote)
	}
	return key, len(key.ForeignKeyColumns) > 0
}

// Tables returns every table in schema order.
func (c *Catalog) Tables() []*Table {
	return c.tables
}

// Table looks up a table by qualified name, case-insensitively.
func (c *Catalog) Table(fullName string) *Table {
	return c.byName[strings.ToLower(fullName)]
}

// ForeignKeys returns the keys declared on t, pointing at other tables.
func (c *Catalog) ForeignKeys(t *Table) []TableKey {
	return c.outgoing[t]
}

// PrimaryKeys returns the keys of other tables that reference t.
func (c *Catalog) PrimaryKeys(t *Table) []TableKey {
	return c.incoming[t]
}

// PrimaryKeyCount returns the number of primary key columns of t.
func PrimaryKeyCount(t *Table) int {
	n := 0
	for _, col := range t.Columns {
		if col.IsPrimaryKey {
			n++
		}
	}
	return n
}
