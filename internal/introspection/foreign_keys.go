package introspection

import (
	"cmp"
	"fmt"
	"slices"
)

// ForeignKeyConstraint is one foreign key with its member columns in
// declaration order. ColumnNames[i] references ReferencedColumns[i].
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedSchema  string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// ReferencedFullName returns the schema-qualified name of the referenced table.
func (c ForeignKeyConstraint) ReferencedFullName() string {
	return QualifiedName(c.ReferencedSchema, c.ReferencedTable)
}

type keyRow struct {
	group string
	seq   int
	fk    ForeignKey
}

// ForeignKeyConstraints folds the per-column rows of table into constraints,
// ordered by constraint name. Rows without a constraint name each form their
// own constraint.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	rows := make([]keyRow, len(table.ForeignKeys))
	for i, fk := range table.ForeignKeys {
		group := fk.ConstraintName
		if group == "" {
			group = fmt.Sprintf("\x00%06d", i)
		}
		rows[i] = keyRow{group: group, seq: i, fk: fk}
	}
	slices.SortStableFunc(rows, compareKeyRows)

	var result []ForeignKeyConstraint
	for i, r := range rows {
		if i == 0 || rows[i-1].group != r.group {
			result = append(result, ForeignKeyConstraint{
				ConstraintName:   r.fk.ConstraintName,
				ReferencedSchema: cmp.Or(r.fk.ReferencedSchema, table.Schema),
				ReferencedTable:  r.fk.ReferencedTable,
			})
		}
		last := &result[len(result)-1]
		last.ColumnNames = append(last.ColumnNames, r.fk.ColumnName)
		last.ReferencedColumns = append(last.ReferencedColumns, r.fk.ReferencedColumn)
	}
	return result
}

// compareKeyRows orders by group, then ordinal position with unknown (zero)
// positions last, then column name.
func compareKeyRows(a, b keyRow) int {
	if c := cmp.Compare(a.group, b.group); c != 0 {
		return c
	}
	if a.fk.OrdinalPosition != b.fk.OrdinalPosition {
		switch {
		case a.fk.OrdinalPosition == 0:
			return 1
		case b.fk.OrdinalPosition == 0:
			return -1
		}
		return cmp.Compare(a.fk.OrdinalPosition, b.fk.OrdinalPosition)
	}
	if c := cmp.Compare(a.fk.ColumnName, b.fk.ColumnName); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}
