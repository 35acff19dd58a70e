package introspection

// PrimaryKeyColumns returns the primary key columns of table in column order.
func PrimaryKeyColumns(table Table) []Column {
	var cols []Column
	for _, col := range table.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col)
		}
	}
	return cols
}

// markPrimaryKeys flags the named columns as primary key members. Names the
// table does not have are ignored.
func markPrimaryKeys(columns []Column, keyColumns []string) {
	for _, name := range keyColumns {
		for i := range columns {
			if columns[i].Name == name {
				columns[i].IsPrimaryKey = true
				break
			}
		}
	}
}
