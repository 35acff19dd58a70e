package introspection

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect builds the catalog queries for one database family. Every builder
// of the same kind returns the same column shape so the reader can scan rows
// without knowing which server it talks to.
type Dialect interface {
	Name() string
	// Tables lists base tables and views: name, kind ("BASE TABLE"/"VIEW"), comment.
	Tables(schema string) sq.SelectBuilder
	// Columns: name, data_type, column_type, comment, is_nullable, default, extra,
	// character length, numeric precision, numeric scale.
	Columns(schema, table string) sq.SelectBuilder
	// PrimaryKeys: column name in key order.
	PrimaryKeys(schema, table string) sq.SelectBuilder
	// ForeignKeys: column, referenced schema, referenced table, referenced
	// column, constraint name, ordinal position.
	ForeignKeys(schema, table string) sq.SelectBuilder
	// Indexes: index name, non_unique, sequence, column name, index type.
	Indexes(schema, table string) sq.SelectBuilder
	// Routines: specific name, routine name, routine type, return type, comment.
	Routines(schema string) sq.SelectBuilder
	// Parameters: name, mode, data_type, declared type, ordinal, character
	// length, numeric precision, numeric scale.
	Parameters(schema, specificName string) sq.SelectBuilder
	// FingerprintQueries returns one query per structural component.
	FingerprintQueries(schema string) map[string]sq.SelectBuilder
}

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "mysql", "tidb":
		return MySQL{}, nil
	case "postgres", "postgresql", "pgx":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// MySQL reads INFORMATION_SCHEMA on MySQL and TiDB.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Tables(schema string) sq.SelectBuilder {
	return sq.Select("TABLE_NAME", "TABLE_TYPE", "COALESCE(TABLE_COMMENT, '')").
		From("INFORMATION_SCHEMA.TABLES").
		Where(sq.Eq{"TABLE_SCHEMA": schema, "TABLE_TYPE": []string{"BASE TABLE", "VIEW"}}).
		OrderBy("TABLE_NAME")
}

func (MySQL) Columns(schema, table string) sq.SelectBuilder {
	return sq.Select(
		"COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "COALESCE(COLUMN_COMMENT, '')",
		"IS_NULLABLE", "COLUMN_DEFAULT", "COALESCE(EXTRA, '')",
		"CHARACTER_MAXIMUM_LENGTH", "NUMERIC_PRECISION", "NUMERIC_SCALE",
	).
		From("INFORMATION_SCHEMA.COLUMNS").
		Where(sq.Eq{"TABLE_SCHEMA": schema, "TABLE_NAME": table}).
		OrderBy("ORDINAL_POSITION")
}

func (MySQL) PrimaryKeys(schema, table string) sq.SelectBuilder {
	return sq.Select("COLUMN_NAME").
		From("INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		Where(sq.Eq{"TABLE_SCHEMA": schema, "TABLE_NAME": table, "CONSTRAINT_NAME": "PRIMARY"}).
		OrderBy("ORDINAL_POSITION")
}

func (MySQL) ForeignKeys(schema, table string) sq.SelectBuilder {
	return sq.Select(
		"COLUMN_NAME", "REFERENCED_TABLE_SCHEMA", "REFERENCED_TABLE_NAME",
		"REFERENCED_COLUMN_NAME", "CONSTRAINT_NAME", "ORDINAL_POSITION",
	).
		From("INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		Where(sq.Eq{"TABLE_SCHEMA": schema, "TABLE_NAME": table}).
		Where(sq.NotEq{"REFERENCED_TABLE_NAME": nil}).
		OrderBy("CONSTRAINT_NAME", "ORDINAL_POSITION")
}

func (MySQL) Indexes(schema, table string) sq.SelectBuilder {
	return sq.Select("INDEX_NAME", "NON_UNIQUE", "SEQ_IN_INDEX", "COLUMN_NAME", "INDEX_TYPE").
		From("INFORMATION_SCHEMA.STATISTICS").
		Where(sq.Eq{"TABLE_SCHEMA": schema, "TABLE_NAME": table}).
		OrderBy("INDEX_NAME", "SEQ_IN_INDEX")
}

func (MySQL) Routines(schema string) sq.SelectBuilder {
	return sq.Select("SPECIFIC_NAME", "ROUTINE_NAME", "ROUTINE_TYPE", "DATA_TYPE", "COALESCE(ROUTINE_COMMENT, '')").
		From("INFORMATION_SCHEMA.ROUTINES").
		Where(sq.Eq{"ROUTINE_SCHEMA": schema}).
		OrderBy("ROUTINE_NAME")
}

func (MySQL) Parameters(schema, specificName string) sq.SelectBuilder {
	return sq.Select(
		"COALESCE(PARAMETER_NAME, '')", "COALESCE(PARAMETER_MODE, '')", "DATA_TYPE", "DTD_IDENTIFIER",
		"ORDINAL_POSITION", "CHARACTER_MAXIMUM_LENGTH", "NUMERIC_PRECISION", "NUMERIC_SCALE",
	).
		From("INFORMATION_SCHEMA.PARAMETERS").
		Where(sq.Eq{"SPECIFIC_SCHEMA": schema, "SPECIFIC_NAME": specificName}).
		OrderBy("ORDINAL_POSITION")
}

// FingerprintQueries covers every catalog object the mapping depends on,
// comments included, since annotations change the mapped model.
func (MySQL) FingerprintQueries(schema string) map[string]sq.SelectBuilder {
	bySchema := sq.Eq{"TABLE_SCHEMA": schema}
	return map[string]sq.SelectBuilder{
		"tables": sq.Select("TABLE_NAME", "TABLE_TYPE", "COALESCE(TABLE_COMMENT, '')").
			From("INFORMATION_SCHEMA.TABLES").Where(bySchema).
			OrderBy("TABLE_NAME"),
		"columns": sq.Select(
			"TABLE_NAME", "COLUMN_NAME", "ORDINAL_POSITION", "COLUMN_TYPE", "IS_NULLABLE",
			"COLUMN_DEFAULT", "EXTRA", "COALESCE(COLUMN_COMMENT, '')",
		).
			From("INFORMATION_SCHEMA.COLUMNS").Where(bySchema).
			OrderBy("TABLE_NAME", "ORDINAL_POSITION"),
		"keys": sq.Select(
			"TABLE_NAME", "CONSTRAINT_NAME", "COLUMN_NAME", "ORDINAL_POSITION",
			"REFERENCED_TABLE_SCHEMA", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME",
		).
			From("INFORMATION_SCHEMA.KEY_COLUMN_USAGE").Where(bySchema).
			OrderBy("TABLE_NAME", "CONSTRAINT_NAME", "ORDINAL_POSITION"),
		"indexes": sq.Select("TABLE_NAME", "INDEX_NAME", "NON_UNIQUE", "SEQ_IN_INDEX", "COLUMN_NAME").
			From("INFORMATION_SCHEMA.STATISTICS").Where(bySchema).
			OrderBy("TABLE_NAME", "INDEX_NAME", "SEQ_IN_INDEX"),
		"routines": sq.Select("ROUTINE_NAME", "ROUTINE_TYPE", "LAST_ALTERED").
			From("INFORMATION_SCHEMA.ROUTINES").Where(sq.Eq{"ROUTINE_SCHEMA": schema}).
			OrderBy("ROUTINE_NAME"),
	}
}

// Postgres reads information_schema and pg_catalog on PostgreSQL.
type Postgres struct{}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func (Postgres) Name() string { return "postgres" }

func (Postgres) Tables(schema string) sq.SelectBuilder {
	return psql.Select(
		"c.relname",
		"CASE WHEN c.relkind IN ('v', 'm') THEN 'VIEW' ELSE 'BASE TABLE' END",
		"COALESCE(obj_description(c.oid, 'pg_class'), '')",
	).
		From("pg_class c").
		Join("pg_namespace n ON n.oid = c.relnamespace").
		Where(sq.Eq{"n.nspname": schema, "c.relkind": []string{"r", "p", "v", "m"}}).
		OrderBy("c.relname")
}

func (Postgres) Columns(schema, table string) sq.SelectBuilder {
	return psql.Select(
		"c.column_name",
		"c.udt_name",
		"CASE WHEN c.character_maximum_length IS NOT NULL THEN c.udt_name || '(' || c.character_maximum_length || ')' ELSE c.udt_name END",
		"COALESCE(col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position), '')",
		"c.is_nullable",
		"c.column_default",
		"CASE WHEN c.is_identity = 'YES' OR c.column_default LIKE 'nextval(%' THEN 'auto_increment' "+
			"WHEN c.is_generated = 'ALWAYS' THEN 'STORED GENERATED' ELSE '' END",
		"c.character_maximum_length",
		"c.numeric_precision",
		"c.numeric_scale",
	).
		From("information_schema.columns c").
		Where(sq.Eq{"c.table_schema": schema, "c.table_name": table}).
		OrderBy("c.ordinal_position")
}

func (Postgres) PrimaryKeys(schema, table string) sq.SelectBuilder {
	return psql.Select("kcu.column_name").
		From("information_schema.table_constraints tc").
		Join("information_schema.key_column_usage kcu ON kcu.constraint_schema = tc.constraint_schema AND kcu.constraint_name = tc.constraint_name").
		Where(sq.Eq{"tc.table_schema": schema, "tc.table_name": table, "tc.constraint_type": "PRIMARY KEY"}).
		OrderBy("kcu.ordinal_position")
}

func (Postgres) ForeignKeys(schema, table string) sq.SelectBuilder {
	return psql.Select(
		"kcu.column_name", "ccu.table_schema", "ccu.table_name",
		"ccu.column_name", "kcu.constraint_name", "kcu.ordinal_position",
	).
		From("information_schema.key_column_usage kcu").
		Join("information_schema.referential_constraints rc ON rc.constraint_schema = kcu.constraint_schema AND rc.constraint_name = kcu.constraint_name").
		Join("information_schema.key_column_usage ccu ON ccu.constraint_schema = rc.unique_constraint_schema AND ccu.constraint_name = rc.unique_constraint_name AND ccu.ordinal_position = kcu.position_in_unique_constraint").
		Where(sq.Eq{"kcu.table_schema": schema, "kcu.table_name": table}).
		OrderBy("kcu.constraint_name", "kcu.ordinal_position")
}

func (Postgres) Indexes(schema, table string) sq.SelectBuilder {
	return psql.Select(
		"i.relname",
		"CASE WHEN ix.indisunique THEN 0 ELSE 1 END",
		"k.seq",
		"a.attname",
		"UPPER(am.amname)",
	).
		From("pg_index ix").
		Join("pg_class t ON t.oid = ix.indrelid").
		Join("pg_class i ON i.oid = ix.indexrelid").
		Join("pg_namespace n ON n.oid = t.relnamespace").
		Join("pg_am am ON am.oid = i.relam").
		Join("LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, seq) ON true").
		Join("pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum").
		Where(sq.Eq{"n.nspname": schema, "t.relname": table}).
		OrderBy("i.relname", "k.seq")
}

func (Postgres) Routines(schema string) sq.SelectBuilder {
	return psql.Select(
		"r.specific_name", "r.routine_name", "r.routine_type",
		"COALESCE(r.type_udt_name, r.data_type)", "''",
	).
		From("information_schema.routines r").
		Where(sq.Eq{"r.routine_schema": schema, "r.routine_type": []string{"FUNCTION", "PROCEDURE"}}).
		OrderBy("r.routine_name")
}

func (Postgres) Parameters(schema, specificName string) sq.SelectBuilder {
	return psql.Select(
		"COALESCE(p.parameter_name, '')", "COALESCE(p.parameter_mode, '')", "p.udt_name", "p.udt_name",
		"p.ordinal_position", "p.character_maximum_length", "p.numeric_precision", "p.numeric_scale",
	).
		From("information_schema.parameters p").
		Where(sq.Eq{"p.specific_schema": schema, "p.specific_name": specificName}).
		OrderBy("p.ordinal_position")
}

func (Postgres) FingerprintQueries(schema string) map[string]sq.SelectBuilder {
	return map[string]sq.SelectBuilder{
		"tables": psql.Select("c.relname", "c.relkind", "COALESCE(obj_description(c.oid, 'pg_class'), '')").
			From("pg_class c").
			Join("pg_namespace n ON n.oid = c.relnamespace").
			Where(sq.Eq{"n.nspname": schema, "c.relkind": []string{"r", "p", "v", "m"}}).
			OrderBy("c.relname"),
		"columns": psql.Select(
			"table_name", "column_name", "ordinal_position", "udt_name", "is_nullable",
			"column_default", "is_identity", "is_generated",
		).
			From("information_schema.columns").Where(sq.Eq{"table_schema": schema}).
			OrderBy("table_name", "ordinal_position"),
		"keys": psql.Select("table_name", "constraint_name", "column_name", "ordinal_position").
			From("information_schema.key_column_usage").Where(sq.Eq{"table_schema": schema}).
			OrderBy("table_name", "constraint_name", "ordinal_position"),
		"indexes": psql.Select("tablename", "indexname", "indexdef").
			From("pg_indexes").Where(sq.Eq{"schemaname": schema}).
			OrderBy("tablename", "indexname"),
		"routines": psql.Select("specific_name", "routine_name", "routine_type").
			From("information_schema.routines").Where(sq.Eq{"routine_schema": schema}).
			OrderBy("specific_name"),
	}
}
