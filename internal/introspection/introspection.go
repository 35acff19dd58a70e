// Package introspection describes raw database schema metadata (tables, views,
// routines, columns, keys) and reads it from MySQL/TiDB or PostgreSQL
// information_schema.
package introspection

import (
	"strconv"
	"strings"
)

// ExtendedProperties is a bag of named metadata values attached to a schema
// object. Keys are compared case-insensitively.
type ExtendedProperties map[string]string

// Get returns the value stored under key.
func (p ExtendedProperties) Get(key string) (string, bool) {
	if key == "" || p == nil {
		return "", false
	}
	if v, ok := p[key]; ok {
		return v, true
	}
	for k, v := range p {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (p ExtendedProperties) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Bool parses the value stored under key. ok is false when the key is
// missing or the value is not a boolean.
func (p ExtendedProperties) Bool(key string) (value bool, ok bool) {
	raw, found := p.Get(key)
	if !found {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return b, true
}

// IsTrue reports whether key is present and parses as true.
func (p ExtendedProperties) IsTrue(key string) bool {
	b, ok := p.Bool(key)
	return ok && b
}

// Clone returns a copy that can be mutated independently.
func (p ExtendedProperties) Clone() ExtendedProperties {
	out := make(ExtendedProperties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Column represents a table, view or result-set column.
type Column struct {
	Name string `yaml:"name"`
	// DataType is the base type name, e.g. "varchar" or "int4".
	DataType string `yaml:"data_type"`
	// ColumnType is the full declared type, e.g. "varchar(255)" or "int(10) unsigned".
	ColumnType      string `yaml:"column_type,omitempty"`
	Size            int    `yaml:"size,omitempty"`
	Precision       int    `yaml:"precision,omitempty"`
	Scale           int    `yaml:"scale,omitempty"`
	IsNullable      bool   `yaml:"nullable,omitempty"`
	IsPrimaryKey    bool   `yaml:"primary_key,omitempty"`
	IsForeignKey    bool   `yaml:"foreign_key,omitempty"`
	IsUnique        bool   `yaml:"unique,omitempty"`
	IsAutoIncrement bool   `yaml:"auto_increment,omitempty"`
	IsGenerated     bool   `yaml:"generated,omitempty"`
	// IsRowVersion marks columns the server rewrites on every update.
	IsRowVersion       bool               `yaml:"row_version,omitempty"`
	HasDefault         bool               `yaml:"has_default,omitempty"`
	ColumnDefault      string             `yaml:"default,omitempty"`
	Comment            string             `yaml:"comment,omitempty"`
	EnumValues         []string           `yaml:"enum_values,omitempty"`
	ExtendedProperties ExtendedProperties `yaml:"extended_properties,omitempty"`
}

// NativeType returns the declared type, falling back to the base type.
func (c Column) NativeType() string {
	if c.ColumnType != "" {
		return c.ColumnType
	}
	return c.DataType
}

// Index represents a database index with ordered columns.
type Index struct {
	Name    string   `yaml:"name"`
	Unique  bool     `yaml:"unique,omitempty"`
	Primary bool     `yaml:"primary,omitempty"`
	Type    string   `yaml:"type,omitempty"`
	Columns []string `yaml:"columns"`
}

// ForeignKey represents one column of a foreign key constraint.
type ForeignKey struct {
	ColumnName       string `yaml:"column"` // e.g., "customer_id"
	ReferencedSchema string `yaml:"ref_schema,omitempty"`
	ReferencedTable  string `yaml:"ref_table"`  // e.g., "customers"
	ReferencedColumn string `yaml:"ref_column"` // e.g., "id"
	ConstraintName   string `yaml:"constraint,omitempty"`
	OrdinalPosition  int    `yaml:"position,omitempty"` // Column position within the FK constraint
}

// Table represents a database base table.
type Table struct {
	Schema             string             `yaml:"schema,omitempty"`
	Name               string             `yaml:"name"`
	Comment            string             `yaml:"comment,omitempty"`
	Columns            []Column           `yaml:"columns"`
	ForeignKeys        []ForeignKey       `yaml:"foreign_keys,omitempty"`
	Indexes            []Index            `yaml:"indexes,omitempty"`
	ExtendedProperties ExtendedProperties `yaml:"extended_properties,omitempty"`
}

// FullName returns the schema-qualified table name.
func (t Table) FullName() string {
	return QualifiedName(t.Schema, t.Name)
}

// Column returns the named column, matched case-insensitively.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// HasPrimaryKey reports whether any column is a primary key member.
func (t Table) HasPrimaryKey() bool {
	for _, col := range t.Columns {
		if col.IsPrimaryKey {
			return true
		}
	}
	return false
}

// View represents a database view.
type View struct {
	Schema             string             `yaml:"schema,omitempty"`
	Name               string             `yaml:"name"`
	Comment            string             `yaml:"comment,omitempty"`
	Columns            []Column           `yaml:"columns"`
	ExtendedProperties ExtendedProperties `yaml:"extended_properties,omitempty"`
}

// FullName returns the schema-qualified view name.
func (v View) FullName() string {
	return QualifiedName(v.Schema, v.Name)
}

// CommandKind distinguishes stored procedures from functions.
type CommandKind string

const (
	CommandProcedure CommandKind = "procedure"
	CommandFunction  CommandKind = "function"
)

// ParameterDirection is the mode of a routine parameter.
type ParameterDirection string

const (
	DirectionIn          ParameterDirection = "in"
	DirectionOut         ParameterDirection = "out"
	DirectionInOut       ParameterDirection = "inout"
	DirectionReturnValue ParameterDirection = "return"
)

// Parameter represents a routine parameter or return value.
type Parameter struct {
	Name               string             `yaml:"name"`
	DataType           string             `yaml:"data_type"`
	ColumnType         string             `yaml:"column_type,omitempty"`
	Size               int                `yaml:"size,omitempty"`
	Precision          int                `yaml:"precision,omitempty"`
	Scale              int                `yaml:"scale,omitempty"`
	Direction          ParameterDirection `yaml:"direction,omitempty"`
	IsNullable         bool               `yaml:"nullable,omitempty"`
	IsRowVersion       bool               `yaml:"row_version,omitempty"`
	ExtendedProperties ExtendedProperties `yaml:"extended_properties,omitempty"`
}

// NativeType returns the declared type, falling back to the base type.
func (p Parameter) NativeType() string {
	if p.ColumnType != "" {
		return p.ColumnType
	}
	return p.DataType
}

// Command represents a stored procedure or function.
type Command struct {
	Schema      string      `yaml:"schema,omitempty"`
	Name        string      `yaml:"name"`
	Kind        CommandKind `yaml:"kind,omitempty"`
	Comment     string      `yaml:"comment,omitempty"`
	Parameters  []Parameter `yaml:"parameters,omitempty"`
	ReturnValue *Parameter  `yaml:"return_value,omitempty"`
	// Results are the columns of the first result set, when known.
	Results            []Column           `yaml:"results,omitempty"`
	ExtendedProperties ExtendedProperties `yaml:"extended_properties,omitempty"`
}

// FullName returns the schema-qualified routine name.
func (c Command) FullName() string {
	return QualifiedName(c.Schema, c.Name)
}

// Schema represents the introspected database schema
type Schema struct {
	Database string    `yaml:"database,omitempty"`
	Dialect  string    `yaml:"dialect,omitempty"`
	Tables   []Table   `yaml:"tables"`
	Views    []View    `yaml:"views,omitempty"`
	Commands []Command `yaml:"commands,omitempty"`
}

// IsEmpty reports whether the schema holds no objects at all.
func (s *Schema) IsEmpty() bool {
	return s == nil || (len(s.Tables) == 0 && len(s.Views) == 0 && len(s.Commands) == 0)
}

// QualifiedName joins schema and name with a dot; an empty schema yields name.
func QualifiedName(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// Normalize derives flags that follow from other metadata: foreign key
// membership, single-column uniqueness, primary index marking, and extended
// properties declared through comment annotations. It is safe to call more
// than once.
func (s *Schema) Normalize() {
	if s == nil {
		return
	}
	for ti := range s.Tables {
		table := &s.Tables[ti]
		for _, fk := range table.ForeignKeys {
			if col := table.Column(fk.ColumnName); col != nil {
				col.IsForeignKey = true
			}
		}
		pk := PrimaryKeyColumns(*table)
		for ii := range table.Indexes {
			idx := &table.Indexes[ii]
			if idx.Unique && sameColumns(idx.Columns, pk) {
				idx.Primary = true
			}
			if idx.Unique && len(idx.Columns) == 1 {
				if col := table.Column(idx.Columns[0]); col != nil {
					col.IsUnique = true
				}
			}
		}
		table.ExtendedProperties = mergeAnnotations(table.ExtendedProperties, table.Comment)
		normalizeColumns(table.Columns)
	}
	for vi := range s.Views {
		view := &s.Views[vi]
		view.ExtendedProperties = mergeAnnotations(view.ExtendedProperties, view.Comment)
		normalizeColumns(view.Columns)
	}
	for ci := range s.Commands {
		cmd := &s.Commands[ci]
		cmd.ExtendedProperties = mergeAnnotations(cmd.ExtendedProperties, cmd.Comment)
		normalizeColumns(cmd.Results)
	}
}

func normalizeColumns(columns []Column) {
	for i := range columns {
		col := &columns[i]
		col.ExtendedProperties = mergeAnnotations(col.ExtendedProperties, col.Comment)
		if len(col.EnumValues) == 0 {
			if values, err := parseEnumValues(col.ColumnType); err == nil {
				col.EnumValues = values
			}
		}
	}
}

func sameColumns(a []string, b []Column) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i].Name) {
			return false
		}
	}
	return true
}
