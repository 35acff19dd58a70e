// Package schemafilter decides which schema objects take part in a mapping
// run. Glob allow/deny lists prune a raw schema before resolution; compiled
// regular expressions select objects, enum tables, and name clean-ups during
// resolution.
package schemafilter

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"schemamap/internal/introspection"
)

// Config controls allow/deny globs and the regex sets.
type Config struct {
	AllowTables  []string            `mapstructure:"allow_tables"`
	DenyTables   []string            `mapstructure:"deny_tables"`
	AllowColumns map[string][]string `mapstructure:"allow_columns"`
	DenyColumns  map[string][]string `mapstructure:"deny_columns"`

	// Regex lists are matched against schema-qualified names; column
	// exclusion also sees "schema.table.column".
	IncludeExpressions  []string `mapstructure:"include"`
	ExcludeExpressions  []string `mapstructure:"exclude"`
	EnumExpressions     []string `mapstructure:"enum"`
	EnumNameExpressions []string `mapstructure:"enum_name"`
	CleanExpressions    []string `mapstructure:"clean"`
}

// DefaultConfig returns the stock regex sets: a handful of well-known system
// and migration tables are excluded, and enum description columns are
// recognised by name.
func DefaultConfig() Config {
	return Config{
		ExcludeExpressions: []string{
			`(?i)^(.*\.)?sysdiagrams$`,
			`(?i)^(.*\.)?(schema_migrations|goose_db_version|flyway_schema_history)$`,
		},
		EnumNameExpressions: []string{`(?i)^(name|description|label|title)$`},
		CleanExpressions:    []string{`^(sp|tbl|udf|vw)_`},
	}
}

// Filter is a compiled Config.
type Filter struct {
	cfg       Config
	include   []*regexp.Regexp
	exclude   []*regexp.Regexp
	enum      []*regexp.Regexp
	enumNames []*regexp.Regexp
	clean     []*regexp.Regexp
}

// New compiles cfg. It reports the first invalid expression.
func New(cfg Config) (*Filter, error) {
	f := &Filter{cfg: cfg}
	sets := []struct {
		field string
		exprs []string
		dst   *[]*regexp.Regexp
	}{
		{"include", cfg.IncludeExpressions, &f.include},
		{"exclude", cfg.ExcludeExpressions, &f.exclude},
		{"enum", cfg.EnumExpressions, &f.enum},
		{"enum_name", cfg.EnumNameExpressions, &f.enumNames},
		{"clean", cfg.CleanExpressions, &f.clean},
	}
	for _, set := range sets {
		for _, expr := range set.exprs {
			if strings.TrimSpace(expr) == "" {
				continue
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("invalid %s expression %q: %w", set.field, expr, err)
			}
			*set.dst = append(*set.dst, re)
		}
	}
	return f, nil
}

// MustNew is New for static configurations.
func MustNew(cfg Config) *Filter {
	f, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return f
}

// Config returns the source configuration.
func (f *Filter) Config() Config {
	return f.cfg
}

// IncludeMatch reports whether name passes the include list. An empty list
// includes everything.
func (f *Filter) IncludeMatch(name string) bool {
	if f == nil || len(f.include) == 0 {
		return true
	}
	return anyMatch(f.include, name)
}

// ExcludeMatch reports whether name matches the exclude list.
func (f *Filter) ExcludeMatch(name string) bool {
	return f != nil && anyMatch(f.exclude, name)
}

// Allowed reports whether an object with the given qualified name takes part
// in resolution. The table globs see the unqualified name.
func (f *Filter) Allowed(fullName string) bool {
	if !f.IncludeMatch(fullName) || f.ExcludeMatch(fullName) {
		return false
	}
	if f == nil {
		return true
	}
	return tableAllowed(unqualified(fullName), f.cfg.AllowTables, f.cfg.DenyTables)
}

// ColumnExcluded reports whether a column of the object named ownerFullName
// is dropped.
func (f *Filter) ColumnExcluded(ownerFullName, column string) bool {
	if f == nil {
		return false
	}
	if f.ExcludeMatch(ownerFullName + "." + column) {
		return true
	}
	return !columnAllowed(unqualified(ownerFullName), column, f.cfg.AllowColumns, f.cfg.DenyColumns)
}

// EnumMatch reports whether a table may map to an enum.
func (f *Filter) EnumMatch(fullName string) bool {
	return f != nil && anyMatch(f.enum, fullName)
}

// EnumNameMatch reports whether a column labels enum members.
func (f *Filter) EnumNameMatch(column string) bool {
	return f != nil && anyMatch(f.enumNames, column)
}

// CleanExpressions returns the compiled clean expressions in order.
func (f *Filter) CleanExpressions() []*regexp.Regexp {
	if f == nil {
		return nil
	}
	return f.clean
}

func anyMatch(res []*regexp.Regexp, value string) bool {
	for _, re := range res {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

func unqualified(fullName string) string {
	if i := strings.LastIndexByte(fullName, '.'); i >= 0 {
		return fullName[i+1:]
	}
	return fullName
}

// Apply prunes tables, views, commands and columns in place using the glob
// lists. Missing allow lists default to allow-all; deny rules always win.
// Foreign keys and indexes that lose a column or target are dropped.
func Apply(schema *introspection.Schema, cfg Config) {
	if schema == nil {
		return
	}

	allowedTableNames := make(map[string]bool)
	filteredTables := make([]introspection.Table, 0, len(schema.Tables))
	for _, table := range schema.Tables {
		if !tableAllowed(table.Name, cfg.AllowTables, cfg.DenyTables) {
			continue
		}
		filteredTables = append(filteredTables, table)
		allowedTableNames[strings.ToLower(table.Name)] = true
	}

	allowedColumnsByTable := make(map[string]map[string]bool, len(filteredTables))
	for i := range filteredTables {
		table := &filteredTables[i]
		table.Columns = filterColumns(table.Name, table.Columns, cfg)
		allowed := make(map[string]bool, len(table.Columns))
		for _, col := range table.Columns {
			allowed[strings.ToLower(col.Name)] = true
		}
		allowedColumnsByTable[strings.ToLower(table.Name)] = allowed
	}

	finalTables := make([]introspection.Table, 0, len(filteredTables))
	for _, table := range filteredTables {
		if len(table.Columns) == 0 {
			continue
		}
		allowedColumns := allowedColumnsByTable[strings.ToLower(table.Name)]
		table.Indexes = filterIndexes(table.Indexes, allowedColumns)
		table.ForeignKeys = filterForeignKeys(table.ForeignKeys, allowedColumns, allowedTableNames, allowedColumnsByTable)
		finalTables = append(finalTables, table)
	}
	schema.Tables = finalTables

	views := schema.Views[:0]
	for _, view := range schema.Views {
		if !tableAllowed(view.Name, cfg.AllowTables, cfg.DenyTables) {
			continue
		}
		view.Columns = filterColumns(view.Name, view.Columns, cfg)
		if len(view.Columns) == 0 {
			continue
		}
		views = append(views, view)
	}
	schema.Views = views

	commands := schema.Commands[:0]
	for _, cmd := range schema.Commands {
		if tableAllowed(cmd.Name, cfg.AllowTables, cfg.DenyTables) {
			commands = append(commands, cmd)
		}
	}
	schema.Commands = commands
}

func filterColumns(table string, columns []introspection.Column, cfg Config) []introspection.Column {
	filtered := make([]introspection.Column, 0, len(columns))
	for _, column := range columns {
		if columnAllowed(table, column.Name, cfg.AllowColumns, cfg.DenyColumns) {
			filtered = append(filtered, column)
		}
	}
	return filtered
}

func tableAllowed(table string, allow, deny []string) bool {
	if matchesAny(table, deny) {
		return false
	}
	if len(allow) == 0 {
		return true
	}
	return matchesAny(table, allow)
}

func columnAllowed(table, column string, allow, deny map[string][]string) bool {
	denyPatterns := mergePatterns(deny, table)
	if matchesAny(column, denyPatterns) {
		return false
	}
	allowPatterns := mergePatterns(allow, table)
	if len(allowPatterns) == 0 {
		return true
	}
	return matchesAny(column, allowPatterns)
}

func mergePatterns(patterns map[string][]string, table string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	combined = append(combined, patterns[table]...)
	return slices.Compact(combined)
}

func filterIndexes(indexes []introspection.Index, allowedColumns map[string]bool) []introspection.Index {
	filtered := make([]introspection.Index, 0, len(indexes))
	for _, idx := range indexes {
		keep := true
		for _, col := range idx.Columns {
			if !allowedColumns[strings.ToLower(col)] {
				keep = false
				break
			}
		}
		if keep {
			filtered = append(filtered, idx)
		}
	}
	return filtered
}

func filterForeignKeys(fks []introspection.ForeignKey, allowedColumns map[string]bool, allowedTables map[string]bool, allowedColumnsByTable map[string]map[string]bool) []introspection.ForeignKey {
	filtered := make([]introspection.ForeignKey, 0, len(fks))
	for _, fk := range fks {
		if !allowedColumns[strings.ToLower(fk.ColumnName)] {
			continue
		}
		ref := strings.ToLower(fk.ReferencedTable)
		if !allowedTables[ref] {
			continue
		}
		remoteColumns := allowedColumnsByTable[ref]
		if remoteColumns == nil || !remoteColumns[strings.ToLower(fk.ReferencedColumn)] {
			continue
		}
		filtered = append(filtered, fk)
	}
	return filtered
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		// matching should be case-insensitive
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
