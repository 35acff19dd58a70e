// Package model holds the resolved object graph: entities, their properties,
// associations and search criteria, and the Store arena that owns them for a
// single resolution run.
package model

import "strings"

// ID is an arena handle for an entity. The zero ID refers to nothing.
type ID int

// Valid reports whether id refers to an entity.
func (id ID) Valid() bool { return id > 0 }

// PropertyType is a bitset describing the role of a property.
type PropertyType uint16

const (
	// Normal has no role flags. As a filter it selects every property.
	Normal PropertyType = 0

	Key PropertyType = 1 << iota
	Foreign
	Identity
	Concurrency
	Computed
	Index
)

// exclude marks a filter that selects properties carrying none of its flags.
const exclude PropertyType = 1 << 15

// Composite filters.
const (
	Keys                PropertyType = Key | Foreign
	All                 PropertyType = Key | Foreign | Identity | Concurrency | Computed | Index
	NoConcurrency                    = exclude | Concurrency
	NoKey                            = exclude | Key
	NoForeign                        = exclude | Foreign
	NoKeys                           = exclude | Keys
	NoKeysOrConcurrency              = exclude | Keys | Concurrency
	NonIdentity                      = exclude | Identity
	UpdateInsert                     = exclude | Identity | Concurrency | Computed
)

// Has reports whether every flag in f is set on t.
func (t PropertyType) Has(f PropertyType) bool {
	return f != Normal && t&f == f
}

// Matches reports whether a property of type t passes the filter. Normal and
// All select everything, exclusion filters select properties carrying none
// of their flags, and any other filter selects properties sharing a flag.
func (t PropertyType) Matches(filter PropertyType) bool {
	switch {
	case filter == Normal || filter == All:
		return true
	case filter&exclude != 0:
		return t&(filter&^exclude) == 0
	default:
		return t&filter != 0
	}
}

var propertyTypeLabels = []struct {
	flag  PropertyType
	label string
}{
	{Key, "Key"},
	{Foreign, "Foreign"},
	{Identity, "Identity"},
	{Concurrency, "Concurrency"},
	{Computed, "Computed"},
	{Index, "Index"},
}

func (t PropertyType) String() string {
	if t&exclude != 0 {
		return "Not(" + (t &^ exclude).String() + ")"
	}
	var parts []string
	for _, l := range propertyTypeLabels {
		if t&l.flag != 0 {
			parts = append(parts, l.label)
		}
	}
	if len(parts) == 0 {
		return "Normal"
	}
	return strings.Join(parts, "|")
}

// PropertyKind identifies where a property came from.
type PropertyKind int

const (
	ColumnProperty PropertyKind = iota
	ViewColumnProperty
	CommandColumnProperty
	ParameterProperty
)

func (k PropertyKind) String() string {
	switch k {
	case ViewColumnProperty:
		return "view_column"
	case CommandColumnProperty:
		return "command_column"
	case ParameterProperty:
		return "parameter"
	default:
		return "column"
	}
}

// EntityKind identifies the source object of an entity.
type EntityKind int

const (
	TableEntity EntityKind = iota
	ViewEntity
	CommandEntity
	EnumEntity
)

func (k EntityKind) String() string {
	switch k {
	case ViewEntity:
		return "view"
	case CommandEntity:
		return "command"
	case EnumEntity:
		return "enum"
	default:
		return "table"
	}
}

// AssociationType is the cardinality of an association, read from the
// entity's side.
type AssociationType uint8

const (
	ManyToOne       AssociationType = 0
	OneToMany       AssociationType = 1
	ZeroOrOneToMany AssociationType = 2
	ManyToMany      AssociationType = 4
	ManyToZeroOrOne AssociationType = 8
	OneToZeroOrOne  AssociationType = 16
	OneToOne        AssociationType = 32
)

// IsToMany reports whether the far side holds a collection.
func (t AssociationType) IsToMany() bool {
	return t == OneToMany || t == ZeroOrOneToMany || t == ManyToMany
}

func (t AssociationType) String() string {
	switch t {
	case ManyToOne:
		return "ManyToOne"
	case OneToMany:
		return "OneToMany"
	case ZeroOrOneToMany:
		return "ZeroOrOneToMany"
	case ManyToMany:
		return "ManyToMany"
	case ManyToZeroOrOne:
		return "ManyToZeroOrOne"
	case OneToZeroOrOne:
		return "OneToZeroOrOne"
	case OneToOne:
		return "OneToOne"
	default:
		return "Unknown"
	}
}

// SearchCriteriaType is a bitset describing how a search criteria was derived.
type SearchCriteriaType uint8

const (
	AllCriteria   SearchCriteriaType = 0
	PrimaryKey    SearchCriteriaType = 1
	ForeignKey    SearchCriteriaType = 2
	NoForeignKeys SearchCriteriaType = 4
	IndexCriteria SearchCriteriaType = 8
	Command       SearchCriteriaType = 16
	View          SearchCriteriaType = 32
)

// Matches reports whether a criteria of type t passes the filter.
// NoForeignKeys selects criteria without the ForeignKey flag; AllCriteria
// selects everything.
func (t SearchCriteriaType) Matches(filter SearchCriteriaType) bool {
	switch filter {
	case AllCriteria:
		return true
	case NoForeignKeys:
		return t&ForeignKey == 0
	default:
		return t&filter != 0
	}
}

var criteriaTypeLabels = []struct {
	flag  SearchCriteriaType
	label string
}{
	{PrimaryKey, "Primary Key"},
	{ForeignKey, "Foreign Key"},
	{IndexCriteria, "Index"},
	{Command, "Command"},
	{View, "View"},
}

func (t SearchCriteriaType) String() string {
	var parts []string
	for _, l := range criteriaTypeLabels {
		if t&l.flag != 0 {
			parts = append(parts, l.label)
		}
	}
	return strings.Join(parts, "|")
}
