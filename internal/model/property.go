package model

import (
	"strconv"
	"strings"
)

// Property is a resolved column, result column or parameter.
type Property struct {
	// KeyName is the raw source name.
	KeyName string
	Name    string

	Kind      PropertyKind
	Direction string

	SystemType  string
	DataType    string
	NativeType  string
	Size        int
	Precision   int
	Scale       int
	FixedLength bool
	Unicode     bool
	IsNullable  bool

	PropertyType PropertyType
	IsReadOnly   bool

	Default     string
	HasDefault  bool
	Description string

	VariableName              string
	PrivateMemberVariableName string
	ParameterName             string

	ExtendedProperties map[string]string

	// Entity is the owning entity.
	Entity ID
}

// SetName replaces the resolved name.
func (p *Property) SetName(name string) {
	p.Name = name
}

// AppendNameSuffix appends a numeric suffix to the resolved name.
func (p *Property) AppendNameSuffix(n int) {
	p.Name += strconv.Itoa(n)
}

// IsType reports whether the property passes filter.
func (p *Property) IsType(filter PropertyType) bool {
	return p.PropertyType.Matches(filter)
}

// IsPrimaryKey reports whether the property is a primary key member.
func (p *Property) IsPrimaryKey() bool { return p.PropertyType.Has(Key) }

// IsForeignKey reports whether the property is a foreign key member.
func (p *Property) IsForeignKey() bool { return p.PropertyType.Has(Foreign) }

// IsIdentity reports whether the server assigns the value on insert.
func (p *Property) IsIdentity() bool { return p.PropertyType.Has(Identity) }

// IsConcurrency reports whether the property is a row version.
func (p *Property) IsConcurrency() bool { return p.PropertyType.Has(Concurrency) }

// IsComputed reports whether the server computes the value.
func (p *Property) IsComputed() bool { return p.PropertyType.Has(Computed) }

// IsUnique reports whether the property has a unique index.
func (p *Property) IsUnique() bool { return p.PropertyType.Has(Index) }

// ExtendedProperty returns the named extended property, matched
// case-insensitively.
func (p *Property) ExtendedProperty(key string) (string, bool) {
	if v, ok := p.ExtendedProperties[key]; ok {
		return v, true
	}
	for k, v := range p.ExtendedProperties {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
