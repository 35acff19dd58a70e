package model

import (
	"strconv"
	"strings"
)

// AssociationProperty pairs a property of the association's entity with the
// matching property of the foreign entity.
type AssociationProperty struct {
	Property        *Property
	ForeignProperty *Property
	// Cascade is set for one-to-many pairs whose local side is not nullable.
	Cascade bool
}

// Association is a directed relationship from Entity to ForeignEntity.
type Association struct {
	// KeyName is the raw foreign key constraint name.
	KeyName string
	Type    AssociationType

	Entity        ID
	ForeignEntity ID

	// Intermediary links the junction entity to the far side of a
	// many-to-many association.
	Intermediary *Association

	IsParentEntity bool
	// IsChildManyToMany marks associations created while walking a junction
	// from one of the tables it references.
	IsChildManyToMany bool

	Properties []AssociationProperty

	Name        string
	TypeName    string
	Description string

	VariableName              string
	PrivateMemberVariableName string

	// Unique is set once the name was prefixed with the member names.
	Unique bool

	SearchCriteria *SearchCriteria
}

// Key identifies the association within its entity. Parent and child
// associations built from the same constraint have different keys.
func (a *Association) Key() string {
	if a == nil || a.KeyName == "" {
		return ""
	}
	if a.IsParentEntity {
		return "True" + a.KeyName
	}
	return "False" + a.KeyName
}

// IsToMany reports whether the foreign side holds a collection.
func (a *Association) IsToMany() bool {
	return a.Type.IsToMany()
}

// IsType reports whether every flag of types is set. ManyToOne (0) matches
// every association.
func (a *Association) IsType(types AssociationType) bool {
	return a.Type&types == types
}

// AddProperty appends a pair unless the local property is already paired.
func (a *Association) AddProperty(property, foreign *Property) {
	if property == nil || foreign == nil {
		return
	}
	for _, pair := range a.Properties {
		if strings.EqualFold(pair.Property.KeyName, property.KeyName) {
			return
		}
	}
	a.Properties = append(a.Properties, AssociationProperty{
		Property:        property,
		ForeignProperty: foreign,
		Cascade:         a.Type == OneToMany && !property.IsNullable,
	})
}

// PropertyNames returns the resolved names of the local properties.
func (a *Association) PropertyNames() []string {
	names := make([]string, 0, len(a.Properties))
	for _, pair := range a.Properties {
		names = append(names, pair.Property.Name)
	}
	return names
}

// ForeignPropertyNames returns the resolved names of the foreign properties.
func (a *Association) ForeignPropertyNames() []string {
	names := make([]string, 0, len(a.Properties))
	for _, pair := range a.Properties {
		names = append(names, pair.ForeignProperty.Name)
	}
	return names
}

// AppendNameSuffix appends a numeric suffix to the resolved name.
func (a *Association) AppendNameSuffix(n int) {
	a.Name += strconv.Itoa(n)
}
