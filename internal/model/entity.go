package model

import (
	"slices"
	"strconv"
	"strings"
)

// EntityKey lists the members that identify an entity instance.
type EntityKey struct {
	Properties   []*Property
	Associations []*Association
}

// Len returns the number of key members.
func (k EntityKey) Len() int {
	return len(k.Properties) + len(k.Associations)
}

// IsComposite reports whether the key has more than one member.
func (k EntityKey) IsComposite() bool {
	return k.Len() > 1
}

// Entity is a resolved table, view, command or enum table.
type Entity struct {
	ID   ID
	Kind EntityKind

	// KeyName is the raw object name and FullName its schema-qualified form.
	KeyName   string
	Name      string
	Schema    string
	FullName  string
	Namespace string

	Description string

	// Abstract, BaseEntity and DerivedEntities describe inheritance. They are
	// never populated from a database schema.
	Abstract        bool
	BaseEntity      ID
	DerivedEntities []ID

	Key EntityKey

	CanInsert bool
	CanUpdate bool
	CanDelete bool

	VariableName              string
	PrivateMemberVariableName string
	SafeName                  string
	GenericProperty           string

	ExtendedProperties map[string]string

	// Commands holds matched command entities.
	Commands []ID

	// Command entities only.
	Parameters       []*Property
	ReturnValue      *Property
	IsFunction       bool
	AssociatedEntity ID

	// Junction is the junction shape of a table entity; empty when the table
	// is not a junction.
	Junction string

	// Enum entities only.
	EnumNameColumn string
	EnumValues     []string

	properties   []*Property
	propertyKeys map[string]*Property

	associations   []*Association
	associationKey map[string]*Association

	searchCriteria []*SearchCriteria
}

// NewEntity returns an empty entity.
func NewEntity(kind EntityKind, schema, keyName string) *Entity {
	full := keyName
	if schema != "" {
		full = schema + "." + keyName
	}
	return &Entity{
		Kind:               kind,
		KeyName:            keyName,
		Schema:             schema,
		FullName:           full,
		ExtendedProperties: map[string]string{},
		propertyKeys:       make(map[string]*Property),
		associationKey:     make(map[string]*Association),
	}
}

// SetName replaces the resolved name.
func (e *Entity) SetName(name string) {
	e.Name = name
}

// AppendNameSuffix appends a numeric suffix to the resolved name.
func (e *Entity) AppendNameSuffix(n int) {
	e.Name += strconv.Itoa(n)
}

// IsView reports whether the entity maps a view.
func (e *Entity) IsView() bool { return e.Kind == ViewEntity }

// IsCommand reports whether the entity maps a stored procedure or function.
func (e *Entity) IsCommand() bool { return e.Kind == CommandEntity }

// IsEnum reports whether the entity maps an enum lookup table.
func (e *Entity) IsEnum() bool { return e.Kind == EnumEntity }

// IsTable reports whether the entity maps a base table, enum tables included.
func (e *Entity) IsTable() bool { return e.Kind == TableEntity || e.Kind == EnumEntity }

// HasKey reports whether the entity has any key member.
func (e *Entity) HasKey() bool { return e.Key.Len() > 0 }

// Properties returns the properties in declaration order.
func (e *Entity) Properties() []*Property {
	return e.properties
}

// Property looks up a property by raw column name, case-insensitively.
func (e *Entity) Property(keyName string) *Property {
	return e.propertyKeys[strings.ToLower(keyName)]
}

// AddProperty appends p unless a property with the same raw name exists.
func (e *Entity) AddProperty(p *Property) bool {
	if p == nil {
		return false
	}
	k := strings.ToLower(p.KeyName)
	if _, ok := e.propertyKeys[k]; ok {
		return false
	}
	p.Entity = e.ID
	e.propertyKeys[k] = p
	e.properties = append(e.properties, p)
	return true
}

// RemoveProperty drops the property with the given raw name.
func (e *Entity) RemoveProperty(keyName string) {
	k := strings.ToLower(keyName)
	if _, ok := e.propertyKeys[k]; !ok {
		return
	}
	delete(e.propertyKeys, k)
	for i, p := range e.properties {
		if strings.EqualFold(p.KeyName, keyName) {
			e.properties = append(e.properties[:i], e.properties[i+1:]...)
			break
		}
	}
}

// GetProperties returns the properties passing filter, in declaration order.
func (e *Entity) GetProperties(filter PropertyType) []*Property {
	var out []*Property
	for _, p := range e.properties {
		if p.IsType(filter) {
			out = append(out, p)
		}
	}
	return out
}

// ConcurrencyProperty returns the first row version property, if any.
func (e *Entity) ConcurrencyProperty() *Property {
	for _, p := range e.properties {
		if p.IsConcurrency() {
			return p
		}
	}
	return nil
}

// IdentityProperty returns the first identity property, if any.
func (e *Entity) IdentityProperty() *Property {
	for _, p := range e.properties {
		if p.IsIdentity() {
			return p
		}
	}
	return nil
}

// Associations returns the associations in insertion order.
func (e *Entity) Associations() []*Association {
	return e.associations
}

// Association looks up an association by Key.
func (e *Entity) Association(key string) *Association {
	return e.associationKey[key]
}

// AddAssociation adds a unless an association with the same key exists.
func (e *Entity) AddAssociation(a *Association) bool {
	if a == nil || a.Key() == "" {
		return false
	}
	if _, ok := e.associationKey[a.Key()]; ok {
		return false
	}
	e.associationKey[a.Key()] = a
	e.associations = append(e.associations, a)
	return true
}

// SetAssociation adds a, replacing an existing association with the same key
// in place.
func (e *Entity) SetAssociation(a *Association) {
	if a == nil || a.Key() == "" {
		return
	}
	key := a.Key()
	if _, ok := e.associationKey[key]; ok {
		for i, existing := range e.associations {
			if existing.Key() == key {
				e.associations[i] = a
				break
			}
		}
	} else {
		e.associations = append(e.associations, a)
	}
	e.associationKey[key] = a
}

// GetAssociations returns the associations whose type carries every flag of
// types. ManyToOne (0) selects all.
func (e *Entity) GetAssociations(types AssociationType) []*Association {
	var out []*Association
	for _, a := range e.associations {
		if a.IsType(types) {
			out = append(out, a)
		}
	}
	return out
}

// SearchCriteria returns the criteria in insertion order.
func (e *Entity) SearchCriteria() []*SearchCriteria {
	return e.searchCriteria
}

// GetSearchCriteria returns the criteria passing filter.
func (e *Entity) GetSearchCriteria(filter SearchCriteriaType) []*SearchCriteria {
	var out []*SearchCriteria
	for _, c := range e.searchCriteria {
		if c.IsType(filter) {
			out = append(out, c)
		}
	}
	return out
}

// AddSearchCriteria appends c, or merges it into an existing criteria with
// the same key. A merged criteria carries both type sets and is unique when
// either side is.
func (e *Entity) AddSearchCriteria(c *SearchCriteria) bool {
	if c == nil {
		return false
	}
	key := c.Key()
	if key == "" {
		return false
	}
	for _, existing := range e.searchCriteria {
		if strings.EqualFold(existing.Key(), key) {
			existing.Type |= c.Type
			existing.IsUniqueResult = existing.IsUniqueResult || c.IsUniqueResult
			if existing.Association == nil {
				existing.Association = c.Association
				existing.ForeignProperties = c.ForeignProperties
			}
			return false
		}
	}
	e.searchCriteria = append(e.searchCriteria, c)
	return true
}

// RemoveSearchCriteriaFor drops every criteria that looks up by p and
// returns how many were dropped.
func (e *Entity) RemoveSearchCriteriaFor(p *Property) int {
	before := len(e.searchCriteria)
	e.searchCriteria = slices.DeleteFunc(e.searchCriteria, func(c *SearchCriteria) bool {
		return slices.Contains(c.Properties, p)
	})
	return before - len(e.searchCriteria)
}

// MemberNames returns property names followed by association names.
func (e *Entity) MemberNames() []string {
	names := make([]string, 0, len(e.properties)+len(e.associations))
	for _, p := range e.properties {
		names = append(names, p.Name)
	}
	for _, a := range e.associations {
		names = append(names, a.Name)
	}
	return names
}
