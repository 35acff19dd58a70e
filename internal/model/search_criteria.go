package model

import "strings"

// SearchCriteria is a set of members an entity can be looked up by.
type SearchCriteria struct {
	Type SearchCriteriaType

	// Properties are the local members, in order.
	Properties []*Property
	// ForeignProperties are set for foreign key criteria.
	ForeignProperties []AssociationProperty
	Association       *Association

	IsUniqueResult bool

	MethodName           string
	AssociatedMethodName string
}

// NewSearchCriteria returns an empty criteria of the given type.
func NewSearchCriteria(t SearchCriteriaType) *SearchCriteria {
	return &SearchCriteria{Type: t}
}

// Key is the concatenation of the member names. Criteria with equal keys
// describe the same lookup. Memberless criteria are keyed by method name.
func (c *SearchCriteria) Key() string {
	if len(c.Properties) == 0 {
		return c.MethodName
	}
	var b strings.Builder
	for _, p := range c.Properties {
		b.WriteString(p.Name)
	}
	return b.String()
}

// IsType reports whether the criteria passes filter.
func (c *SearchCriteria) IsType(filter SearchCriteriaType) bool {
	return c.Type.Matches(filter)
}

// PropertyNames returns the resolved names of the local members.
func (c *SearchCriteria) PropertyNames() []string {
	names := make([]string, 0, len(c.Properties))
	for _, p := range c.Properties {
		names = append(names, p.Name)
	}
	return names
}
