package mapping

import (
	"fmt"
	"strings"

	"schemamap/internal/model"
)

const resultMethodName = "GetResult"

// loadTableSearchCriteria derives the lookups of a table entity from its key,
// its associations and its indexes, in that order.
func (mc *Context) loadTableSearchCriteria(e *model.Entity) {
	for _, t := range mc.Config.SearchCriteria.Types() {
		switch t {
		case model.PrimaryKey:
			mc.addPrimaryKeyCriteria(e)
		case model.ForeignKey:
			mc.addForeignKeyCriteria(e)
		case model.IndexCriteria:
			mc.addIndexCriteria(e)
		}
	}
}

func addMemberCriteria(e *model.Entity, c *model.SearchCriteria) {
	if len(c.Properties) == 0 {
		return
	}
	e.AddSearchCriteria(c)
}

func (mc *Context) addPrimaryKeyCriteria(e *model.Entity) {
	if len(e.Key.Properties) == 0 {
		return
	}
	c := model.NewSearchCriteria(model.PrimaryKey)
	c.Properties = append(c.Properties, e.Key.Properties...)
	c.IsUniqueResult = true
	addMemberCriteria(e, c)
}

// addForeignKeyCriteria attaches a criteria to every association. Only
// associations pointing at a single parent become lookups on the entity.
func (mc *Context) addForeignKeyCriteria(e *model.Entity) {
	for _, a := range e.Associations() {
		c := model.NewSearchCriteria(model.ForeignKey)
		c.Association = a
		c.ForeignProperties = append(c.ForeignProperties, a.Properties...)
		for _, pair := range a.Properties {
			c.Properties = append(c.Properties, pair.Property)
		}
		a.SearchCriteria = c
		if a.Type == model.ManyToOne || a.Type == model.ManyToZeroOrOne {
			addMemberCriteria(e, c)
		}
	}
}

// addIndexCriteria adds a lookup per index whose columns all map to
// properties. Members keep declaration order so that an index over the key
// merges with the key lookup.
func (mc *Context) addIndexCriteria(e *model.Entity) {
	table := mc.tableOf(e)
	if table == nil {
		return
	}
	for _, idx := range table.Indexes {
		columns := make(map[string]bool, len(idx.Columns))
		for _, col := range idx.Columns {
			if e.Property(col) == nil {
				columns = nil
				break
			}
			columns[strings.ToLower(col)] = true
		}
		if len(columns) == 0 {
			continue
		}
		c := model.NewSearchCriteria(model.IndexCriteria)
		c.IsUniqueResult = idx.Unique
		for _, p := range e.Properties() {
			if columns[strings.ToLower(p.KeyName)] {
				c.Properties = append(c.Properties, p)
			}
		}
		addMemberCriteria(e, c)
	}
}

func (mc *Context) loadViewSearchCriteria(e *model.Entity) {
	c := model.NewSearchCriteria(model.View)
	c.MethodName = resultMethodName
	e.AddSearchCriteria(c)
}

// loadCommandSearchCriteria builds a single lookup over the parameters of a
// command. Return value parameters are skipped.
func (mc *Context) loadCommandSearchCriteria(e *model.Entity) {
	c := model.NewSearchCriteria(model.Command)
	for _, p := range e.Parameters {
		if strings.Contains(strings.ToUpper(p.KeyName), "RETURN_VALUE") {
			continue
		}
		c.Properties = append(c.Properties, p)
	}
	if len(c.Properties) == 0 {
		c.MethodName = resultMethodName
	}
	e.AddSearchCriteria(c)
}

// finalizeSearchCriteria computes method names once member names are final.
func (mc *Context) finalizeSearchCriteria(e *model.Entity) {
	for _, c := range e.SearchCriteria() {
		if c.Type.Matches(model.View) || len(c.Properties) == 0 {
			c.MethodName = resultMethodName
			c.AssociatedMethodName = resultMethodName
			continue
		}
		c.MethodName = mc.methodName(e, c, false)
		c.AssociatedMethodName = c.MethodName
		if c.Type.Matches(model.ForeignKey) {
			c.AssociatedMethodName = mc.methodName(e, c, true)
		}
	}
	for _, a := range e.Associations() {
		if c := a.SearchCriteria; c != nil && c.MethodName == "" {
			c.MethodName = mc.methodName(e, c, false)
			c.AssociatedMethodName = mc.methodName(e, c, true)
		}
	}
}

// methodName joins the member names between the configured prefix and
// suffix. Foreign key lookups name the local members, or the foreign members
// when remote is set. Key lookups use the method key suffix when configured.
func (mc *Context) methodName(e *model.Entity, c *model.SearchCriteria, remote bool) string {
	cfg := mc.Config
	var names []string
	owner := e.Name

	switch {
	case c.Type.Matches(model.ForeignKey) && c.Association != nil:
		if foreign := mc.Entity(c.Association.ForeignEntity); foreign != nil {
			owner = foreign.Name
		}
		for _, pair := range c.ForeignProperties {
			if remote {
				names = append(names, pair.ForeignProperty.Name)
			} else {
				names = append(names, pair.Property.Name)
			}
		}
	case c.Type.Matches(model.PrimaryKey) && cfg.MethodKeySuffix != "":
		return formatPrefix(cfg.SearchCriteriaPrefix, owner) + cfg.MethodKeySuffix
	default:
		names = c.PropertyNames()
	}
	if len(names) == 0 {
		return ""
	}
	return formatPrefix(cfg.SearchCriteriaPrefix, owner) + strings.Join(names, cfg.SearchCriteriaDelimiter) + cfg.SearchCriteriaSuffix
}

// formatPrefix substitutes the entity name when the prefix carries a %s.
func formatPrefix(prefix, entityName string) string {
	if strings.Contains(prefix, "%s") {
		return fmt.Sprintf(prefix, entityName)
	}
	return prefix
}
