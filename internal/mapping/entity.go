package mapping

import (
	"fmt"
	"log/slog"
	"strings"

	"schemamap/internal/introspection"
	"schemamap/internal/model"
	"schemamap/internal/naming"
)

// describe resolves the name and the derived presentation fields of e.
func (mc *Context) describe(e *model.Entity, ext introspection.ExtendedProperties, comment string) {
	alias, _ := ext.Get(mc.Config.Keys.Alias)
	e.Name = mc.Namer.EntityName(e.KeyName, strings.TrimSpace(alias))
	e.Namespace = mc.Config.Namespace
	e.VariableName = mc.Namer.VariableName(e.Name, false)
	e.PrivateMemberVariableName = mc.Namer.PrivateMemberVariableName(e.Name, false)
	e.SafeName = mc.Namer.SafeName(e.Schema, e.KeyName)

	if desc, ok := ext.Get(mc.Config.Keys.Description); ok && strings.TrimSpace(desc) != "" {
		e.Description = flatten(desc)
	} else {
		e.Description = flatten(introspection.Description(comment))
	}
	if ext.IsTrue(mc.Config.Keys.Generic) {
		e.GenericProperty = "[T any]"
	}
	for k, v := range ext {
		e.ExtendedProperties[k] = v
	}
}

// newTableEntity builds a table or enum entity with its properties and key.
func (mc *Context) newTableEntity(t *introspection.Table, kind model.EntityKind) (*model.Entity, error) {
	if t == nil {
		return nil, ErrNilSource
	}
	e := model.NewEntity(kind, t.Schema, t.Name)
	mc.describe(e, t.ExtendedProperties, t.Comment)

	for i := range t.Columns {
		col := &t.Columns[i]
		if mc.Filter.ColumnExcluded(t.FullName(), col.Name) {
			mc.Logger.Debug("skipping excluded column",
				slog.String("table", t.FullName()),
				slog.String("column", col.Name),
			)
			continue
		}
		p, err := mc.tableProperty(col, e)
		if err != nil {
			return nil, fmt.Errorf("failed to build property %s.%s: %w", t.FullName(), col.Name, err)
		}
		if e.AddProperty(p) && p.IsPrimaryKey() {
			e.Key.Properties = append(e.Key.Properties, p)
		}
	}

	e.CanInsert = true
	e.CanUpdate = e.HasKey()
	e.CanDelete = e.HasKey()

	if kind == model.EnumEntity {
		e.EnumNameColumn = mc.rules.EnumNameColumn(t)
	}
	return e, nil
}

// newViewEntity builds a read-only entity for a view. Key properties beyond
// MaxNumberOfKeyProperties are left out of the key.
func (mc *Context) newViewEntity(v *introspection.View) (*model.Entity, error) {
	if v == nil {
		return nil, ErrNilSource
	}
	e := model.NewEntity(model.ViewEntity, v.Schema, v.Name)
	mc.describe(e, v.ExtendedProperties, v.Comment)

	for i := range v.Columns {
		col := &v.Columns[i]
		if mc.Filter.ColumnExcluded(v.FullName(), col.Name) {
			continue
		}
		p, err := mc.viewProperty(col, e)
		if err != nil {
			return nil, fmt.Errorf("failed to build property %s.%s: %w", v.FullName(), col.Name, err)
		}
		e.AddProperty(p)
	}

	limit := mc.Config.MaxNumberOfKeyProperties
	skipped := 0
	for _, p := range e.GetProperties(model.Key) {
		if limit > 0 && len(e.Key.Properties) >= limit {
			skipped++
			continue
		}
		e.Key.Properties = append(e.Key.Properties, p)
	}
	if skipped > 0 {
		mc.Logger.Info("view key truncated",
			slog.String("view", v.FullName()),
			slog.Int("limit", limit),
			slog.Int("skipped", skipped),
		)
	}
	return e, nil
}

// newCommandEntity builds an entity for a routine. Result columns become
// properties; parameters and the return value are kept apart.
func (mc *Context) newCommandEntity(c *introspection.Command) (*model.Entity, error) {
	if c == nil {
		return nil, ErrNilSource
	}
	e := model.NewEntity(model.CommandEntity, c.Schema, c.Name)
	mc.describe(e, c.ExtendedProperties, c.Comment)

	for i := range c.Results {
		col := &c.Results[i]
		if mc.Filter.ColumnExcluded(c.FullName(), col.Name) {
			continue
		}
		p, err := mc.commandProperty(col, e)
		if err != nil {
			return nil, fmt.Errorf("failed to build result column %s.%s: %w", c.FullName(), col.Name, err)
		}
		e.AddProperty(p)
	}

	for i := range c.Parameters {
		param := &c.Parameters[i]
		p, err := mc.parameterProperty(param, e)
		if err != nil {
			return nil, fmt.Errorf("failed to build parameter %s.%s: %w", c.FullName(), param.Name, err)
		}
		if param.Direction == introspection.DirectionReturnValue {
			if e.ReturnValue == nil {
				e.ReturnValue = p
			}
			continue
		}
		e.Parameters = append(e.Parameters, p)
	}
	if c.ReturnValue != nil && e.ReturnValue == nil {
		rv, err := mc.parameterProperty(c.ReturnValue, e)
		if err != nil {
			return nil, fmt.Errorf("failed to build return value of %s: %w", c.FullName(), err)
		}
		e.ReturnValue = rv
	}

	e.IsFunction = c.Kind == introspection.CommandFunction
	for _, key := range []string{
		"CS_IsScalarFunction",
		"CS_IsTableValuedFunction",
		"CS_IsInlineTableValuedFunction",
		"CS_IsMultiStatementTableValuedFunction",
	} {
		if c.ExtendedProperties.IsTrue(key) {
			e.IsFunction = true
		}
	}
	return e, nil
}

// initialize runs the second phase for e, once every entity is registered.
func (mc *Context) initialize(e *model.Entity) {
	switch e.Kind {
	case model.TableEntity, model.EnumEntity:
		if mc.Config.IncludeAssociations {
			mc.loadParentAssociations(e)
			mc.loadChildAssociations(e)
		}
		for _, cmd := range mc.Store.CommandsFor(func(cmd *model.Entity) bool { return mc.matchesEntity(cmd, e) }) {
			cmd.AssociatedEntity = e.ID
			e.Commands = append(e.Commands, cmd.ID)
		}
		mc.loadTableSearchCriteria(e)
	case model.ViewEntity:
		mc.loadViewSearchCriteria(e)
	case model.CommandEntity:
		mc.loadCommandSearchCriteria(e)
	}
}

// validateAllMembers removes redundant foreign key properties when asked to,
// then makes every member name of e unique.
func (mc *Context) validateAllMembers(e *model.Entity) {
	if mc.Config.ExcludeForeignKeyIdProperties {
		mc.removeForeignKeyIDProperties(e)
	}
	mc.validateAssociationNames(e)
	mc.dedupeMemberNames(e)
}

// removeForeignKeyIDProperties drops non-key foreign properties whose name
// without the ID suffix is also an association name, together with the
// lookups built on them. An association renamed with the member suffix still
// matches by its unsuffixed name.
func (mc *Context) removeForeignKeyIDProperties(e *model.Entity) {
	names := make(map[string]bool)
	for _, a := range e.Associations() {
		names[strings.ToLower(a.Name)] = true
		suffix := mc.Namer.MemberSuffix(a.IsToMany())
		if n := len(a.Name) - len(suffix); suffix != "" && n > 0 && strings.EqualFold(a.Name[n:], suffix) {
			names[strings.ToLower(a.Name[:n])] = true
		}
	}
	for _, p := range e.GetProperties(model.Foreign) {
		if p.IsPrimaryKey() {
			continue
		}
		if names[strings.ToLower(naming.RemoveID(p.Name))] {
			mc.Logger.Debug("removing foreign key property shadowed by association",
				slog.String("entity", e.FullName),
				slog.String("property", p.Name),
			)
			e.RemoveProperty(p.KeyName)
			if n := e.RemoveSearchCriteriaFor(p); n > 0 {
				mc.Logger.Debug("removed lookups on foreign key property",
					slog.String("entity", e.FullName),
					slog.String("property", p.Name),
					slog.Int("count", n),
				)
			}
		}
	}
}

// dedupeMemberNames suffixes every repeated member name after its first
// occurrence with 1, 2, ... in declaration order, properties first.
func (mc *Context) dedupeMemberNames(e *model.Entity) {
	taken := make(map[string]bool)
	claim := func(name string) bool {
		k := strings.ToLower(name)
		if taken[k] {
			return false
		}
		taken[k] = true
		return true
	}

	type renamer interface{ AppendNameSuffix(int) }
	resolve := func(name string, m renamer, current func() string) {
		if claim(name) {
			return
		}
		for n := 1; ; n++ {
			if candidate := fmt.Sprintf("%s%d", name, n); !taken[strings.ToLower(candidate)] {
				m.AppendNameSuffix(n)
				claim(current())
				mc.Logger.Debug("renamed duplicate member",
					slog.String("entity", e.FullName),
					slog.String("from", name),
					slog.String("to", current()),
				)
				return
			}
		}
	}

	for _, p := range e.Properties() {
		resolve(p.Name, p, func() string { return p.Name })
	}
	for _, a := range e.Associations() {
		resolve(a.Name, a, func() string { return a.Name })
	}
}
