package mapping

import (
	"context"
	"fmt"
	"log/slog"

	"schemamap/internal/introspection"
	"schemamap/internal/junction"
	"schemamap/internal/model"
)

// Provider populates a context's store from some schema source.
type Provider interface {
	// Validate reports whether the source can be loaded at all.
	Validate() bool
	// Load registers tables, views and commands into mc.
	Load(ctx context.Context, mc *Context) error
}

// SchemaProvider loads entities from an introspected schema.
type SchemaProvider struct {
	Schema *introspection.Schema
}

// NewSchemaProvider wraps schema. The schema is normalized in place.
func NewSchemaProvider(schema *introspection.Schema) *SchemaProvider {
	if schema != nil {
		schema.Normalize()
	}
	return &SchemaProvider{Schema: schema}
}

// Validate reports whether a schema is present.
func (p *SchemaProvider) Validate() bool {
	return p != nil && p.Schema != nil
}

// Load registers the schema objects in tables, views, commands order.
func (p *SchemaProvider) Load(ctx context.Context, mc *Context) error {
	if !p.Validate() {
		return ErrInvalidProvider
	}
	mc.catalog = introspection.NewCatalog(p.Schema)

	if err := p.loadTables(ctx, mc); err != nil {
		return err
	}
	if err := p.loadViews(ctx, mc); err != nil {
		return err
	}
	return p.loadCommands(ctx, mc)
}

func (p *SchemaProvider) loadTables(ctx context.Context, mc *Context) error {
	for _, t := range mc.catalog.Tables() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !mc.tableAllowed(t) {
			mc.Store.Exclude(t.FullName(), nil)
			continue
		}
		if err := p.addTable(mc, t); err != nil {
			return err
		}
	}

	if !mc.Config.IncludeAssociations {
		return nil
	}
	// Related tables join the model even when listed after their neighbours.
	for _, e := range mc.Store.Entities() {
		if e.Kind != model.TableEntity {
			continue
		}
		t := mc.tableOf(e)
		for _, key := range mc.catalog.ForeignKeys(t) {
			if err := p.pullIn(mc, key.PrimaryKeyTable); err != nil {
				return err
			}
		}
		for _, key := range mc.catalog.PrimaryKeys(t) {
			if err := p.pullIn(mc, key.ForeignKeyTable); err != nil {
				return err
			}
		}
	}
	return nil
}

// pullIn adds a related table that is neither present nor filtered out.
func (p *SchemaProvider) pullIn(mc *Context, t *introspection.Table) error {
	if t == nil || mc.entityFor(t) != nil || mc.Store.Excluded(t.FullName()) != nil {
		return nil
	}
	if !mc.tableAllowed(t) {
		return nil
	}
	mc.Logger.Debug("pulling in related table", slog.String("table", t.FullName()))
	return p.addTable(mc, t)
}

// addTable registers t as a table or enum entity. Junction tables are kept
// as excluded entities when they are not modelled themselves.
func (p *SchemaProvider) addTable(mc *Context, t *introspection.Table) error {
	kind := model.TableEntity
	if mc.Config.IncludeEnumEntity && mc.rules.IsEnum(t) {
		kind = model.EnumEntity
	}
	e, err := mc.newTableEntity(t, kind)
	if err != nil {
		return fmt.Errorf("failed to map table %s: %w", t.FullName(), err)
	}
	shape := mc.rules.Classify(mc.catalog, t)
	if shape != junction.NotJunction {
		e.Junction = shape.String()
	}
	if !mc.Config.IncludeManyToManyEntity && shape != junction.NotJunction {
		mc.Store.Exclude(t.FullName(), e)
		mc.tables[e.ID] = t
		return nil
	}
	if mc.Store.Add(e) {
		mc.tables[e.ID] = t
	}
	return nil
}

func (p *SchemaProvider) loadViews(ctx context.Context, mc *Context) error {
	if !mc.Config.IncludeViews {
		return nil
	}
	for i := range p.Schema.Views {
		if err := ctx.Err(); err != nil {
			return err
		}
		v := &p.Schema.Views[i]
		if !mc.Filter.Allowed(v.FullName()) || mc.Store.Entity(v.FullName()) != nil {
			mc.Store.Exclude(v.FullName(), nil)
			continue
		}
		e, err := mc.newViewEntity(v)
		if err != nil {
			return fmt.Errorf("failed to map view %s: %w", v.FullName(), err)
		}
		if mc.Store.Add(e) {
			mc.views[e.ID] = v
		}
	}
	return nil
}

func (p *SchemaProvider) loadCommands(ctx context.Context, mc *Context) error {
	if !mc.Config.IncludeFunctions {
		return nil
	}
	for i := range p.Schema.Commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := &p.Schema.Commands[i]
		if !mc.Filter.Allowed(c.FullName()) || mc.Store.Entity(c.FullName()) != nil {
			mc.Store.Exclude(c.FullName(), nil)
			continue
		}
		e, err := mc.newCommandEntity(c)
		if err != nil {
			return fmt.Errorf("failed to map command %s: %w", c.FullName(), err)
		}
		if mc.Store.AddCommand(e) {
			mc.commands[e.ID] = c
		}
	}
	return nil
}
