// Package mapping resolves a raw database schema into the entity graph of
// package model. A Context carries everything one run needs; a Manager drives
// a Provider through the load, initialize and validate passes.
package mapping

import (
	"fmt"
	"log/slog"

	"schemamap/internal/introspection"
	"schemamap/internal/junction"
	"schemamap/internal/model"
	"schemamap/internal/naming"
	"schemamap/internal/schemafilter"
)

// Context is the state of one resolution run. Independent runs use separate
// contexts and may proceed concurrently.
type Context struct {
	Config Config
	Namer  *naming.Namer
	Filter *schemafilter.Filter
	Store  *model.Store
	Logger *slog.Logger

	rules   junction.Rules
	catalog *introspection.Catalog

	tables   map[model.ID]*introspection.Table
	views    map[model.ID]*introspection.View
	commands map[model.ID]*introspection.Command
}

// NewContext validates cfg and assembles a run context. A nil namer is
// replaced by one using the default naming policy and the filter's clean
// expressions; a nil filter matches everything.
func NewContext(cfg Config, namer *naming.Namer, filter *schemafilter.Filter, logger *slog.Logger) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mapping config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if filter == nil {
		filter = schemafilter.MustNew(schemafilter.Config{})
	}
	if namer == nil {
		nc := naming.DefaultConfig()
		nc.CleanExpressions = filter.CleanExpressions()
		namer = naming.New(nc, logger)
	}
	mc := &Context{
		Config: cfg,
		Namer:  namer,
		Filter: filter,
		Store:  model.NewStore(),
		Logger: logger,
		rules:  cfg.rules(filter),
	}
	mc.reset()
	return mc, nil
}

func (mc *Context) reset() {
	mc.Store.Reset()
	mc.catalog = nil
	mc.tables = make(map[model.ID]*introspection.Table)
	mc.views = make(map[model.ID]*introspection.View)
	mc.commands = make(map[model.ID]*introspection.Command)
}

// Catalog returns the key catalog of the schema being resolved.
func (mc *Context) Catalog() *introspection.Catalog {
	return mc.catalog
}

// Rules returns the junction predicates derived from the configuration.
func (mc *Context) Rules() junction.Rules {
	return mc.rules
}

// Entity resolves a handle through the store.
func (mc *Context) Entity(id model.ID) *model.Entity {
	return mc.Store.ByID(id)
}

// tableOf returns the source table of a table entity.
func (mc *Context) tableOf(e *model.Entity) *introspection.Table {
	if e == nil {
		return nil
	}
	return mc.tables[e.ID]
}

// entityFor returns the included entity of t, or nil.
func (mc *Context) entityFor(t *introspection.Table) *model.Entity {
	if t == nil {
		return nil
	}
	return mc.Store.Entity(t.FullName())
}

func (mc *Context) isManyToMany(t *introspection.Table) bool {
	return mc.rules.IsManyToMany(mc.catalog, t)
}

// toManyTable returns the table the junction m2m links source to.
func (mc *Context) toManyTable(m2m, source *introspection.Table) *introspection.Table {
	return mc.rules.ToManyTable(mc.catalog, m2m, source)
}

// tableAllowed applies the include, exclude and primary key rules.
func (mc *Context) tableAllowed(t *introspection.Table) bool {
	if !mc.Filter.Allowed(t.FullName()) {
		return false
	}
	return !mc.Config.ExcludeNonPrimaryKeyTables || t.HasPrimaryKey()
}
