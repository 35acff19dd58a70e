package mapping

import (
	"log/slog"
	"strings"

	"schemamap/internal/introspection"
	"schemamap/internal/model"
)

// associationSpec describes one association to build from a resolved key.
type associationSpec struct {
	key      introspection.TableKey
	typ      model.AssociationType
	entity   *model.Entity
	foreign  *model.Entity
	isParent bool

	intermediary    *model.Association
	childManyToMany bool
	// sourceManyToMany is the entity a child many-to-many walk started from.
	sourceManyToMany *model.Entity
}

// newAssociation builds the association and pairs its properties. Names are
// resolved once the pairs are known.
func (mc *Context) newAssociation(s associationSpec) *model.Association {
	a := &model.Association{
		KeyName:           s.key.Name,
		Type:              s.typ,
		Entity:            s.entity.ID,
		ForeignEntity:     s.foreign.ID,
		Intermediary:      s.intermediary,
		IsParentEntity:    s.isParent,
		IsChildManyToMany: s.childManyToMany,
	}
	mc.pairProperties(a, s)

	a.TypeName = mc.resolveAssociationName(a, true)
	a.Name = mc.memberSafeName(a, mc.resolveAssociationName(a, false))
	a.VariableName = mc.Namer.VariableName(a.Name, false)
	a.PrivateMemberVariableName = mc.Namer.PrivateMemberVariableName(a.Name, false)
	return a
}

// pairProperties matches local and foreign properties column by column. A
// pair is skipped when either side was excluded from its entity.
func (mc *Context) pairProperties(a *model.Association, s associationSpec) {
	pk, fk := s.key.PrimaryKeyColumns, s.key.ForeignKeyColumns
	pkTable := ""
	if s.key.PrimaryKeyTable != nil {
		pkTable = s.key.PrimaryKeyTable.Name
	}

	add := func(local, foreign *model.Entity, localCol, foreignCol string) {
		if local == nil || foreign == nil {
			return
		}
		p, fp := local.Property(localCol), foreign.Property(foreignCol)
		if p != nil && fp != nil {
			a.AddProperty(p, fp)
		}
	}

	switch {
	case s.typ == model.ManyToMany && !s.childManyToMany:
		for i := range pk {
			add(s.entity, s.foreign, fk[i].Name, pk[i].Name)
		}
	case s.typ == model.ManyToMany && s.intermediary != nil:
		for i := range pk {
			local := s.foreign
			if strings.EqualFold(s.entity.KeyName, pkTable) {
				local = s.entity
			}
			add(local, s.foreign, pk[i].Name, fk[i].Name)
		}
	case s.typ == model.ManyToMany && s.sourceManyToMany != nil:
		for i := range pk {
			local := s.entity
			if strings.EqualFold(s.sourceManyToMany.KeyName, pkTable) {
				local = s.sourceManyToMany
			}
			add(local, s.foreign, pk[i].Name, fk[i].Name)
		}
	case s.typ == model.ManyToMany:
	case !s.isParent:
		for i := range fk {
			if fk[i].IsPrimaryKey && !fk[i].IsForeignKey {
				continue
			}
			add(s.entity, s.foreign, fk[i].Name, pk[i].Name)
		}
	default:
		for i := range fk {
			add(s.entity, s.foreign, pk[i].Name, fk[i].Name)
		}
	}
}

func keep(a *model.Association) *model.Association {
	if a == nil || len(a.Properties) == 0 || a.Key() == "" {
		return nil
	}
	return a
}

type multiplicity int

const (
	many multiplicity = iota
	one
	zeroOrOne
)

func (m multiplicity) String() string {
	switch m {
	case one:
		return "One"
	case zeroOrOne:
		return "ZeroOrOne"
	default:
		return "Many"
	}
}

// classify reports the multiplicity of a key side: unique columns give One,
// or ZeroOrOne when every column is nullable.
func classify(columns []*introspection.Column, unique bool) multiplicity {
	if !unique {
		return many
	}
	nullable := 0
	for _, col := range columns {
		if col.IsNullable {
			nullable++
		}
	}
	if nullable == len(columns) {
		return zeroOrOne
	}
	return one
}

func allUniqueOrKey(columns []*introspection.Column) bool {
	for _, col := range columns {
		if !col.IsUnique && !col.IsPrimaryKey {
			return false
		}
	}
	return true
}

func allNullable(columns []*introspection.Column) bool {
	for _, col := range columns {
		if !col.IsNullable {
			return false
		}
	}
	return true
}

// cardinality maps (child, parent) multiplicities of a foreign key to the
// association type seen from the child.
func (mc *Context) cardinality(key introspection.TableKey, child, parent multiplicity) model.AssociationType {
	switch {
	case child == many && parent == many:
		return model.ManyToMany
	case child == many && parent == one:
		return model.ManyToOne
	case child == many && parent == zeroOrOne:
		return model.ManyToZeroOrOne
	case child == one && parent == many:
		return model.OneToMany
	case child == one && parent == one:
		return model.OneToOne
	case child == one && parent == zeroOrOne:
		return model.OneToZeroOrOne
	case child == zeroOrOne && parent == many:
		return model.ZeroOrOneToMany
	}
	mc.Logger.Warn("unmapped association cardinality, assuming many-to-one",
		slog.String("key", key.Name),
		slog.String("child", child.String()),
		slog.String("parent", parent.String()),
	)
	return model.ManyToOne
}

// fromParentForeignKey builds the association from the table holding key to
// the table key references.
func (mc *Context) fromParentForeignKey(source *model.Entity, key introspection.TableKey) *model.Association {
	foreign := mc.entityFor(key.PrimaryKeyTable)
	if foreign == nil {
		return nil
	}

	parent := classify(key.PrimaryKeyColumns, allUniqueOrKey(key.PrimaryKeyColumns))
	compositeChild := introspection.PrimaryKeyCount(key.ForeignKeyTable) > 1
	child := classify(key.ForeignKeyColumns, !compositeChild && allUniqueOrKey(key.ForeignKeyColumns))

	return keep(mc.newAssociation(associationSpec{
		key:     key,
		typ:     mc.cardinality(key, child, parent),
		entity:  source,
		foreign: foreign,
	}))
}

// fromParentManyToMany builds the many-to-many association carried by a
// junction entity: from the junction to its left table, through the right.
func (mc *Context) fromParentManyToMany(source *model.Entity) *model.Association {
	table := mc.tableOf(source)
	if !mc.isManyToMany(table) {
		return nil
	}
	right := mc.toManyTable(table, table)
	left := mc.toManyTable(table, right)
	if left == nil {
		// Both keys may reference the same table.
		left = mc.toManyTable(table, table)
	}
	if left == nil || right == nil {
		return nil
	}
	leftEntity, rightEntity := mc.entityFor(left), mc.entityFor(right)
	if leftEntity == nil || rightEntity == nil {
		return nil
	}

	keys := mc.catalog.ForeignKeys(table)
	if len(keys) < 2 {
		return nil
	}
	leftIndex := 1
	if strings.EqualFold(leftEntity.KeyName, keys[0].PrimaryKeyTable.Name) {
		leftIndex = 0
	}
	rightIndex := 1 - leftIndex

	inter := mc.newAssociation(associationSpec{
		key:      keys[rightIndex],
		typ:      model.ManyToMany,
		entity:   source,
		foreign:  rightEntity,
		isParent: true,
	})
	return keep(mc.newAssociation(associationSpec{
		key:          keys[leftIndex],
		typ:          model.ManyToMany,
		entity:       source,
		foreign:      leftEntity,
		isParent:     true,
		intermediary: inter,
	}))
}

// fromChildPrimaryKey builds the association from the referenced table of
// key to the table holding it.
func (mc *Context) fromChildPrimaryKey(source *model.Entity, key introspection.TableKey) *model.Association {
	fkTable := key.ForeignKeyTable
	target := mc.entityFor(fkTable)
	if target == nil && !mc.Config.IncludeManyToManyEntity && mc.isManyToMany(fkTable) {
		target = mc.Store.Excluded(fkTable.FullName())
	}
	if target == nil {
		return nil
	}
	sourceTable := mc.tableOf(source)
	compositeTable := introspection.PrimaryKeyCount(fkTable) > 1

	var a *model.Association
	for _, col := range key.ForeignKeyColumns {
		composite := compositeTable && col.IsPrimaryKey && col.IsForeignKey
		switch {
		case !col.IsPrimaryKey || composite:
			if mc.isManyToMany(fkTable) {
				far := mc.toManyTable(fkTable, sourceTable)
				if far == nil {
					far = sourceTable
				}
				a = mc.fromChildManyToMany(source, fkTable, far.FullName())
				continue
			}
			typ := model.OneToMany
			if allNullable(key.ForeignKeyColumns) {
				typ = model.ZeroOrOneToMany
			} else if !composite && allUniqueOrKey(key.ForeignKeyColumns) {
				typ = model.OneToZeroOrOne
			}
			a = mc.newAssociation(associationSpec{key: key, typ: typ, entity: source, foreign: target, isParent: true})
		case mc.toManyTable(fkTable, sourceTable) == nil:
			a = mc.newAssociation(associationSpec{key: key, typ: model.OneToZeroOrOne, entity: source, foreign: target, isParent: true})
		}
	}
	return keep(a)
}

// fromChildManyToMany builds the association from source through the
// junction to the table named farName.
func (mc *Context) fromChildManyToMany(source *model.Entity, junctionTable *introspection.Table, farName string) *model.Association {
	inter := mc.entityFor(junctionTable)
	if inter == nil {
		inter = mc.Store.Excluded(junctionTable.FullName())
	}
	right := mc.Store.Entity(farName)
	if inter == nil || right == nil {
		return nil
	}

	keys := mc.catalog.ForeignKeys(junctionTable)
	if len(keys) < 2 {
		return nil
	}
	leftIndex := 1
	if strings.EqualFold(source.KeyName, keys[0].PrimaryKeyTable.Name) {
		leftIndex = 0
	}
	rightIndex := 1 - leftIndex

	intermediary := mc.newAssociation(associationSpec{
		key:              keys[rightIndex],
		typ:              model.ManyToMany,
		entity:           right,
		foreign:          inter,
		childManyToMany:  true,
		sourceManyToMany: source,
	})
	return keep(mc.newAssociation(associationSpec{
		key:             keys[leftIndex],
		typ:             model.ManyToMany,
		entity:          source,
		foreign:         inter,
		isParent:        true,
		intermediary:    intermediary,
		childManyToMany: true,
	}))
}

// loadParentAssociations adds the junction association of a many-to-many
// entity, or the associations of every outgoing key. Existing keys win.
func (mc *Context) loadParentAssociations(e *model.Entity) {
	table := mc.tableOf(e)
	if table == nil {
		return
	}
	if mc.isManyToMany(table) {
		if a := mc.fromParentManyToMany(e); a != nil && e.Association(a.Key()) == nil {
			e.AddAssociation(a)
			return
		}
	}
	for _, key := range mc.catalog.ForeignKeys(table) {
		if a := mc.fromParentForeignKey(e, key); a != nil {
			e.AddAssociation(a)
		}
	}
}

// loadChildAssociations adds the associations of every incoming key. A
// later association replaces an earlier one with the same key.
func (mc *Context) loadChildAssociations(e *model.Entity) {
	table := mc.tableOf(e)
	if table == nil {
		return
	}
	for _, key := range mc.catalog.PrimaryKeys(table) {
		if a := mc.fromChildPrimaryKey(e, key); a != nil {
			e.SetAssociation(a)
		}
	}
}
