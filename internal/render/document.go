// Package render turns a resolved entity graph into output: a YAML or JSON
// document, or Go source.
package render

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"schemamap/internal/model"
	"schemamap/internal/naming"
)

// EntityLookup resolves entity IDs; *mapping.Context satisfies it.
type EntityLookup interface {
	Entity(id model.ID) *model.Entity
}

// Document is the serialisable form of a resolved graph.
type Document struct {
	RunID    string      `yaml:"run_id,omitempty" json:"run_id,omitempty"`
	Database string      `yaml:"database,omitempty" json:"database,omitempty"`
	Entities []EntityDoc `yaml:"entities" json:"entities"`
	Excluded []string    `yaml:"excluded,omitempty" json:"excluded,omitempty"`
}

// EntityDoc describes one entity.
type EntityDoc struct {
	Name        string   `yaml:"name" json:"name"`
	Label       string   `yaml:"label" json:"label"`
	FullName    string   `yaml:"full_name" json:"full_name"`
	Kind        string   `yaml:"kind" json:"kind"`
	Junction    string   `yaml:"junction,omitempty" json:"junction,omitempty"`
	Namespace   string   `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Key         []string `yaml:"key,omitempty" json:"key,omitempty"`

	CanInsert bool `yaml:"can_insert" json:"can_insert"`
	CanUpdate bool `yaml:"can_update" json:"can_update"`
	CanDelete bool `yaml:"can_delete" json:"can_delete"`

	Properties     []PropertyDoc    `yaml:"properties,omitempty" json:"properties,omitempty"`
	Associations   []AssociationDoc `yaml:"associations,omitempty" json:"associations,omitempty"`
	SearchCriteria []CriteriaDoc    `yaml:"search_criteria,omitempty" json:"search_criteria,omitempty"`
	Commands       []string         `yaml:"commands,omitempty" json:"commands,omitempty"`

	Parameters  []PropertyDoc `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	ReturnValue *PropertyDoc  `yaml:"return_value,omitempty" json:"return_value,omitempty"`
	Associated  string        `yaml:"associated_entity,omitempty" json:"associated_entity,omitempty"`

	EnumValues []string `yaml:"enum_values,omitempty" json:"enum_values,omitempty"`
}

// PropertyDoc describes one property or parameter.
type PropertyDoc struct {
	Name        string `yaml:"name" json:"name"`
	Label       string `yaml:"label" json:"label"`
	Column      string `yaml:"column" json:"column"`
	Type        string `yaml:"type" json:"type"`
	NativeType  string `yaml:"native_type" json:"native_type"`
	Nullable    bool   `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	Flags       string `yaml:"flags,omitempty" json:"flags,omitempty"`
	ReadOnly    bool   `yaml:"read_only,omitempty" json:"read_only,omitempty"`
	Default     string `yaml:"default,omitempty" json:"default,omitempty"`
	Direction   string `yaml:"direction,omitempty" json:"direction,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// AssociationDoc describes one association.
type AssociationDoc struct {
	Name    string `yaml:"name" json:"name"`
	Type    string `yaml:"type" json:"type"`
	Target  string `yaml:"target" json:"target"`
	Through string `yaml:"through,omitempty" json:"through,omitempty"`
	// ThroughJunction is the junction shape of Through: pure or attribute.
	ThroughJunction string    `yaml:"through_junction,omitempty" json:"through_junction,omitempty"`
	Parent          bool      `yaml:"parent,omitempty" json:"parent,omitempty"`
	Pairs           []PairDoc `yaml:"pairs,omitempty" json:"pairs,omitempty"`
}

// PairDoc links a local property to the foreign one.
type PairDoc struct {
	Property string `yaml:"property" json:"property"`
	Foreign  string `yaml:"foreign" json:"foreign"`
}

// CriteriaDoc describes one lookup.
type CriteriaDoc struct {
	Method     string   `yaml:"method" json:"method"`
	Type       string   `yaml:"type" json:"type"`
	Properties []string `yaml:"properties,omitempty" json:"properties,omitempty"`
	Unique     bool     `yaml:"unique,omitempty" json:"unique,omitempty"`
}

// BuildDocument snapshots entities into a Document. excluded lists the
// names the run filtered out and is omitted when nil.
func BuildDocument(runID, database string, entities []*model.Entity, lookup EntityLookup, excluded []string) Document {
	doc := Document{RunID: runID, Database: database, Excluded: excluded, Entities: make([]EntityDoc, 0, len(entities))}
	for _, e := range entities {
		doc.Entities = append(doc.Entities, entityDoc(e, lookup))
	}
	return doc
}

func entityDoc(e *model.Entity, lookup EntityLookup) EntityDoc {
	d := EntityDoc{
		Name:        e.Name,
		Label:       naming.FriendlyName(e.Name),
		FullName:    e.FullName,
		Kind:        e.Kind.String(),
		Junction:    e.Junction,
		Namespace:   e.Namespace,
		Description: e.Description,
		CanInsert:   e.CanInsert,
		CanUpdate:   e.CanUpdate,
		CanDelete:   e.CanDelete,
		EnumValues:  e.EnumValues,
	}
	for _, p := range e.Key.Properties {
		d.Key = append(d.Key, p.Name)
	}
	for _, a := range e.Key.Associations {
		d.Key = append(d.Key, a.Name)
	}
	for _, p := range e.Properties() {
		d.Properties = append(d.Properties, propertyDoc(p))
	}
	for _, a := range e.Associations() {
		d.Associations = append(d.Associations, associationDoc(a, lookup))
	}
	for _, c := range e.SearchCriteria() {
		d.SearchCriteria = append(d.SearchCriteria, CriteriaDoc{
			Method:     c.MethodName,
			Type:       c.Type.String(),
			Properties: c.PropertyNames(),
			Unique:     c.IsUniqueResult,
		})
	}
	for _, id := range e.Commands {
		if cmd := lookup.Entity(id); cmd != nil {
			d.Commands = append(d.Commands, cmd.Name)
		}
	}
	for _, p := range e.Parameters {
		d.Parameters = append(d.Parameters, propertyDoc(p))
	}
	if e.ReturnValue != nil {
		rv := propertyDoc(e.ReturnValue)
		d.ReturnValue = &rv
	}
	if e.AssociatedEntity.Valid() {
		if assoc := lookup.Entity(e.AssociatedEntity); assoc != nil {
			d.Associated = assoc.Name
		}
	}
	return d
}

func propertyDoc(p *model.Property) PropertyDoc {
	d := PropertyDoc{
		Name:        p.Name,
		Label:       naming.FriendlyName(p.Name),
		Column:      p.KeyName,
		Type:        p.SystemType,
		NativeType:  p.NativeType,
		Nullable:    p.IsNullable,
		ReadOnly:    p.IsReadOnly,
		Direction:   p.Direction,
		Description: p.Description,
	}
	if p.PropertyType != model.Normal {
		d.Flags = p.PropertyType.String()
	}
	if p.HasDefault {
		d.Default = p.Default
	}
	return d
}

func associationDoc(a *model.Association, lookup EntityLookup) AssociationDoc {
	d := AssociationDoc{
		Name:   a.Name,
		Type:   a.Type.String(),
		Parent: a.IsParentEntity,
	}
	targetID := a.ForeignEntity
	// Many-to-many associations point at the junction; the far side hangs
	// off the intermediary.
	if inter := a.Intermediary; a.Type == model.ManyToMany && inter != nil {
		if through := lookup.Entity(a.ForeignEntity); through != nil {
			d.Through = through.Name
			d.ThroughJunction = through.Junction
		}
		targetID = inter.Entity
		if targetID == a.Entity {
			targetID = inter.ForeignEntity
		}
	}
	if target := lookup.Entity(targetID); target != nil {
		d.Target = target.Name
	}
	for _, pair := range a.Properties {
		d.Pairs = append(d.Pairs, PairDoc{Property: pair.Property.Name, Foreign: pair.ForeignProperty.Name})
	}
	return d
}

// WriteYAML encodes doc as YAML.
func WriteYAML(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// WriteJSON encodes doc as indented JSON.
func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}
