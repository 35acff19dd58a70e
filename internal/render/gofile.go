package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/dave/jennifer/jen"

	"schemamap/internal/model"
	"schemamap/internal/naming"
)

// packageScope is the collision scope shared by every top-level identifier
// of a generated file.
const packageScope = "package"

// qualifiedTypes maps the package-qualified system types to import paths.
var qualifiedTypes = map[string][2]string{
	"time.Time":       {"time", "Time"},
	"json.RawMessage": {"encoding/json", "RawMessage"},
	"uuid.UUID":       {"github.com/google/uuid", "UUID"},
}

// goType converts a system type such as "*time.Time" or "[]byte" into a
// jennifer type expression.
func goType(systemType string) jen.Code {
	switch {
	case strings.HasPrefix(systemType, "*"):
		return jen.Op("*").Add(goType(systemType[1:]))
	case strings.HasPrefix(systemType, "[]"):
		return jen.Index().Add(goType(systemType[2:]))
	}
	if q, ok := qualifiedTypes[systemType]; ok {
		return jen.Qual(q[0], q[1])
	}
	if systemType == "" {
		return jen.Any()
	}
	return jen.Id(systemType)
}

func fieldTag(column string) map[string]string {
	return map[string]string{"db": column, "json": column}
}

// GoFile generates one struct per entity. Table and view entities become row
// structs with association fields, commands become parameter structs, and
// enum entities with known values become string constants. Derived
// identifiers that clash with an entity struct or with each other get a
// numeric suffix.
func GoFile(pkg string, doc Document) *jen.File {
	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by schemamap. DO NOT EDIT.")
	if doc.RunID != "" {
		f.HeaderComment("Run " + doc.RunID + ".")
	}

	// Entity structs claim their names first so that association fields
	// can refer to them unchanged.
	ids := naming.NewCollisionResolver(nil)
	structs := make(map[string]string, len(doc.Entities))
	for _, e := range doc.Entities {
		if e.Kind == model.CommandEntity.String() {
			continue
		}
		if _, ok := structs[e.Name]; !ok {
			structs[e.Name] = ids.Register(packageScope, e.Name, e.FullName)
		}
	}

	for _, e := range doc.Entities {
		switch e.Kind {
		case model.CommandEntity.String():
			commandStruct(f, ids, e)
		default:
			entityStruct(f, ids, structs, e)
			if len(e.EnumValues) > 0 {
				enumConstants(f, ids, e)
			}
		}
	}
	return f
}

func entityStruct(f *jen.File, ids *naming.CollisionResolver, structs map[string]string, e EntityDoc) {
	name := structs[e.Name]
	if e.Description != "" {
		f.Comment(fmt.Sprintf("%s %s", name, lowerFirst(e.Description)))
	} else {
		f.Comment(fmt.Sprintf("%s maps %s.", name, e.FullName))
	}
	if e.Junction != "" {
		f.Comment(fmt.Sprintf("It is a %s junction table.", e.Junction))
	}
	if len(e.SearchCriteria) > 0 {
		methods := make([]string, 0, len(e.SearchCriteria))
		for _, c := range e.SearchCriteria {
			methods = append(methods, c.Method)
		}
		f.Comment("Lookups: " + strings.Join(methods, ", ") + ".")
	}

	f.Type().Id(name).StructFunc(func(g *jen.Group) {
		for _, p := range e.Properties {
			field := g.Id(p.Name).Add(goType(p.Type)).Tag(fieldTag(p.Column))
			if p.Description != "" {
				field.Comment(p.Description)
			}
		}
		for _, a := range e.Associations {
			target := a.Target
			if s, ok := structs[target]; ok {
				target = s
			}
			var typ jen.Code = jen.Op("*").Id(target)
			if isToMany(a.Type) {
				typ = jen.Index().Op("*").Id(target)
			}
			g.Id(a.Name).Add(typ).Tag(map[string]string{"db": "-", "json": a.Name + ",omitempty"})
		}
	})

	if len(e.Key) > 0 {
		key := ids.Register(packageScope, name+"Key", e.FullName+" key")
		f.Comment(fmt.Sprintf("%s lists the members that identify a %s.", key, name))
		f.Var().Id(key).Op("=").Index().String().ValuesFunc(func(g *jen.Group) {
			for _, k := range e.Key {
				g.Lit(k)
			}
		})
	}
}

func commandStruct(f *jen.File, ids *naming.CollisionResolver, e EntityDoc) {
	name := ids.Register(packageScope, e.Name+"Params", e.FullName+" parameters")
	f.Comment(fmt.Sprintf("%s holds the arguments of %s.", name, e.FullName))
	f.Type().Id(name).StructFunc(func(g *jen.Group) {
		for _, p := range e.Parameters {
			g.Id(p.Name).Add(goType(p.Type)).Tag(fieldTag(p.Column))
		}
	})
	if len(e.Properties) == 0 {
		return
	}
	result := ids.Register(packageScope, e.Name+"Result", e.FullName+" result")
	f.Comment(fmt.Sprintf("%s is one row returned by %s.", result, e.FullName))
	f.Type().Id(result).StructFunc(func(g *jen.Group) {
		for _, p := range e.Properties {
			g.Id(p.Name).Add(goType(p.Type)).Tag(fieldTag(p.Column))
		}
	})
}

func enumConstants(f *jen.File, ids *naming.CollisionResolver, e EntityDoc) {
	typeName := ids.Register(packageScope, e.Name+"Value", e.FullName+" values")
	f.Type().Id(typeName).String()
	f.Const().DefsFunc(func(g *jen.Group) {
		for _, v := range e.EnumValues {
			id := ids.Register(packageScope, typeName+enumSuffix(v), e.FullName+" "+v)
			g.Id(id).Id(typeName).Op("=").Lit(v)
		}
	})
}

// enumSuffix turns an enum label into an exported identifier suffix.
func enumSuffix(v string) string {
	var b strings.Builder
	upper := true
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			if upper {
				b.WriteString(strings.ToUpper(string(r)))
				upper = false
			} else {
				b.WriteRune(r)
			}
		default:
			upper = true
		}
	}
	if b.Len() == 0 {
		return "Empty"
	}
	return b.String()
}

func isToMany(assocType string) bool {
	for _, t := range []model.AssociationType{model.OneToMany, model.ZeroOrOneToMany, model.ManyToMany} {
		if t.String() == assocType {
			return true
		}
	}
	return false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// WriteGo renders doc as Go source in package pkg.
func WriteGo(w io.Writer, pkg string, doc Document) error {
	if err := GoFile(pkg, doc).Render(w); err != nil {
		return fmt.Errorf("failed to render go source: %w", err)
	}
	return nil
}
