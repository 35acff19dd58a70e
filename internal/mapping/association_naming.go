package mapping

import (
	"strings"

	"schemamap/internal/model"
	"schemamap/internal/naming"
)

// resolveAssociationName derives the member name of a. The base is the far
// entity name, or for many-to-many the far side of the intermediary. A unique
// association is prefixed with its member names. With preserveSuffix the
// pluralization policy is not applied.
func (mc *Context) resolveAssociationName(a *model.Association, preserveSuffix bool) string {
	foreign := mc.Entity(a.ForeignEntity)
	if foreign == nil {
		return ""
	}

	var name string
	var members []string
	if inter := a.Intermediary; a.Type == model.ManyToMany && inter != nil {
		interForeign, interEntity := mc.Entity(inter.ForeignEntity), mc.Entity(inter.Entity)
		if interForeign != nil && !strings.EqualFold(interForeign.Name, foreign.Name) {
			name, members = interForeign.Name, inter.ForeignPropertyNames()
		} else if interEntity != nil {
			name, members = interEntity.Name, inter.PropertyNames()
		}
	} else {
		name = foreign.Name
		if a.IsToMany() {
			members = a.ForeignPropertyNames()
		} else {
			members = a.PropertyNames()
		}
	}

	if a.Unique {
		var prefix strings.Builder
		for _, m := range members {
			prefix.WriteString(naming.RemoveID(m))
		}
		name = prefix.String() + name
	}
	if preserveSuffix {
		return name
	}
	return mc.Namer.AssociationName(name, a.IsToMany())
}

// memberSafeName moves name out of the way of a property of the owning
// entity and of the entity name itself.
func (mc *Context) memberSafeName(a *model.Association, name string) string {
	e := mc.Entity(a.Entity)
	if e == nil {
		return name
	}
	suffix := mc.Namer.MemberSuffix(a.IsToMany())
	for _, p := range e.Properties() {
		if strings.EqualFold(p.Name, name) {
			name += suffix
			break
		}
	}
	if strings.EqualFold(name, e.Name) {
		name += suffix
	}
	return name
}

// makeUnique prefixes the association name with its member names. A second
// call has no effect.
func (mc *Context) makeUnique(a *model.Association) {
	if a.Unique {
		return
	}
	a.Unique = true
	a.Name = mc.memberSafeName(a, mc.resolveAssociationName(a, false))
	a.VariableName = mc.Namer.VariableName(a.Name, false)
	a.PrivateMemberVariableName = mc.Namer.PrivateMemberVariableName(a.Name, false)
}

// validateAssociationNames makes every association sharing a name with
// another association unique.
func (mc *Context) validateAssociationNames(e *model.Entity) {
	counts := make(map[string]int)
	for _, a := range e.Associations() {
		counts[strings.ToLower(a.Name)]++
	}
	for _, a := range e.Associations() {
		if counts[strings.ToLower(a.Name)] > 1 {
			mc.makeUnique(a)
		}
	}
}
