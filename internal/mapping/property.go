package mapping

import (
	"log/slog"
	"strings"

	"schemamap/internal/introspection"
	"schemamap/internal/model"
	"schemamap/internal/sqltype"
)

// columnSource is the common shape of columns and parameters.
type columnSource struct {
	name       string
	dataType   string
	nativeType string
	size       int
	precision  int
	scale      int
	nullable   bool
	comment    string
	colDefault string
	ext        introspection.ExtendedProperties
}

func fromColumn(col *introspection.Column) columnSource {
	src := columnSource{
		name:       col.Name,
		dataType:   col.DataType,
		nativeType: col.NativeType(),
		size:       col.Size,
		precision:  col.Precision,
		scale:      col.Scale,
		nullable:   col.IsNullable,
		comment:    col.Comment,
		ext:        col.ExtendedProperties,
	}
	if col.HasDefault {
		src.colDefault = col.ColumnDefault
	}
	return src
}

func fromParameter(p *introspection.Parameter) columnSource {
	return columnSource{
		name:       strings.TrimPrefix(p.Name, "@"),
		dataType:   p.DataType,
		nativeType: p.NativeType(),
		size:       p.Size,
		precision:  p.Precision,
		scale:      p.Scale,
		nullable:   p.IsNullable,
		ext:        p.ExtendedProperties,
	}
}

// newProperty fills the fields every property kind shares. copyExtended
// controls whether source extended properties are carried over; the
// synthetic DataType and NativeType entries are always present.
func (mc *Context) newProperty(src columnSource, owner *model.Entity, kind model.PropertyKind, copyExtended bool) *model.Property {
	p := &model.Property{
		KeyName:     src.name,
		Kind:        kind,
		DataType:    src.dataType,
		NativeType:  src.nativeType,
		Size:        src.size,
		Precision:   src.precision,
		Scale:       src.scale,
		IsNullable:  src.nullable,
		FixedLength: sqltype.IsFixedLength(src.nativeType),
		Unicode:     sqltype.IsUnicode(src.nativeType),
		SystemType:  sqltype.ResolveSystemType(src.nativeType, src.nullable),
	}

	p.ExtendedProperties = map[string]string{}
	if src.ext == nil {
		mc.Logger.Debug("no extended properties for source",
			slog.String("entity", owner.FullName),
			slog.String("member", src.name),
		)
	} else if copyExtended {
		for k, v := range src.ext {
			p.ExtendedProperties[k] = v
		}
	}
	p.ExtendedProperties["DataType"] = src.dataType
	p.ExtendedProperties["NativeType"] = src.nativeType

	alias, _ := src.ext.Get(mc.Config.Keys.Alias)
	p.Name = mc.Namer.PropertyName(src.name, strings.TrimSpace(alias), owner.Name)
	p.VariableName = mc.Namer.VariableName(p.Name, false)
	p.PrivateMemberVariableName = mc.Namer.PrivateMemberVariableName(p.Name, false)
	p.ParameterName = mc.Namer.ParameterName(src.name)

	if desc, ok := src.ext.Get(mc.Config.Keys.Description); ok && strings.TrimSpace(desc) != "" {
		p.Description = flatten(desc)
	} else {
		p.Description = flatten(introspection.Description(src.comment))
	}

	raw, ok := src.ext.Get(mc.Config.Keys.Default)
	if !ok || raw == "" {
		raw = src.colDefault
	}
	p.Default, p.HasDefault = parseDefault(raw, src.nativeType, p.SystemType)
	return p
}

// finishProperty derives read-only status once the flags are known.
func (mc *Context) finishProperty(p *model.Property, ext introspection.ExtendedProperties) {
	p.IsReadOnly = p.IsIdentity() || p.IsConcurrency() || p.IsComputed() ||
		ext.Has(mc.Config.Keys.IsReadOnly)
}

// tableProperty builds a property for a base table column.
func (mc *Context) tableProperty(col *introspection.Column, owner *model.Entity) (*model.Property, error) {
	if col == nil {
		return nil, ErrNilSource
	}
	p := mc.newProperty(fromColumn(col), owner, model.ColumnProperty, true)

	var flags model.PropertyType
	if col.IsPrimaryKey {
		flags |= model.Key
	}
	if col.IsForeignKey {
		flags |= model.Foreign
	}
	if mc.rules.IsIdentity(col) {
		flags |= model.Identity
	}
	if mc.rules.IsRowVersion(col) {
		flags |= model.Concurrency
	}
	if col.IsGenerated || col.ExtendedProperties.IsTrue(mc.Config.Keys.IsComputed) {
		flags |= model.Computed
	}
	if col.IsUnique {
		flags |= model.Index
	}
	p.PropertyType = flags
	mc.finishProperty(p, col.ExtendedProperties)
	return p, nil
}

// viewProperty builds a property for a view column. View columns only become
// keys when view keys are generated.
func (mc *Context) viewProperty(col *introspection.Column, owner *model.Entity) (*model.Property, error) {
	if col == nil {
		return nil, ErrNilSource
	}
	p := mc.newProperty(fromColumn(col), owner, model.ViewColumnProperty, true)
	p.PropertyType = mc.serverFlags(col)
	if mc.Config.GenerateViewKeys && !col.IsNullable && !p.FixedLength {
		p.PropertyType |= model.Key
	}
	mc.finishProperty(p, col.ExtendedProperties)
	return p, nil
}

// commandProperty builds a property for a result set column.
func (mc *Context) commandProperty(col *introspection.Column, owner *model.Entity) (*model.Property, error) {
	if col == nil {
		return nil, ErrNilSource
	}
	p := mc.newProperty(fromColumn(col), owner, model.CommandColumnProperty, mc.Config.IncludeFunctionExtendedProperties)
	p.PropertyType = mc.serverFlags(col)
	mc.finishProperty(p, col.ExtendedProperties)
	return p, nil
}

// parameterProperty builds a property for a routine parameter or return
// value. Row version parameters are concurrency tokens and computed.
func (mc *Context) parameterProperty(param *introspection.Parameter, owner *model.Entity) (*model.Property, error) {
	if param == nil {
		return nil, ErrNilSource
	}
	p := mc.newProperty(fromParameter(param), owner, model.ParameterProperty, mc.Config.IncludeFunctionExtendedProperties)
	p.Direction = string(param.Direction)
	if p.Direction == "" {
		p.Direction = string(introspection.DirectionIn)
	}
	rowVersion := param.IsRowVersion || sqltype.IsRowVersion(param.NativeType())
	if mc.Config.UseRowVersionRegex && mc.rules.RowVersionPattern != nil {
		rowVersion = mc.rules.RowVersionPattern.MatchString(p.KeyName)
	}
	if rowVersion {
		p.PropertyType = model.Concurrency | model.Computed
	}
	mc.finishProperty(p, param.ExtendedProperties)
	return p, nil
}

func (mc *Context) serverFlags(col *introspection.Column) model.PropertyType {
	var flags model.PropertyType
	if mc.rules.IsIdentity(col) {
		flags |= model.Identity
	}
	if mc.rules.IsRowVersion(col) {
		flags |= model.Concurrency
	}
	if col.IsGenerated || col.ExtendedProperties.IsTrue(mc.Config.Keys.IsComputed) {
		flags |= model.Computed
	}
	return flags
}

// parseDefault normalises a raw default expression for the property's type.
func parseDefault(raw, nativeType, systemType string) (string, bool) {
	if raw == "" {
		return "", false
	}
	lower := strings.ToLower(raw)
	base := sqltype.BaseSystemType(systemType)
	switch {
	case base == "bool":
		if strings.Contains(raw, "0") || strings.Contains(lower, "false") {
			return "false", true
		}
		return "true", true
	case sqltype.Map(nativeType).IsNumeric():
		return strings.NewReplacer("(", "", ")", "").Replace(raw), true
	case strings.Contains(lower, "null"):
		return "", false
	case strings.Contains(lower, "newid"):
		return "newid()", true
	case strings.Contains(lower, "getdate"):
		return "getdate()", true
	case base != "string" && len(raw) > 2 && isQuoted(raw):
		return raw[1 : len(raw)-1], true
	}
	return raw, true
}

func isQuoted(s string) bool {
	return (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
