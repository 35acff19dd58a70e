package naming

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	numberPrefix = regexp.MustCompile(`^\d+`)
	idSuffix     = regexp.MustCompile(`(_ID|_id|_Id|\.ID|\.id|\.Id|ID|Id)$`)
)

// Kind selects the naming pipeline used by ResolveName.
type Kind int

const (
	KindEntity Kind = iota
	KindProperty
	KindAssociation
)

// Namer provides all name transformation functions for converting SQL names
// to Go identifiers. It handles pluralization and reserved words.
type Namer struct {
	config  Config
	logger  *slog.Logger
	aliases map[string]string
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PluralOverrides == nil {
		cfg.PluralOverrides = make(map[string]string)
	}
	if cfg.SingularOverrides == nil {
		cfg.SingularOverrides = make(map[string]string)
	}
	aliases := make(map[string]string, len(cfg.KeywordAliases))
	for k, v := range cfg.KeywordAliases {
		aliases[strings.ToLower(k)] = v
	}
	return &Namer{
		config:  cfg,
		logger:  logger,
		aliases: aliases,
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Config returns the configuration the namer was built with.
func (n *Namer) Config() Config {
	return n.config
}

// ResolveName runs the naming pipeline for kind. A non-empty alias wins.
// Association names resolved here use the to-many policy; callers that know
// the cardinality use AssociationName directly.
func (n *Namer) ResolveName(raw string, kind Kind, alias string) string {
	switch kind {
	case KindEntity:
		return n.EntityName(raw, alias)
	case KindAssociation:
		if alias != "" {
			return alias
		}
		return n.AssociationName(raw, true)
	default:
		return n.PropertyName(raw, alias, "")
	}
}

// EntityName converts a table/view/command name into an entity name.
// Example: "tbl_order_items" with prefix "tbl_" -> "OrderItem"
func (n *Namer) EntityName(raw, alias string) string {
	if alias != "" {
		return alias
	}
	if v, ok := n.keywordAlias(raw); ok {
		return v
	}

	name := raw
	if p := n.config.TablePrefix; p != "" && len(name) > len(p) && strings.EqualFold(name[:len(p)], p) {
		name = name[len(p):]
	}

	switch n.config.EntityNaming {
	case EntityPlural:
		name = n.Pluralize(name)
	case EntitySingular:
		name = n.Singularize(name)
	}
	return n.identifier(name, n.config.EntityNaming == EntityPreserve)
}

// PropertyName converts a column or parameter name into a property name for
// an entity named entityName. The entity name may be empty.
// Example: "customer_id" -> "CustomerId"
func (n *Namer) PropertyName(raw, alias, entityName string) string {
	name := alias
	if name == "" {
		name = n.propertyName(raw, entityName)
	}
	return n.MemberName(name, entityName)
}

func (n *Namer) propertyName(raw, entityName string) string {
	if v, ok := n.keywordAlias(raw); ok {
		return v
	}

	preserve := n.config.PropertyNaming == PropertyPreserve
	name := n.identifier(raw, preserve)
	if name == "" {
		name = n.config.SingularMemberSuffix
	}

	// CategoryID on Category becomes ID, but never strip down to one character.
	if n.config.PropertyNaming == PropertyNormalizeRemovePrefix && entityName != "" &&
		len(name) > len(entityName)+1 && strings.EqualFold(name[:len(entityName)], entityName) {
		name = n.identifier(name[len(entityName):], false)
	}
	return name
}

// MemberName appends the member suffix when name would equal the entity name.
func (n *Namer) MemberName(name, entityName string) string {
	if entityName != "" && strings.EqualFold(name, entityName) {
		return name + n.config.SingularMemberSuffix
	}
	return name
}

// AssociationName applies the association pluralization policy to base.
// To-one associations are always singular.
func (n *Namer) AssociationName(base string, toMany bool) string {
	if !toMany {
		return toPascalCase(n.Singularize(base))
	}
	switch n.config.AssociationNaming {
	case AssociationList:
		return n.withListSuffix(base)
	case AssociationSingularList:
		return n.withListSuffix(toPascalCase(n.Singularize(base)))
	case AssociationSingular:
		return toPascalCase(n.Singularize(base))
	default:
		return toPascalCase(n.Pluralize(base))
	}
}

// withListSuffix appends the list suffix unless name already ends with it,
// so resolving a resolved name is a no-op.
func (n *Namer) withListSuffix(name string) string {
	suffix := n.config.ListSuffix
	if suffix == "" || (len(name) > len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix)) {
		return name
	}
	return name + suffix
}

// MemberSuffix returns the suffix used to move a member name out of the way.
// To-many members use the plural form ("Members").
func (n *Namer) MemberSuffix(toMany bool) string {
	if !toMany {
		return n.config.SingularMemberSuffix
	}
	return toPascalCase(n.Pluralize(n.config.SingularMemberSuffix))
}

// VariableName returns a camelCase local variable name.
// Example: "OrderLine" -> "orderLine", "Type" -> "type_"
func (n *Namer) VariableName(value string, preserve bool) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = n.CleanName(value, preserve)
	if !preserve {
		value = toCamelCase(value)
	} else {
		value = sanitize(value)
	}
	return n.escape(value)
}

// PrivateMemberVariableName returns the private field name for value.
// Example: "OrderLine" -> "_orderLine"
func (n *Namer) PrivateMemberVariableName(value string, preserve bool) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = n.CleanName(value, preserve)
	if !preserve {
		value = toCamelCase(value)
	} else {
		value = sanitize(value)
	}
	return n.escape(n.config.PrivateMemberPrefix + value)
}

// ParameterName returns the bind parameter name for a raw column name.
func (n *Namer) ParameterName(raw string) string {
	return n.config.ParameterPrefix + strings.TrimPrefix(raw, "@")
}

// CleanName removes the first matching clean expression and a leading
// number from value. Names reduced to nothing or to lone punctuation get a
// fixed replacement.
func (n *Namer) CleanName(value string, preserve bool) string {
	if value == "" {
		return ""
	}
	if preserve {
		value = CleanEscape(value)
	}

	for _, re := range n.config.CleanExpressions {
		if re.MatchString(value) {
			value = re.ReplaceAllString(value, "")
			break
		}
	}

	result := strings.TrimSpace(numberPrefix.ReplaceAllString(value, ""))
	switch result {
	case "":
		return n.config.SingularMemberSuffix + value
	case ".":
		return "Period"
	case "'":
		return "Apostrophe"
	case "_":
		return "Underscore"
	}
	return result
}

// SafeName returns the quoted, schema-qualified source name.
func (n *Namer) SafeName(schema, name string) string {
	quoted := n.config.SafeNamePrefix + name + n.config.SafeNameSuffix
	if schema == "" {
		return quoted
	}
	return n.config.SafeNamePrefix + schema + n.config.SafeNameSuffix + "." + quoted
}

// FriendlyName splits an identifier into title-cased words.
// Example: "OrderLine" -> "Order Line"
func FriendlyName(name string) string {
	return cases.Title(language.English, cases.NoLower).String(strings.Join(splitWords(name), " "))
}

// RemoveID strips a trailing ID-style suffix. A name that is only the suffix
// is returned unchanged.
// Example: "CustomerId" -> "Customer", "Id" -> "Id"
func RemoveID(value string) string {
	if result := idSuffix.ReplaceAllString(value, ""); result != "" {
		return result
	}
	return value
}

// CleanEscape removes the quoting a preserved name may carry.
// Example: "[Order]" -> "Order", "@p" -> "p"
func CleanEscape(value string) string {
	if strings.HasPrefix(value, "@") || strings.HasPrefix(value, "[") {
		value = value[1:]
	}
	return strings.TrimSuffix(value, "]")
}

func (n *Namer) identifier(value string, preserve bool) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	value = n.CleanName(value, preserve)
	if preserve {
		value = sanitize(value)
	} else {
		value = toPascalCase(value)
	}
	return n.escape(value)
}

func (n *Namer) keywordAlias(raw string) (string, bool) {
	v, ok := n.aliases[strings.ToLower(strings.TrimSpace(raw))]
	return v, ok
}

func (n *Namer) escape(name string) string {
	if isReservedName(name) {
		safeName := name + "_"
		n.logger.Warn("name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// sanitize replaces runes that cannot appear in a Go identifier.
func sanitize(value string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return '_'
	}, value)
}
