// Package naming turns raw database identifiers into convention-compliant Go
// identifiers: pluralization, case conversion, keyword escaping, prefix
// stripping and collision suffixing.
package naming

import (
	"fmt"
	"regexp"
)

// EntityNaming controls how table names become entity names.
type EntityNaming string

const (
	EntityPreserve EntityNaming = "preserve"
	EntitySingular EntityNaming = "singular"
	EntityPlural   EntityNaming = "plural"
)

// PropertyNaming controls how column names become property names.
type PropertyNaming string

const (
	PropertyPreserve              PropertyNaming = "preserve"
	PropertyNormalize             PropertyNaming = "normalize"
	PropertyNormalizeRemovePrefix PropertyNaming = "normalize_remove_prefix"
)

// AssociationNaming controls the suffix applied to to-many association names.
type AssociationNaming string

const (
	AssociationSingular     AssociationNaming = "singular"
	AssociationPlural       AssociationNaming = "plural"
	AssociationList         AssociationNaming = "list"
	AssociationSingularList AssociationNaming = "singular_list"
)

// Config holds naming customization options
type Config struct {
	// PluralOverrides maps singular -> custom plural
	// Example: {"person": "people", "status": "statuses"}
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`

	// SingularOverrides maps plural -> custom singular
	// Example: {"people": "person", "data": "datum"}
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`

	// KeywordAliases maps problematic raw names to a replacement used verbatim.
	// Lookups are case-insensitive.
	KeywordAliases map[string]string `mapstructure:"keyword_aliases"`

	EntityNaming      EntityNaming      `mapstructure:"entity_naming"`
	PropertyNaming    PropertyNaming    `mapstructure:"property_naming"`
	AssociationNaming AssociationNaming `mapstructure:"association_naming"`

	TablePrefix          string `mapstructure:"table_prefix"`
	PrivateMemberPrefix  string `mapstructure:"private_member_prefix"`
	ParameterPrefix      string `mapstructure:"parameter_prefix"`
	SingularMemberSuffix string `mapstructure:"singular_member_suffix"`
	ListSuffix           string `mapstructure:"list_suffix"`
	SafeNamePrefix       string `mapstructure:"safe_name_prefix"`
	SafeNameSuffix       string `mapstructure:"safe_name_suffix"`

	// CleanExpressions are tried in order; the first match is removed from a
	// name before case conversion.
	CleanExpressions []*regexp.Regexp `mapstructure:"-"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PluralOverrides:      make(map[string]string),
		SingularOverrides:    make(map[string]string),
		KeywordAliases:       make(map[string]string),
		EntityNaming:         EntitySingular,
		PropertyNaming:       PropertyNormalize,
		AssociationNaming:    AssociationPlural,
		PrivateMemberPrefix:  "_",
		ParameterPrefix:      "@p_",
		SingularMemberSuffix: "Member",
		ListSuffix:           "List",
	}
}

// Validate reports the first unknown naming policy.
func (c Config) Validate() error {
	switch c.EntityNaming {
	case EntityPreserve, EntitySingular, EntityPlural:
	default:
		return fmt.Errorf("unknown entity naming %q", c.EntityNaming)
	}
	switch c.PropertyNaming {
	case PropertyPreserve, PropertyNormalize, PropertyNormalizeRemovePrefix:
	default:
		return fmt.Errorf("unknown property naming %q", c.PropertyNaming)
	}
	switch c.AssociationNaming {
	case AssociationSingular, AssociationPlural, AssociationList, AssociationSingularList:
	default:
		return fmt.Errorf("unknown association naming %q", c.AssociationNaming)
	}
	return nil
}
