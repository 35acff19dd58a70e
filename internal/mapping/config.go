package mapping

import (
	"fmt"
	"regexp"
	"strings"

	"schemamap/internal/junction"
	"schemamap/internal/model"
	"schemamap/internal/schemafilter"
)

// ExtendedPropertyKeys names the extended properties the resolver reads.
type ExtendedPropertyKeys struct {
	Alias       string `mapstructure:"alias"`
	ManyToMany  string `mapstructure:"many_to_many"`
	Description string `mapstructure:"description"`
	Generic     string `mapstructure:"generic"`
	IsIdentity  string `mapstructure:"is_identity"`
	IsComputed  string `mapstructure:"is_computed"`
	IsReadOnly  string `mapstructure:"is_read_only"`
	Default     string `mapstructure:"default"`
}

// SearchCriteriaSelection picks which lookups are generated for tables.
type SearchCriteriaSelection string

const (
	SearchAll           SearchCriteriaSelection = "all"
	SearchPrimaryKey    SearchCriteriaSelection = "primary_key"
	SearchForeignKey    SearchCriteriaSelection = "foreign_key"
	SearchIndex         SearchCriteriaSelection = "index"
	SearchNoForeignKeys SearchCriteriaSelection = "no_foreign_keys"
)

// Types returns the criteria kinds generated for tables.
func (s SearchCriteriaSelection) Types() []model.SearchCriteriaType {
	switch s {
	case SearchPrimaryKey:
		return []model.SearchCriteriaType{model.PrimaryKey}
	case SearchForeignKey:
		return []model.SearchCriteriaType{model.ForeignKey}
	case SearchIndex:
		return []model.SearchCriteriaType{model.IndexCriteria}
	case SearchNoForeignKeys:
		return []model.SearchCriteriaType{model.PrimaryKey, model.IndexCriteria}
	default:
		return []model.SearchCriteriaType{model.PrimaryKey, model.ForeignKey, model.IndexCriteria}
	}
}

// Config holds the resolution policy knobs.
type Config struct {
	Keys ExtendedPropertyKeys `mapstructure:"extended_properties"`

	SearchCriteria            SearchCriteriaSelection `mapstructure:"search_criteria"`
	SearchCriteriaPrefix      string                  `mapstructure:"search_criteria_prefix"`
	SearchCriteriaDelimiter   string                  `mapstructure:"search_criteria_delimiter"`
	SearchCriteriaSuffix      string                  `mapstructure:"search_criteria_suffix"`
	MethodKeySuffix           string                  `mapstructure:"method_key_suffix"`
	CustomProcedureNameFormat string                  `mapstructure:"custom_procedure_name_format"`

	UseRowVersionRegex bool   `mapstructure:"use_row_version_regex"`
	RowVersionColumn   string `mapstructure:"row_version_column"`

	IncludeManyToManyEntity       bool `mapstructure:"include_many_to_many_entity"`
	IncludeManyToManyAssociations bool `mapstructure:"include_many_to_many_associations"`
	ExcludeNonPrimaryKeyTables    bool `mapstructure:"exclude_non_primary_key_tables"`
	IncludeViews                  bool `mapstructure:"include_views"`
	IncludeFunctions              bool `mapstructure:"include_functions"`
	IncludeAssociations           bool `mapstructure:"include_associations"`
	IncludeEnumEntity             bool `mapstructure:"include_enum_entity"`
	ExcludeForeignKeyIdProperties bool `mapstructure:"exclude_foreign_key_id_properties"`

	IncludeFunctionExtendedProperties bool `mapstructure:"include_function_extended_properties"`

	GenerateViewKeys bool `mapstructure:"generate_view_keys"`
	// MaxNumberOfKeyProperties caps view keys; 0 leaves them unbounded.
	MaxNumberOfKeyProperties int `mapstructure:"max_number_of_key_properties"`

	Namespace string `mapstructure:"namespace"`
}

// DefaultConfig returns the stock policy.
func DefaultConfig() Config {
	return Config{
		Keys: ExtendedPropertyKeys{
			Alias:       "CS_Alias",
			ManyToMany:  "CS_ManyToMany",
			Description: "CS_Description",
			Generic:     "CS_IsGeneric",
			IsIdentity:  "CS_IsIdentity",
			IsComputed:  "CS_IsComputed",
			IsReadOnly:  "CS_IsReadOnly",
			Default:     "CS_Default",
		},
		SearchCriteria:                SearchAll,
		SearchCriteriaPrefix:          "GetBy",
		MethodKeySuffix:               "Key",
		CustomProcedureNameFormat:     "_%s_",
		RowVersionColumn:              `^((R|r)ow)?(V|v)ersion$`,
		IncludeManyToManyEntity:       true,
		IncludeManyToManyAssociations: true,
		IncludeViews:                  true,
		IncludeFunctions:              true,
		IncludeAssociations:           true,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.SearchCriteria {
	case SearchAll, SearchPrimaryKey, SearchForeignKey, SearchIndex, SearchNoForeignKeys:
	default:
		return fmt.Errorf("unknown search criteria selection %q", c.SearchCriteria)
	}
	if c.UseRowVersionRegex {
		if _, err := regexp.Compile(c.RowVersionColumn); err != nil {
			return fmt.Errorf("invalid row version column expression: %w", err)
		}
	}
	if c.CustomProcedureNameFormat != "" && strings.Count(c.CustomProcedureNameFormat, "%s") != 1 {
		return fmt.Errorf("custom procedure name format %q must contain exactly one %%s", c.CustomProcedureNameFormat)
	}
	if c.MaxNumberOfKeyProperties < 0 {
		return fmt.Errorf("max number of key properties must not be negative")
	}
	return nil
}

// rules builds the junction predicates for cfg and filter.
func (c Config) rules(filter *schemafilter.Filter) junction.Rules {
	r := junction.Rules{
		IncludeManyToManyAssociations: c.IncludeManyToManyAssociations,
		ManyToManyKey:                 c.Keys.ManyToMany,
		IdentityKey:                   c.Keys.IsIdentity,
		ComputedKey:                   c.Keys.IsComputed,
		EnumMatch:                     filter.EnumMatch,
		EnumNameMatch:                 filter.EnumNameMatch,
	}
	if c.UseRowVersionRegex {
		if re, err := regexp.Compile(c.RowVersionColumn); err == nil {
			r.RowVersionPattern = re
		}
	}
	return r
}
