package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"schemamap/internal/mapping"
	"schemamap/internal/naming"
	"schemamap/internal/schemafilter"
)

// EnvPrefix prefixes every environment override, e.g. SCHEMAMAP_DATABASE_HOST.
const EnvPrefix = "SCHEMAMAP"

// ErrHelp is returned when -h or --help was requested.
var ErrHelp = pflag.ErrHelp

// Load loads configuration from args and the environment with the following
// precedence:
// 1. Explicit overrides (v.Set) for secrets read from files or a prompt
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load(args []string) (*Config, error) {
	fs := NewFlagSet("schemamap")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return LoadFlags(fs)
}

// LoadFlags loads configuration using an already parsed flag set.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	cfgPath, _ := fs.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("schemamap")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/schemamap/")
		v.AddConfigPath("$HOME/.schemamap")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Canonical keys are dot + snake_case; env vars look like
	// SCHEMAMAP_DATABASE_POOL_MAX_OPEN.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(fs, v)
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}

	if v.GetString("database.dsn") == "" && v.GetString("database.dsn_file") != "" {
		dsn, err := readSecretFile(v.GetString("database.dsn_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database DSN file: %w", err)
		}
		v.Set("database.dsn", dsn)
	}
	if v.GetString("database.password") == "" && v.GetString("database.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("database.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database password file: %w", err)
		}
		v.Set("database.password", pwd)
	}
	if v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}

	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(fs *pflag.FlagSet, v *viper.Viper) {
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := fs.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// NewFlagSet defines every command line flag using canonical snake_case keys.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.StringP("config", "c", "", "Config file path")
	fs.Bool("version", false, "Print version and exit")

	// Database
	fs.String("database.driver", "", "Database driver (mysql, postgres)")
	fs.String("database.dsn", "", "Complete driver DSN")
	fs.String("database.dsn_file", "", "Path to file containing database DSN (use @- for stdin)")
	fs.String("database.host", "", "Database host")
	fs.Int("database.port", 0, "Database port")
	fs.String("database.user", "", "Database user")
	fs.String("database.password", "", "Database password")
	fs.String("database.password_file", "", "Path to file containing database password (use @- for stdin)")
	fs.Bool("database.password_prompt", false, "Prompt for database password securely")
	fs.String("database.database", "", "Database name")
	fs.String("database.schema", "", "PostgreSQL schema to read")
	fs.String("database.tls.mode", "", "TLS mode (off, skip-verify, verify-ca, verify-full)")
	fs.String("database.tls.ca_file", "", "Path to CA certificate for server verification")
	fs.Int("database.pool.max_open", 0, "Maximum open database connections")
	fs.Int("database.pool.max_idle", 0, "Maximum idle connections in pool")
	fs.Duration("database.connection_timeout", 0, "Max time to wait for database on startup (0 = fail immediately)")
	fs.Duration("database.connection_retry_interval", 0, "Initial interval between connection retries")
	fs.Int("database.read_concurrency", 0, "Parallel table metadata reads")

	// Source and output
	fs.String("source.kind", "", "Schema source (database, snapshot)")
	fs.String("source.snapshot_path", "", "Path of a YAML schema snapshot to read")
	fs.String("source.save_snapshot", "", "Write the introspected schema to this path")
	fs.StringP("output.format", "f", "", "Output format (yaml, json, go)")
	fs.StringP("output.path", "o", "", "Output path (- for stdout)")
	fs.String("output.go_package", "", "Package name for Go output")
	fs.Bool("output.include_excluded", false, "Include excluded entities in document output")

	// Mapping policy
	fs.String("mapping.search_criteria", "", "Search criteria to generate (all, primary_key, foreign_key, index, no_foreign_keys)")
	fs.Bool("mapping.include_views", false, "Map views")
	fs.Bool("mapping.include_functions", false, "Map stored procedures and functions")
	fs.Bool("mapping.include_associations", false, "Resolve associations")
	fs.Bool("mapping.include_many_to_many_entity", false, "Keep junction tables as entities")
	fs.Bool("mapping.include_enum_entity", false, "Map lookup tables as enum entities")
	fs.Bool("mapping.exclude_non_primary_key_tables", false, "Skip tables without a primary key")
	fs.Bool("mapping.exclude_foreign_key_id_properties", false, "Drop foreign key properties shadowed by associations")
	fs.String("mapping.namespace", "", "Namespace recorded on every entity")

	// Naming
	fs.String("naming.entity_naming", "", "Entity naming (preserve, singular, plural)")
	fs.String("naming.property_naming", "", "Property naming (preserve, normalize, normalize_remove_prefix)")
	fs.String("naming.association_naming", "", "Association naming (singular, plural, list, singular_list)")
	fs.String("naming.table_prefix", "", "Prefix stripped from table names")

	// Filters
	fs.StringSlice("filters.include", nil, "Regular expressions selecting objects to map")
	fs.StringSlice("filters.exclude", nil, "Regular expressions excluding objects")
	fs.StringSlice("filters.allow_tables", nil, "Table globs to keep")
	fs.StringSlice("filters.deny_tables", nil, "Table globs to drop")

	// Cache and watch
	fs.Bool("cache.enabled", false, "Reuse introspected schemas when the fingerprint is unchanged")
	fs.String("cache.path", "", "Cache database path")
	fs.BoolP("watch.enabled", "w", false, "Re-resolve whenever the schema changes")
	fs.Duration("watch.min_interval", 0, "Minimum interval between schema checks")
	fs.Duration("watch.max_interval", 0, "Maximum interval between schema checks")
	fs.String("watch.address", "", "Address for /health and /metrics while watching")

	// Observability
	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.environment", "", "Environment name (dev, staging, prod)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
	fs.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
	fs.Duration("observability.otlp.timeout", 0, "OTLP export timeout")

	return fs
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverMySQL)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.dsn_file", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 4000)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_file", "")
	v.SetDefault("database.password_prompt", false)
	v.SetDefault("database.database", "")
	v.SetDefault("database.schema", "public")
	v.SetDefault("database.tls.mode", "")
	v.SetDefault("database.tls.ca_file", "")
	v.SetDefault("database.tls.cert_file", "")
	v.SetDefault("database.tls.key_file", "")
	v.SetDefault("database.tls.server_name", "")
	v.SetDefault("database.pool.max_open", 4)
	v.SetDefault("database.pool.max_idle", 2)
	v.SetDefault("database.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("database.connection_timeout", 30*time.Second)
	v.SetDefault("database.connection_retry_interval", 2*time.Second)
	v.SetDefault("database.read_concurrency", 4)

	v.SetDefault("source.kind", SourceDatabase)
	v.SetDefault("source.snapshot_path", "")
	v.SetDefault("source.save_snapshot", "")

	v.SetDefault("output.format", FormatYAML)
	v.SetDefault("output.path", "-")
	v.SetDefault("output.go_package", "models")
	v.SetDefault("output.include_excluded", false)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.path", ".schemamap/cache.db")

	v.SetDefault("watch.enabled", false)
	v.SetDefault("watch.min_interval", 30*time.Second)
	v.SetDefault("watch.max_interval", 5*time.Minute)
	v.SetDefault("watch.address", ":9464")
	v.SetDefault("watch.shutdown_timeout", 10*time.Second)

	setMappingDefaults(v, mapping.DefaultConfig())
	setNamingDefaults(v, naming.DefaultConfig())
	setFilterDefaults(v, schemafilter.DefaultConfig())

	v.SetDefault("observability.service_name", "schemamap")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "text")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)
}

func setMappingDefaults(v *viper.Viper, d mapping.Config) {
	keys := d.Keys
	v.SetDefault("mapping.extended_properties.alias", keys.Alias)
	v.SetDefault("mapping.extended_properties.many_to_many", keys.ManyToMany)
	v.SetDefault("mapping.extended_properties.description", keys.Description)
	v.SetDefault("mapping.extended_properties.generic", keys.Generic)
	v.SetDefault("mapping.extended_properties.is_identity", keys.IsIdentity)
	v.SetDefault("mapping.extended_properties.is_computed", keys.IsComputed)
	v.SetDefault("mapping.extended_properties.is_read_only", keys.IsReadOnly)
	v.SetDefault("mapping.extended_properties.default", keys.Default)

	v.SetDefault("mapping.search_criteria", string(d.SearchCriteria))
	v.SetDefault("mapping.search_criteria_prefix", d.SearchCriteriaPrefix)
	v.SetDefault("mapping.search_criteria_delimiter", d.SearchCriteriaDelimiter)
	v.SetDefault("mapping.search_criteria_suffix", d.SearchCriteriaSuffix)
	v.SetDefault("mapping.method_key_suffix", d.MethodKeySuffix)
	v.SetDefault("mapping.custom_procedure_name_format", d.CustomProcedureNameFormat)
	v.SetDefault("mapping.use_row_version_regex", d.UseRowVersionRegex)
	v.SetDefault("mapping.row_version_column", d.RowVersionColumn)
	v.SetDefault("mapping.include_many_to_many_entity", d.IncludeManyToManyEntity)
	v.SetDefault("mapping.include_many_to_many_associations", d.IncludeManyToManyAssociations)
	v.SetDefault("mapping.exclude_non_primary_key_tables", d.ExcludeNonPrimaryKeyTables)
	v.SetDefault("mapping.include_views", d.IncludeViews)
	v.SetDefault("mapping.include_functions", d.IncludeFunctions)
	v.SetDefault("mapping.include_associations", d.IncludeAssociations)
	v.SetDefault("mapping.include_enum_entity", d.IncludeEnumEntity)
	v.SetDefault("mapping.exclude_foreign_key_id_properties", d.ExcludeForeignKeyIdProperties)
	v.SetDefault("mapping.include_function_extended_properties", d.IncludeFunctionExtendedProperties)
	v.SetDefault("mapping.generate_view_keys", d.GenerateViewKeys)
	v.SetDefault("mapping.max_number_of_key_properties", d.MaxNumberOfKeyProperties)
	v.SetDefault("mapping.namespace", d.Namespace)
}

func setNamingDefaults(v *viper.Viper, d naming.Config) {
	v.SetDefault("naming.plural_overrides", map[string]string{})
	v.SetDefault("naming.singular_overrides", map[string]string{})
	v.SetDefault("naming.keyword_aliases", map[string]string{})
	v.SetDefault("naming.entity_naming", string(d.EntityNaming))
	v.SetDefault("naming.property_naming", string(d.PropertyNaming))
	v.SetDefault("naming.association_naming", string(d.AssociationNaming))
	v.SetDefault("naming.table_prefix", d.TablePrefix)
	v.SetDefault("naming.private_member_prefix", d.PrivateMemberPrefix)
	v.SetDefault("naming.parameter_prefix", d.ParameterPrefix)
	v.SetDefault("naming.singular_member_suffix", d.SingularMemberSuffix)
	v.SetDefault("naming.list_suffix", d.ListSuffix)
	v.SetDefault("naming.safe_name_prefix", d.SafeNamePrefix)
	v.SetDefault("naming.safe_name_suffix", d.SafeNameSuffix)
}

func setFilterDefaults(v *viper.Viper, d schemafilter.Config) {
	v.SetDefault("filters.allow_tables", []string{"*"})
	v.SetDefault("filters.deny_tables", []string{})
	v.SetDefault("filters.allow_columns", map[string][]string{"*": {"*"}})
	v.SetDefault("filters.deny_columns", map[string][]string{})
	v.SetDefault("filters.include", d.IncludeExpressions)
	v.SetDefault("filters.exclude", d.ExcludeExpressions)
	v.SetDefault("filters.enum", d.EnumExpressions)
	v.SetDefault("filters.enum_name", d.EnumNameExpressions)
	v.SetDefault("filters.clean", d.CleanExpressions)
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter database password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	stdinBackedKeys := []string{
		"database.dsn_file",
		"database.password_file",
	}

	var configured []string
	for _, key := range stdinBackedKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			configured = append(configured, key)
		}
	}

	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}
	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
