package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemamap/internal/mapping"
	"schemamap/internal/naming"
	"schemamap/internal/schemafilter"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "mysql from fields",
			config: DatabaseConfig{
				Driver:   DriverMySQL,
				Host:     "localhost",
				Port:     4000,
				User:     "root",
				Password: "password",
				Database: "test",
			},
			expected: "root:password@tcp(localhost:4000)/test?parseTime=true",
		},
		{
			name: "mysql connection string gains parseTime",
			config: DatabaseConfig{
				Driver:           DriverMySQL,
				ConnectionString: "app:secret@tcp(db:3306)/shop",
			},
			expected: "app:secret@tcp(db:3306)/shop?parseTime=true",
		},
		{
			name: "mysql verify-full uses registered TLS config",
			config: DatabaseConfig{
				Driver:   DriverMySQL,
				Host:     "db",
				Port:     4000,
				User:     "root",
				Database: "test",
				TLS:      DatabaseTLSConfig{Mode: "verify-full"},
			},
			expected: "root:@tcp(db:4000)/test?parseTime=true&tls=" + tlsConfigName,
		},
		{
			name: "postgres from fields",
			config: DatabaseConfig{
				Driver:   DriverPostgres,
				Host:     "localhost",
				Port:     5432,
				User:     "postgres",
				Password: "pw",
				Database: "shop",
			},
			expected: "postgres://postgres:pw@localhost:5432/shop?sslmode=disable",
		},
		{
			name: "postgres connection string is kept",
			config: DatabaseConfig{
				Driver:           DriverPostgres,
				ConnectionString: "host=db dbname=shop sslmode=require",
			},
			expected: "host=db dbname=shop sslmode=require",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

func TestDatabaseConfig_EffectiveDatabaseName(t *testing.T) {
	t.Run("configured name wins", func(t *testing.T) {
		d := DatabaseConfig{Driver: DriverMySQL, Database: "shop"}
		name, err := d.EffectiveDatabaseName()
		require.NoError(t, err)
		assert.Equal(t, "shop", name)
	})

	t.Run("mysql name from dsn", func(t *testing.T) {
		d := DatabaseConfig{Driver: DriverMySQL, ConnectionString: "root@tcp(db:4000)/inventory"}
		name, err := d.EffectiveDatabaseName()
		require.NoError(t, err)
		assert.Equal(t, "inventory", name)
	})

	t.Run("postgres name from url", func(t *testing.T) {
		d := DatabaseConfig{Driver: DriverPostgres, ConnectionString: "postgres://u:p@db:5432/inventory?sslmode=disable"}
		name, err := d.EffectiveDatabaseName()
		require.NoError(t, err)
		assert.Equal(t, "inventory", name)
	})

	t.Run("postgres name from key value", func(t *testing.T) {
		d := DatabaseConfig{Driver: DriverPostgres, ConnectionString: "host=db dbname=inventory"}
		name, err := d.EffectiveDatabaseName()
		require.NoError(t, err)
		assert.Equal(t, "inventory", name)
	})

	t.Run("mismatch is rejected", func(t *testing.T) {
		d := DatabaseConfig{Driver: DriverMySQL, Database: "shop", ConnectionString: "root@tcp(db:4000)/inventory"}
		_, err := d.EffectiveDatabaseName()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch")
	})

	t.Run("missing name is rejected", func(t *testing.T) {
		d := DatabaseConfig{Driver: DriverMySQL}
		_, err := d.EffectiveDatabaseName()
		assert.Error(t, err)
	})
}

func TestDatabaseConfig_IntrospectionSchema(t *testing.T) {
	pg := DatabaseConfig{Driver: DriverPostgres, Database: "shop", Schema: "sales"}
	schema, err := pg.IntrospectionSchema()
	require.NoError(t, err)
	assert.Equal(t, "sales", schema)

	pg.Schema = ""
	schema, err = pg.IntrospectionSchema()
	require.NoError(t, err)
	assert.Equal(t, "public", schema)

	my := DatabaseConfig{Driver: DriverMySQL, Database: "shop", Schema: "ignored"}
	schema, err = my.IntrospectionSchema()
	require.NoError(t, err)
	assert.Equal(t, "shop", schema)
}

func TestRegisterTLS_RequiresKeyPair(t *testing.T) {
	d := DatabaseConfig{
		Driver: DriverMySQL,
		TLS:    DatabaseTLSConfig{Mode: "verify-ca", CertFile: "client.pem"},
	}
	err := d.RegisterTLS()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cert_file and key_file")

	d.TLS.Mode = "off"
	assert.NoError(t, d.RegisterTLS())
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schemamap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfigFile(t, "database:\n  database: shop\n")

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, 4000, cfg.Database.Port)
	assert.Equal(t, "shop", cfg.Database.Database)
	assert.Equal(t, 30*time.Second, cfg.Database.ConnectionTimeout)
	assert.Equal(t, SourceDatabase, cfg.Source.Kind)
	assert.Equal(t, FormatYAML, cfg.Output.Format)
	assert.Equal(t, "-", cfg.Output.Path)
	assert.Equal(t, mapping.DefaultConfig().SearchCriteria, cfg.Mapping.SearchCriteria)
	assert.Equal(t, naming.DefaultConfig().EntityNaming, cfg.Naming.EntityNaming)
	assert.Equal(t, []string{"*"}, cfg.Filters.AllowTables)
	assert.Equal(t, schemafilter.DefaultConfig().ExcludeExpressions, cfg.Filters.ExcludeExpressions)

	result := cfg.Validate()
	assert.False(t, result.HasErrors(), result.Error())
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfigFile(t, `
database:
  driver: postgres
  host: filehost
  port: 5432
  database: shop
mapping:
  include_views: true
  search_criteria: primary_key
naming:
  entity_naming: preserve
  plural_overrides:
    person: people
filters:
  deny_tables: ["audit_*"]
`)

	t.Setenv("SCHEMAMAP_DATABASE_HOST", "envhost")
	t.Setenv("SCHEMAMAP_OUTPUT_FORMAT", "json")

	cfg, err := Load([]string{"--config", path, "-o", "model.json", "--mapping.include_associations"})
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "envhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, FormatJSON, cfg.Output.Format)
	assert.Equal(t, "model.json", cfg.Output.Path)
	assert.True(t, cfg.Mapping.IncludeViews)
	assert.True(t, cfg.Mapping.IncludeAssociations)
	assert.Equal(t, mapping.SearchPrimaryKey, cfg.Mapping.SearchCriteria)
	assert.Equal(t, naming.EntityPreserve, cfg.Naming.EntityNaming)
	assert.Equal(t, map[string]string{"person": "people"}, cfg.Naming.PluralOverrides)
	assert.Equal(t, []string{"audit_*"}, cfg.Filters.DenyTables)
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	path := writeConfigFile(t, "database:\n  database: shop\n")
	t.Setenv("SCHEMAMAP_DATABASE_PORT", "3306")

	cfg, err := Load([]string{"--config", path, "--database.port", "4001"})
	require.NoError(t, err)
	assert.Equal(t, 4001, cfg.Database.Port)
}

func TestLoad_UnknownKeyFails(t *testing.T) {
	path := writeConfigFile(t, "database:\n  database: shop\n  mycnf_file: ~/.my.cnf\n")

	_, err := Load([]string{"--config", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mycnf_file")
}

func TestLoad_MissingExplicitConfigFails(t *testing.T) {
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, err)
}

func TestLoad_SecretFiles(t *testing.T) {
	dir := t.TempDir()
	dsnPath := filepath.Join(dir, "dsn")
	require.NoError(t, os.WriteFile(dsnPath, []byte("root@tcp(db:4000)/inventory\n"), 0o600))
	pwPath := filepath.Join(dir, "password")
	require.NoError(t, os.WriteFile(pwPath, []byte("s3cret\n"), 0o600))

	cfg, err := Load([]string{"--database.dsn_file", dsnPath, "--database.password_file", pwPath})
	require.NoError(t, err)
	assert.Equal(t, "root@tcp(db:4000)/inventory", cfg.Database.ConnectionString)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestLoad_HelpFlag(t *testing.T) {
	_, err := Load([]string{"--help"})
	assert.ErrorIs(t, err, ErrHelp)
}

func TestConfig_Validate(t *testing.T) {
	validConfig := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Driver:   DriverMySQL,
				Host:     "localhost",
				Port:     4000,
				User:     "root",
				Database: "test",
				TLS:      DatabaseTLSConfig{Mode: "off"},
				Pool:     PoolConfig{MaxOpen: 4, MaxIdle: 2},
			},
			Source:  SourceConfig{Kind: SourceDatabase},
			Mapping: mapping.DefaultConfig(),
			Naming:  naming.DefaultConfig(),
			Filters: schemafilter.DefaultConfig(),
			Output:  OutputConfig{Format: FormatYAML, Path: "-"},
			Observability: ObservabilityConfig{
				TraceSampleRatio: 1,
				Logging:          LoggingConfig{Level: "info", Format: "json"},
				OTLP:             OTLPConfig{Protocol: "grpc", Compression: "gzip"},
			},
		}
	}

	t.Run("valid config passes validation", func(t *testing.T) {
		result := validConfig().Validate()
		assert.False(t, result.HasErrors(), result.Error())
		assert.Empty(t, result.Errors)
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"invalid driver", func(c *Config) { c.Database.Driver = "sqlite" }, "database.driver"},
		{"invalid database port", func(c *Config) { c.Database.Port = 0 }, "database.port"},
		{"missing database", func(c *Config) { c.Database.Database = "" }, "database.database"},
		{"invalid tls mode", func(c *Config) { c.Database.TLS.Mode = "required" }, "database.tls.mode"},
		{"verify-ca without ca", func(c *Config) { c.Database.TLS.Mode = "verify-ca" }, "database.tls.ca_file"},
		{"negative pool", func(c *Config) { c.Database.Pool.MaxOpen = -1 }, "database.pool.max_open"},
		{"retry interval required", func(c *Config) { c.Database.ConnectionTimeout = time.Second }, "database.connection_retry_interval"},
		{"unknown source", func(c *Config) { c.Source.Kind = "ftp" }, "source.kind"},
		{"snapshot without path", func(c *Config) { c.Source.Kind = SourceSnapshot }, "source.snapshot_path"},
		{"unknown output format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"go output without package", func(c *Config) {
			c.Output.Format = FormatGo
			c.Output.GoPackage = ""
		}, "output.go_package"},
		{"cache without path", func(c *Config) { c.Cache.Enabled = true }, "cache.path"},
		{"watch without interval", func(c *Config) { c.Watch.Enabled = true }, "watch.min_interval"},
		{"watch bad address", func(c *Config) {
			c.Watch = WatchConfig{Enabled: true, MinInterval: time.Second, MaxInterval: time.Minute, Address: "nope"}
		}, "watch.address"},
		{"bad search criteria", func(c *Config) { c.Mapping.SearchCriteria = "everything" }, "mapping"},
		{"bad entity naming", func(c *Config) { c.Naming.EntityNaming = "shout" }, "naming"},
		{"bad table glob", func(c *Config) { c.Filters.AllowTables = []string{"[a-"} }, "filters.allow_tables"},
		{"bad regex", func(c *Config) { c.Filters.ExcludeExpressions = []string{"("} }, "filters"},
		{"invalid log level", func(c *Config) { c.Observability.Logging.Level = "trace" }, "observability.logging.level"},
		{"invalid sample ratio", func(c *Config) { c.Observability.TraceSampleRatio = 2 }, "observability.trace_sample_ratio"},
		{"invalid otlp protocol", func(c *Config) { c.Observability.OTLP.Protocol = "udp" }, "observability.otlp.protocol"},
		{"invalid http endpoint", func(c *Config) {
			c.Observability.OTLP = OTLPConfig{Protocol: "http/protobuf", Endpoint: "http://"}
		}, "observability.otlp.endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			result := cfg.Validate()
			require.True(t, result.HasErrors())
			assert.Contains(t, result.Error(), tt.field)
		})
	}

	t.Run("snapshot source skips database checks", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database = DatabaseConfig{}
		cfg.Source = SourceConfig{Kind: SourceSnapshot, SnapshotPath: "schema.yaml"}
		assert.False(t, cfg.Validate().HasErrors())
	})

	t.Run("skip-verify warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.TLS.Mode = "skip-verify"
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		require.NotEmpty(t, result.Warnings)
		assert.Equal(t, "database.tls.mode", result.Warnings[0].Field)
	})

	t.Run("many-to-many without associations warns", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mapping.IncludeAssociations = false
		cfg.Mapping.IncludeManyToManyAssociations = true
		result := cfg.Validate()
		assert.False(t, result.HasErrors())
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, "mapping.include_many_to_many_associations", result.Warnings[0].Field)
	})
}

func TestObservabilityConfig_SignalOverrides(t *testing.T) {
	obs := ObservabilityConfig{
		OTLP: OTLPConfig{
			Endpoint:    "collector:4317",
			Protocol:    "grpc",
			Headers:     map[string]string{"x-team": "data"},
			Compression: "gzip",
		},
		Metrics: &OTLPConfig{
			Endpoint: "metrics:4318",
			Protocol: "http/protobuf",
			Insecure: true,
			Headers:  map[string]string{"x-signal": "metrics"},
		},
	}

	traces := obs.GetTracesConfig()
	assert.Equal(t, "collector:4317", traces.Endpoint)

	metrics := obs.GetMetricsConfig()
	assert.Equal(t, "metrics:4318", metrics.Endpoint)
	assert.Equal(t, "http/protobuf", metrics.Protocol)
	assert.True(t, metrics.Insecure)
	assert.Equal(t, "gzip", metrics.Compression)
	assert.Equal(t, map[string]string{"x-team": "data", "x-signal": "metrics"}, metrics.Headers)
}

func TestValidationError_Error(t *testing.T) {
	assert.Equal(t, "database.port: out of range", ValidationError{Field: "database.port", Message: "out of range"}.Error())
	assert.Equal(t, "a: b (hint: c)", ValidationError{Field: "a", Message: "b", Hint: "c"}.Error())
}
