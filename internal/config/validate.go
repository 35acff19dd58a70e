package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"schemamap/internal/schemafilter"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Source.validate(result)
	if c.Source.Kind == SourceDatabase {
		c.Database.validate(result)
	}
	c.Output.validate(result)
	c.Cache.validate(result)
	c.Watch.validate(result)
	c.Observability.validate(result)

	if err := c.Mapping.Validate(); err != nil {
		result.fail("mapping", err.Error(), "")
	}
	if err := c.Naming.Validate(); err != nil {
		result.fail("naming", err.Error(), "valid naming policies are listed in the configuration reference")
	}
	validateFilters(result, c.Filters)

	if c.Mapping.IncludeManyToManyAssociations && !c.Mapping.IncludeAssociations {
		result.warn("mapping.include_many_to_many_associations",
			"many-to-many associations are enabled but associations are disabled",
			"enable mapping.include_associations")
	}
	return result
}

func (s *SourceConfig) validate(result *ValidationResult) {
	switch s.Kind {
	case SourceDatabase:
	case SourceSnapshot:
		if strings.TrimSpace(s.SnapshotPath) == "" {
			result.fail("source.snapshot_path", "snapshot_path is required when source.kind is snapshot", "")
		}
	default:
		result.fail("source.kind", fmt.Sprintf("invalid source kind %q", s.Kind), "valid values are: database, snapshot")
	}
	if s.Kind == SourceSnapshot && s.SaveSnapshot != "" {
		result.warn("source.save_snapshot", "save_snapshot is ignored when reading a snapshot", "")
	}
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	switch d.Driver {
	case DriverMySQL, DriverPostgres:
	default:
		result.fail("database.driver", fmt.Sprintf("invalid driver %q", d.Driver), "valid values are: mysql, postgres")
	}

	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.fail("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
	}
	if _, err := d.EffectiveDatabaseName(); err != nil {
		result.fail("database.database", err.Error(), "set database.database or include a database in database.dsn")
	}

	d.TLS.validate(d.Driver, result)

	if d.Pool.MaxOpen < 0 {
		result.fail("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.fail("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.warn("database.pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}

	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.warn("database.connection_retry_interval",
			"connection_retry_interval is greater than connection_timeout",
			"only one connection attempt will be made")
	}
	if d.ConnectionRetryInterval < 0 {
		result.fail("database.connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.fail("database.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if d.ConnectionTimeout < 0 {
		result.fail("database.connection_timeout", "connection_timeout cannot be negative", "")
	}
	if d.ReadConcurrency < 0 {
		result.fail("database.read_concurrency", "read_concurrency cannot be negative", "")
	}
}

func (t *DatabaseTLSConfig) validate(driver string, result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.fail("database.tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode), "valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if t.Mode != "" && driver == DriverPostgres {
		result.warn("database.tls.mode", "tls settings only apply to mysql", "set sslmode in database.dsn instead")
	}
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.fail("database.tls.ca_file", "CA file is required for verify-ca and verify-full modes", "")
	}
	if (t.CertFile != "") != (t.KeyFile != "") {
		result.fail("database.tls.cert_file",
			"both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}
	if t.Mode == "skip-verify" {
		result.warn("database.tls.mode", "skip-verify mode does not verify server certificates", "use verify-ca or verify-full in production")
	}
}

func (o *OutputConfig) validate(result *ValidationResult) {
	switch o.Format {
	case FormatYAML, FormatJSON:
	case FormatGo:
		if strings.TrimSpace(o.GoPackage) == "" {
			result.fail("output.go_package", "go_package is required for go output", "")
		}
	default:
		result.fail("output.format", fmt.Sprintf("invalid output format %q", o.Format), "valid values are: yaml, json, go")
	}
	if strings.TrimSpace(o.Path) == "" {
		result.fail("output.path", "output path cannot be empty", "use - for stdout")
	}
}

func (c *CacheConfig) validate(result *ValidationResult) {
	if c.Enabled && strings.TrimSpace(c.Path) == "" {
		result.fail("cache.path", "cache path is required when the cache is enabled", "")
	}
}

func (w *WatchConfig) validate(result *ValidationResult) {
	if !w.Enabled {
		return
	}
	if w.MinInterval <= 0 {
		result.fail("watch.min_interval", "min_interval must be greater than 0", "")
	}
	if w.MaxInterval < w.MinInterval {
		result.fail("watch.max_interval", "max_interval must not be less than min_interval", "")
	}
	if w.Address != "" {
		if _, _, err := net.SplitHostPort(w.Address); err != nil {
			result.fail("watch.address", fmt.Sprintf("invalid listen address %q", w.Address), "use host:port or :port")
		}
	}
}

func validateFilters(result *ValidationResult, filters schemafilter.Config) {
	validateGlobList(result, "filters.allow_tables", filters.AllowTables)
	validateGlobList(result, "filters.deny_tables", filters.DenyTables)
	validatePatternMap(result, "filters.allow_columns", filters.AllowColumns)
	validatePatternMap(result, "filters.deny_columns", filters.DenyColumns)
	if _, err := schemafilter.New(filters); err != nil {
		result.fail("filters", err.Error(), "expressions use Go regexp syntax")
	}
}

func validatePatternMap(result *ValidationResult, field string, patternMap map[string][]string) {
	for tablePattern, columnPatterns := range patternMap {
		if strings.TrimSpace(tablePattern) == "" {
			result.fail(field, "table pattern cannot be empty", "")
			continue
		}
		if _, err := path.Match(strings.ToLower(tablePattern), "sample"); err != nil {
			result.fail(field, fmt.Sprintf("invalid table glob pattern %q: %v", tablePattern, err), "")
		}
		for _, columnPattern := range columnPatterns {
			if strings.TrimSpace(columnPattern) == "" {
				result.fail(field, fmt.Sprintf("column pattern for table pattern %q cannot be empty", tablePattern), "")
				continue
			}
			if _, err := path.Match(strings.ToLower(columnPattern), "sample"); err != nil {
				result.fail(field, fmt.Sprintf("invalid column glob pattern %q for table pattern %q: %v", columnPattern, tablePattern, err), "")
			}
		}
	}
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.fail(field, "glob pattern cannot be empty", "")
			continue
		}
		if _, err := path.Match(strings.ToLower(pattern), "sample"); err != nil {
			result.fail(field, fmt.Sprintf("invalid glob pattern %q: %v", pattern, err), "")
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level), "valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format), "valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio", "trace_sample_ratio must be between 0 and 1", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
	if o.Metrics != nil {
		o.Metrics.validate("observability.metrics", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol), "valid values are: grpc, http/protobuf")
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint), "use host:port or a full URL")
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression), "valid values are: none, gzip")
	}

	if o.RetryMaxAttempts < 0 {
		result.fail(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
