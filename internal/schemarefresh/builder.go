package schemarefresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"schemamap/internal/introspection"
	"schemamap/internal/mapping"
	"schemamap/internal/naming"
	"schemamap/internal/observability"
	"schemamap/internal/render"
	"schemamap/internal/schemafilter"
	"schemamap/internal/snapshot"
)

// Source yields a schema and a cheap token that changes whenever the schema
// does. *introspection.Reader is the database source.
type Source interface {
	Fingerprint(ctx context.Context) (introspection.FingerprintDetails, error)
	Load(ctx context.Context) (*introspection.Schema, error)
}

// Result is an immutable resolution. Nothing mutates it after it is built.
type Result struct {
	RunID       string
	Fingerprint introspection.FingerprintDetails
	Schema      *introspection.Schema
	Document    render.Document
	BuiltAt     time.Time
	FromCache   bool
}

// BuildConfig defines the inputs for one resolution.
type BuildConfig struct {
	Source  Source
	Mapping mapping.Config
	Naming  naming.Config
	Filters schemafilter.Config
	// Database labels the rendered document.
	Database string
	// IncludeExcluded lists filtered-out entity names in the document.
	IncludeExcluded bool
	// Cache, when set, is consulted before the source is loaded.
	Cache *snapshot.Cache
	// SaveSnapshot writes every freshly loaded schema to this path.
	SaveSnapshot string
	Metrics      *observability.ResolutionMetrics
	Logger       *slog.Logger
}

// Build resolves the current schema of cfg.Source. A known fingerprint skips
// the call to the source when it is also given.
func Build(ctx context.Context, cfg BuildConfig, fingerprint introspection.FingerprintDetails) (*Result, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("schema builder requires a source")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if fingerprint.Value == "" {
		fp, err := cfg.Source.Fingerprint(ctx)
		if err != nil {
			// An unknown fingerprint only disables the cache.
			logger.Warn("failed to compute schema fingerprint", slog.String("error", err.Error()))
		} else {
			fingerprint = fp
		}
	}

	schema, fromCache, err := loadSchema(ctx, cfg, fingerprint.Value, logger)
	if err != nil {
		return nil, err
	}

	filter, err := schemafilter.New(cfg.Filters)
	if err != nil {
		return nil, fmt.Errorf("invalid filters: %w", err)
	}
	nc := cfg.Naming
	if len(nc.CleanExpressions) == 0 {
		nc.CleanExpressions = filter.CleanExpressions()
	}
	mc, err := mapping.NewContext(cfg.Mapping, naming.New(nc, logger), filter, logger)
	if err != nil {
		return nil, err
	}

	var opts []mapping.ManagerOption
	if cfg.Metrics != nil {
		opts = append(opts, mapping.WithRecorder(cfg.Metrics))
	}
	manager := mapping.NewManager(mc, opts...)
	if err := manager.Load(ctx, mapping.NewSchemaProvider(schema)); err != nil {
		return nil, fmt.Errorf("failed to resolve schema: %w", err)
	}

	var excluded []string
	if cfg.IncludeExcluded {
		excluded = manager.ExcludedNames()
	}
	database := cfg.Database
	if database == "" {
		database = schema.Database
	}
	return &Result{
		RunID:       manager.RunID(),
		Fingerprint: fingerprint,
		Schema:      schema,
		Document:    render.BuildDocument(manager.RunID(), database, manager.Entities(), mc, excluded),
		BuiltAt:     time.Now(),
		FromCache:   fromCache,
	}, nil
}

func loadSchema(ctx context.Context, cfg BuildConfig, fingerprint string, logger *slog.Logger) (*introspection.Schema, bool, error) {
	useCache := cfg.Cache != nil && fingerprint != ""
	if useCache {
		schema, ok, err := cfg.Cache.Get(fingerprint)
		if err != nil {
			logger.Warn("schema cache read failed", slog.String("error", err.Error()))
		}
		cfg.Metrics.RecordCacheLookup(ctx, ok)
		if ok {
			logger.Debug("schema cache hit", slog.String("fingerprint", fingerprint))
			return schema, true, nil
		}
	}

	schema, err := cfg.Source.Load(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load schema: %w", err)
	}
	logger.Info("schema loaded",
		slog.Int("tables", len(schema.Tables)),
		slog.Int("views", len(schema.Views)),
		slog.Int("commands", len(schema.Commands)),
	)

	if useCache {
		if err := cfg.Cache.Put(fingerprint, schema); err != nil {
			logger.Warn("schema cache write failed", slog.String("error", err.Error()))
		}
	}
	if cfg.SaveSnapshot != "" {
		if err := snapshot.WriteFile(cfg.SaveSnapshot, schema, fingerprint); err != nil {
			return nil, false, err
		}
		logger.Info("schema snapshot saved", slog.String("path", cfg.SaveSnapshot))
	}
	return schema, false, nil
}

// FileSource reads a schema snapshot; its fingerprint is the file hash.
type FileSource struct {
	Path string
}

// Fingerprint hashes the snapshot file.
func (s FileSource) Fingerprint(context.Context) (introspection.FingerprintDetails, error) {
	sum, err := snapshot.FileFingerprint(s.Path)
	if err != nil {
		return introspection.FingerprintDetails{Mode: introspection.FingerprintModeUnknown, Components: map[string]string{}}, err
	}
	return introspection.FingerprintDetails{
		Value:      sum,
		Mode:       FingerprintModeFile,
		Components: map[string]string{"file": sum},
	}, nil
}

// Load reads the snapshot file.
func (s FileSource) Load(context.Context) (*introspection.Schema, error) {
	return snapshot.ReadFile(s.Path)
}

// FingerprintModeFile marks fingerprints taken from snapshot files.
const FingerprintModeFile = "file"
