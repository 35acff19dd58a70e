package app

import (
	"context"
	"fmt"
	"log/slog"

	"schemamap/internal/config"
	"schemamap/internal/observability"
	"schemamap/internal/schemarefresh"
	"schemamap/internal/snapshot"
)

// Init acquires every runtime resource and performs the first resolution,
// publishing its output. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	source, watchPath, err := a.openSource(ctx, &cleanup)
	if err != nil {
		return err
	}

	var cache *snapshot.Cache
	if a.cfg.Cache.Enabled {
		cache, err = snapshot.OpenCache(snapshot.CacheOptions{Path: a.cfg.Cache.Path})
		if err != nil {
			return fmt.Errorf("failed to open schema cache: %w", err)
		}
		cleanup.push("schema cache", func(context.Context) error {
			return cache.Close()
		})
		a.logger.Info("schema cache enabled", slog.String("path", a.cfg.Cache.Path))
	}

	manager, err := schemarefresh.NewManager(ctx, schemarefresh.Config{
		Build:       a.buildConfig(source, cache, metrics),
		WatchPath:   watchPath,
		MinInterval: a.cfg.Watch.MinInterval,
		MaxInterval: a.cfg.Watch.MaxInterval,
		Publish:     a.publish,
		Metrics:     metrics,
		Logger:      a.logger.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to resolve schema: %w", err)
	}

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.tracerProvider = tracerProvider
	a.metrics = metrics
	a.source = source
	a.cache = cache
	a.manager = manager
	a.stateMu.Unlock()

	if a.cfg.Watch.Enabled && a.cfg.Watch.Address != "" {
		handler := wrapHTTPHandler(a.cfg, a.logger, buildRouter(a.cfg, a.logger, a, meterProvider))
		srv := buildServer(a.cfg, handler)
		cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
			return srv.Shutdown(shutdownCtx)
		})
		a.stateMu.Lock()
		a.srv = srv
		a.stateMu.Unlock()
	}

	a.stateMu.Lock()
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}

// openSource connects to the configured schema source. The returned path is
// watched for edits when the source is a snapshot file.
func (a *App) openSource(ctx context.Context, cleanup *cleanupStack) (schemarefresh.Source, string, error) {
	if a.cfg.Source.Kind == config.SourceSnapshot {
		path := a.cfg.Source.SnapshotPath
		a.logger.Info("reading schema snapshot", slog.String("path", path))
		return schemarefresh.FileSource{Path: path}, path, nil
	}

	schemaName, err := a.cfg.Database.IntrospectionSchema()
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve database configuration: %w", err)
	}
	a.logger.Info("connecting to database",
		slog.String("driver", a.cfg.Database.Driver),
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("schema", schemaName),
	)

	db, dbStatsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db, schemaName); err != nil {
		return nil, "", fmt.Errorf("failed to verify database connection: %w", err)
	}

	reader, err := newReader(a.cfg, db, schemaName, a.logger)
	if err != nil {
		return nil, "", err
	}

	a.stateMu.Lock()
	a.db = db
	a.dbStatsReg = dbStatsReg
	a.stateMu.Unlock()
	return reader, "", nil
}

func (a *App) buildConfig(source schemarefresh.Source, cache *snapshot.Cache, metrics *observability.ResolutionMetrics) schemarefresh.BuildConfig {
	naming := a.cfg.Naming
	if naming.SafeNamePrefix == "" && naming.SafeNameSuffix == "" {
		naming.SafeNamePrefix, naming.SafeNameSuffix = quoteChars(a.cfg.Database.Driver)
	}
	database := a.cfg.Database.Database
	saveSnapshot := a.cfg.Source.SaveSnapshot
	if a.cfg.Source.Kind == config.SourceSnapshot {
		database, saveSnapshot = "", ""
	}
	return schemarefresh.BuildConfig{
		Source:          source,
		Mapping:         a.cfg.Mapping,
		Naming:          naming,
		Filters:         a.cfg.Filters,
		Database:        database,
		IncludeExcluded: a.cfg.Output.IncludeExcluded,
		Cache:           cache,
		SaveSnapshot:    saveSnapshot,
		Metrics:         metrics,
		Logger:          a.logger.Logger,
	}
}
