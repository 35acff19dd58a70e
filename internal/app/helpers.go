package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"schemamap/internal/config"
	"schemamap/internal/introspection"
	"schemamap/internal/logging"
	"schemamap/internal/observability"
	"schemamap/internal/render"
	"schemamap/internal/schemarefresh"
)

// InitLogger builds the process logger, bridging to OTLP when log export
// is enabled.
func InitLogger(ctx context.Context, cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(ctx, otelConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func otelConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
			RetryMaxAttempts:  otlp.RetryMaxAttempts,
		},
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.ResolutionMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}

	meterProvider, err := observability.InitMeterProvider(otelConfig(cfg, config.OTLPConfig{}))
	if err != nil {
		return nil, nil, err
	}
	metrics, err := observability.InitResolutionMetrics(logger.Logger)
	if err != nil {
		_ = meterProvider.Shutdown(context.Background(), logger.Logger)
		return nil, nil, err
	}

	logger.Debug("OpenTelemetry metrics initialized")
	return meterProvider, metrics, nil
}

func initTracing(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)
	return observability.InitTracerProvider(ctx, otelConfig(cfg, tracesConfig))
}

// driverSystem maps a configured driver to its sql driver name and semantic
// convention attribute.
func driverSystem(driver string) (string, attribute.KeyValue) {
	if driver == config.DriverPostgres {
		return "postgres", semconv.DBSystemPostgreSQL
	}
	return "mysql", semconv.DBSystemMySQL
}

// quoteChars returns the identifier quotes of driver.
func quoteChars(driver string) (prefix, suffix string) {
	if driver == config.DriverPostgres {
		return `"`, `"`
	}
	return "`", "`"
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}

	driverName, system := driverSystem(cfg.Database.Driver)
	dsn := cfg.Database.DSN()

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open(driverName, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	opts := []otelsql.Option{otelsql.WithAttributes(system)}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
	}
	db, err := otelsql.Open(driverName, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		reg, err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		} else {
			dbStatsReg = reg
		}
	}

	logger.Debug("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, schemaName string) error {
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("schema", schemaName),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
	)
	return nil
}

// waitForDatabase pings until the database answers or the connection timeout
// passes, doubling the retry interval up to 30s. A zero timeout tries once.
func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	interval := cfg.Database.ConnectionRetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0
	for {
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = min(interval*2, 30*time.Second)
	}
}

func newReader(cfg *config.Config, db *sql.DB, schemaName string, logger *logging.Logger) (*introspection.Reader, error) {
	dialect, err := introspection.DialectFor(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	return introspection.NewReader(db, introspection.ReaderConfig{
		Database:     schemaName,
		Dialect:      dialect,
		Concurrency:  cfg.Database.ReadConcurrency,
		SkipViews:    !cfg.Mapping.IncludeViews,
		SkipCommands: !cfg.Mapping.IncludeFunctions,
		Logger:       logger.Logger,
	})
}

// publish renders a result to the configured output.
func (a *App) publish(_ context.Context, result *schemarefresh.Result) error {
	opts := render.Options{Format: a.cfg.Output.Format, GoPackage: a.cfg.Output.GoPackage}
	if err := render.WriteFile(a.cfg.Output.Path, result.Document, opts); err != nil {
		return err
	}
	a.logger.WithRunID(result.RunID).Info("model written",
		slog.String("path", a.cfg.Output.Path),
		slog.String("format", a.cfg.Output.Format),
		slog.Int("entities", len(result.Document.Entities)),
		slog.Bool("from_cache", result.FromCache),
	)
	return nil
}

// refresher is the part of App the HTTP handlers need.
type refresher interface {
	Current() *schemarefresh.Result
	Refresh(ctx context.Context) error
}

// Refresh forces a rebuild regardless of the fingerprint.
func (a *App) Refresh(ctx context.Context) error {
	a.stateMu.Lock()
	manager := a.manager
	a.stateMu.Unlock()
	if manager == nil {
		return fmt.Errorf("app is not initialized")
	}
	return manager.RefreshNow(ctx)
}

func buildRouter(cfg *config.Config, logger *logging.Logger, state refresher, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(state))
	mux.HandleFunc("/model", modelHandler(state, cfg.Output.GoPackage))
	mux.HandleFunc("/admin/refresh", refreshHandler(state))

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Debug("metrics endpoint enabled", slog.String("path", "/metrics"))
	}
	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Debug("HTTP instrumentation enabled")
	}
	return withRequestLogger(logger, handler)
}

// withRequestLogger makes the app logger available to handlers.
func withRequestLogger(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(logging.WithLogger(r.Context(), logger)))
	})
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/health", "/metrics", "/model", "/admin/refresh":
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Watch.Address,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}
}

func startServer(logger *logging.Logger, srv *http.Server) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("watch server starting",
			slog.String("address", srv.Addr),
			slog.String("health_endpoint", "/health"),
			slog.String("model_endpoint", "/model"),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

type healthStatus struct {
	Status      string    `json:"status"`
	RunID       string    `json:"run_id,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	BuiltAt     time.Time `json:"built_at,omitzero"`
	Entities    int       `json:"entities"`
}

// healthHandler reports healthy once a resolution has been published.
func healthHandler(state refresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		current := state.Current()
		if current == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(healthStatus{Status: "unavailable"})
			return
		}
		_ = json.NewEncoder(w).Encode(healthStatus{
			Status:      "healthy",
			RunID:       current.RunID,
			Fingerprint: current.Fingerprint.Value,
			BuiltAt:     current.BuiltAt,
			Entities:    len(current.Document.Entities),
		})
	}
}

// modelHandler serves the current document; ?format= picks yaml, json or go.
func modelHandler(state refresher, goPackage string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current := state.Current()
		if current == nil {
			http.Error(w, "model not ready", http.StatusServiceUnavailable)
			return
		}
		format := r.URL.Query().Get("format")
		switch format {
		case "", render.FormatYAML:
			w.Header().Set("Content-Type", "application/yaml")
		case render.FormatJSON:
			w.Header().Set("Content-Type", "application/json")
		case render.FormatGo:
			w.Header().Set("Content-Type", "text/x-go")
		default:
			http.Error(w, "unsupported format", http.StatusBadRequest)
			return
		}
		if err := render.Write(w, current.Document, render.Options{Format: format, GoPackage: goPackage}); err != nil {
			logging.FromContext(r.Context()).Error("failed to render model", slog.String("error", err.Error()))
		}
	}
}

func refreshHandler(state refresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			_, _ = fmt.Fprint(w, `{"error":"method not allowed"}`)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
		defer cancel()
		if err := state.Refresh(ctx); err != nil {
			reqLogger.Error("schema refresh failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = fmt.Fprint(w, `{"status":"error","message":"schema refresh failed"}`)
			return
		}
		reqLogger.Info("schema refreshed on request", slog.String("remote_addr", r.RemoteAddr))
		_, _ = fmt.Fprint(w, `{"status":"ok"}`)
	}
}
