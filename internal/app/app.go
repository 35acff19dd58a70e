// Package app wires configuration, observability, the schema source and the
// refresh manager into the schemamap lifecycle.
package app

import (
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"schemamap/internal/config"
	"schemamap/internal/logging"
	"schemamap/internal/observability"
	"schemamap/internal/schemarefresh"
	"schemamap/internal/snapshot"
)

// App owns runtime resources for one schemamap invocation.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider
	metrics        *observability.ResolutionMetrics

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }
	cache      *snapshot.Cache

	source  schemarefresh.Source
	manager *schemarefresh.Manager

	srv *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Watching reports whether the app keeps running after the first resolution.
func (a *App) Watching() bool {
	return a.cfg.Watch.Enabled
}

// Current returns the latest resolution, or nil before Init.
func (a *App) Current() *schemarefresh.Result {
	a.stateMu.Lock()
	manager := a.manager
	a.stateMu.Unlock()
	if manager == nil {
		return nil
	}
	return manager.Current()
}
