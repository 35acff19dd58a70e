package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemamap/internal/config"
	"schemamap/internal/introspection"
	"schemamap/internal/logging"
	"schemamap/internal/mapping"
	"schemamap/internal/naming"
	"schemamap/internal/schemafilter"
	"schemamap/internal/snapshot"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "info", Format: "text", Output: io.Discard})
}

func writeSnapshot(t *testing.T, path string, tables ...string) {
	t.Helper()
	schema := &introspection.Schema{Database: "shop"}
	for _, name := range tables {
		schema.Tables = append(schema.Tables, introspection.Table{
			Name:    name,
			Columns: []introspection.Column{{Name: "id", DataType: "int", IsPrimaryKey: true}},
		})
	}
	require.NoError(t, snapshot.WriteFile(path, schema, ""))
}

func snapshotConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "schema.yaml")
	writeSnapshot(t, in, "customers")
	return &config.Config{
		Source:  config.SourceConfig{Kind: config.SourceSnapshot, SnapshotPath: in},
		Mapping: mapping.DefaultConfig(),
		Naming:  naming.DefaultConfig(),
		Filters: schemafilter.DefaultConfig(),
		Output: config.OutputConfig{
			Format: config.FormatYAML,
			Path:   filepath.Join(dir, "out", "model.yaml"),
		},
		Watch: config.WatchConfig{MinInterval: time.Hour, MaxInterval: time.Hour},
	}, in
}

func TestInit_SnapshotSourceWritesOutput(t *testing.T) {
	cfg, _ := snapshotConfig(t)
	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	require.NoError(t, app.Init(context.Background()))
	require.NoError(t, app.Init(context.Background()), "Init is idempotent")

	out, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	assert.Contains(t, string(out), "name: Customer")

	current := app.Current()
	require.NotNil(t, current)
	assert.Contains(t, string(out), "run_id: "+current.RunID)
	assert.False(t, app.Watching())
}

func TestInit_CacheAndGoOutput(t *testing.T) {
	cfg, _ := snapshotConfig(t)
	dir := filepath.Dir(cfg.Output.Path)
	cfg.Cache = config.CacheConfig{Enabled: true, Path: filepath.Join(dir, "cache.db")}
	cfg.Source.SaveSnapshot = filepath.Join(dir, "copy.yaml")
	cfg.Output.Format = config.FormatGo
	cfg.Output.GoPackage = "shop"

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	require.NoError(t, app.Shutdown(context.Background()))

	_, err = os.Stat(cfg.Source.SaveSnapshot)
	assert.ErrorIs(t, err, os.ErrNotExist, "snapshot sources are not re-saved")

	out, err := os.ReadFile(cfg.Output.Path)
	require.NoError(t, err)
	assert.Contains(t, string(out), "package shop")
	assert.Contains(t, string(out), "type Customer struct")

	cache, err := snapshot.OpenCache(snapshot.CacheOptions{Path: cfg.Cache.Path})
	require.NoError(t, err)
	defer cache.Close()
	n, err := cache.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInit_MissingSnapshotFails(t *testing.T) {
	cfg, in := snapshotConfig(t)
	require.NoError(t, os.Remove(in))

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	err = app.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatch_SnapshotEditRepublishes(t *testing.T) {
	cfg, in := snapshotConfig(t)
	cfg.Watch.Enabled = true

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	serverErrors, err := app.Start()
	require.NoError(t, err)
	assert.Nil(t, serverErrors, "no address, no server")

	writeSnapshot(t, in, "customers", "orders")

	require.Eventually(t, func() bool {
		out, err := os.ReadFile(cfg.Output.Path)
		return err == nil && strings.Contains(string(out), "name: Order")
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWaitForStop_SignalWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)

	stop <- syscall.SIGTERM

	reason, err := app.WaitForStop(stop, serverErrors)
	require.NoError(t, err)
	assert.Equal(t, "signal", reason)
}

func TestWaitForStop_ServerErrorWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)
	serverErrors <- errors.New("boom")

	reason, err := app.WaitForStop(stop, serverErrors)
	require.Error(t, err)
	assert.Equal(t, "server_error", reason)
}

func TestWaitForStop_NoChannels(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.WaitForStop(nil, nil)
	assert.Error(t, err)
}

func TestShutdown_Idempotent(t *testing.T) {
	app := &App{logger: testLogger()}
	var calls int32
	app.cleanup.push("test", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, app.Shutdown(ctx))
	require.NoError(t, app.Shutdown(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCleanupStack_RunsInReverse(t *testing.T) {
	var order []string
	var stack cleanupStack
	for _, name := range []string{"first", "second", "third"} {
		stack.push(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	stack.push("failing", func(context.Context) error { return errors.New("ignored") })

	stack.run(context.Background(), testLogger())
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestStart_BeforeInit_Fails(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.Start()
	assert.Error(t, err)
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, testLogger())
	assert.Error(t, err)
	_, err = New(&config.Config{}, nil)
	assert.Error(t, err)
}

func TestWaitForDatabase_RetriesUntilPingSucceeds(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	cfg := &config.Config{Database: config.DatabaseConfig{
		ConnectionTimeout:       5 * time.Second,
		ConnectionRetryInterval: time.Millisecond,
	}}
	require.NoError(t, waitForDatabase(context.Background(), cfg, testLogger(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitForDatabase_ZeroTimeoutTriesOnce(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	err = waitForDatabase(context.Background(), &config.Config{}, testLogger(), db)
	assert.ErrorContains(t, err, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteCharsAndDriverSystem(t *testing.T) {
	prefix, suffix := quoteChars(config.DriverPostgres)
	assert.Equal(t, `"`, prefix)
	assert.Equal(t, `"`, suffix)
	prefix, _ = quoteChars(config.DriverMySQL)
	assert.Equal(t, "`", prefix)

	name, attr := driverSystem(config.DriverPostgres)
	assert.Equal(t, "postgres", name)
	assert.Equal(t, "postgresql", attr.Value.AsString())
	name, _ = driverSystem(config.DriverMySQL)
	assert.Equal(t, "mysql", name)
}

func TestHTTPHandlers(t *testing.T) {
	cfg, _ := snapshotConfig(t)
	cfg.Output.GoPackage = "shop"
	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	handler := wrapHTTPHandler(cfg, testLogger(), buildRouter(cfg, testLogger(), app, nil))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, app.Current().RunID, health.RunID)
	assert.Equal(t, 1, health.Entities)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/model?format=go", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "package shop")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/model?format=toml", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/refresh", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	before := app.Current().RunID
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/refresh", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, before, app.Current().RunID)
}

func TestHealthHandler_NotReady(t *testing.T) {
	app := &App{logger: testLogger()}
	rec := httptest.NewRecorder()
	healthHandler(app)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
