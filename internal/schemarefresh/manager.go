// Package schemarefresh resolves a schema into a document and keeps it
// current: polling the source fingerprint with backoff, and reacting to
// snapshot file edits immediately.
package schemarefresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"schemamap/internal/introspection"
	"schemamap/internal/observability"
)

// Check triggers.
const (
	TriggerPoll = "poll"
	TriggerFile = "file"
)

// PublishFunc receives every new result, including the first.
type PublishFunc func(ctx context.Context, result *Result) error

// Config controls schema refresh behavior.
type Config struct {
	Build BuildConfig
	// WatchPath is a file whose edits trigger an immediate check.
	WatchPath   string
	MinInterval time.Duration
	MaxInterval time.Duration
	Publish     PublishFunc
	Metrics     *observability.ResolutionMetrics
	Logger      *slog.Logger
}

// Manager maintains the latest resolution and refreshes it on change.
type Manager struct {
	build       BuildConfig
	watchPath   string
	minInterval time.Duration
	maxInterval time.Duration
	publish     PublishFunc
	metrics     *observability.ResolutionMetrics
	logger      *slog.Logger

	// buildMu serializes build and publish so results go out in the order
	// they were built.
	buildMu sync.Mutex
	active  atomic.Pointer[Result]
	trigger chan struct{}
	wg      sync.WaitGroup
}

// NewManager performs the initial resolution and returns a manager holding
// it. The initial result is published before NewManager returns.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Build.Source == nil {
		return nil, fmt.Errorf("schema refresh manager requires a source")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	minInterval := cfg.MinInterval
	maxInterval := cfg.MaxInterval
	if minInterval <= 0 {
		minInterval = 30 * time.Second
	}
	if maxInterval <= 0 {
		maxInterval = 5 * time.Minute
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}

	m := &Manager{
		build:       cfg.Build,
		watchPath:   cfg.WatchPath,
		minInterval: minInterval,
		maxInterval: maxInterval,
		publish:     cfg.Publish,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With(slog.String("component", "schema_refresh")),
		trigger:     make(chan struct{}, 1),
	}
	if m.build.Logger == nil {
		m.build.Logger = cfg.Logger
	}
	if m.build.Metrics == nil {
		m.build.Metrics = cfg.Metrics
	}

	if _, err := m.rebuild(ctx, introspection.FingerprintDetails{}); err != nil {
		return nil, err
	}
	return m, nil
}

// Current returns the active result.
func (m *Manager) Current() *Result {
	return m.active.Load()
}

// Start begins the background refresh loop and, when a watch path is set,
// the file watcher. Both stop when ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	if m.watchPath != "" {
		if err := m.watchFile(ctx); err != nil {
			return err
		}
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(ctx)
	}()
	return nil
}

// RefreshNow rebuilds and publishes regardless of the fingerprint.
func (m *Manager) RefreshNow(ctx context.Context) error {
	_, err := m.rebuild(ctx, introspection.FingerprintDetails{})
	return err
}

// rebuild builds and publishes under buildMu. A known fingerprint that the
// active result already carries is not rebuilt; the active result is
// returned with a nil error.
func (m *Manager) rebuild(ctx context.Context, fingerprint introspection.FingerprintDetails) (*Result, error) {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	if current := m.Current(); current != nil && fingerprint.Value != "" && fingerprint.Value == current.Fingerprint.Value {
		return current, nil
	}
	result, err := Build(ctx, m.build, fingerprint)
	if err != nil {
		return nil, err
	}
	if err := m.swap(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to publish schema: %w", err)
	}
	return result, nil
}

// Wait blocks until the background goroutines exit or ctx is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refreshLoop(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schema refresh stopped")
			return
		case <-timer.C:
			m.refreshOnce(ctx, TriggerPoll, &interval)
		case <-m.trigger:
			m.refreshOnce(ctx, TriggerFile, &interval)
		}
		timer.Reset(interval)
	}
}

// refreshOnce rebuilds when the fingerprint moved. Unchanged checks back the
// interval off towards the maximum; changes and failures reset it.
func (m *Manager) refreshOnce(ctx context.Context, trigger string, interval *time.Duration) {
	fingerprint, err := m.build.Source.Fingerprint(ctx)
	if err != nil {
		m.logger.Warn("schema fingerprint check failed",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
		m.metrics.RecordCheck(ctx, trigger, false)
		*interval = m.minInterval
		return
	}

	current := m.Current()
	if current != nil && fingerprint.Value == current.Fingerprint.Value {
		m.metrics.RecordCheck(ctx, trigger, false)
		*interval = nextInterval(*interval, m.minInterval, m.maxInterval)
		return
	}
	m.metrics.RecordCheck(ctx, trigger, true)

	var previous map[string]string
	if current != nil {
		previous = current.Fingerprint.Components
	}
	m.logger.Info("schema change detected, rebuilding",
		slog.String("trigger", trigger),
		slog.String("fingerprint", fingerprint.Value),
		slog.String("fingerprint_mode", fingerprint.Mode),
		slog.Any("changed_components", introspection.ChangedComponents(previous, fingerprint.Components)),
	)

	*interval = m.minInterval
	result, err := m.rebuild(ctx, fingerprint)
	if err != nil {
		m.logger.Error("failed to rebuild schema", slog.String("error", err.Error()))
		return
	}
	m.logger.Info("schema refresh complete",
		slog.String("run_id", result.RunID),
		slog.String("fingerprint", result.Fingerprint.Value),
		slog.Int("entities", len(result.Document.Entities)),
	)
}

// swap publishes result and makes it current. A failed publish keeps the
// previous result so the next check retries.
func (m *Manager) swap(ctx context.Context, result *Result) error {
	if m.publish != nil {
		if err := m.publish(ctx, result); err != nil {
			return err
		}
	}
	m.active.Store(result)
	return nil
}

// watchFile watches the directory holding watchPath, so editors that
// replace the file by rename are still seen.
func (m *Manager) watchFile(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	target := filepath.Clean(m.watchPath)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", target, err)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				m.logger.Debug("watched file changed", slog.String("path", target), slog.String("op", event.Op.String()))
				m.notify()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if !errors.Is(err, fsnotify.ErrEventOverflow) {
					m.logger.Warn("file watcher error", slog.String("error", err.Error()))
					continue
				}
				// Events were dropped; check anyway.
				m.notify()
			}
		}
	}()
	return nil
}

// notify queues a check, coalescing bursts of events into one.
func (m *Manager) notify() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if next > maxInterval {
		return maxInterval
	}
	return next
}
