package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ResolutionMetrics records resolution runs, cache lookups and watch checks.
// It satisfies mapping.Recorder.
type ResolutionMetrics struct {
	runCounter     metric.Int64Counter
	failureCounter metric.Int64Counter
	durationHist   metric.Float64Histogram
	cacheCounter   metric.Int64Counter
	checkCounter   metric.Int64Counter

	entities        atomic.Int64
	associations    atomic.Int64
	lastSuccessUnix atomic.Int64
}

// InitResolutionMetrics registers resolution instruments on the global meter
// provider.
func InitResolutionMetrics(logger *slog.Logger) (*ResolutionMetrics, error) {
	m, err := NewResolutionMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, err
	}
	logger.Debug("resolution metrics initialized")
	return m, nil
}

// NewResolutionMetrics registers resolution instruments on provider.
func NewResolutionMetrics(provider metric.MeterProvider) (*ResolutionMetrics, error) {
	meter := provider.Meter(meterName)

	runCounter, err := meter.Int64Counter(
		"schemamap.resolution.runs",
		metric.WithDescription("Total number of resolution runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolution run counter: %w", err)
	}

	failureCounter, err := meter.Int64Counter(
		"schemamap.resolution.failures",
		metric.WithDescription("Total number of failed resolution runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolution failure counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"schemamap.resolution.duration",
		metric.WithDescription("Duration of resolution runs in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolution duration histogram: %w", err)
	}

	cacheCounter, err := meter.Int64Counter(
		"schemamap.cache.lookups",
		metric.WithDescription("Schema cache lookups by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache lookup counter: %w", err)
	}

	checkCounter, err := meter.Int64Counter(
		"schemamap.watch.checks",
		metric.WithDescription("Schema change checks performed in watch mode"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watch check counter: %w", err)
	}

	entitiesGauge, err := meter.Int64ObservableGauge(
		"schemamap.model.entities",
		metric.WithDescription("Entities in the last resolved model"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create entities gauge: %w", err)
	}

	associationsGauge, err := meter.Int64ObservableGauge(
		"schemamap.model.associations",
		metric.WithDescription("Associations in the last resolved model"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create associations gauge: %w", err)
	}

	lastSuccessGauge, err := meter.Int64ObservableGauge(
		"schemamap.resolution.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful resolution"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create last success gauge: %w", err)
	}

	m := &ResolutionMetrics{
		runCounter:     runCounter,
		failureCounter: failureCounter,
		durationHist:   durationHist,
		cacheCounter:   cacheCounter,
		checkCounter:   checkCounter,
	}

	_, err = meter.RegisterCallback(
		func(_ context.Context, observer metric.Observer) error {
			last := m.lastSuccessUnix.Load()
			if last == 0 {
				return nil
			}
			observer.ObserveInt64(entitiesGauge, m.entities.Load())
			observer.ObserveInt64(associationsGauge, m.associations.Load())
			observer.ObserveInt64(lastSuccessGauge, last)
			return nil
		},
		entitiesGauge, associationsGauge, lastSuccessGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register resolution gauge callback: %w", err)
	}
	return m, nil
}

// RecordRun records the outcome of one resolution run.
func (m *ResolutionMetrics) RecordRun(ctx context.Context, runID string, duration time.Duration, entities, associations int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", err == nil))
	m.runCounter.Add(ctx, 1, attrs)
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), attrs)

	if err != nil {
		m.failureCounter.Add(ctx, 1)
		return
	}
	m.entities.Store(int64(entities))
	m.associations.Store(int64(associations))
	m.lastSuccessUnix.Store(time.Now().Unix())
}

// RecordCacheLookup counts a schema cache hit or miss.
func (m *ResolutionMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordCheck counts a watch-mode change check. trigger is "poll" or "file".
func (m *ResolutionMetrics) RecordCheck(ctx context.Context, trigger string, changed bool) {
	if m == nil {
		return
	}
	m.checkCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.Bool("changed", changed),
	))
}
