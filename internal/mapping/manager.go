package mapping

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"schemamap/internal/model"
)

const tracerName = "schemamap/mapping"

// State is the lifecycle position of a Manager.
type State int

const (
	StateCreated State = iota
	StateLoading
	StatePopulated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StatePopulated:
		return "populated"
	default:
		return "created"
	}
}

// Recorder receives the outcome of a resolution run.
type Recorder interface {
	RecordRun(ctx context.Context, runID string, duration time.Duration, entities, associations int, err error)
}

// Manager drives one resolution run over a Context.
type Manager struct {
	mc       *Context
	recorder Recorder

	mu    sync.Mutex
	state State
	runID string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRecorder reports run outcomes to r.
func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = r
	}
}

// NewManager resets the store of mc and returns a manager in the created
// state.
func NewManager(mc *Context, opts ...ManagerOption) *Manager {
	mc.reset()
	m := &Manager{mc: mc, runID: uuid.NewString()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunID identifies this run in logs, metrics and rendered output.
func (m *Manager) RunID() string {
	return m.runID
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Context returns the run context.
func (m *Manager) Context() *Context {
	return m.mc
}

// Load populates the store from provider and resolves the entity graph. An
// invalid provider yields an empty, populated model.
func (m *Manager) Load(ctx context.Context, provider Provider) (err error) {
	if provider == nil {
		return ErrInvalidProvider
	}
	m.mu.Lock()
	if m.state != StateCreated {
		m.mu.Unlock()
		return ErrAlreadyLoaded
	}
	m.state = StateLoading
	m.mu.Unlock()

	logger := m.mc.Logger.With(slog.String("run_id", m.runID))
	ctx, span := otel.Tracer(tracerName).Start(ctx, "mapping.resolve")
	span.SetAttributes(attribute.String("run_id", m.runID))
	start := time.Now()

	defer func() {
		entities, associations := m.counts()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("schema resolution failed", slog.String("error", err.Error()))
			m.setState(StateCreated)
		} else {
			span.SetAttributes(
				attribute.Int("entities", entities),
				attribute.Int("associations", associations),
			)
			m.setState(StatePopulated)
		}
		span.End()
		if m.recorder != nil {
			m.recorder.RecordRun(ctx, m.runID, time.Since(start), entities, associations, err)
		}
	}()

	if !provider.Validate() {
		logger.Warn("schema provider failed validation, producing an empty model")
		return nil
	}

	if err := provider.Load(ctx, m.mc); err != nil {
		m.mc.reset()
		return err
	}

	all := m.mc.Store.Entities()
	dedupeEntityNames(all, logger)
	for _, e := range all {
		m.mc.initialize(e)
	}
	for _, e := range all {
		m.mc.validateAllMembers(e)
	}
	for _, e := range all {
		m.mc.finalizeSearchCriteria(e)
	}

	logger.Info("schema resolved",
		slog.Int("entities", len(all)),
		slog.Int("excluded", len(m.mc.Store.ExcludedNames())),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) counts() (entities, associations int) {
	all := m.mc.Store.Entities()
	for _, e := range all {
		associations += len(e.Associations())
	}
	return len(all), associations
}

// Entities returns the included entities sorted by full name. It is empty
// until the manager is populated.
func (m *Manager) Entities() []*model.Entity {
	if m.State() != StatePopulated {
		return nil
	}
	return m.mc.Store.Entities()
}

// ExcludedEntities returns the excluded entities that carry a model.
func (m *Manager) ExcludedEntities() []*model.Entity {
	if m.State() != StatePopulated {
		return nil
	}
	return m.mc.Store.ExcludedEntities()
}

// ExcludedNames returns every excluded full name.
func (m *Manager) ExcludedNames() []string {
	if m.State() != StatePopulated {
		return nil
	}
	return m.mc.Store.ExcludedNames()
}

// dedupeEntityNames suffixes the second and later entities sharing a name,
// in full name order.
func dedupeEntityNames(entities []*model.Entity, logger *slog.Logger) {
	groups := make(map[string][]*model.Entity)
	var order []string
	for _, e := range entities {
		k := strings.ToLower(e.Name)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}
	sort.Strings(order)
	for _, k := range order {
		group := groups[k]
		for i := 1; i < len(group); i++ {
			before := group[i].Name
			group[i].AppendNameSuffix(i)
			logger.Debug("renamed duplicate entity",
				slog.String("entity", group[i].FullName),
				slog.String("from", before),
				slog.String("to", group[i].Name),
			)
		}
	}
}
