package canopy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/internal/runtime"
	"github.com/aretw0/canopy/pkg/adapters/inproc"
	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/aretw0/canopy/pkg/registry"
	"github.com/aretw0/canopy/pkg/session"
)

// View is a snapshot of a session at its current stage.
type View = runtime.View

// Result reports the outcome of a submission.
type Result = runtime.Result

// Engine is the high-level entry point for the Canopy library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime  *runtime.Engine
	registry *registry.Registry
	sessions *session.Manager

	stages     []domain.Stage
	store      ports.SessionStore
	catalog    ports.CatalogSource
	evaluators ports.EvaluatorResolver
	locker     ports.DistributedLocker
	hooks      domain.LifecycleHooks
	logger     *slog.Logger

	runtimeOpts []runtime.Option
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStages replaces the built-in stage table.
func WithStages(stages []domain.Stage) Option {
	return func(e *Engine) {
		e.stages = stages
	}
}

// WithStore injects the session store (default: in-memory).
func WithStore(store ports.SessionStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithCatalog sets the source of the full candidate catalog.
func WithCatalog(catalog ports.CatalogSource) Option {
	return func(e *Engine) {
		e.catalog = catalog
	}
}

// WithEvaluators sets how stage evaluator refs are resolved.
// The default binds every stage to inproc.AttributeEvaluator.
func WithEvaluators(resolver ports.EvaluatorResolver) Option {
	return func(e *Engine) {
		e.evaluators = resolver
	}
}

// WithLocker enables cross-process session locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEvaluatorTimeout bounds each evaluator call.
func WithEvaluatorTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithEvaluatorTimeout(d))
	}
}

// WithStrictEvaluators makes missing or malformed evaluators fail the submission
// instead of passing candidates through.
func WithStrictEvaluators(strict bool) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithStrictEvaluators(strict))
	}
}

// WithReplayOnRevise recomputes candidates from the full catalog when a
// previously committed value is changed after going back.
func WithReplayOnRevise(enabled bool) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithReplayOnRevise(enabled))
	}
}

// New initializes a new Canopy Engine.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.stages == nil {
		eng.stages = registry.Default()
	}

	reg, err := registry.New(eng.stages)
	if err != nil {
		return nil, fmt.Errorf("invalid stage table: %w", err)
	}
	eng.registry = reg

	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	if eng.catalog == nil {
		eng.catalog = memory.NewCatalog(nil)
	}
	if eng.evaluators == nil {
		eng.evaluators = inproc.ForStages(reg.Stages())
	}

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}
	eng.sessions = session.NewManager(eng.store, eng.catalog, sessionOpts...)

	runtimeOpts := []runtime.Option{
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(eng.hooks),
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)
	eng.runtime = runtime.NewEngine(reg, eng.sessions, eng.evaluators, runtimeOpts...)

	return eng, nil
}

// Current returns the session's current stage, committed parameters and
// candidate count. Unknown sessions start fresh at stage 1.
func (e *Engine) Current(ctx context.Context, sessionID string) (View, error) {
	return e.runtime.Current(ctx, sessionID)
}

// Submit validates and applies one stage submission.
func (e *Engine) Submit(ctx context.Context, sessionID string, raw domain.RawInput) (Result, error) {
	return e.runtime.Submit(ctx, sessionID, raw)
}

// GoBack moves one stage back without undoing any filtering.
func (e *Engine) GoBack(ctx context.Context, sessionID string) (View, error) {
	return e.runtime.GoBack(ctx, sessionID)
}

// Reset starts the session over from stage 1 with the full catalog.
func (e *Engine) Reset(ctx context.Context, sessionID string) (View, error) {
	return e.runtime.Reset(ctx, sessionID)
}

// Delete removes a session entirely.
func (e *Engine) Delete(ctx context.Context, sessionID string) error {
	return e.sessions.Delete(ctx, sessionID)
}

// Sessions lists stored session ids.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// Inspect returns the raw stored session without initializing it.
func (e *Engine) Inspect(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.store.Load(ctx, sessionID)
}

// Stages returns every stage definition, Terminal last.
func (e *Engine) Stages() []domain.Stage {
	return e.registry.Stages()
}

// Registry returns the stage registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}
