package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
)

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine and its invoker.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
			e.invoker.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
		e.invoker.hooks = hooks
	}
}

// WithEvaluatorTimeout bounds each evaluator call (default DefaultEvaluatorTimeout).
func WithEvaluatorTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.invoker.timeout = d
		}
	}
}

// WithStrictEvaluators turns the fail-open paths (unavailable, malformed)
// into request errors. Off by default.
func WithStrictEvaluators(strict bool) Option {
	return func(e *Engine) {
		e.invoker.strict = strict
	}
}

// WithReplayOnRevise makes a resubmission that changes an already committed
// value recompute the candidate set from the full catalog, replaying every
// committed parameter in stage order. Off by default: the new value only
// narrows the current set.
func WithReplayOnRevise(enabled bool) Option {
	return func(e *Engine) {
		e.replayOnRevise = enabled
	}
}
