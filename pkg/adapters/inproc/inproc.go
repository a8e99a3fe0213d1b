// Package inproc provides evaluators that run inside the host process.
package inproc

import (
	"context"
	"sync"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
)

// Registry is an in-memory ports.EvaluatorResolver.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]ports.Evaluator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]ports.Evaluator)}
}

// Register binds ref to ev, replacing any previous binding.
func (r *Registry) Register(ref string, ev ports.Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[ref] = ev
}

// RegisterFunc is a shorthand for Register(ref, ports.EvaluatorFunc(fn)).
func (r *Registry) RegisterFunc(ref string, fn func(context.Context, ports.EvaluationRequest) ([]domain.Candidate, error)) {
	r.Register(ref, ports.EvaluatorFunc(fn))
}

// Resolve implements ports.EvaluatorResolver.
func (r *Registry) Resolve(ref string) (ports.Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.evaluators[ref]
	return ev, ok
}

// Chain tries each resolver in order and returns the first match.
type Chain []ports.EvaluatorResolver

// Resolve implements ports.EvaluatorResolver.
func (c Chain) Resolve(ref string) (ports.Evaluator, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if ev, ok := r.Resolve(ref); ok {
			return ev, true
		}
	}
	return nil, false
}

// ForStages registers an AttributeEvaluator for every non-terminal stage.
func ForStages(stages []domain.Stage) *Registry {
	r := NewRegistry()
	for _, st := range stages {
		if st.Kind == domain.KindTerminal || st.EvaluatorRef == "" {
			continue
		}
		r.Register(st.EvaluatorRef, AttributeEvaluator{})
	}
	return r
}
