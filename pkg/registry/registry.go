package registry

import (
	"fmt"

	"github.com/aretw0/canopy/pkg/domain"
)

// Registry is the ordered, immutable set of pipeline stages.
// It is safe for concurrent use because it is never mutated after New.
type Registry struct {
	stages   []domain.Stage
	terminal domain.Stage
}

// New builds a registry from stage definitions after checking their invariants.
func New(stages []domain.Stage) (*Registry, error) {
	if err := Validate(stages); err != nil {
		return nil, err
	}
	cp := make([]domain.Stage, len(stages))
	for i, s := range stages {
		s.Options = append([]domain.Option(nil), s.Options...)
		cp[i] = s
	}
	return &Registry{
		stages:   cp[:len(cp)-1],
		terminal: cp[len(cp)-1],
	}, nil
}

// MustDefault returns the built-in registry and panics if the table is broken.
func MustDefault() *Registry {
	r, err := New(Default())
	if err != nil {
		panic(fmt.Sprintf("registry: invalid built-in stages: %v", err))
	}
	return r
}

// StageAt returns the collecting stage at the 1-based index.
// Indices past the last collecting stage return domain.ErrStageNotFound,
// which the engine reads as "Terminal reached".
func (r *Registry) StageAt(index int) (domain.Stage, error) {
	if index < 1 || index > len(r.stages) {
		return domain.Stage{}, fmt.Errorf("%w: %d", domain.ErrStageNotFound, index)
	}
	return r.stages[index-1], nil
}

// Len returns N, the number of collecting stages.
func (r *Registry) Len() int {
	return len(r.stages)
}

// Terminal returns the display stage reached after stage N.
func (r *Registry) Terminal() domain.Stage {
	return r.terminal
}

// Total returns the number of stages including the Terminal one.
func (r *Registry) Total() int {
	return len(r.stages) + 1
}

// Stages returns a copy of every stage, Terminal last.
func (r *Registry) Stages() []domain.Stage {
	out := make([]domain.Stage, 0, r.Total())
	out = append(out, r.stages...)
	return append(out, r.terminal)
}

// ByParameter finds a collecting stage by its parameter id.
func (r *Registry) ByParameter(parameterID string) (domain.Stage, bool) {
	for _, s := range r.stages {
		if s.ParameterID == parameterID {
			return s, true
		}
	}
	return domain.Stage{}, false
}
