package domain

import "fmt"

// StageKind is the closed set of stage behaviors.
type StageKind string

const (
	// KindCategorical collects a single option code from a fixed set.
	KindCategorical StageKind = "categorical"
	// KindRange collects a closed numeric interval inside the stage bounds.
	KindRange StageKind = "range"
	// KindTerminal displays the final results. It collects nothing.
	KindTerminal StageKind = "terminal"
)

// Valid reports whether k is one of the known kinds.
func (k StageKind) Valid() bool {
	switch k {
	case KindCategorical, KindRange, KindTerminal:
		return true
	}
	return false
}

// Option is one selectable code of a categorical stage.
type Option struct {
	Code        string `json:"code" yaml:"code"`
	Description string `json:"description" yaml:"description"`
}

// Stage is the immutable definition of one pipeline step.
type Stage struct {
	Index        int       `json:"index" yaml:"index"`
	Kind         StageKind `json:"kind" yaml:"kind"`
	Name         string    `json:"name" yaml:"name"`
	ParameterID  string    `json:"parameter_id" yaml:"parameter_id"`
	EvaluatorRef string    `json:"evaluator_ref,omitempty" yaml:"evaluator_ref,omitempty"`

	// Range configuration (Kind == KindRange). Bounds are inclusive.
	Min  float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max  float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Unit string  `json:"unit,omitempty" yaml:"unit,omitempty"`

	// Categorical configuration (Kind == KindCategorical).
	Options []Option `json:"options,omitempty" yaml:"options,omitempty"`
}

// HasOption reports whether code belongs to the stage's option set.
func (s Stage) HasOption(code string) bool {
	for _, o := range s.Options {
		if o.Code == code {
			return true
		}
	}
	return false
}

// Describe returns a short human label, e.g. "Soil Salt Range (0.1 - 5 EC (dS/m))".
func (s Stage) Describe() string {
	if s.Kind == KindRange {
		return fmt.Sprintf("%s (%g - %g %s)", s.Name, s.Min, s.Max, s.Unit)
	}
	return s.Name
}
