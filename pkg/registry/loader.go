package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/canopy/pkg/domain"
	"gopkg.in/yaml.v3"
)

// StageOverride adjusts a built-in stage, matched by parameter id.
// Zero values leave the built-in field untouched.
type StageOverride struct {
	ParameterID  string          `yaml:"parameter_id" json:"parameter_id"`
	Name         string          `yaml:"name" json:"name"`
	EvaluatorRef string          `yaml:"evaluator_ref" json:"evaluator_ref"`
	Min          *float64        `yaml:"min" json:"min"`
	Max          *float64        `yaml:"max" json:"max"`
	Unit         string          `yaml:"unit" json:"unit"`
	Options      []domain.Option `yaml:"options" json:"options"`
}

// StagesFile represents the structure of stages.yaml.
type StagesFile struct {
	Stages []StageOverride `yaml:"stages" json:"stages"`
}

// LoadFile reads a stage override file (YAML or JSON) and applies it to the
// built-in table. An empty path returns the built-in registry.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		return New(Default())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stages file: %w", err)
	}

	var file StagesFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	stages, err := Apply(Default(), file.Stages)
	if err != nil {
		return nil, err
	}
	return New(stages)
}

// Apply merges overrides into stages. Unknown parameter ids are rejected so
// typos do not silently fall back to the defaults.
func Apply(stages []domain.Stage, overrides []StageOverride) ([]domain.Stage, error) {
	out := make([]domain.Stage, len(stages))
	copy(out, stages)

	index := make(map[string]int, len(out))
	for i, s := range out {
		index[s.ParameterID] = i
	}

	for _, o := range overrides {
		i, ok := index[o.ParameterID]
		if !ok {
			return nil, fmt.Errorf("%w: override for unknown parameter %q", ErrInvalidRegistry, o.ParameterID)
		}
		s := out[i]
		if o.Name != "" {
			s.Name = o.Name
		}
		if o.EvaluatorRef != "" {
			s.EvaluatorRef = o.EvaluatorRef
		}
		if o.Min != nil {
			s.Min = *o.Min
		}
		if o.Max != nil {
			s.Max = *o.Max
		}
		if o.Unit != "" {
			s.Unit = o.Unit
		}
		if len(o.Options) > 0 {
			s.Options = o.Options
		}
		out[i] = s
	}
	return out, nil
}
