package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/canopy/pkg/domain"
)

// ErrInvalidRegistry wraps every structural problem found by Validate.
var ErrInvalidRegistry = errors.New("invalid stage registry")

// Validate checks the registry invariants: contiguous 1-based indices,
// exactly one Terminal stage placed last, unique parameter ids, sane
// bounds for Range stages and non-empty unique options for Categorical ones.
func Validate(stages []domain.Stage) error {
	if len(stages) < 2 {
		return fmt.Errorf("%w: need at least one collecting stage and a terminal stage", ErrInvalidRegistry)
	}

	var problems []string
	seenParams := make(map[string]int)
	terminals := 0

	for i, s := range stages {
		if s.Index != i+1 {
			problems = append(problems, fmt.Sprintf("stage at position %d has index %d", i+1, s.Index))
		}
		if !s.Kind.Valid() {
			problems = append(problems, fmt.Sprintf("stage %d: unknown kind %q", s.Index, s.Kind))
			continue
		}
		if s.ParameterID == "" {
			problems = append(problems, fmt.Sprintf("stage %d: empty parameter id", s.Index))
		} else if prev, dup := seenParams[s.ParameterID]; dup {
			problems = append(problems, fmt.Sprintf("stage %d: parameter id %q already used by stage %d", s.Index, s.ParameterID, prev))
		} else {
			seenParams[s.ParameterID] = s.Index
		}

		switch s.Kind {
		case domain.KindTerminal:
			terminals++
			if i != len(stages)-1 {
				problems = append(problems, fmt.Sprintf("stage %d: terminal stage must be last", s.Index))
			}
			if s.EvaluatorRef != "" {
				problems = append(problems, fmt.Sprintf("stage %d: terminal stage cannot reference an evaluator", s.Index))
			}
		case domain.KindRange:
			if !(s.Min < s.Max) {
				problems = append(problems, fmt.Sprintf("stage %d: min %g must be below max %g", s.Index, s.Min, s.Max))
			}
		case domain.KindCategorical:
			if len(s.Options) == 0 {
				problems = append(problems, fmt.Sprintf("stage %d: categorical stage without options", s.Index))
			}
			codes := make(map[string]bool, len(s.Options))
			for _, o := range s.Options {
				if o.Code == "" || codes[o.Code] {
					problems = append(problems, fmt.Sprintf("stage %d: empty or duplicate option code %q", s.Index, o.Code))
				}
				codes[o.Code] = true
			}
		}
	}

	if terminals != 1 {
		problems = append(problems, fmt.Sprintf("expected exactly one terminal stage, found %d", terminals))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: found %d errors:\n- %s", ErrInvalidRegistry, len(problems), strings.Join(problems, "\n- "))
	}
	return nil
}
