package inproc

import (
	"context"
	"strconv"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
)

// AttributeEvaluator filters candidates on catalog attributes keyed by the
// parameter ID.
//
// Categorical: the attribute is a code or a list of codes; the candidate is
// kept when the requested code is among them.
// Range: the attribute is a tolerance interval, either {"min":..,"max":..} or
// [min, max]; the candidate is kept when it covers the requested interval.
//
// Candidates without the attribute are dropped.
type AttributeEvaluator struct{}

// Evaluate implements ports.Evaluator.
func (AttributeEvaluator) Evaluate(ctx context.Context, req ports.EvaluationRequest) ([]domain.Candidate, error) {
	out := make([]domain.Candidate, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, ok := c.Attributes[req.ParameterID]
		if !ok {
			continue
		}
		if matches(req.Parameter, raw) {
			out = append(out, c)
		}
	}
	return out, nil
}

func matches(p domain.Parameter, raw any) bool {
	switch p.Kind {
	case domain.KindCategorical:
		return hasCode(raw, p.Option)
	case domain.KindRange:
		tolerance, ok := interval(raw)
		return ok && tolerance.Contains(p.Range)
	default:
		return false
	}
}

func hasCode(raw any, code string) bool {
	switch v := raw.(type) {
	case string:
		return v == code
	case []string:
		for _, s := range v {
			if s == code {
				return true
			}
		}
	case []any:
		for _, s := range v {
			if str, ok := s.(string); ok && str == code {
				return true
			}
		}
	}
	return false
}

func interval(raw any) (domain.Interval, bool) {
	switch v := raw.(type) {
	case domain.Interval:
		return v, true
	case map[string]any:
		lo, ok1 := number(v["min"])
		hi, ok2 := number(v["max"])
		return domain.Interval{From: lo, To: hi}, ok1 && ok2
	case []any:
		if len(v) != 2 {
			return domain.Interval{}, false
		}
		lo, ok1 := number(v[0])
		hi, ok2 := number(v[1])
		return domain.Interval{From: lo, To: hi}, ok1 && ok2
	case []float64:
		if len(v) != 2 {
			return domain.Interval{}, false
		}
		return domain.Interval{From: v[0], To: v[1]}, true
	}
	return domain.Interval{}, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
