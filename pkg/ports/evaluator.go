package ports

import (
	"context"
	"errors"

	"github.com/aretw0/canopy/pkg/domain"
)

// ErrEvaluatorNotFound is returned by transports when the evaluator target
// (script, binary, function) does not exist.
var ErrEvaluatorNotFound = errors.New("evaluator not found")

// EvaluationRequest is the payload handed to an evaluator.
type EvaluationRequest struct {
	ParameterID string             `json:"parameter_id"`
	Parameter   domain.Parameter   `json:"parameter"`
	Candidates  []domain.Candidate `json:"candidates"`
}

// Evaluator narrows a candidate list given one normalized parameter.
// The returned list is expected to be a subset (by ID) of the input.
// Implementations return domain.ErrMalformedOutput when their response cannot be decoded.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) ([]domain.Candidate, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, req EvaluationRequest) ([]domain.Candidate, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, req EvaluationRequest) ([]domain.Candidate, error) {
	return f(ctx, req)
}

// EvaluatorResolver maps a stage's evaluator reference to a callable target.
type EvaluatorResolver interface {
	Resolve(ref string) (Evaluator, bool)
}
