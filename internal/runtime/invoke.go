package runtime

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
)

// DefaultEvaluatorTimeout bounds a single evaluator call.
const DefaultEvaluatorTimeout = 10 * time.Second

// Outcome is the result of folding one evaluator call into a candidate set.
type Outcome struct {
	Candidates []domain.Candidate

	// FailOpen is true when the evaluator could not narrow and the input set was passed through.
	FailOpen bool

	// Code is set on fail-open to say why.
	Code domain.InvocationCode

	Duration time.Duration
}

// Invoker calls stage evaluators with a bounded wait and applies the
// fail-open policy.
type Invoker struct {
	resolver ports.EvaluatorResolver
	timeout  time.Duration
	strict   bool
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
}

// NewInvoker creates an invoker. A nil resolver makes every evaluator unavailable.
func NewInvoker(resolver ports.EvaluatorResolver) *Invoker {
	return &Invoker{
		resolver: resolver,
		timeout:  DefaultEvaluatorTimeout,
		logger:   logging.NewNop(),
	}
}

type evalResult struct {
	candidates []domain.Candidate
	err        error
}

// Apply runs the stage's evaluator over candidates.
//
// EvaluatorUnavailable and MalformedOutput return the input unchanged with
// Outcome.FailOpen set, unless the invoker is strict. EvaluatorTimeout (and
// caller cancellation) is always returned as an *domain.InvocationError.
func (inv *Invoker) Apply(ctx context.Context, sessionID string, stage domain.Stage, param domain.Parameter, candidates []domain.Candidate) (Outcome, error) {
	start := time.Now()
	ref := stage.EvaluatorRef

	var ev ports.Evaluator
	ok := false
	if inv.resolver != nil && ref != "" {
		ev, ok = inv.resolver.Resolve(ref)
	}
	if !ok {
		return inv.failOpen(ctx, sessionID, stage, candidates, start,
			&domain.InvocationError{Code: domain.CodeEvaluatorUnavailable, EvaluatorRef: ref, Err: ports.ErrEvaluatorNotFound})
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	req := ports.EvaluationRequest{
		ParameterID: stage.ParameterID,
		Parameter:   param,
		Candidates:  domain.CloneCandidates(candidates),
	}

	// The evaluator runs on its own goroutine so a call that ignores ctx
	// cannot hold the request past the deadline.
	done := make(chan evalResult, 1)
	go func() {
		out, err := ev.Evaluate(callCtx, req)
		done <- evalResult{candidates: out, err: err}
	}()

	var res evalResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = evalResult{err: callCtx.Err()}
	}
	elapsed := time.Since(start)

	if res.err != nil && callCtx.Err() != nil {
		ierr := &domain.InvocationError{Code: domain.CodeEvaluatorTimeout, EvaluatorRef: ref, Err: res.err}
		inv.logger.WarnContext(ctx, "Evaluator timed out",
			"session_id", sessionID,
			"stage", stage.Index,
			"evaluator", ref,
			"timeout", inv.timeout,
		)
		inv.emitCall(ctx, sessionID, ref, elapsed, ierr.Code)
		return Outcome{}, ierr
	}

	if res.err != nil {
		code := domain.CodeMalformedOutput
		if errors.Is(res.err, ports.ErrEvaluatorNotFound) {
			code = domain.CodeEvaluatorUnavailable
		}
		return inv.failOpen(ctx, sessionID, stage, candidates, start,
			&domain.InvocationError{Code: code, EvaluatorRef: ref, Err: res.err})
	}

	if len(res.candidates) > len(candidates) {
		inv.logger.WarnContext(ctx, "Evaluator returned more candidates than it received",
			"session_id", sessionID,
			"evaluator", ref,
			"before", len(candidates),
			"after", len(res.candidates),
		)
	}
	out := res.candidates
	if out == nil {
		out = []domain.Candidate{}
	}

	inv.emitCall(ctx, sessionID, ref, elapsed, "")
	return Outcome{Candidates: out, Duration: elapsed}, nil
}

func (inv *Invoker) failOpen(ctx context.Context, sessionID string, stage domain.Stage, candidates []domain.Candidate, start time.Time, ierr *domain.InvocationError) (Outcome, error) {
	elapsed := time.Since(start)
	inv.emitCall(ctx, sessionID, ierr.EvaluatorRef, elapsed, ierr.Code)

	if inv.strict {
		return Outcome{}, ierr
	}

	inv.logger.WarnContext(ctx, "Evaluator failed, passing candidates through",
		"session_id", sessionID,
		"stage", stage.Index,
		"evaluator", ierr.EvaluatorRef,
		"code", ierr.Code,
		"err", ierr.Err,
	)
	if inv.hooks.OnFailOpen != nil {
		inv.hooks.OnFailOpen(ctx, &domain.EvaluatorEvent{
			EventBase:    domain.EventBase{Timestamp: time.Now(), Type: domain.EventFailOpen, SessionID: sessionID},
			EvaluatorRef: ierr.EvaluatorRef,
			Duration:     elapsed,
			Code:         ierr.Code,
		})
	}

	return Outcome{
		Candidates: domain.CloneCandidates(candidates),
		FailOpen:   true,
		Code:       ierr.Code,
		Duration:   elapsed,
	}, nil
}

func (inv *Invoker) emitCall(ctx context.Context, sessionID, ref string, d time.Duration, code domain.InvocationCode) {
	if inv.hooks.OnEvaluatorCall == nil {
		return
	}
	inv.hooks.OnEvaluatorCall(ctx, &domain.EvaluatorEvent{
		EventBase:    domain.EventBase{Timestamp: time.Now(), Type: domain.EventEvaluatorCall, SessionID: sessionID},
		EvaluatorRef: ref,
		Duration:     d,
		Code:         code,
	})
}
