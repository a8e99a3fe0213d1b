// Package observability turns engine lifecycle hooks into Prometheus metrics
// and debug logs.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/canopy/pkg/domain"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	Submissions        *prometheus.CounterVec
	FailOpen           *prometheus.CounterVec
	EvaluatorDuration  *prometheus.HistogramVec
	Navigations        *prometheus.CounterVec
	CandidatesNarrowed prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_submissions_total",
				Help: "Stage submissions by outcome",
			},
			[]string{"stage", "outcome"},
		),
		FailOpen: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_evaluator_fail_open_total",
				Help: "Evaluator calls that passed candidates through unchanged",
			},
			[]string{"evaluator", "code"},
		),
		EvaluatorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canopy_evaluator_duration_seconds",
				Help:    "Duration of evaluator calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"evaluator", "code"},
		),
		Navigations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_navigations_total",
				Help: "Back and reset navigations",
			},
			[]string{"type"},
		),
		CandidatesNarrowed: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "canopy_candidates_removed_ratio",
				Help:    "Share of candidates removed by a committed stage",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
	}
	reg.MustRegister(m.Submissions, m.FailOpen, m.EvaluatorDuration, m.Navigations, m.CandidatesNarrowed)
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageCommitted: func(ctx context.Context, e *domain.StageEvent) {
			m.Submissions.WithLabelValues(strconv.Itoa(e.StageIndex), "committed").Inc()
			if e.Before > 0 && e.After <= e.Before {
				m.CandidatesNarrowed.Observe(float64(e.Before-e.After) / float64(e.Before))
			}
		},
		OnStageRejected: func(ctx context.Context, e *domain.StageEvent) {
			m.Submissions.WithLabelValues(strconv.Itoa(e.StageIndex), rejectionOutcome(e.Err)).Inc()
		},
		OnEvaluatorCall: func(ctx context.Context, e *domain.EvaluatorEvent) {
			m.EvaluatorDuration.WithLabelValues(e.EvaluatorRef, codeLabel(e.Code)).Observe(e.Duration.Seconds())
		},
		OnFailOpen: func(ctx context.Context, e *domain.EvaluatorEvent) {
			m.FailOpen.WithLabelValues(e.EvaluatorRef, codeLabel(e.Code)).Inc()
		},
		OnNavigate: func(ctx context.Context, e *domain.StageEvent) {
			m.Navigations.WithLabelValues(string(e.Type)).Inc()
		},
	}
}

func rejectionOutcome(err error) string {
	var (
		verr *domain.ValidationError
		ierr *domain.InvocationError
	)
	switch {
	case errors.Is(err, domain.ErrAlreadyComplete):
		return "complete"
	case errors.As(err, &ierr):
		return "evaluator_error"
	case errors.As(err, &verr):
		return "invalid"
	default:
		return "rejected"
	}
}

func codeLabel(code domain.InvocationCode) string {
	if code == "" {
		return "ok"
	}
	return string(code)
}

// DebugHooks logs every lifecycle event at Debug level.
func DebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageCommitted: func(ctx context.Context, e *domain.StageEvent) {
			logger.DebugContext(ctx, "Stage committed", "session_id", e.SessionID, "stage", e.StageIndex, "before", e.Before, "after", e.After)
		},
		OnStageRejected: func(ctx context.Context, e *domain.StageEvent) {
			logger.DebugContext(ctx, "Stage rejected", "session_id", e.SessionID, "stage", e.StageIndex, "err", e.Err)
		},
		OnEvaluatorCall: func(ctx context.Context, e *domain.EvaluatorEvent) {
			logger.DebugContext(ctx, "Evaluator call", "session_id", e.SessionID, "evaluator", e.EvaluatorRef, "duration", e.Duration, "code", e.Code)
		},
		OnFailOpen: func(ctx context.Context, e *domain.EvaluatorEvent) {
			logger.DebugContext(ctx, "Evaluator fail-open", "session_id", e.SessionID, "evaluator", e.EvaluatorRef, "code", e.Code)
		},
		OnNavigate: func(ctx context.Context, e *domain.StageEvent) {
			logger.DebugContext(ctx, "Navigate", "session_id", e.SessionID, "type", e.Type, "stage", e.StageIndex)
		},
	}
}

// Combine fans each event out to every hook set, in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnStageCommitted = chainStage(out.OnStageCommitted, h.OnStageCommitted)
		out.OnStageRejected = chainStage(out.OnStageRejected, h.OnStageRejected)
		out.OnNavigate = chainStage(out.OnNavigate, h.OnNavigate)
		out.OnEvaluatorCall = chainEvaluator(out.OnEvaluatorCall, h.OnEvaluatorCall)
		out.OnFailOpen = chainEvaluator(out.OnFailOpen, h.OnFailOpen)
	}
	return out
}

func chainStage(a, b func(context.Context, *domain.StageEvent)) func(context.Context, *domain.StageEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *domain.StageEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainEvaluator(a, b func(context.Context, *domain.EvaluatorEvent)) func(context.Context, *domain.EvaluatorEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *domain.EvaluatorEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
