package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/internal/validator"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/aretw0/canopy/pkg/registry"
	"github.com/aretw0/canopy/pkg/session"
)

// Engine is the pipeline controller. Each call is one read-validate-invoke-commit
// cycle executed under the session lock.
type Engine struct {
	registry *registry.Registry
	sessions *session.Manager
	invoker  *Invoker

	hooks          domain.LifecycleHooks
	logger         *slog.Logger
	replayOnRevise bool
}

// NewEngine creates a new engine with dependencies.
func NewEngine(reg *registry.Registry, sessions *session.Manager, resolver ports.EvaluatorResolver, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		sessions: sessions,
		invoker:  NewInvoker(resolver),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// View is a read-only snapshot of a session positioned at its current stage.
type View struct {
	SessionID  string                      `json:"session_id"`
	StageIndex int                         `json:"stage_index"`
	Total      int                         `json:"total"`
	Stage      domain.Stage                `json:"stage"`
	Terminal   bool                        `json:"terminal"`
	Progress   float64                     `json:"progress"`
	Parameters []domain.CommittedParameter `json:"parameters"`

	// CandidateCount is always set; Candidates only once Terminal is reached.
	CandidateCount int                `json:"candidate_count"`
	CatalogSize    int                `json:"catalog_size"`
	Candidates     []domain.Candidate `json:"candidates,omitempty"`
	Revision       int64              `json:"revision"`
}

// Result reports the outcome of a submission. Domain failures (validation,
// evaluator timeout, already complete) travel in Error; the error return of
// Submit is reserved for infrastructure failures.
type Result struct {
	Advanced       bool                  `json:"advanced"`
	Error          error                 `json:"-"`
	StageIndex     int                   `json:"stage_index"`
	CandidateCount int                   `json:"candidate_count"`
	Terminal       bool                  `json:"terminal"`
	FailOpen       bool                  `json:"fail_open"`
	FailOpenCode   domain.InvocationCode `json:"fail_open_code,omitempty"`
}

// Registry returns the stage registry the engine runs.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Sessions returns the session manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Current returns the view of the session, creating it if it does not exist yet.
func (e *Engine) Current(ctx context.Context, sessionID string) (View, error) {
	s, err := e.sessions.Load(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	return e.view(s), nil
}

// Submit validates raw against the current stage, invokes its evaluator and
// commits the narrowed candidates, advancing one stage.
func (e *Engine) Submit(ctx context.Context, sessionID string, raw domain.RawInput) (Result, error) {
	var (
		res    Result
		stage  domain.Stage
		before int
	)

	_, err := e.sessions.Update(ctx, sessionID, func(ctx context.Context, s *domain.Session) (*domain.Session, error) {
		before = len(s.Candidates)
		res.StageIndex = s.StageIndex
		res.CandidateCount = before

		if s.StageIndex > e.registry.Len() {
			res.Terminal = true
			res.Error = domain.ErrAlreadyComplete
			return nil, nil
		}

		var err error
		stage, err = e.registry.StageAt(s.StageIndex)
		if err != nil {
			return nil, err
		}

		param, err := validator.Validate(stage, raw)
		if err != nil {
			res.Error = err
			return nil, nil
		}

		outcome, err := e.evaluate(ctx, s, stage, param)
		if err != nil {
			var ierr *domain.InvocationError
			if errors.As(err, &ierr) {
				res.Error = err
				return nil, nil
			}
			return nil, err
		}

		s.SetParameter(stage.Index, stage.ParameterID, param)
		s.Candidates = outcome.Candidates
		s.StageIndex++
		s.History = append(s.History, s.StageIndex)

		res.Advanced = true
		res.StageIndex = s.StageIndex
		res.CandidateCount = len(s.Candidates)
		res.Terminal = s.StageIndex > e.registry.Len()
		res.FailOpen = outcome.FailOpen
		res.FailOpenCode = outcome.Code
		return s, nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("submit failed for session %s: %w", sessionID, err)
	}

	e.report(ctx, sessionID, stage, before, res)
	return res, nil
}

// evaluate applies the stage evaluator to the current candidates, or replays
// the whole parameter history when a committed value is being revised.
func (e *Engine) evaluate(ctx context.Context, s *domain.Session, stage domain.Stage, param domain.Parameter) (Outcome, error) {
	prev, committed := s.Parameter(stage.ParameterID)
	if !e.replayOnRevise || !committed || prev.Equal(param) {
		return e.invoker.Apply(ctx, s.ID, stage, param, s.Candidates)
	}

	e.logger.DebugContext(ctx, "Replaying parameters after revision",
		"session_id", s.ID,
		"parameter_id", stage.ParameterID,
		"from", prev.String(),
		"to", param.String(),
	)

	catalog, err := e.sessions.Catalog(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load catalog for replay: %w", err)
	}

	revised := s.Clone()
	revised.SetParameter(stage.Index, stage.ParameterID, param)

	acc := Outcome{Candidates: catalog}
	for _, cp := range revised.Parameters {
		st, err := e.registry.StageAt(cp.StageIndex)
		if err != nil {
			return Outcome{}, err
		}
		step, err := e.invoker.Apply(ctx, s.ID, st, cp.Value, acc.Candidates)
		if err != nil {
			return Outcome{}, err
		}
		acc.Candidates = step.Candidates
		acc.Duration += step.Duration
		// The result reports the revised stage only; earlier stages already
		// surfaced their own fail-open through the invoker's hooks.
		if cp.ParameterID == stage.ParameterID {
			acc.FailOpen = step.FailOpen
			acc.Code = step.Code
		} else if step.FailOpen {
			e.logger.DebugContext(ctx, "Replayed stage failed open",
				"session_id", s.ID,
				"stage", st.Index,
				"code", step.Code,
			)
		}
	}
	return acc, nil
}

func (e *Engine) report(ctx context.Context, sessionID string, stage domain.Stage, before int, res Result) {
	ev := &domain.StageEvent{
		EventBase:   domain.EventBase{Timestamp: time.Now(), SessionID: sessionID},
		StageIndex:  stage.Index,
		ParameterID: stage.ParameterID,
		Before:      before,
		After:       res.CandidateCount,
		Err:         res.Error,
	}

	if res.Advanced {
		ev.Type = domain.EventStageCommitted
		e.logger.InfoContext(ctx, "Stage committed",
			"session_id", sessionID,
			"stage", stage.Index,
			"parameter_id", stage.ParameterID,
			"before", before,
			"after", res.CandidateCount,
			"fail_open", res.FailOpen,
		)
		if e.hooks.OnStageCommitted != nil {
			e.hooks.OnStageCommitted(ctx, ev)
		}
		return
	}

	ev.Type = domain.EventStageRejected
	if ev.StageIndex == 0 {
		ev.StageIndex = res.StageIndex
	}
	e.logger.DebugContext(ctx, "Submission rejected",
		"session_id", sessionID,
		"stage", res.StageIndex,
		"err", res.Error,
	)
	if e.hooks.OnStageRejected != nil {
		e.hooks.OnStageRejected(ctx, ev)
	}
}

// GoBack moves the session one stage back (never below 1). Parameters and
// candidates are kept as they are. A completed session stays on the Terminal stage.
func (e *Engine) GoBack(ctx context.Context, sessionID string) (View, error) {
	s, err := e.sessions.Rewind(ctx, sessionID, e.registry.Len())
	if err != nil {
		return View{}, fmt.Errorf("go back failed for session %s: %w", sessionID, err)
	}
	e.navigated(ctx, domain.EventNavigateBack, s)
	return e.view(s), nil
}

// Reset discards all progress and returns the session at stage 1 over the full catalog.
func (e *Engine) Reset(ctx context.Context, sessionID string) (View, error) {
	s, err := e.sessions.Reset(ctx, sessionID)
	if err != nil {
		return View{}, fmt.Errorf("reset failed for session %s: %w", sessionID, err)
	}
	e.navigated(ctx, domain.EventReset, s)
	return e.view(s), nil
}

func (e *Engine) navigated(ctx context.Context, typ domain.EventType, s *domain.Session) {
	e.logger.DebugContext(ctx, "Session navigated", "session_id", s.ID, "type", typ, "stage", s.StageIndex)
	if e.hooks.OnNavigate == nil {
		return
	}
	e.hooks.OnNavigate(ctx, &domain.StageEvent{
		EventBase:  domain.EventBase{Timestamp: time.Now(), Type: typ, SessionID: s.ID},
		StageIndex: s.StageIndex,
		Before:     len(s.Candidates),
		After:      len(s.Candidates),
	})
}

func (e *Engine) view(s *domain.Session) View {
	v := View{
		SessionID:      s.ID,
		StageIndex:     s.StageIndex,
		Total:          e.registry.Total(),
		Parameters:     append([]domain.CommittedParameter(nil), s.Parameters...),
		CandidateCount: len(s.Candidates),
		CatalogSize:    s.CatalogSize,
		Revision:       s.Revision,
	}
	if v.Parameters == nil {
		v.Parameters = []domain.CommittedParameter{}
	}

	if stage, err := e.registry.StageAt(s.StageIndex); err == nil {
		v.Stage = stage
	} else {
		v.Terminal = true
		v.Stage = e.registry.Terminal()
		v.StageIndex = e.registry.Total()
		v.Candidates = domain.CloneCandidates(s.Candidates)
	}
	v.Progress = float64(v.StageIndex) / float64(v.Total)
	return v
}
