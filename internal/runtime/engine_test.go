package runtime_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy/internal/runtime"
	"github.com/aretw0/canopy/pkg/adapters/inproc"
	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/aretw0/canopy/pkg/registry"
	"github.com/aretw0/canopy/pkg/session"
)

// forestOf builds n candidates; the first `canyon` of them grow in LF10.
func forestOf(n, canyon int) []domain.Candidate {
	out := make([]domain.Candidate, n)
	for i := range out {
		lf := "LF01"
		if i < canyon {
			lf = "LF10"
		}
		out[i] = domain.Candidate{
			ID:         fmt.Sprintf("tree-%03d", i),
			Attributes: map[string]any{"land_form": []any{lf}},
		}
	}
	return out
}

type fixture struct {
	engine     *runtime.Engine
	store      *memory.Store
	evaluators *inproc.Registry
	reg        *registry.Registry
}

func newFixture(t *testing.T, catalog []domain.Candidate, opts ...runtime.Option) *fixture {
	t.Helper()
	reg := registry.MustDefault()
	store := memory.NewStore()
	evaluators := inproc.NewRegistry()
	mgr := session.NewManager(store, memory.NewCatalog(catalog))
	return &fixture{
		engine:     runtime.NewEngine(reg, mgr, evaluators, opts...),
		store:      store,
		evaluators: evaluators,
		reg:        reg,
	}
}

// seed stores a session positioned at stage with the given candidates.
func (f *fixture) seed(t *testing.T, id string, stage int, candidates []domain.Candidate) {
	t.Helper()
	s := domain.NewSession(id, candidates)
	s.StageIndex = stage
	require.NoError(t, f.store.Save(context.Background(), id, s))
}

func (f *fixture) ref(t *testing.T, index int) string {
	t.Helper()
	st, err := f.reg.StageAt(index)
	require.NoError(t, err)
	return st.EvaluatorRef
}

// validInput returns an accepted submission for the stage.
func validInput(st domain.Stage) domain.RawInput {
	if st.Kind == domain.KindCategorical {
		return domain.RawInput{Selection: st.Options[0].Code}
	}
	return domain.RawInput{From: fmt.Sprint(st.Min), To: fmt.Sprint(st.Max)}
}

func TestEngine_OutOfBoundsLeavesSessionUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, forestOf(10, 0))
	f.seed(t, "s", 3, forestOf(10, 0))

	res, err := f.engine.Submit(ctx, "s", domain.RawInput{From: "6.0", To: "7.0"})
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.ErrorIs(t, res.Error, domain.ErrOutOfBounds)

	view, err := f.engine.Current(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 3, view.StageIndex)
	assert.Equal(t, "soil_salt", view.Stage.ParameterID)
	assert.Equal(t, 10, view.CandidateCount)
	assert.Empty(t, view.Parameters)
	assert.Equal(t, int64(0), view.Revision, "a rejected submission must not commit")
}

func TestEngine_InvertedRange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, forestOf(5, 0))
	f.seed(t, "s", 3, forestOf(5, 0))

	res, err := f.engine.Submit(ctx, "s", domain.RawInput{From: "4.0", To: "2.0"})
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.ErrorIs(t, res.Error, domain.ErrInvertedRange)
	assert.Equal(t, 3, res.StageIndex)
}

func TestEngine_CategoricalNarrows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, forestOf(100, 42))
	f.evaluators.Register(f.ref(t, 1), inproc.AttributeEvaluator{})

	res, err := f.engine.Submit(ctx, "s", domain.RawInput{Selection: "LF10"})
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.True(t, res.Advanced)
	assert.False(t, res.FailOpen)
	assert.Equal(t, 2, res.StageIndex)
	assert.Equal(t, 42, res.CandidateCount)

	view, err := f.engine.Current(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, view.StageIndex)
	assert.Equal(t, 42, view.CandidateCount)
	assert.Equal(t, 100, view.CatalogSize)
	require.Len(t, view.Parameters, 1)
	assert.Equal(t, "land_form", view.Parameters[0].ParameterID)
	assert.Equal(t, domain.OptionParameter("LF10"), view.Parameters[0].Value)
}

func TestEngine_EvaluatorTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, forestOf(20, 0), runtime.WithEvaluatorTimeout(50*time.Millisecond))
	f.seed(t, "s", 5, forestOf(20, 0))

	release := make(chan struct{})
	defer close(release)
	// Ignores ctx on purpose: the engine must still give up at the deadline.
	f.evaluators.RegisterFunc(f.ref(t, 5), func(_ context.Context, req ports.EvaluationRequest) ([]domain.Candidate, error) {
		<-release
		return nil, nil
	})

	start := time.Now()
	res, err := f.engine.Submit(ctx, "s", domain.RawInput{From: "2", To: "4"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.False(t, res.Advanced)
	assert.ErrorIs(t, res.Error, domain.ErrEvaluatorTimeout)
	var ierr *domain.InvocationError
	require.ErrorAs(t, res.Error, &ierr)
	assert.True(t, ierr.Retryable())

	view, err := f.engine.Current(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 5, view.StageIndex)
	assert.Equal(t, 20, view.CandidateCount)
}

func TestEngine_UnavailableFailsOpen(t *testing.T) {
	ctx := context.Background()

	var failOpens []domain.InvocationCode
	hooks := domain.LifecycleHooks{
		OnFailOpen: func(_ context.Context, e *domain.EvaluatorEvent) {
			failOpens = append(failOpens, e.Code)
		},
	}
	f := newFixture(t, forestOf(30, 0), runtime.WithLifecycleHooks(hooks))
	f.seed(t, "s", 7, forestOf(30, 0))

	res, err := f.engine.Submit(ctx, "s", domain.RawInput{From: "5.5", To: "7.0"})
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.True(t, res.Advanced)
	assert.True(t, res.FailOpen)
	assert.Equal(t, domain.CodeEvaluatorUnavailable, res.FailOpenCode)
	assert.Equal(t, 8, res.StageIndex)
	assert.Equal(t, 30, res.CandidateCount)
	assert.Equal(t, []domain.InvocationCode{domain.CodeEvaluatorUnavailable}, failOpens)
}

func TestEngine_MalformedFailsOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, forestOf(8, 0))
	f.evaluators.RegisterFunc(f.ref(t, 1), func(context.Context, ports.EvaluationRequest) ([]domain.Candidate, error) {
		return nil, fmt.Errorf("%w: not json", domain.ErrMalformedOutput)
	})

	res, err := f.engine.Submit(ctx, "s", domain.RawInput{Selection: "LF01"})
	require.NoError(t, err)
	assert.True(t, res.Advanced)
	assert.True(t, res.FailOpen)
	assert.Equal(t, domain.CodeMalformedOutput, res.FailOpenCode)
	assert.Equal(t, 8, res.CandidateCount)
}

func TestEngine_StrictEvaluators(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, forestOf(8, 0), runtime.WithStrictEvaluators(true))

	res, err := f.engine.Submit(ctx, "s", domain.RawInput{Selection: "LF01"})
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.ErrorIs(t, res.Error, domain.ErrEvaluatorUnavailable)

	view, err := f.engine.Current(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, view.StageIndex)
}

func TestEngine_WalkToTerminal(t *testing.T) {
	ctx := context.Background()
	catalog := forestOf(64, 0)
	f := newFixture(t, catalog)

	// Every evaluator drops the last candidate it receives.
	for _, st := range f.reg.Stages() {
		if st.EvaluatorRef == "" {
			continue
		}
		f.evaluators.RegisterFunc(st.EvaluatorRef, func(_ context.Context, req ports.EvaluationRequest) ([]domain.Candidate, error) {
			if len(req.Candidates) == 0 {
				return req.Candidates, nil
			}
			return req.Candidates[:len(req.Candidates)-1], nil
		})
	}

	prevIndex, prevCount := 1, len(catalog)
	for i := 1; i <= f.reg.Len(); i++ {
		st, err := f.reg.StageAt(i)
		require.NoError(t, err)

		res, err := f.engine.Submit(ctx, "s", validInput(st))
		require.NoError(t, err)
		require.NoError(t, res.Error, "stage %d", i)
		require.True(t, res.Advanced)

		assert.Equal(t, prevIndex+1, res.StageIndex, "index advances by exactly one")
		assert.LessOrEqual(t, res.CandidateCount, prevCount, "candidates never grow")
		prevIndex, prevCount = res.StageIndex, res.CandidateCount
	}

	view, err := f.engine.Current(ctx, "s")
	require.NoError(t, err)
	assert.True(t, view.Terminal)
	assert.Equal(t, 24, view.StageIndex)
	assert.Equal(t, domain.KindTerminal, view.Stage.Kind)
	assert.InDelta(t, 1.0, view.Progress, 1e-9)
	assert.Len(t, view.Parameters, 23)
	assert.Len(t, view.Candidates, 64-23)
	assert.True(t, domain.IsSubset(view.Candidates, catalog))

	res, err := f.engine.Submit(ctx, "s", domain.RawInput{Selection: "LF01"})
	require.NoError(t, err)
	assert.False(t, res.Advanced)
	assert.True(t, res.Terminal)
	assert.ErrorIs(t, res.Error, domain.ErrAlreadyComplete)

	after, err := f.engine.Current(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, view.Revision, after.Revision, "terminal submit is a no-op")
}

func TestEngine_GoBackKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, forestOf(10, 4))
	f.evaluators.Register(f.ref(t, 1), inproc.AttributeEvaluator{})

	_, err := f.engine.Submit(ctx, "s", domain.RawInput{Selection: "LF10"})
	require.NoError(t, err)

	view, err := f.engine.GoBack(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, view.StageIndex)
	assert.Equal(t, 4, view.CandidateCount)
	assert.Len(t, view.Parameters, 1)

	view, err = f.engine.GoBack(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, view.StageIndex, "never below stage 1")
}

func TestEngine_GoBackFromTerminalIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, forestOf(5, 0))
	f.seed(t, "s", 24, forestOf(3, 0))

	before, err := f.engine.Current(ctx, "s")
	require.NoError(t, err)
	require.True(t, before.Terminal)

	after, err := f.engine.GoBack(ctx, "s")
	require.NoError(t, err)
	assert.True(t, after.Terminal)
	assert.Equal(t, 24, after.StageIndex)
	assert.Equal(t, before.Revision, after.Revision)

	// Reset still leaves the completed state.
	view, err := f.engine.Reset(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, view.StageIndex)
}

func TestEngine_ReplayReportsRevisedStageOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, forestOf(10, 4), runtime.WithReplayOnRevise(true))
	// Stage 1 has no evaluator and always fails open; stage 2 keeps three candidates.
	f.evaluators.RegisterFunc(f.ref(t, 2), func(_ context.Context, req ports.EvaluationRequest) ([]domain.Candidate, error) {
		return req.Candidates[:3], nil
	})

	res, err := f.engine.Submit(ctx, "s", domain.RawInput{Selection: "LF01"})
	require.NoError(t, err)
	require.True(t, res.FailOpen)

	_, err = f.engine.Submit(ctx, "s", domain.RawInput{Selection: "ST01"})
	require.NoError(t, err)
	_, err = f.engine.GoBack(ctx, "s")
	require.NoError(t, err)

	res, err = f.engine.Submit(ctx, "s", domain.RawInput{Selection: "ST02"})
	require.NoError(t, err)
	require.NoError(t, res.Error)
	assert.True(t, res.Advanced)
	assert.False(t, res.FailOpen, "stage 2 narrowed; stage 1 replay is not this submission's outcome")
	assert.Empty(t, res.FailOpenCode)
	assert.Equal(t, 3, res.CandidateCount)
}

func TestEngine_ReviseAfterGoBack(t *testing.T) {
	ctx := context.Background()
	catalog := forestOf(10, 4)

	t.Run("Baseline Narrows Current Set", func(t *testing.T) {
		f := newFixture(t, catalog)
		f.evaluators.Register(f.ref(t, 1), inproc.AttributeEvaluator{})

		_, err := f.engine.Submit(ctx, "s", domain.RawInput{Selection: "LF10"})
		require.NoError(t, err)
		_, err = f.engine.GoBack(ctx, "s")
		require.NoError(t, err)

		res, err := f.engine.Submit(ctx, "s", domain.RawInput{Selection: "LF01"})
		require.NoError(t, err)
		assert.Equal(t, 0, res.CandidateCount)

		view, err := f.engine.Current(ctx, "s")
		require.NoError(t, err)
		require.Len(t, view.Parameters, 1)
		assert.Equal(t, domain.OptionParameter("LF01"), view.Parameters[0].Value)
	})

	t.Run("Replay Recomputes From Catalog", func(t *testing.T) {
		f := newFixture(t, catalog, runtime.WithReplayOnRevise(true))
		f.evaluators.Register(f.ref(t, 1), inproc.AttributeEvaluator{})

		_, err := f.engine.Submit(ctx, "s", domain.RawInput{Selection: "LF10"})
		require.NoError(t, err)
		_, err = f.engine.GoBack(ctx, "s")
		require.NoError(t, err)

		res, err := f.engine.Submit(ctx, "s", domain.RawInput{Selection: "LF01"})
		require.NoError(t, err)
		assert.True(t, res.Advanced)
		assert.Equal(t, 6, res.CandidateCount)
	})
}

func TestEngine_Reset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, forestOf(100, 42))
	f.evaluators.Register(f.ref(t, 1), inproc.AttributeEvaluator{})

	_, err := f.engine.Submit(ctx, "s", domain.RawInput{Selection: "LF10"})
	require.NoError(t, err)

	view, err := f.engine.Reset(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, view.StageIndex)
	assert.Empty(t, view.Parameters)
	assert.Equal(t, 100, view.CandidateCount)

	view, err = f.engine.Current(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, view.StageIndex)
	assert.Empty(t, view.Parameters)
	assert.Equal(t, 100, view.CandidateCount)
}

func TestEngine_Hooks(t *testing.T) {
	ctx := context.Background()
	var (
		mu        sync.Mutex
		committed []int
		rejected  []int
		calls     int
		navigated []domain.EventType
	)
	hooks := domain.LifecycleHooks{
		OnStageCommitted: func(_ context.Context, e *domain.StageEvent) {
			mu.Lock()
			defer mu.Unlock()
			committed = append(committed, e.StageIndex)
		},
		OnStageRejected: func(_ context.Context, e *domain.StageEvent) {
			mu.Lock()
			defer mu.Unlock()
			rejected = append(rejected, e.StageIndex)
		},
		OnEvaluatorCall: func(context.Context, *domain.EvaluatorEvent) {
			mu.Lock()
			defer mu.Unlock()
			calls++
		},
		OnNavigate: func(_ context.Context, e *domain.StageEvent) {
			mu.Lock()
			defer mu.Unlock()
			navigated = append(navigated, e.Type)
		},
	}

	f := newFixture(t, forestOf(5, 5), runtime.WithLifecycleHooks(hooks))
	f.evaluators.Register(f.ref(t, 1), inproc.AttributeEvaluator{})

	_, err := f.engine.Submit(ctx, "s", domain.RawInput{Selection: "XX99"})
	require.NoError(t, err)
	_, err = f.engine.Submit(ctx, "s", domain.RawInput{Selection: "LF10"})
	require.NoError(t, err)
	_, err = f.engine.GoBack(ctx, "s")
	require.NoError(t, err)
	_, err = f.engine.Reset(ctx, "s")
	require.NoError(t, err)

	assert.Equal(t, []int{1}, rejected)
	assert.Equal(t, []int{1}, committed)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []domain.EventType{domain.EventNavigateBack, domain.EventReset}, navigated)
}

func TestEngine_ConcurrentSubmitsSerialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, forestOf(50, 0))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := f.engine.Current(ctx, "s")
			if err != nil || view.Terminal {
				return
			}
			_, _ = f.engine.Submit(ctx, "s", validInput(view.Stage))
		}()
	}
	wg.Wait()

	view, err := f.engine.Current(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(view.StageIndex-1), view.Revision, "one commit per advanced stage")
	assert.Len(t, view.Parameters, view.StageIndex-1)
}
