package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy/pkg/adapters/inproc"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
)

var testStage = domain.Stage{Index: 4, Kind: domain.KindRange, ParameterID: "soil_pollution", EvaluatorRef: "pollution", Min: 1, Max: 10}

func TestInvoker_Apply(t *testing.T) {
	input := []domain.Candidate{{ID: "a"}, {ID: "b"}}
	param := domain.RangeParameter(2, 3)

	cases := []struct {
		name     string
		fn       ports.EvaluatorFunc
		wantIDs  []string
		wantCode domain.InvocationCode
	}{
		{
			name: "narrows",
			fn: func(_ context.Context, req ports.EvaluationRequest) ([]domain.Candidate, error) {
				return req.Candidates[1:], nil
			},
			wantIDs: []string{"b"},
		},
		{
			name: "nil result means nothing matched",
			fn: func(context.Context, ports.EvaluationRequest) ([]domain.Candidate, error) {
				return nil, nil
			},
			wantIDs: []string{},
		},
		{
			name: "transport reports missing target",
			fn: func(context.Context, ports.EvaluationRequest) ([]domain.Candidate, error) {
				return nil, ports.ErrEvaluatorNotFound
			},
			wantIDs:  []string{"a", "b"},
			wantCode: domain.CodeEvaluatorUnavailable,
		},
		{
			name: "any other failure is malformed",
			fn: func(context.Context, ports.EvaluationRequest) ([]domain.Candidate, error) {
				return nil, errors.New("exit status 1")
			},
			wantIDs:  []string{"a", "b"},
			wantCode: domain.CodeMalformedOutput,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := inproc.NewRegistry()
			reg.Register("pollution", tc.fn)
			inv := NewInvoker(reg)

			out, err := inv.Apply(context.Background(), "s", testStage, param, input)
			require.NoError(t, err)
			assert.Equal(t, tc.wantCode != "", out.FailOpen)
			assert.Equal(t, tc.wantCode, out.Code)

			ids := make([]string, 0, len(out.Candidates))
			for _, c := range out.Candidates {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tc.wantIDs, ids)
		})
	}
}

func TestInvoker_NilResolver(t *testing.T) {
	out, err := NewInvoker(nil).Apply(context.Background(), "s", testStage, domain.RangeParameter(2, 3), []domain.Candidate{{ID: "a"}})
	require.NoError(t, err)
	assert.True(t, out.FailOpen)
	assert.Equal(t, domain.CodeEvaluatorUnavailable, out.Code)
}

func TestInvoker_CallerCancellation(t *testing.T) {
	reg := inproc.NewRegistry()
	reg.RegisterFunc("pollution", func(ctx context.Context, _ ports.EvaluationRequest) ([]domain.Candidate, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	inv := NewInvoker(reg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := inv.Apply(ctx, "s", testStage, domain.RangeParameter(2, 3), []domain.Candidate{{ID: "a"}})
	assert.ErrorIs(t, err, domain.ErrEvaluatorTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvoker_InputIsNotAliased(t *testing.T) {
	reg := inproc.NewRegistry()
	reg.RegisterFunc("pollution", func(_ context.Context, req ports.EvaluationRequest) ([]domain.Candidate, error) {
		req.Candidates[0] = domain.Candidate{ID: "mutated"}
		return req.Candidates, nil
	})

	input := []domain.Candidate{{ID: "a"}}
	_, err := NewInvoker(reg).Apply(context.Background(), "s", testStage, domain.RangeParameter(2, 3), input)
	require.NoError(t, err)
	assert.Equal(t, "a", input[0].ID)
}
