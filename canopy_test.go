package canopy_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/registry"
)

func TestNew_Defaults(t *testing.T) {
	engine, err := canopy.New()
	require.NoError(t, err)

	assert.Len(t, engine.Stages(), 24)
	assert.Equal(t, 23, engine.Registry().Len())

	view, err := engine.Current(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, 1, view.StageIndex)
	assert.Equal(t, "Land Forms", view.Stage.Name)
	assert.Equal(t, 0, view.CandidateCount)

	ids, err := engine.Sessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, ids)
}

func TestNew_RejectsBrokenStages(t *testing.T) {
	_, err := canopy.New(canopy.WithStages([]domain.Stage{
		{Index: 1, Kind: domain.KindRange, ParameterID: "x", Min: 5, Max: 1},
	}))
	assert.ErrorIs(t, err, registry.ErrInvalidRegistry)
}

func TestEngine_DeleteAndInspect(t *testing.T) {
	ctx := context.Background()
	engine, err := canopy.New()
	require.NoError(t, err)

	_, err = engine.Current(ctx, "s")
	require.NoError(t, err)

	s, err := engine.Inspect(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, s.StageIndex)

	require.NoError(t, engine.Delete(ctx, "s"))
	_, err = engine.Inspect(ctx, "s")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRunner_Headless(t *testing.T) {
	catalog := memory.NewCatalog([]domain.Candidate{
		{ID: "oak", Name: "English Oak", Attributes: map[string]any{"land_form": []any{"LF01"}}},
		{ID: "fir", Name: "Silver Fir", Attributes: map[string]any{"land_form": []any{"LF02"}}},
	})
	engine, err := canopy.New(canopy.WithCatalog(catalog))
	require.NoError(t, err)

	// Stage 1 by position, then an invalid selection, a step back, a retry and quit.
	input := strings.Join([]string{"1", "ST99", "back", "LF01", "quit"}, "\n") + "\n"
	var out bytes.Buffer

	runner := canopy.NewRunner("cli")
	runner.Input = strings.NewReader(input)
	runner.Output = &out
	runner.Headless = true

	require.NoError(t, runner.Run(context.Background(), engine))

	got := out.String()
	assert.Contains(t, got, "# Stage 1/24: Land Forms")
	assert.Contains(t, got, "# Stage 2/24: Soil Type")
	assert.Contains(t, got, "UnknownOption")
	assert.Contains(t, got, "Bye!")

	view, err := engine.Current(context.Background(), "cli")
	require.NoError(t, err)
	assert.Equal(t, 2, view.StageIndex)
	assert.Equal(t, 1, view.CandidateCount)
}

func TestRunner_RequiresIO(t *testing.T) {
	engine, err := canopy.New()
	require.NoError(t, err)

	err = canopy.NewRunner("x").Run(context.Background(), engine)
	assert.Error(t, err)
}

func TestRunner_StopsAtTerminal(t *testing.T) {
	stages := []domain.Stage{
		{Index: 1, Kind: domain.KindCategorical, Name: "Land Forms", ParameterID: "land_form", EvaluatorRef: "tree_land_form",
			Options: []domain.Option{{Code: "LF01"}}},
		{Index: 2, Kind: domain.KindTerminal, Name: "Final Results", ParameterID: "final_results"},
	}
	catalog := memory.NewCatalog([]domain.Candidate{
		{ID: "oak", Name: "English Oak", Attributes: map[string]any{"land_form": "LF01"}},
	})
	engine, err := canopy.New(canopy.WithStages(stages), canopy.WithCatalog(catalog))
	require.NoError(t, err)

	var out bytes.Buffer
	runner := canopy.NewRunner("done")
	runner.Input = strings.NewReader("LF01\n")
	runner.Output = &out
	runner.Headless = true

	require.NoError(t, runner.Run(context.Background(), engine))
	assert.Contains(t, out.String(), "# Final Results")
	assert.Contains(t, out.String(), "| oak | English Oak |")
	assert.Contains(t, out.String(), "- land_form: LF01")
}
