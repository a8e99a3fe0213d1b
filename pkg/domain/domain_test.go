package domain_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameter_JSON(t *testing.T) {
	t.Run("Range", func(t *testing.T) {
		p := domain.RangeParameter(2.0, 4.0)
		data, err := json.Marshal(p)
		require.NoError(t, err)
		assert.JSONEq(t, `{"kind":"range","value":{"from":2,"to":4}}`, string(data))

		var back domain.Parameter
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, p.Equal(back))
	})

	t.Run("Categorical", func(t *testing.T) {
		p := domain.OptionParameter("LF10")
		data, err := json.Marshal(p)
		require.NoError(t, err)
		assert.JSONEq(t, `{"kind":"categorical","value":"LF10"}`, string(data))
	})

	t.Run("Unknown Kind", func(t *testing.T) {
		var p domain.Parameter
		err := json.Unmarshal([]byte(`{"kind":"weird","value":1}`), &p)
		assert.Error(t, err)
	})
}

func TestSession_SetParameterKeepsStageOrder(t *testing.T) {
	s := domain.NewSession("s1", nil)
	s.SetParameter(3, "soil_salt", domain.RangeParameter(1, 2))
	s.SetParameter(1, "land_form", domain.OptionParameter("LF01"))
	s.SetParameter(2, "soil_type", domain.OptionParameter("ST03"))
	s.SetParameter(1, "land_form", domain.OptionParameter("LF02"))

	require.Len(t, s.Parameters, 3)
	assert.Equal(t, "land_form", s.Parameters[0].ParameterID)
	assert.Equal(t, "soil_type", s.Parameters[1].ParameterID)
	assert.Equal(t, "soil_salt", s.Parameters[2].ParameterID)

	v, ok := s.Parameter("land_form")
	require.True(t, ok)
	assert.Equal(t, "LF02", v.Option)
}

func TestSession_CloneIsolation(t *testing.T) {
	s := domain.NewSession("s1", []domain.Candidate{{ID: "a"}, {ID: "b"}})
	c := s.Clone()
	c.Candidates = c.Candidates[:1]
	c.SetParameter(1, "land_form", domain.OptionParameter("LF01"))

	assert.Len(t, s.Candidates, 2)
	assert.Empty(t, s.Parameters)
}

func TestErrors_Is(t *testing.T) {
	err := &domain.ValidationError{Code: domain.CodeOutOfBounds, ParameterID: "soil_salt", Message: "from=6 outside [0.1, 5]"}
	assert.True(t, errors.Is(err, domain.ErrOutOfBounds))
	assert.False(t, errors.Is(err, domain.ErrInvertedRange))

	inv := &domain.InvocationError{Code: domain.CodeEvaluatorTimeout, EvaluatorRef: "tree_soil_drainage"}
	assert.True(t, errors.Is(inv, domain.ErrEvaluatorTimeout))
	assert.True(t, inv.Retryable())
}

func TestIsSubset(t *testing.T) {
	all := []domain.Candidate{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	assert.True(t, domain.IsSubset([]domain.Candidate{{ID: "c"}}, all))
	assert.False(t, domain.IsSubset([]domain.Candidate{{ID: "z"}}, all))
}
