package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract runs a suite of tests to verify that a SessionStore implementation
// adheres to the defined interface contract.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		s := domain.NewSession(sessionID, []domain.Candidate{
			{ID: "t1", Name: "Neem", Attributes: map[string]any{"soil_salt": []any{0.5, 4.0}}},
			{ID: "t2", Name: "Banyan"},
		})
		s.SetParameter(3, "soil_salt", domain.RangeParameter(2.0, 4.0))
		s.StageIndex = 4
		s.Revision = 3

		err := store.Save(ctx, sessionID, s)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, 4, loaded.StageIndex)
		assert.Equal(t, int64(3), loaded.Revision)
		assert.Len(t, loaded.Candidates, 2)

		// The committed interval must come back unchanged.
		p, ok := loaded.Parameter("soil_salt")
		require.True(t, ok)
		assert.Equal(t, domain.KindRange, p.Kind)
		assert.Equal(t, 2.0, p.Range.From)
		assert.Equal(t, 4.0, p.Range.To)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewSession(sessionID, nil))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewSession(id1, nil))
		_ = store.Save(ctx, id2, domain.NewSession(id2, nil))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
