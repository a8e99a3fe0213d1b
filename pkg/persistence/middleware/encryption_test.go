package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/persistence/middleware"
	"github.com/aretw0/canopy/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func secretSession(id string) *domain.Session {
	s := domain.NewSession(id, []domain.Candidate{{ID: "oak", Name: "English Oak"}})
	s.SetParameter(1, "land_form", domain.OptionParameter("LF10"))
	s.StageIndex = 2
	s.Revision = 1
	return s
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunSessionStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)

	ctx := context.Background()
	require.NoError(t, secure.Save(ctx, "s", secretSession("s")))

	// The underlying store only sees the envelope.
	stored, err := underlying.Load(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, stored.Parameters)
	assert.Empty(t, stored.Candidates)
	assert.NotEmpty(t, stored.Sealed)
	assert.Equal(t, 2, stored.StageIndex)
	assert.Equal(t, int64(1), stored.Revision)

	loaded, err := secure.Load(ctx, "s")
	require.NoError(t, err)
	p, ok := loaded.Parameter("land_form")
	require.True(t, ok)
	assert.Equal(t, "LF10", p.Option)
	assert.Equal(t, "English Oak", loaded.Candidates[0].Name)
	assert.Empty(t, loaded.Sealed)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	secureOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	require.NoError(t, secureOld.Save(ctx, "r", secretSession("r")))

	secureNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	loaded, err := secureNew.Load(ctx, "r")
	require.NoError(t, err, "fallback key must decrypt")

	loaded.StageIndex = 3
	require.NoError(t, secureNew.Save(ctx, "r", loaded))

	_, err = secureOld.Load(ctx, "r")
	assert.Error(t, err, "old key alone cannot read data re-encrypted with the new key")
}

func TestEncryptionMiddleware_RejectsPlainSessions(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Save(ctx, "plain", secretSession("plain")))

	secure := middleware.Chain(underlying, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
	_, err := secure.Load(ctx, "plain")
	assert.ErrorIs(t, err, middleware.ErrNotSealed)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}

func TestParseKey(t *testing.T) {
	key := generateKey(t)
	got, err := middleware.ParseKey(hex.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = middleware.ParseKey("zz")
	assert.Error(t, err)
	_, err = middleware.ParseKey(hex.EncodeToString(key[:16]))
	assert.Error(t, err)
}
