package keystore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/keymint/internal/cache"
	"github.com/dropDatabas3/keymint/internal/domain/repository"
	"github.com/dropDatabas3/keymint/internal/registry"
	memstore "github.com/dropDatabas3/keymint/internal/store/adapters/memory"
)

func newExternalFixture(t *testing.T) (*Service, *registry.Memory) {
	t.Helper()
	reg := registry.NewMemory()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	reg.Put(repository.ExternalKey{
		ID:       "signer-1",
		Material: priv.Seed(),
		Status:   repository.ExternalKeyActive,
	})

	c := cache.NewMemory("", time.Minute)
	t.Cleanup(func() { c.Close() })
	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	svc := New(memstore.New(), c, reg, WithClock(func() time.Time { return base }))
	return svc, reg
}

func TestExternalSignVerifyRoundTrip(t *testing.T) {
	svc, _ := newExternalFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Provision(ctx, NamespaceOptions{
		ID:             "svc-ext",
		Algorithm:      "EdDSA",
		TokenTTLSecs:   600,
		ExternalKeyRef: "signer-1",
	}))

	token, err := svc.Sign(ctx, "svc-ext", map[string]any{"sub": "user-42"})
	require.NoError(t, err)

	// El kid de un token asimétrico es la referencia a secas, sin namespace.
	hdr, err := decodeHeader(token)
	require.NoError(t, err)
	assert.Equal(t, "signer-1", hdr.Kid)
	assert.Equal(t, "EdDSA", hdr.Alg)

	claims, err := svc.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims["sub"])
}

func TestExternalProvisionRequiresActiveRef(t *testing.T) {
	svc, reg := newExternalFixture(t)
	ctx := context.Background()

	err := svc.Provision(ctx, NamespaceOptions{
		ID: "svc-ext", Algorithm: "EdDSA", TokenTTLSecs: 600,
	})
	assert.ErrorIs(t, err, repository.ErrInvalidKey, "sin referencia")

	err = svc.Provision(ctx, NamespaceOptions{
		ID: "svc-ext", Algorithm: "EdDSA", TokenTTLSecs: 600, ExternalKeyRef: "nope",
	})
	assert.ErrorIs(t, err, repository.ErrInvalidKey, "referencia inexistente")

	reg.SetStatus("signer-1", repository.ExternalKeyRevoked)
	err = svc.Provision(ctx, NamespaceOptions{
		ID: "svc-ext", Algorithm: "EdDSA", TokenTTLSecs: 600, ExternalKeyRef: "signer-1",
	})
	assert.ErrorIs(t, err, repository.ErrInvalidKey, "referencia revocada")
}

func TestExternalRevocationIsImmediate(t *testing.T) {
	svc, reg := newExternalFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Provision(ctx, NamespaceOptions{
		ID:             "svc-ext",
		Algorithm:      "EdDSA",
		TokenTTLSecs:   600,
		ExternalKeyRef: "signer-1",
	}))
	token, err := svc.Sign(ctx, "svc-ext", map[string]any{"sub": "u"})
	require.NoError(t, err)

	// La revocación corta firma y verificación en la siguiente llamada: el
	// handler re-resuelve la referencia en cada uso, sin cachear material.
	reg.SetStatus("signer-1", repository.ExternalKeyRevoked)

	_, err = svc.Sign(ctx, "svc-ext", map[string]any{"sub": "u"})
	assert.ErrorIs(t, err, repository.ErrInvalidKey)

	_, err = svc.Verify(ctx, token)
	assert.ErrorIs(t, err, repository.ErrInvalidKey)
}
