package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/keymint/internal/domain/repository"
)

func testRecord(id string) *repository.NamespaceRecord {
	return &repository.NamespaceRecord{
		ID:                 id,
		Algorithm:          "HS256",
		TokenTTLSecs:       300,
		ClockToleranceSecs: 30,
		State:              json.RawMessage(`{"key":{"id":"k1","data":"AA=="}}`),
		CreatedAt:          time.Now().UTC(),
	}
}

func TestGetNotFound(t *testing.T) {
	a := New()
	_, err := a.Get(context.Background(), "nope")
	assert.True(t, repository.IsNotFound(err))
}

func TestInsertConflict(t *testing.T) {
	a := New()
	ctx := context.Background()

	require.NoError(t, a.Insert(ctx, testRecord("ns1")))
	err := a.Insert(ctx, testRecord("ns1"))
	assert.True(t, repository.IsConflict(err))
}

func TestGetReturnsCopy(t *testing.T) {
	a := New()
	ctx := context.Background()
	require.NoError(t, a.Insert(ctx, testRecord("ns1")))

	rec, err := a.Get(ctx, "ns1")
	require.NoError(t, err)
	rec.State[2] = 'X'

	again, err := a.Get(ctx, "ns1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":{"id":"k1","data":"AA=="}}`, string(again.State))
}

func TestUpdateStateIf(t *testing.T) {
	a := New()
	ctx := context.Background()
	require.NoError(t, a.Insert(ctx, testRecord("ns1")))

	newState := json.RawMessage(`{"key":{"id":"k2","data":"BB=="},"previous_key":{"id":"k1","data":"AA=="}}`)
	pred := repository.StatePredicate{Path: []string{"key", "id"}, Equals: "k1"}

	// Namespace inexistente: 0 filas, sin error.
	n, err := a.UpdateStateIf(ctx, "nope", newState, pred)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Predicado matchea: 1 fila.
	n, err = a.UpdateStateIf(ctx, "ns1", newState, pred)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rec, err := a.Get(ctx, "ns1")
	require.NoError(t, err)
	assert.JSONEq(t, string(newState), string(rec.State))

	// Mismo predicado otra vez: la clave vigente ya no es k1, 0 filas.
	n, err = a.UpdateStateIf(ctx, "ns1", newState, pred)
	require.NoError(t, err)
	assert.Zero(t, n)
}
