package keystore

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/keymint/internal/cache"
	"github.com/dropDatabas3/keymint/internal/domain/repository"
	"github.com/dropDatabas3/keymint/internal/registry"
	memstore "github.com/dropDatabas3/keymint/internal/store/adapters/memory"
)

// rotationCountingRepo envuelve el store compartido y cuenta los conditional
// updates que efectivamente ganaron (1 fila afectada).
type rotationCountingRepo struct {
	repository.NamespaceRepository
	wins int32
}

func (r *rotationCountingRepo) UpdateStateIf(ctx context.Context, id string, newState json.RawMessage, pred repository.StatePredicate) (int64, error) {
	n, err := r.NamespaceRepository.UpdateStateIf(ctx, id, newState, pred)
	if n == 1 {
		atomic.AddInt32(&r.wins, 1)
	}
	return n, err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func hmacState(t *testing.T, rec *repository.NamespaceRecord) repository.HmacKeyState {
	t.Helper()
	var state repository.HmacKeyState
	require.NoError(t, json.Unmarshal(rec.State, &state))
	return state
}

// La carrera central: varios procesos descubren a la vez que la clave expiró.
// Exactamente uno gana el conditional update; los demás recomputan desde un
// read limpio y firman con la clave del ganador.
func TestRotationExactlyOnceAcrossProcesses(t *testing.T) {
	const processes = 8

	shared := &rotationCountingRepo{NamespaceRepository: memstore.New()}
	clk := newTestClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))

	// Cada Service simula un proceso: cache y singleflight propios, store
	// compartido.
	services := make([]*Service, processes)
	for i := range services {
		c := cache.NewMemory("", time.Minute)
		t.Cleanup(func() { c.Close() })
		services[i] = New(shared, c, registry.NewMemory(),
			WithClock(clk.Now),
			WithRotationRetry(10, time.Millisecond),
		)
	}

	ctx := context.Background()
	require.NoError(t, services[0].Provision(ctx, NamespaceOptions{
		ID: "wallet-1", Algorithm: "HS256", TokenTTLSecs: 300, ClockToleranceSecs: 30,
	}))

	// Calentar el cache de cada proceso con el registro pre-rotación.
	for _, svc := range services {
		_, err := svc.Sign(ctx, "wallet-1", map[string]any{"sub": "warmup"})
		require.NoError(t, err)
	}

	initial, err := shared.Get(ctx, "wallet-1")
	require.NoError(t, err)
	initialKey := hmacState(t, initial).Key

	// Vida de la clave = ttl + tolerancia = 330s. Pasarla.
	clk.Advance(331 * time.Second)

	var wg sync.WaitGroup
	tokens := make([]string, processes)
	errs := make([]error, processes)
	for i, svc := range services {
		wg.Add(1)
		go func(i int, svc *Service) {
			defer wg.Done()
			tokens[i], errs[i] = svc.Sign(ctx, "wallet-1", map[string]any{"sub": "u"})
		}(i, svc)
	}
	wg.Wait()

	for i := 0; i < processes; i++ {
		require.NoError(t, errs[i], "proceso %d", i)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&shared.wins),
		"exactamente una rotación debe ganar")

	final, err := shared.Get(ctx, "wallet-1")
	require.NoError(t, err)
	state := hmacState(t, final)
	assert.NotEqual(t, initialKey.ID, state.Key.ID)
	require.NotNil(t, state.PreviousKey)
	assert.Equal(t, initialKey.ID, state.PreviousKey.ID)

	// Todos los tokens post-carrera llevan la clave del ganador y verifican
	// en cualquier proceso.
	wantKid := EncodeKid("wallet-1", state.Key.ID)
	for i, token := range tokens {
		hdr, err := decodeHeader(token)
		require.NoError(t, err)
		assert.Equal(t, wantKid, hdr.Kid, "proceso %d", i)

		_, err = services[(i+1)%processes].Verify(ctx, token)
		assert.NoError(t, err, "proceso %d", i)
	}
}

// Ventana de verificación: un token de la clave anterior sigue verificando
// después de una rotación y deja de hacerlo tras la segunda (nunca hay
// tercera generación).
func TestVerificationWindow(t *testing.T) {
	store := memstore.New()
	clk := newTestClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	c := cache.NewMemory("", time.Minute)
	t.Cleanup(func() { c.Close() })
	svc := New(store, c, registry.NewMemory(), WithClock(clk.Now))
	ctx := context.Background()

	require.NoError(t, svc.Provision(ctx, NamespaceOptions{
		ID: "wallet-1", Algorithm: "HS256", TokenTTLSecs: 300, ClockToleranceSecs: 30,
	}))

	// Firmar cerca del final de la vida de la clave inicial para que el token
	// siga temporalmente vigente después de la rotación.
	clk.Advance(329 * time.Second)
	oldToken, err := svc.Sign(ctx, "wallet-1", map[string]any{"sub": "u"})
	require.NoError(t, err)

	// Primera rotación.
	clk.Advance(2 * time.Second)
	_, err = svc.Sign(ctx, "wallet-1", map[string]any{"sub": "u"})
	require.NoError(t, err)

	claims, err := svc.Verify(ctx, oldToken)
	require.NoError(t, err, "la clave anterior sigue en la ventana")
	assert.Equal(t, "u", claims["sub"])

	// Segunda rotación: la clave original queda evicted.
	clk.Advance(331 * time.Second)
	_, err = svc.Sign(ctx, "wallet-1", map[string]any{"sub": "u"})
	require.NoError(t, err)

	_, err = svc.Verify(ctx, oldToken)
	assert.ErrorIs(t, err, repository.ErrInvalidKeyID)
}

// Un verificador con cache stale reintenta una vez con un read limpio cuando
// el kid no matchea: una rotación hecha por otro proceso no debe rechazar
// tokens frescos.
func TestVerifyRetriesOnStaleCache(t *testing.T) {
	shared := memstore.New()
	clk := newTestClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))

	newSvc := func() *Service {
		c := cache.NewMemory("", time.Minute)
		t.Cleanup(func() { c.Close() })
		return New(shared, c, registry.NewMemory(), WithClock(clk.Now))
	}
	signer := newSvc()
	verifier := newSvc()
	ctx := context.Background()

	require.NoError(t, signer.Provision(ctx, NamespaceOptions{
		ID: "wallet-1", Algorithm: "HS256", TokenTTLSecs: 300, ClockToleranceSecs: 30,
	}))

	// El verificador cachea el registro pre-rotación.
	warm, err := signer.Sign(ctx, "wallet-1", map[string]any{"sub": "u"})
	require.NoError(t, err)
	_, err = verifier.Verify(ctx, warm)
	require.NoError(t, err)

	// El firmante rota; el cache del verificador queda stale.
	clk.Advance(331 * time.Second)
	fresh, err := signer.Sign(ctx, "wallet-1", map[string]any{"sub": "u"})
	require.NoError(t, err)

	claims, err := verifier.Verify(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, "u", claims["sub"])
}

// Si la contención no converge dentro del presupuesto, el error lo dice.
func TestRotationContentionBudget(t *testing.T) {
	store := memstore.New()
	clk := newTestClock(time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC))
	c := cache.NewMemory("", time.Minute)
	t.Cleanup(func() { c.Close() })

	// losingRepo nunca deja ganar el update: simula un rival que siempre
	// llega primero.
	lr := &losingRepo{NamespaceRepository: store}
	svc := New(lr, c, registry.NewMemory(),
		WithClock(clk.Now),
		WithRotationRetry(2, time.Millisecond),
	)
	ctx := context.Background()

	require.NoError(t, svc.Provision(ctx, NamespaceOptions{
		ID: "wallet-1", Algorithm: "HS256", TokenTTLSecs: 300, ClockToleranceSecs: 30,
	}))
	clk.Advance(331 * time.Second)

	_, err := svc.Sign(ctx, "wallet-1", map[string]any{"sub": "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rotation contention")
}

type losingRepo struct {
	repository.NamespaceRepository
}

func (r *losingRepo) UpdateStateIf(ctx context.Context, id string, newState json.RawMessage, pred repository.StatePredicate) (int64, error) {
	return 0, nil
}
