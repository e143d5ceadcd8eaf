package keystore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/keymint/internal/cache"
	"github.com/dropDatabas3/keymint/internal/domain/repository"
	"github.com/dropDatabas3/keymint/internal/metrics"
	"github.com/dropDatabas3/keymint/internal/observability/logger"
)

// errRotationConflict marca un conditional update perdido. Nunca llega al
// caller: o un retry posterior converge, o se agota el presupuesto y se
// reporta contención.
var errRotationConflict = errors.New("rotation conflict")

const (
	defaultMaxRotateRetries = 6
	defaultRetryBase        = 25 * time.Millisecond
	hmacMaterialLen         = 32
	hmacSeedLen             = 16
)

// HmacHandler atiende namespaces simétricos (HS256/384/512): genera el estado
// inicial, resuelve la clave vigente rotando cuando expira y verifica tokens
// contra la ventana actual+anterior.
//
// La rotación es optimista: N procesos pueden descubrir la expiración a la
// vez; gana exactamente uno vía conditional update sobre la identidad de la
// clave saliente, y los perdedores recomputan desde un read limpio. El cache
// y el singleflight son advisory; la correctitud viene solo del CAS.
type HmacHandler struct {
	repo     repository.NamespaceRepository
	cache    cache.Client
	log      *zap.Logger
	sf       singleflight.Group
	now      func() time.Time
	cacheTTL time.Duration

	maxRetries uint64
	retryBase  time.Duration
}

// NewHmacHandler crea el handler simétrico.
func NewHmacHandler(repo repository.NamespaceRepository, c cache.Client, log *zap.Logger) *HmacHandler {
	return &HmacHandler{
		repo:       repo,
		cache:      c,
		log:        log,
		now:        time.Now,
		cacheTTL:   30 * time.Second,
		maxRetries: defaultMaxRotateRetries,
		retryBase:  defaultRetryBase,
	}
}

// CreateState genera la clave inicial del namespace.
func (h *HmacHandler) CreateState(ctx context.Context, opts NamespaceOptions) (json.RawMessage, error) {
	now := h.now().UTC()
	lifetime := time.Duration(opts.TokenTTLSecs+opts.ClockToleranceSecs) * time.Second
	key, err := newHmacKey(opts.ID, now, lifetime)
	if err != nil {
		return nil, fmt.Errorf("namespace %s: %w", opts.ID, err)
	}
	return json.Marshal(repository.HmacKeyState{Key: *key})
}

// GetKey resuelve la clave de firma vigente, rotando si expiró.
// Los callers concurrentes del mismo proceso se colapsan con singleflight;
// entre procesos la serialización la da el conditional update del store.
func (h *HmacHandler) GetKey(ctx context.Context, rec *repository.NamespaceRecord) (*ResolvedKey, error) {
	v, err, _ := h.sf.Do(rec.ID, func() (any, error) {
		return h.resolveKey(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ResolvedKey), nil
}

// resolveKey es el loop de rotación read-triggered:
//
//  1. usa el registro observado (posiblemente cacheado); en retries re-lee
//     fresco del store
//  2. clave sin expirar → retornarla
//  3. expirada → rotación local: actual pasa a previous, se genera una fresca
//  4. persistir con conditional update predicado en que la clave vigente
//     almacenada siga siendo la que este proceso retira
//  5. 0 filas afectadas → carrera perdida: invalidar cache, descartar la clave
//     generada y reintentar desde un read limpio (con backoff + jitter)
func (h *HmacHandler) resolveKey(ctx context.Context, rec *repository.NamespaceRecord) (*ResolvedKey, error) {
	current := rec
	attempt := 0

	backoff := retry.WithMaxRetries(h.maxRetries,
		retry.WithJitterPercent(20, retry.NewFibonacci(h.retryBase)))

	var out *ResolvedKey
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if current == nil {
			fresh, err := h.repo.Get(ctx, rec.ID)
			if err != nil {
				return fmt.Errorf("namespace %s: re-read: %w", rec.ID, err)
			}
			current = fresh
		}

		var state repository.HmacKeyState
		if err := json.Unmarshal(current.State, &state); err != nil {
			return fmt.Errorf("namespace %s: decode hmac state: %w", current.ID, err)
		}

		now := h.now().UTC()
		if state.Key.Expires.After(now) {
			material, err := decodeKeyData(state.Key.Data)
			if err != nil {
				return fmt.Errorf("namespace %s: %w", current.ID, err)
			}
			h.cacheRecord(ctx, current)
			out = &ResolvedKey{ID: state.Key.ID, Material: material}
			return nil
		}

		// Rotación local: la clave vigente pasa a previous (la previous
		// anterior se descarta, nunca hay tercera generación).
		retiring := state.Key
		freshKey, err := newHmacKey(current.ID, now, current.TokenTTL()+current.ClockTolerance())
		if err != nil {
			return fmt.Errorf("namespace %s: %w", current.ID, err)
		}
		nextState, err := json.Marshal(repository.HmacKeyState{
			Key:         *freshKey,
			PreviousKey: &retiring,
		})
		if err != nil {
			return fmt.Errorf("namespace %s: encode rotated state: %w", current.ID, err)
		}

		n, err := h.repo.UpdateStateIf(ctx, current.ID, nextState, repository.StatePredicate{
			Path:   []string{"key", "id"},
			Equals: retiring.ID,
		})
		if err != nil {
			return fmt.Errorf("namespace %s: persist rotation: %w", current.ID, err)
		}
		if n == 0 {
			// Otro proceso rotó primero. Invalidar el cache ANTES de
			// reintentar: un cache stale reintenta para siempre contra un
			// predicado que ya no puede matchear.
			metrics.RotationConflictsTotal.WithLabelValues(current.ID).Inc()
			h.invalidate(ctx, current.ID)
			current = nil
			h.log.Debug("rotation lost race",
				logger.Namespace(rec.ID), logger.Attempt(attempt))
			return retry.RetryableError(errRotationConflict)
		}

		metrics.RotationsTotal.WithLabelValues(current.ID).Inc()
		h.log.Info("key rotated",
			logger.Namespace(current.ID),
			logger.KeyID(freshKey.ID),
			logger.Attempt(attempt))

		updated := *current
		updated.State = nextState
		h.cacheRecord(ctx, &updated)

		material, err := decodeKeyData(freshKey.Data)
		if err != nil {
			return fmt.Errorf("namespace %s: %w", current.ID, err)
		}
		out = &ResolvedKey{ID: freshKey.ID, Material: material}
		return nil
	})
	if err != nil {
		if errors.Is(err, errRotationConflict) {
			return nil, fmt.Errorf("namespace %s: rotation contention after %d attempts: %w",
				rec.ID, attempt, err)
		}
		return nil, err
	}
	return out, nil
}

// Verify matchea el keyID contra la clave actual o la anterior y delega al
// codec con la tolerancia de reloj del namespace.
func (h *HmacHandler) Verify(ctx context.Context, req VerifyRequest) (map[string]any, error) {
	rec := req.Record
	var state repository.HmacKeyState
	if err := json.Unmarshal(rec.State, &state); err != nil {
		return nil, fmt.Errorf("namespace %s: decode hmac state: %w", rec.ID, err)
	}

	var data string
	switch {
	case state.Key.ID == req.KeyID:
		data = state.Key.Data
	case state.PreviousKey != nil && state.PreviousKey.ID == req.KeyID:
		data = state.PreviousKey.Data
	default:
		return nil, fmt.Errorf("namespace %s: kid %s: %w", rec.ID, req.KeyID, repository.ErrInvalidKeyID)
	}

	material, err := decodeKeyData(data)
	if err != nil {
		return nil, fmt.Errorf("namespace %s: %w", rec.ID, err)
	}
	return verifyToken(req.Token, rec.Algorithm, material, rec.ClockTolerance(), h.now)
}

func (h *HmacHandler) cacheRecord(ctx context.Context, rec *repository.NamespaceRecord) {
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = h.cache.Set(ctx, recordCacheKey(rec.ID), b, h.cacheTTL)
}

func (h *HmacHandler) invalidate(ctx context.Context, id string) {
	_ = h.cache.Delete(ctx, recordCacheKey(id))
}

// newHmacKey genera una clave fresca: 16 bytes aleatorios expandidos vía
// HKDF-SHA256 a 32 bytes de material, codificado en base64. El id se deriva
// del epoch de creación, monótonamente creciente entre rotaciones dentro de
// la tolerancia de sincronización de reloj.
func newHmacKey(namespace string, now time.Time, lifetime time.Duration) (*repository.HmacKey, error) {
	seed := make([]byte, hmacSeedLen)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate key seed: %w", err)
	}
	material := make([]byte, hmacMaterialLen)
	kdf := hkdf.New(sha256.New, seed, nil, []byte("keymint/hmac/"+namespace))
	if _, err := io.ReadFull(kdf, material); err != nil {
		return nil, fmt.Errorf("derive key material: %w", err)
	}
	return &repository.HmacKey{
		ID:      strconv.FormatInt(now.Unix(), 10),
		Data:    base64.StdEncoding.EncodeToString(material),
		Created: now,
		Expires: now.Add(lifetime),
	}, nil
}

// decodeKeyData recupera los bytes del material desde el encoding de storage.
func decodeKeyData(data string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode key material: %w", err)
	}
	return b, nil
}
