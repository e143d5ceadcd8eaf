// Package keystore implementa el núcleo de keymint: el facade de
// provisioning/firma/verificación por namespace y los handlers por familia de
// algoritmo, incluida la rotación optimista de claves simétricas.
package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/dropDatabas3/keymint/internal/cache"
	"github.com/dropDatabas3/keymint/internal/domain/repository"
	"github.com/dropDatabas3/keymint/internal/metrics"
	"github.com/dropDatabas3/keymint/internal/observability/logger"
)

// NamespaceOptions es la política pedida al provisionar un namespace.
type NamespaceOptions struct {
	ID                 string `json:"id"`
	Algorithm          string `json:"algorithm"`
	TokenTTLSecs       int64  `json:"token_ttl_secs"`
	ClockToleranceSecs int64  `json:"clock_tolerance_secs"`
	// ExternalKeyRef es la referencia en el registry externo.
	// Requerido para FamilyExternal, ignorado para HMAC.
	ExternalKeyRef string `json:"external_key_ref,omitempty"`
}

// Service es el facade: despacha por familia de algoritmo al handler correcto
// y arma/parsea el kid del token.
type Service struct {
	repo     repository.NamespaceRepository
	cache    cache.Client
	hmac     *HmacHandler
	external *ExternalKeyHandler
	handlers map[Family]Handler
	log      *zap.Logger
	now      func() time.Time
	cacheTTL time.Duration
}

// Option personaliza el Service.
type Option func(*Service)

// WithClock inyecta el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.hmac.now = now
		s.external.now = now
	}
}

// WithRotationRetry ajusta el presupuesto de reintentos del CAS de rotación.
func WithRotationRetry(maxRetries uint64, base time.Duration) Option {
	return func(s *Service) {
		s.hmac.maxRetries = maxRetries
		s.hmac.retryBase = base
	}
}

// WithCacheTTL ajusta el TTL del cache advisory de registros.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.cacheTTL = ttl
		s.hmac.cacheTTL = ttl
	}
}

// New crea el facade con sus dos handlers.
func New(repo repository.NamespaceRepository, c cache.Client, reg repository.ExternalKeyRegistry, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		cache:    c,
		hmac:     NewHmacHandler(repo, c, logger.Named("keystore.hmac")),
		external: NewExternalKeyHandler(reg, logger.Named("keystore.external")),
		log:      logger.Named("keystore"),
		now:      time.Now,
		cacheTTL: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers = map[Family]Handler{
		FamilyHMAC:     s.hmac,
		FamilyExternal: s.external,
	}
	return s
}

// Provision crea el namespace. Es idempotente por id: si el registro ya
// existe, el estado almacenado queda intacto y no es error (first-writer-wins;
// la política pedida no se reconcilia contra la almacenada).
func (s *Service) Provision(ctx context.Context, opts NamespaceOptions) error {
	h, err := s.handlerFor(opts.Algorithm)
	if err != nil {
		return err
	}
	if opts.ID == "" {
		return errors.New("namespace id required")
	}
	if opts.TokenTTLSecs <= 0 {
		return fmt.Errorf("namespace %s: token ttl must be positive", opts.ID)
	}
	if opts.ClockToleranceSecs < 0 {
		return fmt.Errorf("namespace %s: clock tolerance must not be negative", opts.ID)
	}

	state, err := h.CreateState(ctx, opts)
	if err != nil {
		return err
	}
	rec := &repository.NamespaceRecord{
		ID:                 opts.ID,
		Algorithm:          opts.Algorithm,
		TokenTTLSecs:       opts.TokenTTLSecs,
		ClockToleranceSecs: opts.ClockToleranceSecs,
		State:              state,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		if repository.IsConflict(err) {
			s.log.Debug("namespace already provisioned", logger.Namespace(opts.ID))
			return nil
		}
		return fmt.Errorf("namespace %s: insert: %w", opts.ID, err)
	}
	s.cacheRecord(ctx, rec)
	s.log.Info("namespace provisioned",
		logger.Namespace(opts.ID), logger.Algorithm(opts.Algorithm))
	return nil
}

// Sign emite un token para el namespace: resuelve la clave vigente via
// handler (rotando si hace falta) y firma el payload más exp/iat derivados de
// la política del namespace.
func (s *Service) Sign(ctx context.Context, namespace string, payload map[string]any) (string, error) {
	rec, _, err := s.fetchRecord(ctx, namespace)
	if err != nil {
		metrics.SignTotal.WithLabelValues(namespace, "error").Inc()
		return "", err
	}
	h, err := s.handlerFor(rec.Algorithm)
	if err != nil {
		metrics.SignTotal.WithLabelValues(namespace, "error").Inc()
		return "", err
	}

	key, err := h.GetKey(ctx, rec)
	if err != nil {
		metrics.SignTotal.WithLabelValues(namespace, "error").Inc()
		return "", err
	}

	now := s.now().UTC()
	claims := jwtv5.MapClaims{}
	for k, v := range payload {
		claims[k] = v
	}
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(rec.TokenTTL()).Unix()

	var kid string
	var signKey any
	switch familyForAlgorithm(rec.Algorithm) {
	case FamilyHMAC:
		kid = EncodeKid(rec.ID, key.ID)
		signKey = key.Material
	default:
		// Asimétrico: el kid es la referencia externa a secas.
		kid = key.ID
		signKey, err = privateKeyFromMaterial(rec.Algorithm, key.Material)
		if err != nil {
			metrics.SignTotal.WithLabelValues(namespace, "error").Inc()
			return "", fmt.Errorf("namespace %s: %v: %w", namespace, err, repository.ErrInvalidKey)
		}
	}

	token, err := signToken(rec.Algorithm, kid, claims, signKey)
	if err != nil {
		metrics.SignTotal.WithLabelValues(namespace, "error").Inc()
		return "", fmt.Errorf("namespace %s: sign: %w", namespace, err)
	}
	metrics.SignTotal.WithLabelValues(namespace, "ok").Inc()
	return token, nil
}

// Verify decodifica el header sin validar firma, recupera (namespace, keyID)
// del kid y delega la verificación al handler de la familia.
func (s *Service) Verify(ctx context.Context, token string) (map[string]any, error) {
	hdr, err := decodeHeader(token)
	if err != nil {
		metrics.VerifyTotal.WithLabelValues("malformed").Inc()
		return nil, err
	}
	h, err := s.handlerFor(hdr.Alg)
	if err != nil {
		metrics.VerifyTotal.WithLabelValues("unsupported_alg").Inc()
		return nil, err
	}

	req := VerifyRequest{Token: token, Algorithm: hdr.Alg}

	if familyForAlgorithm(hdr.Alg) != FamilyHMAC {
		// Externo: el kid completo es la referencia; no hay registro que leer.
		req.KeyID = hdr.Kid
		claims, err := h.Verify(ctx, req)
		s.countVerify(err)
		return claims, err
	}

	ns, keyID, err := ParseKid(hdr.Kid)
	if err != nil {
		metrics.VerifyTotal.WithLabelValues("bad_kid").Inc()
		return nil, err
	}
	rec, fromCache, err := s.fetchRecord(ctx, ns)
	if err != nil {
		metrics.VerifyTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	req.KeyID = keyID
	req.Record = rec

	claims, err := h.Verify(ctx, req)
	if err != nil && errors.Is(err, repository.ErrInvalidKeyID) && fromCache {
		// El cache es advisory: un kid desconocido puede ser una rotación que
		// este proceso todavía no vio. Reintentar una vez con un read limpio.
		s.invalidate(ctx, ns)
		fresh, _, ferr := s.fetchRecord(ctx, ns)
		if ferr != nil {
			metrics.VerifyTotal.WithLabelValues("error").Inc()
			return nil, ferr
		}
		req.Record = fresh
		claims, err = h.Verify(ctx, req)
	}
	s.countVerify(err)
	return claims, err
}

func (s *Service) countVerify(err error) {
	switch {
	case err == nil:
		metrics.VerifyTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, repository.ErrInvalidKeyID):
		metrics.VerifyTotal.WithLabelValues("unknown_kid").Inc()
	case errors.Is(err, repository.ErrInvalidKey):
		metrics.VerifyTotal.WithLabelValues("invalid_key").Inc()
	default:
		metrics.VerifyTotal.WithLabelValues("invalid").Inc()
	}
}

func (s *Service) handlerFor(alg string) (Handler, error) {
	h, ok := s.handlers[familyForAlgorithm(alg)]
	if !ok {
		return nil, fmt.Errorf("algorithm %q: %w", alg, repository.ErrUnsupportedAlgorithm)
	}
	return h, nil
}

// fetchRecord resuelve el registro del namespace: cache advisory primero,
// después el store. Retorna si vino del cache para que el caller pueda
// decidir reintentar con un read limpio.
func (s *Service) fetchRecord(ctx context.Context, id string) (*repository.NamespaceRecord, bool, error) {
	ckey := recordCacheKey(id)
	if b, err := s.cache.Get(ctx, ckey); err == nil {
		var rec repository.NamespaceRecord
		if uerr := json.Unmarshal(b, &rec); uerr == nil {
			return &rec, true, nil
		}
		// Entrada corrupta: descartarla y seguir al store.
		_ = s.cache.Delete(ctx, ckey)
	}
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, false, fmt.Errorf("namespace %s: %w", id, err)
		}
		return nil, false, fmt.Errorf("namespace %s: fetch: %w", id, err)
	}
	s.cacheRecord(ctx, rec)
	return rec, false, nil
}

func (s *Service) cacheRecord(ctx context.Context, rec *repository.NamespaceRecord) {
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, recordCacheKey(rec.ID), b, s.cacheTTL)
}

func (s *Service) invalidate(ctx context.Context, id string) {
	_ = s.cache.Delete(ctx, recordCacheKey(id))
}

// recordCacheKey arma la key del cache advisory, por namespace.
func recordCacheKey(id string) string {
	return "nsrec:" + id
}
