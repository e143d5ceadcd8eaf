package keystore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/keymint/internal/domain/repository"
	"github.com/dropDatabas3/keymint/internal/observability/logger"
)

// ExternalKeyHandler atiende namespaces asimétricos (EdDSA/ES*/RS*).
// No genera ni guarda material: solo la referencia. El registry externo es
// dueño del ciclo de vida (active/revoked), así que CADA resolución es un
// chequeo fresco de revocación; acá no existe ventana de clave anterior.
type ExternalKeyHandler struct {
	registry repository.ExternalKeyRegistry
	log      *zap.Logger
	now      func() time.Time
}

// NewExternalKeyHandler crea el handler de claves externas.
func NewExternalKeyHandler(reg repository.ExternalKeyRegistry, log *zap.Logger) *ExternalKeyHandler {
	return &ExternalKeyHandler{registry: reg, log: log, now: time.Now}
}

// CreateState valida que la referencia exista y esté activa; no copia material.
func (h *ExternalKeyHandler) CreateState(ctx context.Context, opts NamespaceOptions) (json.RawMessage, error) {
	if opts.ExternalKeyRef == "" {
		return nil, fmt.Errorf("namespace %s: external key ref required: %w", opts.ID, repository.ErrInvalidKey)
	}
	if _, err := h.resolveActive(ctx, opts.ExternalKeyRef); err != nil {
		return nil, fmt.Errorf("namespace %s: %w", opts.ID, err)
	}
	return json.Marshal(repository.ExternalKeyState{KeyRef: opts.ExternalKeyRef})
}

// GetKey re-resuelve la referencia en cada llamada, sin cachear material.
func (h *ExternalKeyHandler) GetKey(ctx context.Context, rec *repository.NamespaceRecord) (*ResolvedKey, error) {
	var state repository.ExternalKeyState
	if err := json.Unmarshal(rec.State, &state); err != nil {
		return nil, fmt.Errorf("namespace %s: decode external state: %w", rec.ID, err)
	}
	key, err := h.resolveActive(ctx, state.KeyRef)
	if err != nil {
		return nil, fmt.Errorf("namespace %s: %w", rec.ID, err)
	}
	return &ResolvedKey{ID: key.ID, Material: key.Material}, nil
}

// Verify delega por completo al codec con la clave recién resuelta.
func (h *ExternalKeyHandler) Verify(ctx context.Context, req VerifyRequest) (map[string]any, error) {
	key, err := h.resolveActive(ctx, req.KeyID)
	if err != nil {
		return nil, err
	}
	priv, err := privateKeyFromMaterial(req.Algorithm, key.Material)
	if err != nil {
		return nil, fmt.Errorf("key %s: %v: %w", req.KeyID, err, repository.ErrInvalidKey)
	}
	pub, err := publicKeyFor(priv)
	if err != nil {
		return nil, fmt.Errorf("key %s: %v: %w", req.KeyID, err, repository.ErrInvalidKey)
	}
	return verifyToken(req.Token, req.Algorithm, pub, 0, h.now)
}

// resolveActive consulta el registry y exige status active.
// Lookup fallido, clave inexistente y clave revocada colapsan todos en
// ErrInvalidKey, con mensajes distinguibles para diagnóstico.
func (h *ExternalKeyHandler) resolveActive(ctx context.Context, ref string) (*repository.ExternalKey, error) {
	key, err := h.registry.Resolve(ctx, ref)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, fmt.Errorf("external key %s not found: %w", ref, repository.ErrInvalidKey)
		}
		h.log.Warn("external key lookup failed", logger.KeyID(ref), logger.Err(err))
		return nil, fmt.Errorf("external key %s lookup: %v: %w", ref, err, repository.ErrInvalidKey)
	}
	if key.Status != repository.ExternalKeyActive {
		return nil, fmt.Errorf("external key %s status %s: %w", ref, key.Status, repository.ErrInvalidKey)
	}
	return key, nil
}
