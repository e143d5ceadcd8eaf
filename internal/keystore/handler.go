package keystore

import (
	"context"
	"encoding/json"

	"github.com/dropDatabas3/keymint/internal/domain/repository"
)

// Handler es la capability por familia de algoritmo: crea el estado del
// namespace al provisionar, resuelve la clave de firma vigente (rotando en la
// variante simétrica) y verifica tokens contra el estado del namespace.
type Handler interface {
	// CreateState arma el payload opaco que se guarda en NamespaceRecord.State.
	CreateState(ctx context.Context, opts NamespaceOptions) (json.RawMessage, error)

	// GetKey resuelve la clave de firma vigente para el namespace.
	GetKey(ctx context.Context, rec *repository.NamespaceRecord) (*ResolvedKey, error)

	// Verify valida el token contra el estado del namespace.
	Verify(ctx context.Context, req VerifyRequest) (map[string]any, error)
}

// ResolvedKey es una clave lista para firmar. Material son los bytes del
// secreto HMAC o la private key externa; nunca se persiste ni se loguea.
type ResolvedKey struct {
	ID       string
	Material []byte
}

// VerifyRequest lleva lo que el facade ya decodificó del header del token.
type VerifyRequest struct {
	Token     string
	Algorithm string
	// KeyID es el keyID parseado del kid (simétrico) o la referencia externa
	// completa (asimétrico).
	KeyID string
	// Record es el registro del namespace. Es nil para tokens externos: ahí el
	// kid es autosuficiente y el registry es la única autoridad.
	Record *repository.NamespaceRecord
}
