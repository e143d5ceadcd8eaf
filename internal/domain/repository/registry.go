package repository

import "context"

// ExternalKeyStatus indica el estado de una clave en el registry externo.
type ExternalKeyStatus string

const (
	ExternalKeyActive  ExternalKeyStatus = "active"
	ExternalKeyRevoked ExternalKeyStatus = "revoked"
	ExternalKeyUnknown ExternalKeyStatus = "unknown"
)

// ExternalKey es una clave administrada fuera de este servicio.
// Material puede ser PEM (PKCS8/PKIX) o una seed ed25519 cruda.
type ExternalKey struct {
	ID       string
	Material []byte
	Status   ExternalKeyStatus
}

// ExternalKeyRegistry resuelve referencias a claves administradas externamente.
// Un fallo de lookup es distinguible de "clave no encontrada": lookup errors se
// retornan envueltos, not-found se retorna como ErrNotFound.
type ExternalKeyRegistry interface {
	Resolve(ctx context.Context, keyRef string) (*ExternalKey, error)
}
