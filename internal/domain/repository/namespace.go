package repository

import (
	"context"
	"encoding/json"
	"time"
)

// NamespaceRecord representa un key space lógico independiente.
// Algorithm y la política (TTL, tolerancia) se fijan al provisionar y nunca
// son mutados por rotación; rotación solo toca State.
type NamespaceRecord struct {
	ID                 string          `json:"id"`
	Algorithm          string          `json:"algorithm"` // "HS256", "EdDSA", "ES256", ...
	TokenTTLSecs       int64           `json:"token_ttl_secs"`
	ClockToleranceSecs int64           `json:"clock_tolerance_secs"`
	State              json.RawMessage `json:"state"` // payload opaco, específico del handler
	CreatedAt          time.Time       `json:"created_at"`
}

// TokenTTL retorna la política de emisión como time.Duration.
func (r *NamespaceRecord) TokenTTL() time.Duration {
	return time.Duration(r.TokenTTLSecs) * time.Second
}

// ClockTolerance retorna el skew de reloj aceptado como time.Duration.
func (r *NamespaceRecord) ClockTolerance() time.Duration {
	return time.Duration(r.ClockToleranceSecs) * time.Second
}

// HmacKey es una clave simétrica viva dentro del estado HMAC.
// Data es el material en base64; los bytes crudos nunca salen del handler.
type HmacKey struct {
	ID      string    `json:"id"` // derivado del epoch de creación
	Data    string    `json:"data"`
	Created time.Time `json:"created"`
	Expires time.Time `json:"expires"`
}

// HmacKeyState es el estado handler-specific de la variante simétrica.
// Invariante: a lo sumo dos claves vivas por namespace (actual + anterior).
// Una rotación reemplaza PreviousKey con la clave que se retira; nunca existe
// una tercera generación.
type HmacKeyState struct {
	Key         HmacKey  `json:"key"`
	PreviousKey *HmacKey `json:"previous_key,omitempty"`
}

// ExternalKeyState es el estado handler-specific de la variante asimétrica.
// Solo guarda la referencia; el ciclo de vida (active/revoked) es del registry
// externo y se re-chequea en cada resolución.
type ExternalKeyState struct {
	KeyRef string `json:"key_ref"`
}

// StatePredicate restringe un sub-campo JSON del estado almacenado.
// Un UpdateStateIf solo aplica si el valor en Path es igual a Equals.
type StatePredicate struct {
	Path   []string
	Equals string
}

// Matches evalúa el predicado contra un estado JSON. Lo usan los adapters que
// no pueden delegar la comparación al motor de storage (memory, fs); el
// adapter pg la empuja a SQL.
func (p StatePredicate) Matches(state json.RawMessage) bool {
	var node any
	if err := json.Unmarshal(state, &node); err != nil {
		return false
	}
	for _, seg := range p.Path {
		m, ok := node.(map[string]any)
		if !ok {
			return false
		}
		node, ok = m[seg]
		if !ok {
			return false
		}
	}
	s, ok := node.(string)
	if !ok {
		return false
	}
	return s == p.Equals
}

// NamespaceRepository define el contrato del record store: un registro durable
// por namespace con get, insert-if-absent y conditional update. El conditional
// update es la única primitiva de serialización entre procesos.
type NamespaceRepository interface {
	// Get obtiene el registro por id. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, id string) (*NamespaceRecord, error)

	// Insert crea el registro. Retorna ErrConflict si el id ya existe.
	Insert(ctx context.Context, rec *NamespaceRecord) error

	// UpdateStateIf reemplaza el state solo si pred se cumple contra el estado
	// almacenado. La escritura es atómica y retorna la cantidad de registros
	// afectados: 0 significa que el predicado no matcheó (se perdió la carrera).
	UpdateStateIf(ctx context.Context, id string, newState json.RawMessage, pred StatePredicate) (int64, error)
}
