// Package memory implementa el record store de namespaces en memoria.
// Útil para desarrollo y testing: varios "procesos" (Services) pueden
// compartir un mismo Adapter para simular el store durable compartido.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dropDatabas3/keymint/internal/domain/repository"
)

// Adapter implementa repository.NamespaceRepository con un map protegido por
// mutex. El mutex solo garantiza la atomicidad de cada operación individual,
// igual que lo haría el motor de storage real; la serialización de rotaciones
// sigue viniendo del conditional update.
type Adapter struct {
	mu      sync.Mutex
	records map[string]*repository.NamespaceRecord
}

// New crea un adapter vacío.
func New() *Adapter {
	return &Adapter{records: make(map[string]*repository.NamespaceRecord)}
}

func (a *Adapter) Get(ctx context.Context, id string) (*repository.NamespaceRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (a *Adapter) Insert(ctx context.Context, rec *repository.NamespaceRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.records[rec.ID]; ok {
		return fmt.Errorf("namespace %s: %w", rec.ID, repository.ErrConflict)
	}
	a.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (a *Adapter) UpdateStateIf(ctx context.Context, id string, newState json.RawMessage, pred repository.StatePredicate) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[id]
	if !ok {
		return 0, nil
	}
	if !pred.Matches(rec.State) {
		return 0, nil
	}
	rec.State = append(json.RawMessage(nil), newState...)
	return 1, nil
}

// cloneRecord copia el registro para que los callers no muten el estado
// compartido por fuera del conditional update.
func cloneRecord(rec *repository.NamespaceRecord) *repository.NamespaceRecord {
	out := *rec
	out.State = append(json.RawMessage(nil), rec.State...)
	return &out
}
