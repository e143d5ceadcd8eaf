// Package registry implementa clientes del registry de claves externas.
// El registry es dueño del ciclo de vida de las claves asimétricas; keymint
// solo guarda referencias y re-resuelve en cada uso.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/dropDatabas3/keymint/internal/domain/repository"
)

// Memory es un registry en memoria, para desarrollo y testing.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]repository.ExternalKey
}

// NewMemory crea un registry vacío.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]repository.ExternalKey)}
}

// Put registra (o reemplaza) una clave.
func (m *Memory) Put(key repository.ExternalKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key.ID] = key
}

// SetStatus cambia el estado de una clave existente (ej: revocarla).
func (m *Memory) SetStatus(ref string, status repository.ExternalKeyStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.keys[ref]; ok {
		k.Status = status
		m.keys[ref] = k
	}
}

func (m *Memory) Resolve(ctx context.Context, keyRef string) (*repository.ExternalKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.keys[keyRef]
	if !ok {
		return nil, fmt.Errorf("external key %s: %w", keyRef, repository.ErrNotFound)
	}
	out := k
	out.Material = append([]byte(nil), k.Material...)
	return &out, nil
}
