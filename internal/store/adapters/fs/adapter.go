// Package fs implementa el record store de namespaces sobre filesystem:
// un archivo JSON por namespace, escrito de forma atómica.
//
// El conditional update se serializa con un mutex de proceso, así que este
// adapter solo garantiza rotación exactamente-una-vez dentro de un único
// proceso (CLI, single-node dev). Para múltiples procesos usar el adapter pg.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dropDatabas3/keymint/internal/domain/repository"
	"github.com/dropDatabas3/keymint/internal/util/atomicwrite"
)

// Adapter implementa repository.NamespaceRepository usando filesystem.
type Adapter struct {
	root string
	mu   sync.RWMutex
}

// New crea el adapter sobre el directorio dado (se crea si no existe).
func New(root string) (*Adapter, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", root, err)
	}
	return &Adapter{root: root}, nil
}

func (a *Adapter) pathFor(id string) string {
	// El id se sanitiza para no escapar del root.
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
	return filepath.Join(a.root, safe+".json")
}

func (a *Adapter) Get(ctx context.Context, id string) (*repository.NamespaceRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.load(id)
}

func (a *Adapter) Insert(ctx context.Context, rec *repository.NamespaceRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := a.pathFor(rec.ID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("namespace %s: %w", rec.ID, repository.ErrConflict)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("namespace %s: stat: %w", rec.ID, err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("namespace %s: marshal: %w", rec.ID, err)
	}
	return atomicwrite.AtomicWriteFile(path, data, 0600)
}

func (a *Adapter) UpdateStateIf(ctx context.Context, id string, newState json.RawMessage, pred repository.StatePredicate) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, err := a.load(id)
	if err != nil {
		if repository.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	if !pred.Matches(rec.State) {
		return 0, nil
	}

	rec.State = newState
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("namespace %s: marshal: %w", id, err)
	}
	if err := atomicwrite.AtomicWriteFile(a.pathFor(id), data, 0600); err != nil {
		return 0, fmt.Errorf("namespace %s: write: %w", id, err)
	}
	return 1, nil
}

func (a *Adapter) load(id string) (*repository.NamespaceRecord, error) {
	data, err := os.ReadFile(a.pathFor(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("namespace %s: read: %w", id, err)
	}
	var rec repository.NamespaceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("namespace %s: unmarshal: %w", id, err)
	}
	return &rec, nil
}
