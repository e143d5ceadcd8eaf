// Package store selecciona el adapter del record store según configuración.
package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/keymint/internal/domain/repository"
	fsadapter "github.com/dropDatabas3/keymint/internal/store/adapters/fs"
	memadapter "github.com/dropDatabas3/keymint/internal/store/adapters/memory"
	pgadapter "github.com/dropDatabas3/keymint/internal/store/adapters/pg"
)

// Config configuración del record store.
type Config struct {
	Driver string // "memory" | "fs" | "pg"
	DSN    string // pg
	Root   string // fs
}

// New crea el NamespaceRepository según el driver configurado.
// Para pg además asegura el schema.
func New(ctx context.Context, cfg Config) (repository.NamespaceRepository, func(), error) {
	switch cfg.Driver {
	case "pg", "postgres":
		a, err := pgadapter.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := a.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, nil, err
		}
		return a, a.Close, nil
	case "fs":
		a, err := fsadapter.New(cfg.Root)
		if err != nil {
			return nil, nil, err
		}
		return a, func() {}, nil
	case "memory", "":
		return memadapter.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("storage driver %q not supported", cfg.Driver)
	}
}
