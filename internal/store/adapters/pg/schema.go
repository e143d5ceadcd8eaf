package pg

import (
	"context"
	"fmt"
)

// schema mínimo del record store. El state es JSONB para poder predicar
// sub-campos (#>>) en el conditional update.
const schema = `
CREATE TABLE IF NOT EXISTS namespaces (
	id                   TEXT PRIMARY KEY,
	algorithm            TEXT NOT NULL,
	token_ttl_secs       BIGINT NOT NULL,
	clock_tolerance_secs BIGINT NOT NULL,
	state                JSONB NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema crea la tabla si no existe. Idempotente.
func (a *Adapter) EnsureSchema(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pg: ensure schema: %w", err)
	}
	return nil
}
