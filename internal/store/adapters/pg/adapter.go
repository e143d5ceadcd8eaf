// Package pg implementa el record store de namespaces sobre PostgreSQL.
// Usa pgxpool directamente; el conditional update se resuelve en SQL, así que
// la serialización de rotaciones vale entre procesos y entre réplicas.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/keymint/internal/domain/repository"
)

// Adapter implementa repository.NamespaceRepository con PostgreSQL.
type Adapter struct {
	pool *pgxpool.Pool
}

// New conecta el pool y verifica la conexión.
func New(ctx context.Context, dsn string) (*Adapter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Adapter{pool: pool}, nil
}

// Close cierra el pool.
func (a *Adapter) Close() {
	a.pool.Close()
}

func (a *Adapter) Get(ctx context.Context, id string) (*repository.NamespaceRecord, error) {
	const query = `
		SELECT id, algorithm, token_ttl_secs, clock_tolerance_secs, state, created_at
		FROM namespaces WHERE id = $1
	`
	var rec repository.NamespaceRecord
	err := a.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Algorithm, &rec.TokenTTLSecs, &rec.ClockToleranceSecs, &rec.State, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get namespace %s: %w", id, err)
	}
	return &rec, nil
}

func (a *Adapter) Insert(ctx context.Context, rec *repository.NamespaceRecord) error {
	const query = `
		INSERT INTO namespaces (id, algorithm, token_ttl_secs, clock_tolerance_secs, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := a.pool.Exec(ctx, query,
		rec.ID, rec.Algorithm, rec.TokenTTLSecs, rec.ClockToleranceSecs, []byte(rec.State), rec.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505: unique_violation
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("namespace %s: %w", rec.ID, repository.ErrConflict)
		}
		return fmt.Errorf("pg: insert namespace %s: %w", rec.ID, err)
	}
	return nil
}

func (a *Adapter) UpdateStateIf(ctx context.Context, id string, newState json.RawMessage, pred repository.StatePredicate) (int64, error) {
	// El predicado se empuja a SQL: el UPDATE solo matchea si el sub-campo del
	// estado almacenado sigue teniendo el valor esperado. Atómico por fila.
	const query = `
		UPDATE namespaces SET state = $2
		WHERE id = $1 AND state #>> $3 = $4
	`
	tag, err := a.pool.Exec(ctx, query, id, []byte(newState), pred.Path, pred.Equals)
	if err != nil {
		return 0, fmt.Errorf("pg: conditional update namespace %s: %w", id, err)
	}
	return tag.RowsAffected(), nil
}
