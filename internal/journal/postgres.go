package journal

import (
	"context"
	"fmt"

	"github.com/KevinKickass/HaptiKnitConsole/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS dispatches (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL,
	kind TEXT NOT NULL,
	channel TEXT NOT NULL,
	value INTEGER NOT NULL,
	payload INTEGER NOT NULL,
	success BOOLEAN NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS dispatches_created_at ON dispatches (created_at DESC);
`

// Postgres keeps the journal in a shared PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	if cfg.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConnections)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Connection testen
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO dispatches (id, session_id, kind, channel, value, payload, success, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.SessionID, string(e.Kind), e.Channel, e.Value, e.Payload, e.Success, e.Error, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, kind, channel, value, payload, success, error, created_at
		FROM dispatches
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionID, &kind, &e.Channel, &e.Value, &e.Payload,
			&e.Success, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		e.Kind = Kind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
