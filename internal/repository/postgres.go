package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres composes the pgx-backed repositories into a Store.
type Postgres struct {
	TicketStore
	GuildConfigStore
	HistoryStore
	pool *pgxpool.Pool
}

// NewPostgres builds a Store over an established pool. The pool is owned by
// the caller.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		TicketStore:      NewTicketRepository(pool),
		GuildConfigStore: NewGuildConfigRepository(pool),
		HistoryStore:     NewTicketHistoryRepository(pool),
		pool:             pool,
	}
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if p.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return p.pool.Ping(ctx)
}

// Close is a no-op; the pool is closed by its owner.
func (p *Postgres) Close() error { return nil }
