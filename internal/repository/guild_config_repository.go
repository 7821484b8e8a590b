package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

type guildConfigRepository struct {
	pool *pgxpool.Pool
}

// NewGuildConfigRepository builds the Postgres guild configuration store.
func NewGuildConfigRepository(pool *pgxpool.Pool) GuildConfigStore {
	return &guildConfigRepository{pool: pool}
}

func (r *guildConfigRepository) GetGuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	const query = `
        SELECT guild_id, ticket_counter, assignment, visibility, lifecycle, version, updated_at
        FROM guild_configs WHERE guild_id=$1`
	var (
		cfg  domain.GuildConfig
		docs guildDocs
	)
	err := r.pool.QueryRow(ctx, query, guildID).Scan(
		&cfg.GuildID,
		&cfg.TicketCounter,
		&docs.Assignment,
		&docs.Visibility,
		&docs.Lifecycle,
		&cfg.Version,
		&cfg.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := docs.decodeInto(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *guildConfigRepository) PutGuildConfig(ctx context.Context, cfg *domain.GuildConfig) error {
	docs, err := encodeGuildDocs(cfg)
	if err != nil {
		return err
	}

	var query string
	args := []any{cfg.GuildID, cfg.TicketCounter, docs.Assignment, docs.Visibility, docs.Lifecycle}
	if cfg.Version == 0 {
		query = `
        INSERT INTO guild_configs (guild_id, ticket_counter, assignment, visibility, lifecycle, version, updated_at)
        VALUES ($1,$2,$3,$4,$5,1,NOW())
        ON CONFLICT (guild_id) DO NOTHING
        RETURNING updated_at`
	} else {
		query = `
        UPDATE guild_configs SET ticket_counter=$2, assignment=$3, visibility=$4, lifecycle=$5,
            version=version+1, updated_at=NOW()
        WHERE guild_id=$1 AND version=$6
        RETURNING updated_at`
		args = append(args, cfg.Version)
	}

	err = r.pool.QueryRow(ctx, query, args...).Scan(&cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	if err != nil {
		return err
	}
	cfg.Version++
	return nil
}
