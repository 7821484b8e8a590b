package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

const ticketColumns = `guild_id, id, channel_ref, topic, form_data, creator_id, claimer_id, priority, status, hidden,
               added_users, tags, notes, close_request, created_at, claimed_at, closed_at, closed_by, close_reason, version`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository builds the Postgres ticket store.
func NewTicketRepository(pool *pgxpool.Pool) TicketStore {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) GetTicket(ctx context.Context, guildID string, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE guild_id=$1 AND id=$2`
	t, err := scanTicket(r.pool.QueryRow(ctx, query, guildID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *ticketRepository) ListTickets(ctx context.Context, guildID string, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"guild_id=$1"}
	args := []any{guildID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.ClaimerID != "" {
		args = append(args, filter.ClaimerID)
		clauses = append(clauses, fmt.Sprintf("claimer_id=$%d", len(args)))
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}

func (r *ticketRepository) PutTicket(ctx context.Context, t *domain.Ticket) error {
	docs, err := encodeTicketDocs(t)
	if err != nil {
		return err
	}

	if t.Version == 0 {
		const insert = `
        INSERT INTO tickets (guild_id, id, channel_ref, topic, form_data, creator_id, claimer_id, priority, status, hidden,
            added_users, tags, notes, close_request, created_at, claimed_at, closed_at, closed_by, close_reason, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,1)
        ON CONFLICT (guild_id, id) DO NOTHING`
		cmd, err := r.pool.Exec(ctx, insert,
			t.GuildID, t.ID, t.ChannelRef, t.Topic, docs.FormData, t.CreatorID, t.ClaimerID, int(t.Priority),
			t.Status, t.Hidden, docs.AddedUsers, docs.Tags, docs.Notes, docs.CloseRequest,
			t.CreatedAt, t.ClaimedAt, t.ClosedAt, t.ClosedBy, t.CloseReason,
		)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrVersionConflict
		}
		t.Version = 1
		return nil
	}

	const update = `
        UPDATE tickets SET channel_ref=$3, topic=$4, form_data=$5, claimer_id=$6, priority=$7, status=$8, hidden=$9,
            added_users=$10, tags=$11, notes=$12, close_request=$13, claimed_at=$14, closed_at=$15, closed_by=$16,
            close_reason=$17, version=version+1
        WHERE guild_id=$1 AND id=$2 AND version=$18`
	cmd, err := r.pool.Exec(ctx, update,
		t.GuildID, t.ID, t.ChannelRef, t.Topic, docs.FormData, t.ClaimerID, int(t.Priority), t.Status, t.Hidden,
		docs.AddedUsers, docs.Tags, docs.Notes, docs.CloseRequest, t.ClaimedAt, t.ClosedAt, t.ClosedBy,
		t.CloseReason, t.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	t.Version++
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		t        domain.Ticket
		docs     ticketDocs
		priority int
	)
	if err := row.Scan(
		&t.GuildID,
		&t.ID,
		&t.ChannelRef,
		&t.Topic,
		&docs.FormData,
		&t.CreatorID,
		&t.ClaimerID,
		&priority,
		&t.Status,
		&t.Hidden,
		&docs.AddedUsers,
		&docs.Tags,
		&docs.Notes,
		&docs.CloseRequest,
		&t.CreatedAt,
		&t.ClaimedAt,
		&t.ClosedAt,
		&t.ClosedBy,
		&t.CloseReason,
		&t.Version,
	); err != nil {
		return nil, err
	}
	t.Priority = domain.Priority(priority)
	if err := docs.decodeInto(&t); err != nil {
		return nil, err
	}
	return &t, nil
}
