package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds the Postgres audit trail store.
func NewTicketHistoryRepository(pool *pgxpool.Pool) HistoryStore {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) AppendHistory(ctx context.Context, history *domain.TicketHistory) error {
	oldValue, err := json.Marshal(history.OldValue)
	if err != nil {
		return err
	}
	newValue, err := json.Marshal(history.NewValue)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO ticket_history (guild_id, ticket_id, action, changed_by_id, change_type, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.GuildID,
		history.TicketID,
		history.Action,
		history.ChangedByID,
		history.ChangeType,
		oldValue,
		newValue,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *ticketHistoryRepository) ListHistory(ctx context.Context, guildID string, ticketID int64) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, guild_id, ticket_id, action, changed_by_id, change_type, old_value, new_value, created_at
        FROM ticket_history WHERE guild_id=$1 AND ticket_id=$2 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, guildID, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var (
			history            domain.TicketHistory
			oldValue, newValue []byte
		)
		if err := rows.Scan(
			&history.ID,
			&history.GuildID,
			&history.TicketID,
			&history.Action,
			&history.ChangedByID,
			&history.ChangeType,
			&oldValue,
			&newValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := decodeValues(oldValue, newValue, &history); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}

func decodeValues(oldValue, newValue []byte, history *domain.TicketHistory) error {
	if len(oldValue) > 0 {
		if err := json.Unmarshal(oldValue, &history.OldValue); err != nil {
			return err
		}
	}
	if len(newValue) > 0 {
		return json.Unmarshal(newValue, &history.NewValue)
	}
	return nil
}
