package repository

import (
	"context"
	"errors"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

var (
	// ErrNotFound is returned when a ticket or guild record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrVersionConflict is returned when a write was based on a stale record.
	ErrVersionConflict = errors.New("repository: version conflict")
)

// TicketFilter narrows ListTickets.
type TicketFilter struct {
	Status    *domain.TicketStatus
	ClaimerID string
	Limit     int
	Offset    int
}

func (f TicketFilter) matches(t *domain.Ticket) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.ClaimerID != "" && (t.ClaimerID == nil || *t.ClaimerID != f.ClaimerID) {
		return false
	}
	return true
}

// TicketStore persists tickets.
//
// PutTicket is a versioned write: a ticket with Version 0 is inserted and
// must not exist yet; any other version must equal the stored one. On success
// the ticket's Version is incremented in place.
type TicketStore interface {
	GetTicket(ctx context.Context, guildID string, id int64) (*domain.Ticket, error)
	ListTickets(ctx context.Context, guildID string, filter TicketFilter) ([]domain.Ticket, error)
	PutTicket(ctx context.Context, t *domain.Ticket) error
}

// GuildConfigStore persists guild configuration records with the same
// versioning rules as TicketStore.
type GuildConfigStore interface {
	GetGuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error)
	PutGuildConfig(ctx context.Context, cfg *domain.GuildConfig) error
}

// HistoryStore stores the ticket audit trail.
type HistoryStore interface {
	AppendHistory(ctx context.Context, entry *domain.TicketHistory) error
	ListHistory(ctx context.Context, guildID string, ticketID int64) ([]domain.TicketHistory, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	TicketStore
	GuildConfigStore
	HistoryStore
	Ping(ctx context.Context) error
	Close() error
}
