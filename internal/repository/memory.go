package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

type ticketKey struct {
	guild string
	id    int64
}

// Memory is an in-process Store used for development and tests.
type Memory struct {
	mu      sync.RWMutex
	tickets map[ticketKey]*domain.Ticket
	configs map[string]*domain.GuildConfig
	history map[ticketKey][]domain.TicketHistory
	now     func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		tickets: make(map[ticketKey]*domain.Ticket),
		configs: make(map[string]*domain.GuildConfig),
		history: make(map[ticketKey][]domain.TicketHistory),
		now:     time.Now,
	}
}

func (m *Memory) GetTicket(_ context.Context, guildID string, id int64) (*domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[ticketKey{guildID, id}]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *Memory) ListTickets(_ context.Context, guildID string, filter TicketFilter) ([]domain.Ticket, error) {
	m.mu.RLock()
	out := make([]domain.Ticket, 0)
	for k, t := range m.tickets {
		if k.guild == guildID && filter.matches(t) {
			out = append(out, *t.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (m *Memory) PutTicket(_ context.Context, t *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ticketKey{t.GuildID, t.ID}
	if err := checkVersion(m.tickets[key] != nil, storedTicketVersion(m.tickets[key]), t.Version); err != nil {
		return err
	}
	t.Version++
	m.tickets[key] = t.Clone()
	return nil
}

func (m *Memory) GetGuildConfig(_ context.Context, guildID string) (*domain.GuildConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[guildID]
	if !ok {
		return nil, ErrNotFound
	}
	return cfg.Clone(), nil
}

func (m *Memory) PutGuildConfig(_ context.Context, cfg *domain.GuildConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.configs[cfg.GuildID]
	var current int64
	if ok {
		current = stored.Version
	}
	if err := checkVersion(ok, current, cfg.Version); err != nil {
		return err
	}
	cfg.Version++
	cfg.UpdatedAt = m.now().UTC()
	m.configs[cfg.GuildID] = cfg.Clone()
	return nil
}

func (m *Memory) AppendHistory(_ context.Context, entry *domain.TicketHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now().UTC()
	}
	key := ticketKey{entry.GuildID, entry.TicketID}
	m.history[key] = append(m.history[key], *entry)
	return nil
}

func (m *Memory) ListHistory(_ context.Context, guildID string, ticketID int64) ([]domain.TicketHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.TicketHistory(nil), m.history[ticketKey{guildID, ticketID}]...), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func storedTicketVersion(t *domain.Ticket) int64 {
	if t == nil {
		return 0
	}
	return t.Version
}

// checkVersion applies the optimistic write rules shared by every backend.
func checkVersion(exists bool, stored, incoming int64) error {
	switch {
	case incoming == 0 && exists:
		return ErrVersionConflict
	case incoming != 0 && (!exists || stored != incoming):
		return ErrVersionConflict
	}
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
