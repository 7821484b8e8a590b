package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

func newTestTicket(guild string, id int64) *domain.Ticket {
	return &domain.Ticket{
		GuildID:    guild,
		ID:         id,
		ChannelRef: "chan-1",
		Topic:      "billing",
		FormData:   map[string]string{"order": "A-1"},
		CreatorID:  "creator",
		Priority:   domain.PriorityMedium,
		Status:     domain.TicketStatusOpen,
		Tags:       []string{"vip"},
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("ticket round trip", func(t *testing.T) {
		tk := newTestTicket("g1", 1)
		if err := store.PutTicket(ctx, tk); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if tk.Version != 1 {
			t.Fatalf("version after insert = %d", tk.Version)
		}

		got, err := store.GetTicket(ctx, "g1", 1)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Topic != "billing" || got.FormData["order"] != "A-1" || got.Priority != domain.PriorityMedium {
			t.Fatalf("round trip mismatch: %+v", got)
		}
		if !got.CreatedAt.Equal(tk.CreatedAt) || got.ClaimerID != nil || got.CloseRequest != nil {
			t.Fatalf("optional fields mismatch: %+v", got)
		}

		claimer := "team1"
		now := time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC)
		got.ClaimerID = &claimer
		got.ClaimedAt = &now
		got.Hidden = true
		got.AddedUsers = []string{"guest"}
		got.Notes = []domain.Note{{ID: "n1", AuthorID: claimer, Text: "hello", CreatedAt: now}}
		got.CloseRequest = &domain.CloseRequest{RequestedBy: claimer, Reason: "done", RequestedAt: now}
		if err := store.PutTicket(ctx, got); err != nil {
			t.Fatalf("update: %v", err)
		}

		again, err := store.GetTicket(ctx, "g1", 1)
		if err != nil {
			t.Fatalf("get after update: %v", err)
		}
		if again.Version != 2 || !again.IsClaimedBy(claimer) || !again.Hidden {
			t.Fatalf("update not persisted: %+v", again)
		}
		if len(again.Notes) != 1 || again.Notes[0].Text != "hello" || again.CloseRequest == nil || again.CloseRequest.Reason != "done" {
			t.Fatalf("documents not persisted: %+v", again)
		}
		if again.ClaimedAt == nil || !again.ClaimedAt.Equal(now) {
			t.Fatalf("claimedAt = %v", again.ClaimedAt)
		}
	})

	t.Run("version conflicts", func(t *testing.T) {
		tk := newTestTicket("g1", 2)
		if err := store.PutTicket(ctx, tk); err != nil {
			t.Fatal(err)
		}
		dup := newTestTicket("g1", 2)
		if err := store.PutTicket(ctx, dup); !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("duplicate insert err = %v", err)
		}

		a, _ := store.GetTicket(ctx, "g1", 2)
		b, _ := store.GetTicket(ctx, "g1", 2)
		a.Priority = domain.PriorityHigh
		if err := store.PutTicket(ctx, a); err != nil {
			t.Fatalf("first writer: %v", err)
		}
		b.Priority = domain.PriorityLow
		if err := store.PutTicket(ctx, b); !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("stale writer err = %v", err)
		}
		got, _ := store.GetTicket(ctx, "g1", 2)
		if got.Priority != domain.PriorityHigh {
			t.Fatalf("stale write applied: priority %d", got.Priority)
		}
	})

	t.Run("not found", func(t *testing.T) {
		if _, err := store.GetTicket(ctx, "g1", 999); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetTicket err = %v", err)
		}
		if _, err := store.GetGuildConfig(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetGuildConfig err = %v", err)
		}
	})

	t.Run("list with filter", func(t *testing.T) {
		closed := newTestTicket("g2", 1)
		closed.Status = domain.TicketStatusClosed
		claimer := "m1"
		mine := newTestTicket("g2", 2)
		mine.ClaimerID = &claimer
		other := newTestTicket("g2", 3)
		for _, tk := range []*domain.Ticket{closed, mine, other} {
			if err := store.PutTicket(ctx, tk); err != nil {
				t.Fatal(err)
			}
		}

		all, err := store.ListTickets(ctx, "g2", TicketFilter{})
		if err != nil || len(all) != 3 || all[0].ID != 1 || all[2].ID != 3 {
			t.Fatalf("list all = %v, %v", all, err)
		}
		open := domain.TicketStatusOpen
		openOnly, _ := store.ListTickets(ctx, "g2", TicketFilter{Status: &open})
		if len(openOnly) != 2 {
			t.Fatalf("open tickets = %d", len(openOnly))
		}
		claimed, _ := store.ListTickets(ctx, "g2", TicketFilter{ClaimerID: "m1"})
		if len(claimed) != 1 || claimed[0].ID != 2 {
			t.Fatalf("claimed = %v", claimed)
		}
		page, _ := store.ListTickets(ctx, "g2", TicketFilter{Limit: 1, Offset: 1})
		if len(page) != 1 || page[0].ID != 2 {
			t.Fatalf("page = %v", page)
		}
	})

	t.Run("guild config", func(t *testing.T) {
		cfg := domain.DefaultGuildConfig("g3")
		cfg.TicketCounter = 4
		cfg.Visibility.PriorityRoles[domain.PriorityHigh] = []string{"senior"}
		cfg.Assignment.History = []domain.AssignmentRecord{{MemberID: "m", TicketID: 4}}
		cfg.Assignment.Stats = domain.AssignmentStats{TotalAssignments: 1, ByMember: map[string]int64{"m": 1}}
		if err := store.PutGuildConfig(ctx, &cfg); err != nil {
			t.Fatalf("insert config: %v", err)
		}

		got, err := store.GetGuildConfig(ctx, "g3")
		if err != nil {
			t.Fatal(err)
		}
		if got.TicketCounter != 4 || got.Version != 1 || got.Visibility.PriorityRoles[domain.PriorityHigh][0] != "senior" {
			t.Fatalf("config mismatch: %+v", got)
		}
		if got.Lifecycle.TeardownGrace != domain.DefaultTeardownGrace || got.Assignment.Stats.ByMember["m"] != 1 {
			t.Fatalf("config sections mismatch: %+v", got)
		}

		stale := got.Clone()
		got.TicketCounter++
		if err := store.PutGuildConfig(ctx, got); err != nil {
			t.Fatalf("update config: %v", err)
		}
		if err := store.PutGuildConfig(ctx, stale); !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("stale config write err = %v", err)
		}
	})

	t.Run("history", func(t *testing.T) {
		for i, change := range []domain.TicketChangeType{domain.ChangeTypeCreated, domain.ChangeTypeClaim} {
			entry := &domain.TicketHistory{
				GuildID:     "g1",
				TicketID:    1,
				Action:      string(change),
				ChangedByID: "actor",
				ChangeType:  change,
				NewValue:    map[string]any{"step": float64(i)},
			}
			if err := store.AppendHistory(ctx, entry); err != nil {
				t.Fatalf("append: %v", err)
			}
			if entry.ID == "" || entry.CreatedAt.IsZero() {
				t.Fatalf("entry not stamped: %+v", entry)
			}
		}
		got, err := store.ListHistory(ctx, "g1", 1)
		if err != nil || len(got) != 2 {
			t.Fatalf("history = %v, %v", got, err)
		}
		if got[0].ChangeType != domain.ChangeTypeCreated || got[1].NewValue["step"] != float64(1) {
			t.Fatalf("history order/content = %+v", got)
		}
	})

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLite(filepath.Join(t.TempDir(), "tickets.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	runStoreContract(t, store)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	tk := newTestTicket("g", 1)
	if err := store.PutTicket(ctx, tk); err != nil {
		t.Fatal(err)
	}
	tk.Tags = append(tk.Tags, "mutated")

	got, _ := store.GetTicket(ctx, "g", 1)
	got.FormData["order"] = "changed"
	again, _ := store.GetTicket(ctx, "g", 1)
	if len(again.Tags) != 1 || again.FormData["order"] != "A-1" {
		t.Fatalf("store shares memory with callers: %+v", again)
	}
}
