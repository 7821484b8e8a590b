package transcript

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

func TestTextGenerator(t *testing.T) {
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	closed := created.Add(2 * time.Hour)
	claimer, closer := "agent", "agent"
	tk := &domain.Ticket{
		GuildID:     "g1",
		ID:          12,
		Topic:       "billing",
		FormData:    map[string]string{"order": "A-1", "amount": "10"},
		CreatorID:   "alice",
		ClaimerID:   &claimer,
		ClaimedAt:   &created,
		Status:      domain.TicketStatusClosed,
		Tags:        []string{"refund"},
		Notes:       []domain.Note{{AuthorID: "agent", Text: "refund issued", CreatedAt: created.Add(time.Hour)}},
		ClosedAt:    &closed,
		ClosedBy:    &closer,
		CloseReason: "resolved",
	}

	doc, err := NewTextGenerator().Generate(context.Background(), "chan-7", tk)
	if err != nil {
		t.Fatal(err)
	}
	body := string(doc.Body)
	for _, want := range []string{
		"Ticket #0012 (guild g1, channel chan-7)",
		"Claimed by agent",
		"Closed by agent at 2026-02-01 12:00:00 UTC: resolved",
		"  amount: 10\n  order: A-1",
		"agent: refund issued",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("transcript missing %q:\n%s", want, body)
		}
	}
	if doc.Filename != "transcript-g1-0012.txt" {
		t.Fatalf("filename = %s", doc.Filename)
	}
	if len(doc.Digest) != 64 || !Verify(doc.Body, doc.Digest) {
		t.Fatalf("digest %q does not verify", doc.Digest)
	}
	if Verify(append(doc.Body, '!'), doc.Digest) {
		t.Fatal("tampered body verified")
	}
}

func TestGenerateHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewTextGenerator().Generate(ctx, "c", &domain.Ticket{}); err == nil {
		t.Fatal("expected context error")
	}
}
