// Package transcript renders the archive document of a closed ticket.
package transcript

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

// Document is a rendered transcript.
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
	// Digest is the hex BLAKE2b-256 of Body, recorded so archived copies can
	// be verified later.
	Digest string
}

// Generator renders a transcript for a ticket channel.
type Generator interface {
	Generate(ctx context.Context, channelRef string, ticket *domain.Ticket) (Document, error)
}

// TextGenerator renders a plain-text transcript from the ticket record.
type TextGenerator struct {
	Location *time.Location
}

// NewTextGenerator returns a generator rendering timestamps in UTC.
func NewTextGenerator() *TextGenerator {
	return &TextGenerator{Location: time.UTC}
}

func (g *TextGenerator) Generate(ctx context.Context, channelRef string, t *domain.Ticket) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	loc := g.Location
	if loc == nil {
		loc = time.UTC
	}
	ts := func(v time.Time) string { return v.In(loc).Format("2006-01-02 15:04:05 MST") }

	var b strings.Builder
	fmt.Fprintf(&b, "Ticket #%04d (guild %s, channel %s)\n", t.ID, t.GuildID, channelRef)
	fmt.Fprintf(&b, "Topic: %s\n", orDash(t.Topic))
	fmt.Fprintf(&b, "Opened by %s at %s\n", t.CreatorID, ts(t.CreatedAt))
	if t.ClaimerID != nil {
		claimed := "-"
		if t.ClaimedAt != nil {
			claimed = ts(*t.ClaimedAt)
		}
		fmt.Fprintf(&b, "Claimed by %s at %s\n", *t.ClaimerID, claimed)
	}
	fmt.Fprintf(&b, "Priority: %d\n", t.Priority)
	if len(t.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(t.Tags, ", "))
	}
	if len(t.AddedUsers) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(t.AddedUsers, ", "))
	}
	if t.ClosedAt != nil {
		by := "-"
		if t.ClosedBy != nil {
			by = *t.ClosedBy
		}
		fmt.Fprintf(&b, "Closed by %s at %s: %s\n", by, ts(*t.ClosedAt), orDash(t.CloseReason))
	}

	if len(t.FormData) > 0 {
		b.WriteString("\nForm\n")
		keys := make([]string, 0, len(t.FormData))
		for k := range t.FormData {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, t.FormData[k])
		}
	}

	if len(t.Notes) > 0 {
		b.WriteString("\nNotes\n")
		for _, n := range t.Notes {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", ts(n.CreatedAt), n.AuthorID, n.Text)
		}
	}

	body := []byte(b.String())
	sum := blake2b.Sum256(body)
	return Document{
		Filename:    fmt.Sprintf("transcript-%s-%04d.txt", t.GuildID, t.ID),
		ContentType: "text/plain; charset=utf-8",
		Body:        body,
		Digest:      hex.EncodeToString(sum[:]),
	}, nil
}

// Verify reports whether body matches a recorded digest.
func Verify(body []byte, digest string) bool {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:]) == strings.ToLower(digest)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
