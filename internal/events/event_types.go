package events

import (
	"time"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated           EventType = "ticket_created"
	EventTicketClaimed           EventType = "ticket_claimed"
	EventTicketUnclaimed         EventType = "ticket_unclaimed"
	EventTicketAssigned          EventType = "ticket_assigned"
	EventTicketPriorityChanged   EventType = "ticket_priority_changed"
	EventTicketVisibilityChanged EventType = "ticket_visibility_changed"
	EventTicketMembersChanged    EventType = "ticket_members_changed"
	EventTicketCloseRequested    EventType = "ticket_close_requested"
	EventTicketClosed            EventType = "ticket_closed"
)

// Event represents a domain event emitted by services. Ticket is a
// snapshot taken after the change was persisted.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	GuildID   string         `json:"guild_id"`
	TicketID  int64          `json:"ticket_id"`
	Actor     domain.Actor   `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Ticket    *domain.Ticket `json:"ticket,omitempty"`
	Payload   interface{}    `json:"payload,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Topic      string          `json:"topic"`
	Priority   domain.Priority `json:"priority"`
	ChannelRef string          `json:"channel_ref"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	MemberID string          `json:"member_id"`
	Strategy domain.Strategy `json:"strategy"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.Priority `json:"old_priority"`
	NewPriority domain.Priority `json:"new_priority"`
}

// TicketCloseRequestedPayload payload. Token is the creator's close approval.
type TicketCloseRequestedPayload struct {
	RequestedBy string    `json:"requested_by"`
	Reason      string    `json:"reason,omitempty"`
	Token       string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	ClosedBy         string `json:"closed_by"`
	Reason           string `json:"reason,omitempty"`
	TranscriptDigest string `json:"transcript_digest,omitempty"`
}
