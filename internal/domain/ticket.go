package domain

import (
	"slices"
	"time"
)

// TicketStatus enumerates persisted lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "OPEN"
	TicketStatusClosed TicketStatus = "CLOSED"
)

// TicketState is the state-machine view derived from status, claim and visibility.
type TicketState string

const (
	StateOpenUnclaimed     TicketState = "OPEN_UNCLAIMED"
	StateOpenClaimed       TicketState = "OPEN_CLAIMED"
	StateOpenClaimedHidden TicketState = "OPEN_CLAIMED_HIDDEN"
	StateClosed            TicketState = "CLOSED"
)

// Priority is the escalation level of a ticket.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityMedium Priority = 1
	PriorityHigh   Priority = 2

	MinPriority = PriorityLow
	MaxPriority = PriorityHigh
)

// Valid reports whether p is within [MinPriority, MaxPriority].
func (p Priority) Valid() bool {
	return p >= MinPriority && p <= MaxPriority
}

// Clamp bounds p to the valid range.
func (p Priority) Clamp() Priority {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// Note is an internal staff annotation on a ticket.
type Note struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// CloseRequest records a pending request for the creator to close the ticket.
type CloseRequest struct {
	RequestedBy string    `json:"requested_by"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Ticket is the aggregate for a support conversation bound to one channel.
type Ticket struct {
	GuildID      string            `json:"guild_id"`
	ID           int64             `json:"id"`
	ChannelRef   string            `json:"channel_ref"`
	Topic        string            `json:"topic"`
	FormData     map[string]string `json:"form_data,omitempty"`
	CreatorID    string            `json:"creator_id"`
	ClaimerID    *string           `json:"claimer_id,omitempty"`
	Priority     Priority          `json:"priority"`
	Status       TicketStatus      `json:"status"`
	Hidden       bool              `json:"hidden"`
	AddedUsers   []string          `json:"added_users"`
	Tags         []string          `json:"tags"`
	Notes        []Note            `json:"notes"`
	CloseRequest *CloseRequest     `json:"close_request,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ClaimedAt    *time.Time        `json:"claimed_at,omitempty"`
	ClosedAt     *time.Time        `json:"closed_at,omitempty"`
	ClosedBy     *string           `json:"closed_by,omitempty"`
	CloseReason  string            `json:"close_reason,omitempty"`
	Version      int64             `json:"version"`
}

// State derives the lifecycle state.
func (t *Ticket) State() TicketState {
	switch {
	case t.Status == TicketStatusClosed:
		return StateClosed
	case t.ClaimerID == nil:
		return StateOpenUnclaimed
	case t.Hidden:
		return StateOpenClaimedHidden
	default:
		return StateOpenClaimed
	}
}

// IsOpen reports whether the ticket still accepts transitions.
func (t *Ticket) IsOpen() bool {
	return t.Status == TicketStatusOpen
}

// IsClaimedBy reports whether memberID holds the claim.
func (t *Ticket) IsClaimedBy(memberID string) bool {
	return t.ClaimerID != nil && *t.ClaimerID == memberID
}

// Clone returns a deep copy safe to mutate independently.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	if t.FormData != nil {
		out.FormData = make(map[string]string, len(t.FormData))
		for k, v := range t.FormData {
			out.FormData[k] = v
		}
	}
	out.ClaimerID = clonePtr(t.ClaimerID)
	out.ClosedBy = clonePtr(t.ClosedBy)
	out.ClaimedAt = clonePtr(t.ClaimedAt)
	out.ClosedAt = clonePtr(t.ClosedAt)
	if t.CloseRequest != nil {
		req := *t.CloseRequest
		out.CloseRequest = &req
	}
	out.AddedUsers = slices.Clone(t.AddedUsers)
	out.Tags = slices.Clone(t.Tags)
	out.Notes = slices.Clone(t.Notes)
	return &out
}

// CheckInvariants validates the structural invariants of a ticket record.
func (t *Ticket) CheckInvariants() error {
	if !t.Priority.Valid() {
		return invariantError("priority out of range")
	}
	if t.Hidden && t.ClaimerID == nil {
		return invariantError("hidden ticket without claimer")
	}
	if t.Status != TicketStatusOpen && t.Status != TicketStatusClosed {
		return invariantError("unknown status")
	}
	return nil
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
