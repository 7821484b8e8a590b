package dto

import (
	"time"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Topic    string            `json:"topic"`
	FormData map[string]string `json:"form_data"`
	Priority int               `json:"priority"`
}

// TransitionRequest carries optional action arguments.
type TransitionRequest struct {
	Reason        string `json:"reason"`
	UserID        string `json:"user_id"`
	Text          string `json:"text"`
	Tag           string `json:"tag"`
	ApprovalToken string `json:"approval_token"`
}

// TicketResponse is the public view of a ticket.
type TicketResponse struct {
	GuildID      string               `json:"guild_id"`
	ID           int64                `json:"id"`
	ChannelRef   string               `json:"channel_ref"`
	Topic        string               `json:"topic"`
	FormData     map[string]string    `json:"form_data,omitempty"`
	CreatorID    string               `json:"creator_id"`
	ClaimerID    *string              `json:"claimer_id"`
	Priority     domain.Priority      `json:"priority"`
	Status       domain.TicketStatus  `json:"status"`
	State        domain.TicketState   `json:"state"`
	Hidden       bool                 `json:"hidden"`
	AddedUsers   []string             `json:"added_users"`
	Tags         []string             `json:"tags"`
	Notes        []domain.Note        `json:"notes,omitempty"`
	CloseRequest *domain.CloseRequest `json:"close_request,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	ClaimedAt    *time.Time           `json:"claimed_at,omitempty"`
	ClosedAt     *time.Time           `json:"closed_at,omitempty"`
	ClosedBy     *string              `json:"closed_by,omitempty"`
	CloseReason  string               `json:"close_reason,omitempty"`
	Version      int64                `json:"version"`
}

// TransitionResponse reports a transition result.
type TransitionResponse struct {
	Ticket  TicketResponse     `json:"ticket"`
	Action  string             `json:"action"`
	From    domain.TicketState `json:"from"`
	To      domain.TicketState `json:"to"`
	Changed bool               `json:"changed"`
}

// TicketHistoryResponse describes one audit entry.
type TicketHistoryResponse struct {
	ID          string                  `json:"id"`
	Action      string                  `json:"action"`
	ChangeType  domain.TicketChangeType `json:"change_type"`
	ChangedByID string                  `json:"changed_by_id,omitempty"`
	OldValue    map[string]any          `json:"old_value,omitempty"`
	NewValue    map[string]any          `json:"new_value,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

// NewTicketResponse maps a ticket to its response shape.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		GuildID:      t.GuildID,
		ID:           t.ID,
		ChannelRef:   t.ChannelRef,
		Topic:        t.Topic,
		FormData:     t.FormData,
		CreatorID:    t.CreatorID,
		ClaimerID:    t.ClaimerID,
		Priority:     t.Priority,
		Status:       t.Status,
		State:        t.State(),
		Hidden:       t.Hidden,
		AddedUsers:   emptyIfNil(t.AddedUsers),
		Tags:         emptyIfNil(t.Tags),
		Notes:        t.Notes,
		CloseRequest: t.CloseRequest,
		CreatedAt:    t.CreatedAt,
		ClaimedAt:    t.ClaimedAt,
		ClosedAt:     t.ClosedAt,
		ClosedBy:     t.ClosedBy,
		CloseReason:  t.CloseReason,
		Version:      t.Version,
	}
}

// NewHistoryResponses maps audit entries.
func NewHistoryResponses(entries []domain.TicketHistory) []TicketHistoryResponse {
	resp := make([]TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, TicketHistoryResponse{
			ID:          entry.ID,
			Action:      entry.Action,
			ChangeType:  entry.ChangeType,
			ChangedByID: entry.ChangedByID,
			OldValue:    entry.OldValue,
			NewValue:    entry.NewValue,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return resp
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
