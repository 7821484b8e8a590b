package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeCreated    TicketChangeType = "CREATED"
	ChangeTypeStatus     TicketChangeType = "STATUS_CHANGE"
	ChangeTypeClaim      TicketChangeType = "CLAIM_CHANGE"
	ChangeTypeVisibility TicketChangeType = "VISIBILITY_CHANGE"
	ChangeTypePriority   TicketChangeType = "PRIORITY_CHANGE"
	ChangeTypeMembers    TicketChangeType = "MEMBERS_CHANGE"
	ChangeTypeTags       TicketChangeType = "TAGS_CHANGE"
	ChangeTypeNote       TicketChangeType = "NOTE_ADDED"
	ChangeTypeCloseReq   TicketChangeType = "CLOSE_REQUESTED"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID          string
	GuildID     string
	TicketID    int64
	Action      string
	ChangedByID string
	ChangeType  TicketChangeType
	OldValue    map[string]any
	NewValue    map[string]any
	CreatedAt   time.Time
}
