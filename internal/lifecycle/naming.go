package lifecycle

import (
	"fmt"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

var priorityMarkers = map[domain.Priority]string{
	domain.PriorityLow:    "",
	domain.PriorityMedium: "med-",
	domain.PriorityHigh:   "urgent-",
}

// ChannelName derives the display name of a ticket channel from its priority
// and claim state. Hidden state and members do not affect the name.
func ChannelName(t *domain.Ticket) string {
	prefix := "ticket"
	if t.ClaimerID != nil {
		prefix = "claimed"
	}
	return fmt.Sprintf("%s%s-%04d", priorityMarkers[t.Priority.Clamp()], prefix, t.ID)
}
