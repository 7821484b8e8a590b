package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-channels/internal/domain"
	"github.com/spec-kit/ticket-channels/internal/lifecycle"
	"github.com/spec-kit/ticket-channels/internal/repository"
	"github.com/spec-kit/ticket-channels/internal/service"
)

// ReconcileChannelNames schedules the derived name of every open ticket in
// the given guilds. Rename state lives in memory, so a restart drops pending
// renames; the limiter skips channels whose name already matches.
func ReconcileChannelNames(ctx context.Context, tickets repository.TicketStore, renames service.RenameScheduler, guildIDs []string, logger *zap.Logger) (int, error) {
	open := domain.TicketStatusOpen
	scheduled := 0
	for _, guildID := range guildIDs {
		list, err := tickets.ListTickets(ctx, guildID, repository.TicketFilter{Status: &open})
		if err != nil {
			return scheduled, err
		}
		for i := range list {
			t := &list[i]
			if t.ChannelRef == "" {
				continue
			}
			renames.Schedule(t.ChannelRef, lifecycle.ChannelName(t))
			scheduled++
		}
		logger.Debug("channel names reconciled", zap.String("guild_id", guildID), zap.Int("open_tickets", len(list)))
	}
	return scheduled, nil
}
