package service

import (
	"context"
	"errors"

	"github.com/spec-kit/ticket-channels/internal/domain"
	"github.com/spec-kit/ticket-channels/internal/repository"
	apperrors "github.com/spec-kit/ticket-channels/pkg/util"
)

// mapStoreError converts repository sentinels into domain errors.
func mapStoreError(err error, resource string, details map[string]any) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, details)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict(resource+" was modified concurrently", details)
	default:
		return apperrors.MapError(err)
	}
}

// loadGuildConfig returns the stored configuration, or the defaults for
// guilds that never saved one.
func loadGuildConfig(ctx context.Context, store repository.GuildConfigStore, guildID string) (*domain.GuildConfig, error) {
	cfg, err := store.GetGuildConfig(ctx, guildID)
	if errors.Is(err, repository.ErrNotFound) {
		def := domain.DefaultGuildConfig(guildID)
		return &def, nil
	}
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
