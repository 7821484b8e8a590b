package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-channels/internal/clock"
	"github.com/spec-kit/ticket-channels/internal/domain"
	"github.com/spec-kit/ticket-channels/internal/keylock"
	"github.com/spec-kit/ticket-channels/internal/repository"
	apperrors "github.com/spec-kit/ticket-channels/pkg/util"
)

// ConfigService reads and writes validated guild configuration.
type ConfigService struct {
	store  repository.GuildConfigStore
	locker keylock.Locker
	clock  clock.Clock
	logger *zap.Logger
}

// NewConfigService constructs the service. locker must be the same one the
// ticket service uses so settings writes serialize with ticket creation.
func NewConfigService(store repository.GuildConfigStore, locker keylock.Locker, clk clock.Clock, logger *zap.Logger) *ConfigService {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigService{store: store, locker: locker, clock: clk, logger: logger}
}

// GetConfig returns the guild configuration, falling back to defaults.
func (s *ConfigService) GetConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	if strings.TrimSpace(guildID) == "" {
		return nil, apperrors.NewValidationError("guild is required", nil)
	}
	return loadGuildConfig(ctx, s.store, guildID)
}

// PutConfig replaces the settings of a guild. The ticket counter and the
// assignment history and stats belong to the running system and are carried
// over from the stored record.
func (s *ConfigService) PutConfig(ctx context.Context, guildID string, in domain.GuildConfig) (*domain.GuildConfig, error) {
	if strings.TrimSpace(guildID) == "" {
		return nil, apperrors.NewValidationError("guild is required", nil)
	}
	unlock, err := s.locker.Lock(ctx, keylock.GuildKey(guildID))
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	defer unlock()

	current, err := loadGuildConfig(ctx, s.store, guildID)
	if err != nil {
		return nil, err
	}

	next := in.Clone()
	next.GuildID = guildID
	next.TicketCounter = current.TicketCounter
	next.Assignment.History = current.Assignment.History
	next.Assignment.Stats = current.Assignment.Stats
	next.Assignment.ExcludedMembers = domain.NormalizeSet(next.Assignment.ExcludedMembers)
	next.Version = current.Version
	next.ApplyDefaults()
	if err := next.Validate(); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"guild_id": guildID})
	}
	next.UpdatedAt = s.clock.Now().UTC()

	if err := s.store.PutGuildConfig(ctx, next); err != nil {
		return nil, mapStoreError(err, "guild config", map[string]any{"guild_id": guildID})
	}
	s.logger.Info("guild config updated",
		zap.String("guild_id", guildID),
		zap.String("strategy", string(next.Assignment.Strategy)),
		zap.Int64("version", next.Version))
	return next, nil
}

// Seed writes every seeded guild configuration.
func (s *ConfigService) Seed(ctx context.Context, guilds []domain.GuildConfig) error {
	for _, g := range guilds {
		if _, err := s.PutConfig(ctx, g.GuildID, g); err != nil {
			return err
		}
	}
	return nil
}
