package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

// CachedConfig is a Store whose guild configuration reads go through Redis.
// Concurrent misses for the same guild share one backend read. Writes go to
// the backend first and then drop the cached entry.
type CachedConfig struct {
	Store
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

// NewCachedConfig wraps store with a Redis read-through cache.
func NewCachedConfig(store Store, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *CachedConfig {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedConfig{Store: store, client: client, ttl: ttl, logger: logger}
}

func cacheKey(guildID string) string {
	return "guild-config:" + guildID
}

func (c *CachedConfig) GetGuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	raw, err := c.client.Get(ctx, cacheKey(guildID)).Bytes()
	if err == nil {
		var cfg domain.GuildConfig
		if err := json.Unmarshal(raw, &cfg); err == nil {
			cfg.ApplyDefaults()
			return &cfg, nil
		}
		c.logger.Warn("discarding undecodable cached guild config", zap.String("guild_id", guildID))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("guild config cache read failed", zap.String("guild_id", guildID), zap.Error(err))
	}

	v, err, _ := c.group.Do(guildID, func() (any, error) {
		cfg, err := c.Store.GetGuildConfig(ctx, guildID)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(cfg); err == nil {
			if err := c.client.Set(ctx, cacheKey(guildID), raw, c.ttl).Err(); err != nil {
				c.logger.Warn("guild config cache write failed", zap.String("guild_id", guildID), zap.Error(err))
			}
		}
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.GuildConfig).Clone(), nil
}

func (c *CachedConfig) PutGuildConfig(ctx context.Context, cfg *domain.GuildConfig) error {
	err := c.Store.PutGuildConfig(ctx, cfg)
	c.Invalidate(ctx, cfg.GuildID)
	return err
}

// Invalidate drops the cached entry of a guild.
func (c *CachedConfig) Invalidate(ctx context.Context, guildID string) {
	if err := c.client.Del(ctx, cacheKey(guildID)).Err(); err != nil {
		c.logger.Warn("guild config cache invalidation failed", zap.String("guild_id", guildID), zap.Error(err))
	}
}
