package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-channels/internal/config"
	"github.com/spec-kit/ticket-channels/internal/repository"
)

// OpenStore builds the configured Store backend. The returned cleanup closes
// every resource opened here.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		pg, err := NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				pg.Close()
				return nil, nil, err
			}
		}
		return repository.NewPostgres(pg.PoolHandle()), pg.Close, nil

	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		store, err := repository.NewSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened sqlite store", zap.String("path", cfg.SQLite.Path))
		return store, func() { _ = store.Close() }, nil

	default:
		logger.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemory(), func() {}, nil
	}
}
