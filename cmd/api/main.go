package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-channels/internal/api/http"
	"github.com/spec-kit/ticket-channels/internal/api/http/handlers"
	"github.com/spec-kit/ticket-channels/internal/auth"
	"github.com/spec-kit/ticket-channels/internal/clock"
	"github.com/spec-kit/ticket-channels/internal/config"
	"github.com/spec-kit/ticket-channels/internal/events"
	"github.com/spec-kit/ticket-channels/internal/keylock"
	"github.com/spec-kit/ticket-channels/internal/observability"
	"github.com/spec-kit/ticket-channels/internal/persistence"
	"github.com/spec-kit/ticket-channels/internal/platform"
	"github.com/spec-kit/ticket-channels/internal/rename"
	"github.com/spec-kit/ticket-channels/internal/repository"
	"github.com/spec-kit/ticket-channels/internal/service"
	"github.com/spec-kit/ticket-channels/internal/worker"
)

const shutdownGrace = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Tracing, cfg.App)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	store, closeStore, err := persistence.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	var redis *persistence.Redis
	if cfg.UsesRedis() {
		redis, err = persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redis.Close()
		if cfg.Store.CacheConfigTTL > 0 {
			store = repository.NewCachedConfig(store, redis.Client, cfg.Store.CacheConfigTTL, logger)
		}
	}

	var locker keylock.Locker = keylock.NewLocal()
	if cfg.Lock.Backend == config.LockRedis {
		locker = keylock.NewRedis(redis.Client, cfg.Lock.TTL, cfg.Lock.Retry, logger)
	}

	adapter, err := newPlatform(cfg.Platform, logger)
	if err != nil {
		logger.Fatal("failed to init platform adapter", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	limiter := rename.NewLimiter(adapter, clock.Real(), rename.Config{
		FastDelay:    cfg.Rename.FastDelay,
		Debounce:     cfg.Rename.Debounce,
		Quiescence:   cfg.Rename.Quiescence,
		MinInterval:  cfg.Rename.MinInterval,
		RetryBackoff: cfg.Rename.RetryBackoff,
		CallTimeout:  cfg.Rename.CallTimeout,
	}, logger, metrics)
	defer limiter.Close()

	approvals := auth.NewCloseApprovals(cfg.Approval.Secret, cfg.Approval.TTL, time.Now)
	dispatcher := events.NewAsyncDispatcher(logger, 0)

	tickets := service.NewTicketService(service.TicketDependencies{
		Store:      store,
		Platform:   adapter,
		Locker:     locker,
		Renames:    limiter,
		Approvals:  approvals,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	configs := service.NewConfigService(store, locker, clock.Real(), logger)
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, adapter, logger, cfg.Notification), cfg.Notification, logger)

	if cfg.App.GuildSeedFile != "" {
		seedGuilds(ctx, cfg.App.GuildSeedFile, configs, store, limiter, logger)
	}

	healthDeps := map[string]handlers.Pinger{"store": store}
	if redis != nil {
		healthDeps["redis"] = redis
	}

	app := httptransport.NewApp(cfg.App.Name)
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthDeps),
		Tickets: handlers.NewTicketsHandler(tickets),
		Config:  handlers.NewConfigHandler(configs, tickets),
		Ops:     handlers.NewOpsHandler(limiter, metrics),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.ShutdownWithTimeout(shutdownGrace)
	waitWithTimeout(logger, "ticket follow-ups", tickets.Wait, shutdownGrace)
	waitWithTimeout(logger, "event handlers", dispatcher.Wait, shutdownGrace)

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

func newPlatform(cfg config.PlatformConfig, logger *zap.Logger) (platform.Adapter, error) {
	if cfg.GatewayURL == "" {
		logger.Warn("no platform gateway configured; using in-memory adapter")
		return platform.NewMemory(), nil
	}
	return platform.NewGateway(platform.GatewayConfig{
		BaseURL: cfg.GatewayURL,
		Token:   cfg.Token,
		Timeout: cfg.Timeout,
	})
}

// seedGuilds writes the configured guilds and re-arms channel names for
// their open tickets, since pending renames do not survive a restart.
func seedGuilds(ctx context.Context, path string, configs *service.ConfigService, store repository.TicketStore, renames service.RenameScheduler, logger *zap.Logger) {
	guilds, err := config.LoadGuildSeeds(path)
	if err != nil {
		logger.Fatal("failed to load guild seeds", zap.String("path", path), zap.Error(err))
	}
	if err := configs.Seed(ctx, guilds); err != nil {
		logger.Fatal("failed to seed guilds", zap.Error(err))
	}

	ids := make([]string, 0, len(guilds))
	for _, g := range guilds {
		ids = append(ids, g.GuildID)
	}
	n, err := worker.ReconcileChannelNames(ctx, store, renames, ids, logger)
	if err != nil {
		logger.Warn("channel name reconcile failed", zap.Error(err))
	}
	logger.Info("guilds seeded", zap.Int("guilds", len(guilds)), zap.Int("renames", n))
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

func waitWithTimeout(logger *zap.Logger, what string, wait func(), timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("gave up waiting", zap.String("what", what), zap.Duration("timeout", timeout))
	}
}
