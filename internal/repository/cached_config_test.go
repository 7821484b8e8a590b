package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

// countingStore counts backend guild config reads.
type countingStore struct {
	*Memory
	reads atomic.Int64
}

func (c *countingStore) GetGuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	c.reads.Add(1)
	return c.Memory.GetGuildConfig(ctx, guildID)
}

func newCachedStore(t *testing.T) (*CachedConfig, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backend := &countingStore{Memory: NewMemory()}
	return NewCachedConfig(backend, client, time.Minute, zap.NewNop()), backend, mr
}

func TestCachedConfigStoreContract(t *testing.T) {
	cached, _, _ := newCachedStore(t)
	runStoreContract(t, cached)
}

func TestCachedConfigServesHits(t *testing.T) {
	ctx := context.Background()
	cached, backend, mr := newCachedStore(t)

	cfg := domain.DefaultGuildConfig("g1")
	cfg.TicketCounter = 7
	if err := cached.PutGuildConfig(ctx, &cfg); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		got, err := cached.GetGuildConfig(ctx, "g1")
		if err != nil {
			t.Fatal(err)
		}
		if got.TicketCounter != 7 || got.Version != 1 {
			t.Fatalf("read %d = counter %d version %d", i, got.TicketCounter, got.Version)
		}
	}
	if n := backend.reads.Load(); n != 1 {
		t.Fatalf("backend reads = %d, want 1", n)
	}
	if !mr.Exists(cacheKey("g1")) {
		t.Fatal("config not cached")
	}
	if ttl := mr.TTL(cacheKey("g1")); ttl != time.Minute {
		t.Fatalf("cache ttl = %v", ttl)
	}
}

func TestCachedConfigInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	cached, backend, mr := newCachedStore(t)

	cfg := domain.DefaultGuildConfig("g1")
	if err := cached.PutGuildConfig(ctx, &cfg); err != nil {
		t.Fatal(err)
	}
	current, err := cached.GetGuildConfig(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}

	current.TicketCounter = 3
	if err := cached.PutGuildConfig(ctx, current); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(cacheKey("g1")) {
		t.Fatal("write left a cached entry behind")
	}

	got, err := cached.GetGuildConfig(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if got.TicketCounter != 3 || got.Version != 2 {
		t.Fatalf("after write = counter %d version %d", got.TicketCounter, got.Version)
	}
	if n := backend.reads.Load(); n != 2 {
		t.Fatalf("backend reads = %d, want 2", n)
	}
}

func TestCachedConfigStaleWriteConflicts(t *testing.T) {
	ctx := context.Background()
	cached, backend, _ := newCachedStore(t)

	cfg := domain.DefaultGuildConfig("g1")
	if err := cached.PutGuildConfig(ctx, &cfg); err != nil {
		t.Fatal(err)
	}
	stale, err := cached.GetGuildConfig(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}

	// Another process writes straight to the backend; our cache still
	// holds version 1.
	fresh, err := backend.Memory.GetGuildConfig(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	fresh.TicketCounter = 10
	if err := backend.Memory.PutGuildConfig(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	again, err := cached.GetGuildConfig(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Version != stale.Version {
		t.Fatalf("expected the cached version %d, got %d", stale.Version, again.Version)
	}

	stale.TicketCounter = 4
	if err := cached.PutGuildConfig(ctx, stale); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale write err = %v", err)
	}

	got, err := cached.GetGuildConfig(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if got.TicketCounter != 10 || got.Version != 2 {
		t.Fatalf("after conflict = counter %d version %d", got.TicketCounter, got.Version)
	}
}

func TestCachedConfigFallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	cached, backend, mr := newCachedStore(t)

	cfg := domain.DefaultGuildConfig("g1")
	if err := backend.Memory.PutGuildConfig(ctx, &cfg); err != nil {
		t.Fatal(err)
	}
	mr.Close()

	got, err := cached.GetGuildConfig(ctx, "g1")
	if err != nil {
		t.Fatalf("read with redis down: %v", err)
	}
	if got.GuildID != "g1" {
		t.Fatalf("config = %+v", got)
	}
}

func TestCachedConfigConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	cached, backend, _ := newCachedStore(t)

	cfg := domain.DefaultGuildConfig("g1")
	if err := backend.Memory.PutGuildConfig(ctx, &cfg); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := cached.GetGuildConfig(ctx, "g1")
			if err != nil || got.GuildID != "g1" {
				t.Errorf("read = %+v, %v", got, err)
			}
		}()
	}
	wg.Wait()

	// Misses racing the first fill share a backend read; later ones hit the
	// cache. Either way far fewer reads than callers.
	if n := backend.reads.Load(); n < 1 || n >= 20 {
		t.Fatalf("backend reads = %d", n)
	}
}
