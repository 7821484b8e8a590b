package persistence

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-channels/internal/config"
	"github.com/spec-kit/ticket-channels/internal/repository"
)

func TestMigrationsAreEmbedded(t *testing.T) {
	names, err := MigrationNames()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_init.sql" {
		t.Fatalf("migrations = %v", names)
	}
	raw, err := migrationFiles.ReadFile("migrations/001_init.sql")
	if err != nil {
		t.Fatal(err)
	}
	for _, table := range []string{"guild_configs", "tickets", "ticket_history"} {
		if !strings.Contains(string(raw), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("migration does not create %s", table)
		}
	}
}

func TestRunMigrationsWithoutPool(t *testing.T) {
	if err := RunMigrations(context.Background(), nil, zap.NewNop()); err != nil {
		t.Fatalf("RunMigrations(nil) = %v", err)
	}
}

func TestNewPostgresRequiresDSN(t *testing.T) {
	if _, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop()); err == nil {
		t.Fatal("expected an error without a DSN")
	}
	var pg *Postgres
	if pg.PoolHandle() != nil {
		t.Fatal("nil Postgres must have no pool")
	}
	pg.Close()
}

func TestOpenStoreSQLite(t *testing.T) {
	cfg := &config.Config{
		Store:  config.StoreConfig{Backend: config.StoreSQLite},
		SQLite: config.SQLiteConfig{Path: t.TempDir() + "/nested/tickets.db"},
	}
	store, cleanup, err := OpenStore(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer cleanup()
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestOpenStoreMemory(t *testing.T) {
	store, cleanup, err := OpenStore(context.Background(), &config.Config{Store: config.StoreConfig{Backend: config.StoreMemory}}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	if _, ok := store.(*repository.Memory); !ok {
		t.Fatalf("store = %T", store)
	}
}
