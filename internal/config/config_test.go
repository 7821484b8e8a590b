package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spec-kit/ticket-channels/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"STORE_BACKEND", "LOCK_BACKEND", "STORE_CONFIG_CACHE_TTL", "APP_PORT", "APP_HOST"} {
		unsetEnv(t, key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != StoreMemory || cfg.Lock.Backend != LockLocal {
		t.Fatalf("backends = %q/%q", cfg.Store.Backend, cfg.Lock.Backend)
	}
	if cfg.Rename.MinInterval != 3*time.Second || cfg.Rename.FastDelay != 250*time.Millisecond {
		t.Fatalf("rename defaults = %+v", cfg.Rename)
	}
	if cfg.App.Addr() != "0.0.0.0:8080" {
		t.Fatalf("addr = %s", cfg.App.Addr())
	}
	if cfg.UsesRedis() {
		t.Fatal("defaults should not need redis")
	}
}

func TestLoadRejectsPostgresWithoutDSN(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("POSTGRES_DSN", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "POSTGRES_DSN") {
		t.Fatalf("Load err = %v", err)
	}
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("LOCK_BACKEND", "zookeeper")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"STORE_BACKEND", "LOCK_BACKEND"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatal(err)
	}
}

const seedYAML = `
guilds:
  - id: "100"
    assignment:
      enabled: true
      strategy: round_robin
      excluded_members: ["42"]
    visibility:
      legacy_team_role: staff
      low: [tier1]
      high: [tier3]
    lifecycle:
      creator_close: direct
      teardown_grace: 30s
      transcript_channel: "900"
  - id: "200"
`

func TestParseGuildSeeds(t *testing.T) {
	guilds, err := ParseGuildSeeds([]byte(seedYAML))
	if err != nil {
		t.Fatalf("ParseGuildSeeds: %v", err)
	}
	if len(guilds) != 2 {
		t.Fatalf("got %d guilds", len(guilds))
	}

	g := guilds[0]
	if g.Assignment.Strategy != domain.StrategyRoundRobin || !g.Assignment.Enabled {
		t.Fatalf("assignment = %+v", g.Assignment)
	}
	if g.Lifecycle.CreatorClose != domain.ClosePolicyDirect || g.Lifecycle.TeardownGrace != 30*time.Second {
		t.Fatalf("lifecycle = %+v", g.Lifecycle)
	}
	if got := g.Visibility.TeamRoles(); strings.Join(got, ",") != "staff,tier1,tier3" {
		t.Fatalf("team roles = %v", got)
	}

	def := guilds[1]
	if def.Assignment.Strategy != domain.StrategyWorkload || def.Lifecycle.CreatorClose != domain.ClosePolicyApproval {
		t.Fatalf("defaults not applied: %+v", def)
	}
}

func TestParseGuildSeedsValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing id", "guilds:\n  - assignment: {strategy: workload}\n", "id is required"},
		{"duplicate", "guilds:\n  - id: a\n  - id: a\n", "duplicate"},
		{"bad strategy", "guilds:\n  - id: a\n    assignment: {strategy: lottery}\n", "unknown strategy"},
		{"bad policy", "guilds:\n  - id: a\n    lifecycle: {creator_close: anyone}\n", "creator close"},
		{"bad grace", "guilds:\n  - id: a\n    lifecycle: {teardown_grace: soon}\n", "teardown_grace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGuildSeeds([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v; want %q", err, tt.want)
			}
		})
	}
}

func TestLoadGuildSeedsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guilds.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	guilds, err := LoadGuildSeeds(path)
	if err != nil || len(guilds) != 2 {
		t.Fatalf("LoadGuildSeeds = %d, %v", len(guilds), err)
	}
	if _, err := LoadGuildSeeds(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
