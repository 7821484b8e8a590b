package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Postgres     PostgresConfig
	SQLite       SQLiteConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Lock         LockConfig
	Rename       RenameConfig
	Platform     PlatformConfig
	Notification NotificationConfig
	Approval     ApprovalConfig
	Tracing      TracingConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"APP_NAME" envDefault:"ticket-channels"`
	Env                   string `env:"APP_ENV" envDefault:"development"`
	Host                  string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port                  string `env:"APP_PORT" envDefault:"8080"`
	Version               string `env:"APP_VERSION" envDefault:"dev"`
	RequestTimeoutSeconds int    `env:"HTTP_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
	// GuildSeedFile is an optional YAML file with guild configurations
	// written to the store at startup.
	GuildSeedFile string `env:"GUILD_SEED_FILE"`
}

// StoreConfig selects the ticket store backend.
type StoreConfig struct {
	Backend string `env:"STORE_BACKEND" envDefault:"memory"`
	// CacheConfigTTL enables the Redis guild-config cache when positive.
	CacheConfigTTL time.Duration `env:"STORE_CONFIG_CACHE_TTL" envDefault:"0s"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `env:"POSTGRES_DSN"`
	MaxConns       int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	MinConns       int32  `env:"POSTGRES_MIN_CONNS" envDefault:"2"`
	RunMigrations  bool   `env:"POSTGRES_RUN_MIGRATIONS" envDefault:"true"`
	ConnMaxIdleSec int32  `env:"POSTGRES_CONN_MAX_IDLE_SECONDS" envDefault:"30"`
	ConnMaxLifeSec int32  `env:"POSTGRES_CONN_MAX_LIFE_SECONDS" envDefault:"300"`
}

// SQLiteConfig holds the embedded store location.
type SQLiteConfig struct {
	Path string `env:"SQLITE_PATH" envDefault:"data/tickets.db"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// LockConfig selects the keyed lock used for ticket and guild mutations.
type LockConfig struct {
	Backend string        `env:"LOCK_BACKEND" envDefault:"local"`
	TTL     time.Duration `env:"LOCK_TTL" envDefault:"15s"`
	Retry   time.Duration `env:"LOCK_RETRY" envDefault:"25ms"`
}

// RenameConfig overrides the rename limiter timings.
type RenameConfig struct {
	FastDelay    time.Duration `env:"RENAME_FAST_DELAY" envDefault:"250ms"`
	Debounce     time.Duration `env:"RENAME_DEBOUNCE" envDefault:"500ms"`
	Quiescence   time.Duration `env:"RENAME_QUIESCENCE" envDefault:"8s"`
	MinInterval  time.Duration `env:"RENAME_MIN_INTERVAL" envDefault:"3s"`
	RetryBackoff time.Duration `env:"RENAME_RETRY_BACKOFF" envDefault:"4s"`
	CallTimeout  time.Duration `env:"RENAME_CALL_TIMEOUT" envDefault:"10s"`
}

// PlatformConfig points at the chat platform gateway. An empty URL selects
// the in-memory adapter.
type PlatformConfig struct {
	GatewayURL string        `env:"PLATFORM_GATEWAY_URL"`
	Token      string        `env:"PLATFORM_TOKEN"`
	Timeout    time.Duration `env:"PLATFORM_TIMEOUT" envDefault:"10s"`
}

// NotificationConfig holds notification endpoints.
type NotificationConfig struct {
	EmailFrom  string `env:"NOTIFY_EMAIL_FROM" envDefault:"noreply@example.com"`
	WebhookURL string `env:"NOTIFY_WEBHOOK_URL"`
	DirectMsgs bool   `env:"NOTIFY_DIRECT_MESSAGES" envDefault:"true"`
}

// ApprovalConfig signs close-approval tokens.
type ApprovalConfig struct {
	Secret string        `env:"APPROVAL_SECRET" envDefault:"dev-secret"`
	TTL    time.Duration `env:"APPROVAL_TTL" envDefault:"24h"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	SampleRatio float64 `env:"OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// Load reads configuration from the environment (and an optional .env file),
// applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend))
	}

	c.Lock.Backend = strings.ToLower(strings.TrimSpace(c.Lock.Backend))
	if c.Lock.Backend != LockLocal && c.Lock.Backend != LockRedis {
		errs = append(errs, fmt.Errorf("unknown LOCK_BACKEND %q", c.Lock.Backend))
	}
	if c.Approval.Secret == "" {
		errs = append(errs, errors.New("APPROVAL_SECRET must not be empty"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATIO must be within [0,1]"))
	}
	return errors.Join(errs...)
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Lock.Backend == LockRedis || c.Store.CacheConfigTTL > 0
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}
