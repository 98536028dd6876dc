package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Lifecycle LifecycleConfig
	Sweep     SweepConfig
	Tracing   TracingConfig
	Events    EventsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `env:"APP_NAME" env-default:"ticket-lifecycle"`
	Env                   string `env:"APP_ENV" env-default:"development"`
	Host                  string `env:"APP_HOST" env-default:"0.0.0.0"`
	Port                  string `env:"APP_PORT" env-default:"8080"`
	Version               string `env:"APP_VERSION" env-default:"dev"`
	RequestTimeoutSeconds int    `env:"HTTP_REQUEST_TIMEOUT_SECONDS" env-default:"30"`
}

// PostgresConfig holds DB connection values. An empty DSN runs on the
// in-memory store.
type PostgresConfig struct {
	DSN            string `env:"POSTGRES_DSN"`
	MaxConns       int32  `env:"POSTGRES_MAX_CONNS" env-default:"10"`
	MinConns       int32  `env:"POSTGRES_MIN_CONNS" env-default:"2"`
	RunMigrations  bool   `env:"POSTGRES_RUN_MIGRATIONS" env-default:"true"`
	ConnMaxIdleSec int32  `env:"POSTGRES_CONN_MAX_IDLE_SECONDS" env-default:"30"`
	ConnMaxLifeSec int32  `env:"POSTGRES_CONN_MAX_LIFE_SECONDS" env-default:"300"`
}

// RedisConfig holds Redis connection values. An empty address disables the
// sweep lock and event fan-out.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string `env:"LOG_LEVEL" env-default:"info"`
	Encoding string `env:"LOG_ENCODING" env-default:"json"`
	Output   string `env:"LOG_OUTPUT" env-default:"stdout"`
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string `env:"AUTH_JWT_SECRET" env-default:"dev-secret"`
	AccessTokenTTLMinutes int    `env:"AUTH_ACCESS_TOKEN_TTL_MINUTES" env-default:"60"`
	// PolicyPath points at a casbin CSV policy; empty uses the built-in one.
	PolicyPath string `env:"AUTH_POLICY_PATH"`
}

// LifecycleConfig tunes the transition engine.
type LifecycleConfig struct {
	DefaultInitialStatus  string   `env:"LIFECYCLE_DEFAULT_INITIAL_STATUS" env-default:"open"`
	InternalReviewTenants []string `env:"LIFECYCLE_INTERNAL_REVIEW_TENANTS" env-separator:","`
	ConflictRetries       int      `env:"LIFECYCLE_CONFLICT_RETRIES" env-default:"3"`
	ChangelogPageSize     int      `env:"LIFECYCLE_CHANGELOG_PAGE_SIZE" env-default:"100"`
}

// SweepConfig drives the auto-close job.
type SweepConfig struct {
	Enabled          bool          `env:"SWEEP_ENABLED" env-default:"true"`
	Schedule         string        `env:"SWEEP_SCHEDULE" env-default:"0 3 * * *"`
	InactivityWindow time.Duration `env:"SWEEP_INACTIVITY_WINDOW" env-default:"120h"`
	BatchSize        int           `env:"SWEEP_BATCH_SIZE" env-default:"200"`
	Concurrency      int           `env:"SWEEP_CONCURRENCY" env-default:"4"`
	LockKey          string        `env:"SWEEP_LOCK_KEY" env-default:"ticket-lifecycle:sweep-lock"`
	LockTTL          time.Duration `env:"SWEEP_LOCK_TTL" env-default:"30m"`
}

// TracingConfig toggles OpenTelemetry spans.
type TracingConfig struct {
	Enabled     bool   `env:"TRACING_ENABLED" env-default:"false"`
	ServiceName string `env:"TRACING_SERVICE_NAME" env-default:"ticket-lifecycle"`
}

// EventsConfig configures event fan-out.
type EventsConfig struct {
	RedisChannel string `env:"EVENTS_REDIS_CHANNEL" env-default:"ticket-lifecycle.events"`
}

// Load reads configuration from .env and environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values cleanenv cannot express as tags.
func (c *Config) Validate() error {
	if !domain.TicketStatus(c.Lifecycle.DefaultInitialStatus).IsInitial() {
		return fmt.Errorf("LIFECYCLE_DEFAULT_INITIAL_STATUS must be open or pending_internal_review, got %q", c.Lifecycle.DefaultInitialStatus)
	}
	if c.Lifecycle.ConflictRetries < 0 {
		return fmt.Errorf("LIFECYCLE_CONFLICT_RETRIES must not be negative")
	}
	if c.Sweep.InactivityWindow <= 0 {
		return fmt.Errorf("SWEEP_INACTIVITY_WINDOW must be positive")
	}
	if c.Sweep.Enabled {
		if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
			return fmt.Errorf("SWEEP_SCHEDULE %q: %w", c.Sweep.Schedule, err)
		}
	}
	if c.Sweep.Concurrency <= 0 {
		c.Sweep.Concurrency = 1
	}
	if c.Sweep.BatchSize <= 0 {
		c.Sweep.BatchSize = 200
	}
	return nil
}

// InternalReviewTenantSet returns the tenants whose new tickets start in
// pending_internal_review.
func (l LifecycleConfig) InternalReviewTenantSet() map[string]struct{} {
	out := make(map[string]struct{}, len(l.InternalReviewTenants))
	for _, tenant := range l.InternalReviewTenants {
		if tenant = strings.TrimSpace(tenant); tenant != "" {
			out[tenant] = struct{}{}
		}
	}
	return out
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
