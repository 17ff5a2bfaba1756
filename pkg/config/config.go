package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration (optional)
	Redis RedisConfig

	// Authorization and session lifecycle
	Auth AuthConfig

	// Record and batch limits
	Limits LimitsConfig

	// Maintenance sweeps
	Maintenance MaintenanceConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `envconfig:"ROWGUARD_HOST" default:"0.0.0.0"`
	Port            string        `envconfig:"ROWGUARD_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"ROWGUARD_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"ROWGUARD_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"ROWGUARD_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"ROWGUARD_SHUTDOWN_TIMEOUT" default:"30s"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `envconfig:"ROWGUARD_HEALTH_PORT" default:"9090"`

	// Path to the application schema (YAML or JSON)
	SchemaPath string `envconfig:"ROWGUARD_SCHEMA_PATH" default:"rowguard.yaml"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string        `envconfig:"ROWGUARD_DATABASE_URL" default:""`
	MaxOpenConns    int           `envconfig:"ROWGUARD_DATABASE_MAX_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ROWGUARD_DATABASE_MIN_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"ROWGUARD_DATABASE_CONN_LIFETIME" default:"30m"`
	Timeout         time.Duration `envconfig:"ROWGUARD_DATABASE_TIMEOUT" default:"10s"`
}

// RedisConfig enables the shared session cache and distributed rate limiting
type RedisConfig struct {
	URL      string `envconfig:"ROWGUARD_REDIS_URL" default:""`
	Password string `envconfig:"ROWGUARD_REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"ROWGUARD_REDIS_DB" default:"0"`
	PoolSize int    `envconfig:"ROWGUARD_REDIS_POOL_SIZE" default:"10"`
}

// Enabled reports whether a Redis endpoint was configured
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// AuthConfig holds session, token and invitation lifetimes
type AuthConfig struct {
	SessionTTL      time.Duration `envconfig:"ROWGUARD_SESSION_TTL" default:"168h"`
	SessionCacheTTL time.Duration `envconfig:"ROWGUARD_SESSION_CACHE_TTL" default:"5s"`
	SessionCacheMax int           `envconfig:"ROWGUARD_SESSION_CACHE_SIZE" default:"10000"`
	InvitationTTL   time.Duration `envconfig:"ROWGUARD_INVITATION_TTL" default:"48h"`
	VerificationTTL time.Duration `envconfig:"ROWGUARD_VERIFICATION_TTL" default:"24h"`
	ResetTTL        time.Duration `envconfig:"ROWGUARD_PASSWORD_RESET_TTL" default:"1h"`
}

// LimitsConfig bounds request sizes and rates
type LimitsConfig struct {
	MaxBatchSize      int     `envconfig:"ROWGUARD_MAX_BATCH_SIZE" default:"1000"`
	MaxBodyBytes      int64   `envconfig:"ROWGUARD_MAX_BODY_BYTES" default:"10485760"`
	RateLimitEnabled  bool    `envconfig:"ROWGUARD_RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerSecond float64 `envconfig:"ROWGUARD_RATE_LIMIT_RPS" default:"50"`
	Burst             int     `envconfig:"ROWGUARD_RATE_LIMIT_BURST" default:"100"`
}

// MaintenanceConfig schedules expiry sweeps
type MaintenanceConfig struct {
	Enabled  bool   `envconfig:"ROWGUARD_SWEEP_ENABLED" default:"true"`
	Schedule string `envconfig:"ROWGUARD_SWEEP_SCHEDULE" default:"@every 5m"`

	// Retention keeps expired, revoked and used rows this long before
	// they are deleted
	Retention time.Duration `envconfig:"ROWGUARD_SWEEP_RETENTION" default:"24h"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `envconfig:"ROWGUARD_LOG_LEVEL" default:"info"`

	// Metrics
	MetricsEnabled bool `envconfig:"ROWGUARD_METRICS_ENABLED" default:"true"`

	// OpenTelemetry
	OTelEnabled        bool   `envconfig:"ROWGUARD_OTEL_ENABLED" default:"false"`
	OTelEndpoint       string `envconfig:"ROWGUARD_OTEL_ENDPOINT" default:"localhost:4317"`
	OTelServiceName    string `envconfig:"ROWGUARD_OTEL_SERVICE_NAME" default:"rowguard"`
	OTelServiceVersion string `envconfig:"ROWGUARD_OTEL_SERVICE_VERSION" default:"1.0.0"`
	OTelInsecure       bool   `envconfig:"ROWGUARD_OTEL_INSECURE" default:"true"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.SchemaPath == "" {
		return fmt.Errorf("schema path is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database max connections must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database min connections (%d) exceed max connections (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Auth.InvitationTTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}
	if c.Auth.SessionCacheTTL < 0 {
		return fmt.Errorf("session cache TTL cannot be negative")
	}

	if c.Limits.MaxBatchSize < 0 {
		return fmt.Errorf("max batch size cannot be negative")
	}
	if c.Limits.RateLimitEnabled && c.Limits.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate limit requests per second must be positive when rate limiting is enabled")
	}

	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Observability.LogLevel)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	if c.Maintenance.Enabled && c.Maintenance.Schedule == "" {
		return fmt.Errorf("sweep schedule is required when maintenance is enabled")
	}

	return nil
}
