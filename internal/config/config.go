package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/veldtlabs/identity/pkg/config"
)

const devSecretPlaceholder = "change-this-to-a-secure-secret"

// Config holds all configuration for the identity service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"identity"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"identity_secret"`
	PostgresDB   string `env:"POSTGRES_DB_NAME" envDefault:"identity_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT. Access and refresh tokens are signed with distinct secrets so a
	// leaked access secret cannot mint refresh tokens.
	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET" envDefault:"change-this-to-another-secret"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	// Auth cookies. When enabled, tokens are also set as HttpOnly cookies so
	// browser clients need not store them in script-accessible storage.
	AuthCookieEnabled bool   `env:"AUTH_COOKIE_ENABLED" envDefault:"false"`
	AuthCookieDomain  string `env:"AUTH_COOKIE_DOMAIN" envDefault:""`
	AuthCookieSecure  bool   `env:"AUTH_COOKIE_SECURE" envDefault:"true"`

	// File storage
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"disk"`
	UploadDir      string `env:"UPLOAD_DIR" envDefault:"./uploads"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`

	// Rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Seeding
	AllowDBSeed   bool   `env:"ALLOW_DB_SEED" envDefault:"false"`
	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:"admin@example.com"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:""`

	// Localization
	DefaultLanguage string `env:"DEFAULT_LANGUAGE" envDefault:"en"`

	// Tracing
	OTLPEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	TraceSamplePct float64 `env:"TRACE_SAMPLE_PERCENT" envDefault:"100"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Profiling. /debug/pprof is only reachable from these CIDRs; empty
	// disables the endpoints entirely.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load identity config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}
	if cfg.StorageBackend != "disk" && cfg.StorageBackend != "memory" {
		return nil, fmt.Errorf("invalid storage backend %q: must be disk or memory", cfg.StorageBackend)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("invalid max upload size: %d", cfg.MaxUploadBytes)
	}

	// In non-development environments, require explicitly set, strong secrets.
	if cfg.Environment != "development" {
		if cfg.JWTAccessSecret == devSecretPlaceholder || cfg.JWTRefreshSecret == "change-this-to-another-secret" {
			return nil, fmt.Errorf("JWT secrets must be explicitly set via environment variables in %q mode", cfg.Environment)
		}
		if len(cfg.JWTAccessSecret) < 32 {
			return nil, fmt.Errorf("JWT_ACCESS_SECRET must be at least 32 characters long, got %d", len(cfg.JWTAccessSecret))
		}
		if len(cfg.JWTRefreshSecret) < 32 {
			return nil, fmt.Errorf("JWT_REFRESH_SECRET must be at least 32 characters long, got %d", len(cfg.JWTRefreshSecret))
		}
	}
	if cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	return cfg, nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}
