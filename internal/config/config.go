package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot core.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Gateway  GatewayConfig
	Ticket   TicketConfig
	Expiry   ExpiryConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the SQLite store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig locates the embedded database file.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines admin authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	AdminUsername         string
	AdminPasswordHash     string
	BcryptCost            int
	GatewayToken          string
}

// GatewayConfig points at the chat-platform relay and its well-known channels.
type GatewayConfig struct {
	RelayURL              string
	RelayToken            string
	TimeoutSeconds        int
	ArchiveChannelID      string
	ReputationFeedChannel string
}

// TicketConfig tunes the trade ticket flow.
type TicketConfig struct {
	ListingDisposition        string
	DispositionTimeoutSeconds int
	ArchiveGuardTTLMinutes    int
}

// ExpiryConfig drives the listing expiry sweep.
type ExpiryConfig struct {
	Schedule       string
	RetentionDays  int
	RunLockMinutes int
}

// Load reads configuration from environment variables, applying defaults where possible.
// Extra env files are loaded before the default .env.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "tradebot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "data/tradebot.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			AdminUsername:         getEnv("AUTH_ADMIN_USERNAME", "admin"),
			AdminPasswordHash:     os.Getenv("AUTH_ADMIN_PASSWORD_HASH"),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			GatewayToken:          os.Getenv("GATEWAY_INGRESS_TOKEN"),
		},
		Gateway: GatewayConfig{
			RelayURL:              os.Getenv("GATEWAY_RELAY_URL"),
			RelayToken:            os.Getenv("GATEWAY_RELAY_TOKEN"),
			TimeoutSeconds:        getEnvAsInt("GATEWAY_TIMEOUT_SECONDS", 10),
			ArchiveChannelID:      os.Getenv("CHANNEL_ARCHIVE"),
			ReputationFeedChannel: os.Getenv("CHANNEL_VOUCH_POST"),
		},
		Ticket: TicketConfig{
			ListingDisposition:        getEnv("TICKET_LISTING_DISPOSITION", "remove"),
			DispositionTimeoutSeconds: getEnvAsInt("TICKET_DISPOSITION_TIMEOUT_SECONDS", 300),
			ArchiveGuardTTLMinutes:    getEnvAsInt("TICKET_ARCHIVE_GUARD_TTL_MINUTES", 24*60),
		},
		Expiry: ExpiryConfig{
			Schedule:       getEnv("EXPIRY_SCHEDULE", "@daily"),
			RetentionDays:  getEnvAsInt("EXPIRY_RETENTION_DAYS", 10),
			RunLockMinutes: getEnvAsInt("EXPIRY_RUN_LOCK_MINUTES", 30),
		},
	}

	return cfg, nil
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

// Timeout bounds each outbound relay call.
func (g GatewayConfig) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// DispositionTimeout is how long the lister has to decide on their listing.
func (t TicketConfig) DispositionTimeout() time.Duration {
	if t.DispositionTimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(t.DispositionTimeoutSeconds) * time.Second
}

// ArchiveGuardTTL is how long the one-shot archive key lives.
func (t TicketConfig) ArchiveGuardTTL() time.Duration {
	if t.ArchiveGuardTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(t.ArchiveGuardTTLMinutes) * time.Minute
}

// Retention is the inactivity window after which listings expire.
func (e ExpiryConfig) Retention() time.Duration {
	if e.RetentionDays <= 0 {
		return 10 * 24 * time.Hour
	}
	return time.Duration(e.RetentionDays) * 24 * time.Hour
}

// RunLockTTL bounds how long one sweep may hold the cross-instance lock.
func (e ExpiryConfig) RunLockTTL() time.Duration {
	if e.RunLockMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(e.RunLockMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
