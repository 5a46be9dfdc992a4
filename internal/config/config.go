package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// MigrationsPath is a file:// source directory for golang-migrate.
	MigrationsPath string
}

type Config struct {
	App struct {
		Port         string
		ProviderName string
	}
	Postgres PostgresConfig
	// RedisAddr empty means the in-process kv backend is used instead.
	RedisAddr string
	// FeePercent is the default platform cut, e.g. "7.5".
	FeePercent decimal.Decimal
	// SessionTTL is the absolute lifetime of a cart session from creation.
	SessionTTL time.Duration
	// SessionIdleTTL slides forward on every cart write; a conversation that
	// goes quiet expires on this window even with lifetime left.
	SessionIdleTTL time.Duration
	// IdempotencyTTL bounds how long replay records are kept; long enough to
	// absorb retries, short enough not to leak storage.
	IdempotencyTTL time.Duration
}

func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	cfg := &Config{}
	cfg.App.Port = getEnv("APP_PORT", "8080")
	cfg.App.ProviderName = getEnv("PAYMENT_PROVIDER", "mercadopago")

	cfg.Postgres.Host = os.Getenv("DB_HOST")
	if cfg.Postgres.Host == "" {
		return nil, fmt.Errorf("config: DB_HOST is required")
	}
	cfg.Postgres.Port = getEnv("DB_PORT", "5432")
	cfg.Postgres.User = os.Getenv("DB_USER")
	if cfg.Postgres.User == "" {
		return nil, fmt.Errorf("config: DB_USER is required")
	}
	cfg.Postgres.Password = os.Getenv("DB_PASSWORD")
	cfg.Postgres.DBName = os.Getenv("DB_NAME")
	if cfg.Postgres.DBName == "" {
		return nil, fmt.Errorf("config: DB_NAME is required")
	}
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Postgres.MigrationsPath = getEnv("MIGRATIONS_PATH", "migrations")

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")

	fee, err := decimal.NewFromString(getEnv("PLATFORM_FEE_PERCENT", "7.5"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid PLATFORM_FEE_PERCENT: %w", err)
	}
	cfg.FeePercent = fee

	cfg.SessionTTL, err = parseDuration("SESSION_TTL", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.SessionIdleTTL, err = parseDuration("SESSION_IDLE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.IdempotencyTTL, err = parseDuration("IDEMPOTENCY_TTL", time.Hour)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return d, nil
}
