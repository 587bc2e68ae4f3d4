package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
// Values come from an optional .env file, overridden by environment
// variables, with sensible defaults.
type Config struct {
	// Server
	Port        int
	LogLevel    string
	HTTPTimeout time.Duration

	// Database (Supabase Postgres). Empty DatabaseURL selects the in-memory store.
	DatabaseURL       string
	DBMaxConns        int32
	DBMinConns        int32
	DBMaxConnLifetime time.Duration
	MigrateOnStart    bool

	// Auth
	SupabaseJWTSecret string

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint   string
	TracingEnabled bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_TIMEOUT", 10*time.Second)

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("DB_MAX_CONN_LIFETIME", time.Hour)
	v.SetDefault("MIGRATE_ON_START", false)

	v.SetDefault("SUPABASE_JWT_SECRET", "")

	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("INITIAL_BACKOFF", 100*time.Millisecond)
	v.SetDefault("MAX_CONCURRENCY", 50)

	v.SetDefault("CACHE_TTL", 5*time.Minute)

	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	v.SetDefault("TRACING_ENABLED", false)
}

// Load reads configuration from envFile (skipped when absent) and the
// environment. Environment variables win over the file.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Port:        v.GetInt("PORT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),

		DatabaseURL:       v.GetString("DATABASE_URL"),
		DBMaxConns:        v.GetInt32("DB_MAX_CONNS"),
		DBMinConns:        v.GetInt32("DB_MIN_CONNS"),
		DBMaxConnLifetime: v.GetDuration("DB_MAX_CONN_LIFETIME"),
		MigrateOnStart:    v.GetBool("MIGRATE_ON_START"),

		SupabaseJWTSecret: v.GetString("SUPABASE_JWT_SECRET"),

		MaxRetries:     v.GetInt("MAX_RETRIES"),
		InitialBackoff: v.GetDuration("INITIAL_BACKOFF"),
		MaxConcurrency: v.GetInt("MAX_CONCURRENCY"),

		CacheTTL: v.GetDuration("CACHE_TTL"),

		OTLPEndpoint:   v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TracingEnabled: v.GetBool("TRACING_ENABLED"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid PORT %d", c.Port)
	case c.MaxConcurrency <= 0:
		return fmt.Errorf("MAX_CONCURRENCY must be positive, got %d", c.MaxConcurrency)
	case c.MaxRetries < 0:
		return fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	case c.DBMinConns > c.DBMaxConns:
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

// UseDatabase reports whether the Postgres store is configured.
func (c *Config) UseDatabase() bool {
	return c.DatabaseURL != ""
}
