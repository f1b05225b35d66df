package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // PostgreSQL; empty selects SQLite
	SQLitePath  string // used when DatabaseURL is empty
	RedisURL    string // empty selects the in-memory log

	// Persistence worker
	PersistGroup  string        // consumer group draining the append log
	PollInterval  time.Duration // pause between worker cycles
	BatchSize     int64         // entries claimed per room per cycle
	ClaimTimeout  time.Duration // idle time before a claim is stealable
	StreamMaxLen  int64         // per-room log bound
	ShutdownGrace time.Duration // time to finish an in-flight batch
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
		RedisURL:    os.Getenv("REDIS_URL"),

		PersistGroup:  getEnv("PERSIST_GROUP", "db-persist-group"),
		PollInterval:  getEnvDuration("WORKER_POLL_INTERVAL", time.Second),
		BatchSize:     getEnvInt64("WORKER_BATCH_SIZE", 10),
		ClaimTimeout:  getEnvDuration("WORKER_CLAIM_TIMEOUT", 30*time.Second),
		StreamMaxLen:  getEnvInt64("STREAM_MAX_LEN", 50),
		ShutdownGrace: getEnvDuration("SHUTDOWN_GRACE", 10*time.Second),
	}

	// In production, require durable backends
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
			panic("DATABASE_URL or SQLITE_PATH is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
