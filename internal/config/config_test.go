package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "ENV", "DATABASE_URL", "SQLITE_PATH", "REDIS_URL",
		"PERSIST_GROUP", "WORKER_POLL_INTERVAL", "WORKER_BATCH_SIZE",
		"WORKER_CLAIM_TIMEOUT", "STREAM_MAX_LEN", "SHUTDOWN_GRACE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Env != "development" || !cfg.IsDevelopment() {
		t.Errorf("Env = %q, want development", cfg.Env)
	}
	if cfg.PersistGroup != "db-persist-group" {
		t.Errorf("PersistGroup = %q", cfg.PersistGroup)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.PollInterval)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.BatchSize)
	}
	if cfg.ClaimTimeout != 30*time.Second {
		t.Errorf("ClaimTimeout = %v, want 30s", cfg.ClaimTimeout)
	}
	if cfg.StreamMaxLen != 50 {
		t.Errorf("StreamMaxLen = %d, want 50", cfg.StreamMaxLen)
	}
	if cfg.ShutdownGrace != 10*time.Second {
		t.Errorf("ShutdownGrace = %v, want 10s", cfg.ShutdownGrace)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "staging")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("WORKER_POLL_INTERVAL", "250ms")
	t.Setenv("WORKER_BATCH_SIZE", "25")
	t.Setenv("STREAM_MAX_LEN", "100")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Port)
	}
	if cfg.IsDevelopment() {
		t.Error("staging treated as development")
	}
	if cfg.RedisURL != "redis://localhost:6379/1" {
		t.Errorf("RedisURL = %q", cfg.RedisURL)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v, want 250ms", cfg.PollInterval)
	}
	if cfg.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25", cfg.BatchSize)
	}
	if cfg.StreamMaxLen != 100 {
		t.Errorf("StreamMaxLen = %d, want 100", cfg.StreamMaxLen)
	}
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("WORKER_BATCH_SIZE", "not-a-number")
	t.Setenv("WORKER_POLL_INTERVAL", "-5s")
	t.Setenv("STREAM_MAX_LEN", "0")

	cfg := Load()
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want default 10", cfg.BatchSize)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want default 1s", cfg.PollInterval)
	}
	if cfg.StreamMaxLen != 50 {
		t.Errorf("StreamMaxLen = %d, want default 50", cfg.StreamMaxLen)
	}
}

func TestLoadProductionRequiresBackends(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")

	defer func() {
		if recover() == nil {
			t.Error("Load did not panic without durable backends in production")
		}
	}()
	Load()
}
