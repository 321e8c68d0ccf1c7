package offlinesync

import (
	"testing"
	"time"

	"github.com/huykn/offline-sync/store"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.StorePath != "offline-sync.db" {
		t.Fatalf("Expected default store path, got %q", cfg.StorePath)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("Expected default redis addr, got %q", cfg.RedisAddr)
	}
	if cfg.MaxRetries != 3 {
		t.Fatalf("Expected 3 retries, got %d", cfg.MaxRetries)
	}
	if cfg.ContextTimeout != 10*time.Second {
		t.Fatalf("Expected 10s timeout, got %v", cfg.ContextTimeout)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Schema = store.Schema{
		Collections: []store.Collection{{Name: "notes", KeyPath: "id"}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Valid config rejected: %v", err)
	}

	noPath := cfg
	noPath.StorePath = ""
	if err := noPath.Validate(); err == nil {
		t.Fatal("Missing store path should be rejected")
	}

	noAddr := cfg
	noAddr.RedisAddr = ""
	if err := noAddr.Validate(); err == nil {
		t.Fatal("Missing redis addr should be rejected")
	}

	noSchema := cfg
	noSchema.Schema = store.Schema{}
	if err := noSchema.Validate(); err == nil {
		t.Fatal("Empty schema should be rejected")
	}

	negative := cfg
	negative.MaxRetries = -1
	if err := negative.Validate(); err == nil {
		t.Fatal("Negative retries should be rejected")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OFFLINE_SYNC_STORE_PATH", "/tmp/env.db")
	t.Setenv("OFFLINE_SYNC_REDIS_ADDR", "redis:6380")
	t.Setenv("OFFLINE_SYNC_MAX_RETRIES", "5")
	t.Setenv("OFFLINE_SYNC_DEBUG", "true")
	t.Setenv("OFFLINE_SYNC_CONTEXT_TIMEOUT", "30s")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv failed: %v", err)
	}
	if cfg.StorePath != "/tmp/env.db" {
		t.Fatalf("Expected env store path, got %q", cfg.StorePath)
	}
	if cfg.RedisAddr != "redis:6380" {
		t.Fatalf("Expected env redis addr, got %q", cfg.RedisAddr)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("Expected 5 retries, got %d", cfg.MaxRetries)
	}
	if !cfg.DebugMode {
		t.Fatal("Expected debug mode on")
	}
	if cfg.ContextTimeout != 30*time.Second {
		t.Fatalf("Expected 30s timeout, got %v", cfg.ContextTimeout)
	}

	// Unset variables keep their defaults.
	if cfg.ProbeInterval != 30*time.Second {
		t.Fatalf("Expected default probe interval, got %v", cfg.ProbeInterval)
	}
}
