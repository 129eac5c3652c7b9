package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SESSION_SECRET", "APP_PASSWORD", "DATABASE_PATH", "CORS_ORIGINS", "LLM_API_KEYS",
	} {
		os.Unsetenv(key)
	}
}

func TestLoadRejectsShortSessionSecret(t *testing.T) {
	clearEnv(t)
	os.Setenv("SESSION_SECRET", "too-short")
	os.Setenv("APP_PASSWORD", "hunter2")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for session secret under 32 characters")
	}
}

func TestLoadRejectsMissingAppPassword(t *testing.T) {
	clearEnv(t)
	os.Setenv("SESSION_SECRET", "01234567890123456789012345678901")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing app password")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("SESSION_SECRET", "01234567890123456789012345678901")
	os.Setenv("APP_PASSWORD", "hunter2")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePath != "./plume.db" {
		t.Fatalf("expected default database path, got %q", cfg.DatabasePath)
	}
	if cfg.LLMMaxRPM != 20 {
		t.Fatalf("expected default max rpm 20, got %d", cfg.LLMMaxRPM)
	}
	if cfg.CleanupHour != 3 {
		t.Fatalf("expected default cleanup hour 3, got %d", cfg.CleanupHour)
	}
}

func TestLoadSplitsCommaSeparatedLists(t *testing.T) {
	clearEnv(t)
	os.Setenv("SESSION_SECRET", "01234567890123456789012345678901")
	os.Setenv("APP_PASSWORD", "hunter2")
	os.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	os.Setenv("LLM_API_KEYS", "key-a,key-b,key-c")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected CORS origins: %+v", cfg.CORSOrigins)
	}
	if len(cfg.LLMAPIKeys) != 3 {
		t.Fatalf("unexpected LLM API keys: %+v", cfg.LLMAPIKeys)
	}
}
