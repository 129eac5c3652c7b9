package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-sourced tunable for the service.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Storage
	DatabasePath string
	RedisURL     string // optional secondary cache; "" disables it

	// Auth
	SessionSecret string
	AppPassword   string

	// LLM
	LLMBaseURL       string
	LLMAPIKeys       []string
	LLMModel         string
	LLMTargetLang    string
	LLMMaxRPM        int
	LLMTimeout       time.Duration
	PromptBundlePath string

	// Feed ingestion
	FeedUpdateIntervalMinutes int
	FeedsPerCycle             int
	ImpersonateBinary         string

	// Retention
	MaxPostAgeDays int
	MaxUnreadDays  int
	MaxDBSizeMB    int

	// Scheduler
	HeartbeatInterval  time.Duration
	LockTimeout        time.Duration
	CleanupHour        int
	SummaryLockTimeout time.Duration

	// HTTP
	CORSOrigins  []string
	MaxBodyBytes int64

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from the environment (and an optional .env
// file) and validates it. Returns an error rather than exiting so
// callers (including tests) control the failure path.
func Load() (*Config, error) {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("GRACEFUL_TIMEOUT_SEC", 15)

	cfg := &Config{
		Addr:            getEnv("PLUME_ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,

		DatabasePath: getEnv("DATABASE_PATH", "./plume.db"),
		RedisURL:     getEnv("REDIS_URL", ""),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		AppPassword:   getEnv("APP_PASSWORD", ""),

		LLMBaseURL:       getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKeys:       splitNonEmpty(getEnv("LLM_API_KEYS", "")),
		LLMModel:         getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTargetLang:    getEnv("LLM_TARGET_LANGUAGE", "en"),
		LLMMaxRPM:        getEnvInt("LLM_MAX_RPM", 20),
		LLMTimeout:       time.Duration(getEnvInt("LLM_TIMEOUT_SEC", 30)) * time.Second,
		PromptBundlePath: getEnv("PROMPT_BUNDLE_PATH", "./prompts.yaml"),

		FeedUpdateIntervalMinutes: getEnvInt("FEED_UPDATE_INTERVAL_MINUTES", 30),
		FeedsPerCycle:             getEnvInt("FEEDS_PER_CYCLE", 20),
		ImpersonateBinary:         getEnv("IMPERSONATE_BINARY", "curl_chrome124"),

		MaxPostAgeDays: getEnvInt("MAX_POST_AGE_DAYS", 30),
		MaxUnreadDays:  getEnvInt("MAX_UNREAD_DAYS", 90),
		MaxDBSizeMB:    getEnvInt("MAX_DB_SIZE_MB", 2048),

		HeartbeatInterval:  time.Duration(getEnvInt("HEARTBEAT_INTERVAL_SEC", 30)) * time.Second,
		LockTimeout:        time.Duration(getEnvInt("LOCK_TIMEOUT_SEC", 60)) * time.Second,
		CleanupHour:        getEnvInt("CLEANUP_HOUR", 3),
		SummaryLockTimeout: time.Duration(getEnvInt("SUMMARY_LOCK_TIMEOUT_SEC", 300)) * time.Second,

		CORSOrigins:  splitNonEmpty(getEnv("CORS_ORIGINS", "")),
		MaxBodyBytes: int64(getEnvInt("MAX_BODY_BYTES", 1*1024*1024)),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("config: SESSION_SECRET must be at least 32 characters, got %d", len(c.SessionSecret))
	}
	if c.AppPassword == "" {
		return fmt.Errorf("config: APP_PASSWORD is required")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool { return c.Env == "production" }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitNonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
