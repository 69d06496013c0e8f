package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the chat service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	DatabaseURL      string
	EncryptionSecret string

	AuthSharedSecret string
	AuthKeySetPath   string

	BrainMode      string
	BrainHTTPURL   string
	BrainAPIKey    string
	BrainModel     string
	BrainMaxTokens int

	SessionBufferSize   int
	RecallLimit         int
	MemoryRetention     time.Duration
	MemorySweepInterval time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "caremind"),
		AllowAnyOrigin:   false,
		DatabaseURL:      envTrimmed("DATABASE_URL"),
		EncryptionSecret: envTrimmed("ENCRYPTION_SECRET"),
		AuthSharedSecret: envTrimmed("AUTH_SHARED_SECRET"),
		AuthKeySetPath:   envTrimmed("AUTH_KEYSET_PATH"),
		BrainMode:        envOrDefault("BRAIN_PROVIDER", "auto"),
		BrainHTTPURL:     envTrimmed("BRAIN_HTTP_URL"),
		BrainAPIKey:      envTrimmed("BRAIN_API_KEY"),
		BrainModel:       envOrDefault("BRAIN_MODEL", "gpt-4o-mini"),
		BrainMaxTokens:   1024,
		// Five user+assistant exchange pairs of short-term context.
		SessionBufferSize:        10,
		RecallLimit:              5,
		MemoryRetention:          30 * 24 * time.Hour,
		MemorySweepInterval:      24 * time.Hour,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.BrainMaxTokens, err = intFromEnv("BRAIN_MAX_TOKENS", cfg.BrainMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionBufferSize, err = intFromEnv("MEMORY_SESSION_BUFFER_SIZE", cfg.SessionBufferSize)
	if err != nil {
		return Config{}, err
	}
	cfg.RecallLimit, err = intFromEnv("MEMORY_RECALL_LIMIT", cfg.RecallLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryRetention, err = durationFromEnv("MEMORY_RETENTION", cfg.MemoryRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.MemorySweepInterval, err = durationFromEnv("MEMORY_SWEEP_INTERVAL", cfg.MemorySweepInterval)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.SessionBufferSize <= 0 {
		return Config{}, fmt.Errorf("MEMORY_SESSION_BUFFER_SIZE must be positive")
	}
	if cfg.RecallLimit <= 0 {
		return Config{}, fmt.Errorf("MEMORY_RECALL_LIMIT must be positive")
	}
	if cfg.MemoryRetention <= 0 {
		return Config{}, fmt.Errorf("MEMORY_RETENTION must be positive")
	}
	if cfg.AuthSharedSecret != "" && cfg.AuthKeySetPath != "" {
		return Config{}, fmt.Errorf("set AUTH_SHARED_SECRET or AUTH_KEYSET_PATH, not both")
	}
	if cfg.AuthSharedSecret == "" && cfg.AuthKeySetPath == "" {
		return Config{}, fmt.Errorf("one of AUTH_SHARED_SECRET or AUTH_KEYSET_PATH is required")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: invalid boolean %q", key, v)
	}
}
