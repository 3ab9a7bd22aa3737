// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration.
type Config struct {
	ListenAddr     string
	DatabasePath   string
	FeedsDir       string
	LogLevel       string
	AdminUser      string
	AdminPassword  string
	VerifyInterval time.Duration
	RequestTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    envOrDefault("LISTEN_ADDR", ":8089"),
		DatabasePath:  envOrDefault("DATABASE_PATH", "./data/hub.db"),
		FeedsDir:      envOrDefault("FEEDS_DIR", "./data/feeds"),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		AdminUser:     os.Getenv("ADMIN_USER"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	verifyMinutes, err := envInt("VERIFY_INTERVAL_MINUTES", 5)
	if err != nil {
		return nil, err
	}
	if verifyMinutes < 1 {
		return nil, fmt.Errorf("VERIFY_INTERVAL_MINUTES must be at least 1, got %d", verifyMinutes)
	}
	cfg.VerifyInterval = time.Duration(verifyMinutes) * time.Minute

	timeoutSeconds, err := envInt("REQUEST_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	if timeoutSeconds < 1 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be at least 1, got %d", timeoutSeconds)
	}
	cfg.RequestTimeout = time.Duration(timeoutSeconds) * time.Second

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
