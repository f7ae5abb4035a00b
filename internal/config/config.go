package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	// OpenRouterAPIKey may be empty at boot; the relay endpoint then
	// answers 500 until the server is restarted with a key.
	OpenRouterAPIKey  string
	OpenRouterBaseURL string

	// RedisURL selects the Redis scenario library. Empty means in-memory.
	RedisURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          parseLogLevel(getEnv("LOG_LEVEL", "info")),
		OpenRouterAPIKey:  strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
		OpenRouterBaseURL: strings.TrimRight(getEnv("OPENROUTER_BASE_URL", DefaultOpenRouterBaseURL), "/"),
		RedisURL:          os.Getenv("REDIS_URL"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.OpenRouterBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid OPENROUTER_BASE_URL %q", c.OpenRouterBaseURL)
	}
	if c.RedisURL != "" && !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
		return fmt.Errorf("invalid REDIS_URL: expected redis:// or rediss:// scheme")
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
