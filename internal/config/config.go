// Package config centralises configuration parsing for the sync engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures runtime configuration values for the sync engine and CLI.
type Config struct {
	BaseURL        string        // Authority base URL.
	Token          string        // Bearer credential handed to the token source.
	UserID         string        // Actor recorded on submitted operations.
	MaxAttempts    int           // Retry budget per submission.
	HTTPTimeout    time.Duration // Per-request timeout on the authority client.
	IdempotencyTTL time.Duration // Dedup window for idempotency keys.
	JournalPath    string        // SQLite journal location; empty disables journaling.
	PollInterval   time.Duration // Background dispatch poll interval.
	EventBuffer    int           // Change-notification channel capacity.
}

// Load reads environment variables into Config, applying sensible defaults for local dev.
func Load() Config {
	return Config{
		BaseURL:        getEnv("SYNC_BASE_URL", "http://localhost:8080"),
		Token:          getEnv("SYNC_TOKEN", ""),
		UserID:         getEnv("SYNC_USER_ID", "local-dev"),
		MaxAttempts:    getIntEnv("SYNC_MAX_ATTEMPTS", 3),
		HTTPTimeout:    getDurationEnv("SYNC_HTTP_TIMEOUT", 15*time.Second),
		IdempotencyTTL: getDurationEnv("SYNC_IDEMPOTENCY_TTL", time.Minute),
		JournalPath:    getEnv("SYNC_JOURNAL_PATH", ""),
		PollInterval:   getDurationEnv("SYNC_POLL_INTERVAL", 2*time.Second),
		EventBuffer:    getIntEnv("SYNC_EVENT_BUFFER", 64),
	}
}

// profile is the YAML shape of an optional configuration profile. Zero values
// mean "keep what the environment resolved".
type profile struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	UserID         string `yaml:"user_id"`
	MaxAttempts    int    `yaml:"max_attempts"`
	HTTPTimeout    string `yaml:"http_timeout"`
	IdempotencyTTL string `yaml:"idempotency_ttl"`
	JournalPath    string `yaml:"journal_path"`
	PollInterval   string `yaml:"poll_interval"`
	EventBuffer    int    `yaml:"event_buffer"`
}

// ApplyProfile overlays a YAML profile file on top of the config. Profile
// values win over environment values; absent fields are left untouched.
func (c Config) ApplyProfile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read profile: %w", err)
	}
	var p profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return c, fmt.Errorf("parse profile %s: %w", path, err)
	}

	if p.BaseURL != "" {
		c.BaseURL = p.BaseURL
	}
	if p.Token != "" {
		c.Token = p.Token
	}
	if p.UserID != "" {
		c.UserID = p.UserID
	}
	if p.MaxAttempts > 0 {
		c.MaxAttempts = p.MaxAttempts
	}
	if p.JournalPath != "" {
		c.JournalPath = p.JournalPath
	}
	if p.EventBuffer > 0 {
		c.EventBuffer = p.EventBuffer
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{p.HTTPTimeout, &c.HTTPTimeout},
		{p.IdempotencyTTL, &c.IdempotencyTTL},
		{p.PollInterval, &c.PollInterval},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return c, fmt.Errorf("parse profile %s: %w", path, err)
		}
		*d.dst = parsed
	}
	return c, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
