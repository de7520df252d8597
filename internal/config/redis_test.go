package config

import (
	"testing"
	"time"
)

func TestGetRedisConfig(t *testing.T) {
	t.Setenv("REDIS_URL", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "2")

	cfg := GetRedisConfig()
	if cfg.URL != "localhost:6379" || cfg.Password != "secret" || cfg.DB != 2 {
		t.Errorf("GetRedisConfig() = %+v", cfg)
	}

	t.Setenv("REDIS_DB", "not-a-number")
	if got := GetRedisConfig().DB; got != 0 {
		t.Errorf("Expected invalid REDIS_DB to fall back to 0, got %d", got)
	}
}

func TestGetRateLimitConfig(t *testing.T) {
	t.Setenv("RATELIMIT_ENABLED", "true")
	t.Setenv("RATELIMIT_ACCOUNT_EMAIL", "3")

	tests := []struct {
		key     string
		enabled bool
		maxHits int
		window  time.Duration
	}{
		{key: "global", enabled: true, maxHits: 600, window: time.Minute},
		{key: "auth_login", enabled: true, maxHits: 10, window: time.Minute},
		{key: "account_email", enabled: true, maxHits: 3, window: 15 * time.Minute},
		{key: "unknown", enabled: false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := GetRateLimitConfig(tt.key)
			if cfg.Enabled != tt.enabled || cfg.MaxHits != tt.maxHits || cfg.Window != tt.window {
				t.Errorf("GetRateLimitConfig(%q) = %+v", tt.key, cfg)
			}
		})
	}
}
