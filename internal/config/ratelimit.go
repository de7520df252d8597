package config

import (
	"time"

	"github.com/rs/zerolog/log"
)

type RateLimitConfig struct {
	Enabled bool
	MaxHits int
	Window  time.Duration
}

func GetRateLimitConfig(key string) RateLimitConfig {
	enabled := GetEnvOrDefault("RATELIMIT_ENABLED", "false") == "true"

	configs := map[string]RateLimitConfig{
		"global": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_GLOBAL", 600), // 600 requests per minute
			Window:  time.Minute,
		},
		"auth_login": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_AUTH_LOGIN", 10), // 10 attempts per minute
			Window:  time.Minute,
		},
		// signup, password reset and verification resend all make the backend send mail
		"account_email": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_ACCOUNT_EMAIL", 5),
			Window:  15 * time.Minute,
		},
	}

	if config, exists := configs[key]; exists {
		return config
	}

	log.Warn().Str("key", key).Msg("No rate limit config found")
	return RateLimitConfig{Enabled: false}
}
