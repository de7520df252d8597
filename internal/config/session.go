package config

import "time"

// SessionConfig holds the token lifecycle settings
type SessionConfig struct {
	// HeartbeatInterval is the period of the background freshness check
	HeartbeatInterval time.Duration
	// ExpiryBuffer is how long before `exp` a token counts as due for refresh
	ExpiryBuffer time.Duration
	// MaxConsecutiveFailures is the number of failed heartbeat refreshes that ends the session
	MaxConsecutiveFailures int
	// RefreshTimeout bounds a single refresh network call
	RefreshTimeout time.Duration
}

// DefaultSessionConfig mirrors the values used when nothing is configured
var DefaultSessionConfig = SessionConfig{
	HeartbeatInterval:      10 * time.Second,
	ExpiryBuffer:           30 * time.Second,
	MaxConsecutiveFailures: 3,
	RefreshTimeout:         15 * time.Second,
}

// GetSessionConfig returns the session configuration from the environment
func GetSessionConfig() SessionConfig {
	cfg := SessionConfig{
		HeartbeatInterval:      parseEnvDuration("DEVFOLIO_HEARTBEAT_INTERVAL", DefaultSessionConfig.HeartbeatInterval),
		ExpiryBuffer:           parseEnvDuration("DEVFOLIO_EXPIRY_BUFFER", DefaultSessionConfig.ExpiryBuffer),
		MaxConsecutiveFailures: parseEnvInt("DEVFOLIO_MAX_REFRESH_FAILURES", DefaultSessionConfig.MaxConsecutiveFailures),
		RefreshTimeout:         parseEnvDuration("DEVFOLIO_REFRESH_TIMEOUT", DefaultSessionConfig.RefreshTimeout),
	}

	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultSessionConfig.HeartbeatInterval
	}
	if cfg.MaxConsecutiveFailures < 1 {
		cfg.MaxConsecutiveFailures = DefaultSessionConfig.MaxConsecutiveFailures
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultSessionConfig.RefreshTimeout
	}

	return cfg
}
