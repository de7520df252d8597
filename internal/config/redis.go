package config

import (
	"github.com/rs/zerolog/log"
)

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// GetRedisConfig reads the connection settings for the redis token store.
// An empty URL means redis is not configured.
func GetRedisConfig() RedisConfig {
	cfg := RedisConfig{
		URL:      GetEnvOrDefault("REDIS_URL", ""),
		Password: GetEnvOrDefault("REDIS_PASSWORD", ""),
		DB:       parseEnvInt("REDIS_DB", 0),
	}
	if cfg.URL == "" {
		log.Warn().Msg("REDIS_URL not set - redis token store unavailable")
	}
	return cfg
}
