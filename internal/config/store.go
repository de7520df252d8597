package config

import (
	"os"
	"path/filepath"
)

const (
	TokenStoreMemory = "memory"
	TokenStoreFile   = "file"
	TokenStoreRedis  = "redis"
)

var tokenStoreBackend = GetEnvOrDefault("DEVFOLIO_TOKEN_STORE", TokenStoreFile)

// GetTokenStoreBackend returns the configured persistence backend name
func GetTokenStoreBackend() string {
	return tokenStoreBackend
}

// SetTokenStoreBackend temporarily changes the backend name and returns a function to restore it
func SetTokenStoreBackend(name string) func() {
	previous := tokenStoreBackend
	tokenStoreBackend = name

	return func() {
		tokenStoreBackend = previous
	}
}

// GetTokenStorePath returns the file used by the file backend
func GetTokenStorePath() string {
	if path := GetEnvOrDefault("DEVFOLIO_TOKEN_STORE_PATH", ""); path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "devfolio", "session.json")
	}
	return filepath.Join(home, ".devfolio", "session.json")
}

// GetTokenStorePrefix returns the key prefix used by the redis backend
func GetTokenStorePrefix() string {
	return GetEnvOrDefault("DEVFOLIO_TOKEN_STORE_PREFIX", "devfolio:")
}
