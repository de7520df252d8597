package config

import (
	"net/http"
	"sync"
	"time"
)

const defaultAPIBaseURL = "http://localhost:8000/api/v1"

// DefaultAuthExemptPaths are the endpoints that never carry a bearer token
// and never take part in refresh-and-retry.
var DefaultAuthExemptPaths = []string{
	"/auth/token/refresh",
	"/auth/login",
	"/auth/signup",
}

var (
	apiMu      sync.RWMutex
	apiBaseURL = GetEnvOrDefault("DEVFOLIO_API_BASE_URL", defaultAPIBaseURL)
)

// APIConfig describes how the authenticated client talks to the backend
type APIConfig struct {
	BaseURL          string
	RequestTimeout   time.Duration
	AuthExemptPaths  []string
	RetryOnForbidden bool
}

// GetAPIBaseURL returns the backend base URL in a thread-safe manner
func GetAPIBaseURL() string {
	apiMu.RLock()
	defer apiMu.RUnlock()
	return apiBaseURL
}

// SetAPIBaseURL changes the backend base URL and returns a function to restore it
func SetAPIBaseURL(url string) func() {
	apiMu.Lock()
	previous := apiBaseURL
	apiBaseURL = url
	apiMu.Unlock()

	return func() {
		apiMu.Lock()
		apiBaseURL = previous
		apiMu.Unlock()
	}
}

// GetAPIConfig collects the client settings from the environment
func GetAPIConfig() APIConfig {
	return APIConfig{
		BaseURL:          GetAPIBaseURL(),
		RequestTimeout:   parseEnvDuration("DEVFOLIO_REQUEST_TIMEOUT", 30*time.Second),
		AuthExemptPaths:  parseEnvList("DEVFOLIO_AUTH_EXEMPT_PATHS", DefaultAuthExemptPaths),
		RetryOnForbidden: parseEnvBool("DEVFOLIO_RETRY_ON_FORBIDDEN", true),
	}
}

// AuthRetryStatuses returns the response codes that are treated as a
// rejected credential. 403 is included only when RetryOnForbidden is set.
func (c APIConfig) AuthRetryStatuses() []int {
	statuses := []int{http.StatusUnauthorized}
	if c.RetryOnForbidden {
		statuses = append(statuses, http.StatusForbidden)
	}
	return statuses
}
