package config

import (
	"net/http"
	"reflect"
	"testing"
	"time"
)

func TestGetAPIConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("DEVFOLIO_REQUEST_TIMEOUT", "")
		t.Setenv("DEVFOLIO_AUTH_EXEMPT_PATHS", "")
		t.Setenv("DEVFOLIO_RETRY_ON_FORBIDDEN", "")

		cfg := GetAPIConfig()
		if cfg.RequestTimeout != 30*time.Second {
			t.Errorf("RequestTimeout = %v, want 30s", cfg.RequestTimeout)
		}
		if !reflect.DeepEqual(cfg.AuthExemptPaths, DefaultAuthExemptPaths) {
			t.Errorf("AuthExemptPaths = %v", cfg.AuthExemptPaths)
		}
		if want := []int{http.StatusUnauthorized, http.StatusForbidden}; !reflect.DeepEqual(cfg.AuthRetryStatuses(), want) {
			t.Errorf("AuthRetryStatuses() = %v, want %v", cfg.AuthRetryStatuses(), want)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("DEVFOLIO_REQUEST_TIMEOUT", "5s")
		t.Setenv("DEVFOLIO_AUTH_EXEMPT_PATHS", "/auth/login,/public")
		t.Setenv("DEVFOLIO_RETRY_ON_FORBIDDEN", "false")

		cfg := GetAPIConfig()
		if cfg.RequestTimeout != 5*time.Second {
			t.Errorf("RequestTimeout = %v, want 5s", cfg.RequestTimeout)
		}
		if !reflect.DeepEqual(cfg.AuthExemptPaths, []string{"/auth/login", "/public"}) {
			t.Errorf("AuthExemptPaths = %v", cfg.AuthExemptPaths)
		}
		if want := []int{http.StatusUnauthorized}; !reflect.DeepEqual(cfg.AuthRetryStatuses(), want) {
			t.Errorf("AuthRetryStatuses() = %v, want %v", cfg.AuthRetryStatuses(), want)
		}
	})
}

func TestSetAPIBaseURL(t *testing.T) {
	original := GetAPIBaseURL()

	restore := SetAPIBaseURL("https://api.example.com/api/v1")
	if got := GetAPIBaseURL(); got != "https://api.example.com/api/v1" {
		t.Errorf("GetAPIBaseURL() = %q after set", got)
	}

	restore()
	if got := GetAPIBaseURL(); got != original {
		t.Errorf("GetAPIBaseURL() = %q after restore, want %q", got, original)
	}
}
