package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/devfolio/dashboard/internal/client"
	"github.com/devfolio/dashboard/internal/config"
	"github.com/devfolio/dashboard/internal/connections"
	"github.com/devfolio/dashboard/internal/infrastructure/redis"
	"github.com/devfolio/dashboard/internal/services/auth"
	"github.com/devfolio/dashboard/internal/services/session"
	"github.com/devfolio/dashboard/internal/tokenstore"
	"github.com/rs/zerolog/log"
)

// ErrRedisUnavailable is returned when the redis token store is selected but
// no redis connection could be made
var ErrRedisUnavailable = errors.New("redis token store selected but redis is unavailable")

type Services struct {
	redisService      *redis.Service
	tokenStore        *tokenstore.Store
	sessionManager    *session.Manager
	transport         *client.Transport
	apiClient         *client.Client
	authService       *auth.Service
	connectionManager *connections.Manager
}

// InitializeServices initializes all required services
func InitializeServices() (*Services, error) {
	log.Info().Msg("Initializing core services")

	apiCfg := config.GetAPIConfig()
	sessionCfg := config.GetSessionConfig()

	// Initialize Redis service (only when it backs the token store)
	var redisService *redis.Service
	backendName := config.GetTokenStoreBackend()
	if backendName == config.TokenStoreRedis {
		redisService = redis.NewService()
		if redisService == nil {
			return nil, ErrRedisUnavailable
		}
		log.Info().Msg("Initializing Redis service")
	}

	backend, err := newTokenBackend(backendName, redisService)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token store: %w", err)
	}
	tokenStore := tokenstore.New(backend)
	log.Info().Str("backend", backendName).Msg("Initializing token store")

	// The refresh call must never pass through the authenticated transport
	refresher := session.NewHTTPRefresher(&http.Client{Timeout: sessionCfg.RefreshTimeout}, apiCfg.BaseURL)
	sessionManager := session.NewManager(tokenStore, refresher, sessionCfg)
	log.Info().Msg("Initializing session manager")

	transport := client.NewTransport(sessionManager, tokenStore,
		client.WithExemptPaths(apiCfg.AuthExemptPaths...),
		client.WithAuthStatuses(apiCfg.AuthRetryStatuses()...),
		client.WithExpiryBuffer(sessionCfg.ExpiryBuffer),
	)
	apiClient := client.New(apiCfg.BaseURL, transport, apiCfg.RequestTimeout)
	log.Info().Str("base_url", apiCfg.BaseURL).Msg("Initializing API client")

	connectionManager := connections.NewManager(connections.DefaultTimeouts)
	sessionManager.OnExpired(func(cause error) {
		reason := session.ErrSessionExpired.Error()
		if cause != nil {
			reason = cause.Error()
		}
		connectionManager.Broadcast(connections.Event{
			Type:   connections.EventSessionExpired,
			Reason: reason,
		})
	})

	authService := auth.NewService(apiClient, tokenStore, sessionManager)
	log.Info().Msg("Initializing auth service")

	log.Info().Msg("All services initialized successfully")

	return &Services{
		redisService:      redisService,
		tokenStore:        tokenStore,
		sessionManager:    sessionManager,
		transport:         transport,
		apiClient:         apiClient,
		authService:       authService,
		connectionManager: connectionManager,
	}, nil
}

func newTokenBackend(name string, redisService *redis.Service) (tokenstore.Backend, error) {
	switch name {
	case config.TokenStoreMemory:
		return tokenstore.NewMemoryBackend(), nil
	case config.TokenStoreFile:
		return tokenstore.NewFileBackend(config.GetTokenStorePath())
	case config.TokenStoreRedis:
		return tokenstore.NewRedisBackend(redisService, config.GetTokenStorePrefix()), nil
	default:
		return nil, fmt.Errorf("unknown token store backend %q", name)
	}
}

// Restore resumes a persisted session, if there is one
func (s *Services) Restore(ctx context.Context) {
	user, restored, err := s.authService.Restore(ctx)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Stored session could not be restored")
	case restored:
		log.Info().Int("user_id", user.ID).Msg("Restored stored session")
	default:
		log.Info().Msg("No stored session")
	}
}

// Close stops background work and releases connections. Stored tokens are kept.
func (s *Services) Close() {
	s.sessionManager.Stop()
	s.connectionManager.CloseAll()

	if s.redisService != nil {
		if err := s.redisService.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis connection")
		}
	}
}

// GetAuthService returns the auth service
func (s *Services) GetAuthService() *auth.Service {
	return s.authService
}

// GetSessionManager returns the session manager
func (s *Services) GetSessionManager() *session.Manager {
	return s.sessionManager
}

// GetConnectionManager returns the session-event connection manager
func (s *Services) GetConnectionManager() *connections.Manager {
	return s.connectionManager
}

// GetTransport returns the authenticated round tripper
func (s *Services) GetTransport() *client.Transport {
	return s.transport
}

// GetAPIClient returns the authenticated API client
func (s *Services) GetAPIClient() *client.Client {
	return s.apiClient
}

// GetTokenStore returns the token store
func (s *Services) GetTokenStore() *tokenstore.Store {
	return s.tokenStore
}
