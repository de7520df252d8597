// Package tokenstore persists the access/refresh token pair and the cached
// user profile. The two tokens are always written and cleared together.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	AccessKey  = "access_token"
	RefreshKey = "refresh_token"
	UserKey    = "user"
)

// ErrIncompletePair is returned when only one side of a pair is supplied
var ErrIncompletePair = errors.New("token pair requires both access and refresh tokens")

// Pair is an access token together with the refresh token issued alongside it
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Store owns the persisted credential state
type Store struct {
	mu      sync.RWMutex
	backend Backend
}

func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// GetAccess returns the stored access token
func (s *Store) GetAccess(ctx context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, AccessKey)
}

// GetRefresh returns the stored refresh token
func (s *Store) GetRefresh(ctx context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, RefreshKey)
}

// GetPair returns both tokens as observed at a single point in time
func (s *Store) GetPair(ctx context.Context) (Pair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	access, ok := s.get(ctx, AccessKey)
	if !ok {
		return Pair{}, false
	}
	refresh, ok := s.get(ctx, RefreshKey)
	if !ok {
		return Pair{}, false
	}
	return Pair{Access: access, Refresh: refresh}, true
}

// SetPair replaces both tokens. Readers never observe one without the other.
func (s *Store) SetPair(ctx context.Context, access, refresh string) error {
	if access == "" || refresh == "" {
		return ErrIncompletePair
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.SetMany(ctx, map[string]string{
		AccessKey:  access,
		RefreshKey: refresh,
	}); err != nil {
		return fmt.Errorf("failed to persist token pair: %w", err)
	}
	return nil
}

// Clear removes the token pair and the cached user
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, AccessKey, RefreshKey, UserKey); err != nil {
		return fmt.Errorf("failed to clear token store: %w", err)
	}
	return nil
}

// CachedUser returns the last profile snapshot, if any
func (s *Store) CachedUser(ctx context.Context) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.get(ctx, UserKey)
	if !ok {
		return nil, false
	}
	return json.RawMessage(raw), true
}

// SetCachedUser stores a profile snapshot next to the tokens
func (s *Store) SetCachedUser(ctx context.Context, user any) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode cached user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.SetMany(ctx, map[string]string{UserKey: string(data)}); err != nil {
		return fmt.Errorf("failed to persist cached user: %w", err)
	}
	return nil
}

// get treats an unavailable backend as an absent value
func (s *Store) get(ctx context.Context, key string) (string, bool) {
	value, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Token store unavailable, treating value as absent")
		return "", false
	}
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
