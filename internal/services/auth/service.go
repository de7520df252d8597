// Package auth signs the user in and out and keeps the current profile.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/devfolio/dashboard/internal/client"
	"github.com/devfolio/dashboard/internal/services/session"
	"github.com/devfolio/dashboard/internal/tokenstore"
	"github.com/rs/zerolog/log"
)

const (
	loginPath                = "/auth/login/"
	signupPath               = "/auth/signup/"
	logoutPath               = "/auth/logout/"
	socialURLsPath           = "/auth/social/urls/"
	socialExchangePath       = "/auth/social/exchange/"
	verifyEmailConfirmPath   = "/auth/verify-email/"
	currentUserPath          = "/users/me/"
	passwordResetPath        = "/users/password-reset/"
	passwordResetConfirmPath = "/users/password-reset/confirm/"
	verifyEmailPath          = "/users/verify-email/"
)

var (
	// ErrMissingTokens means a sign-in answer did not carry both tokens
	ErrMissingTokens = errors.New("sign-in succeeded but no tokens were received")
	// ErrMissingCode means the OAuth callback carried no authorization code
	ErrMissingCode = errors.New("no authorization code received")
	// ErrNotAuthenticated means the action needs a signed-in user
	ErrNotAuthenticated = errors.New("not signed in")
)

// SessionLifecycle is the part of the session manager sign-in drives
type SessionLifecycle interface {
	Start()
	Stop()
	OnExpired(fn func(cause error))
}

type Service struct {
	api     *client.Client
	store   *tokenstore.Store
	session SessionLifecycle

	mu   sync.RWMutex
	user *User
}

func NewService(api *client.Client, store *tokenstore.Store, lifecycle SessionLifecycle) *Service {
	s := &Service{
		api:     api,
		store:   store,
		session: lifecycle,
	}

	lifecycle.OnExpired(func(error) {
		s.mu.Lock()
		s.user = nil
		s.mu.Unlock()
	})

	return s
}

// CurrentUser returns the signed-in profile, if any
func (s *Service) CurrentUser() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

func (s *Service) IsAuthenticated() bool {
	_, ok := s.CurrentUser()
	return ok
}

// Login signs in with email and password, persists the issued pair and loads
// the authoritative profile
func (s *Service) Login(ctx context.Context, payload LoginPayload) (User, error) {
	var resp loginResponse
	if err := s.api.Post(ctx, loginPath, payload, &resp); err != nil {
		return User{}, err
	}

	tokens := resp.tokens()
	if tokens.Access == "" || tokens.Refresh == "" {
		log.Error().Msg("Login response did not include an access/refresh pair")
		return User{}, ErrMissingTokens
	}

	if err := s.begin(ctx, tokens); err != nil {
		return User{}, err
	}

	// Inline profile is shown until the fetch below replaces it
	if resp.User != nil {
		s.setUser(ctx, *resp.User)
	}

	return s.FetchUser(ctx)
}

// Signup creates an account. It does not sign in; the backend sends a
// verification email first.
func (s *Service) Signup(ctx context.Context, payload SignupPayload) error {
	return s.api.Post(ctx, signupPath, payload, nil)
}

// Logout ends the session locally no matter what the backend answers. The
// backend call goes out with the pair as stored so the refresh token being
// revoked is the one that is current.
func (s *Service) Logout(ctx context.Context) error {
	s.session.Stop()

	if refresh, ok := s.store.GetRefresh(ctx); ok {
		if err := s.api.Post(client.WithoutRenewal(ctx), logoutPath, logoutRequest{Refresh: refresh}, nil); err != nil {
			log.Warn().Err(err).Msg("Backend logout failed, clearing local session anyway")
		}
	}

	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	log.Info().Msg("Signed out")
	return nil
}

// StoreTokens adopts a pair obtained outside the password flow
func (s *Service) StoreTokens(ctx context.Context, tokens Tokens) (User, error) {
	if tokens.Access == "" || tokens.Refresh == "" {
		return User{}, ErrMissingTokens
	}
	if err := s.begin(ctx, tokens); err != nil {
		return User{}, err
	}
	return s.FetchUser(ctx)
}

// SocialURLs returns the provider authorization URLs that start OAuth sign-in
func (s *Service) SocialURLs(ctx context.Context) (SocialURLs, error) {
	var urls SocialURLs
	if err := s.api.Get(ctx, socialURLsPath, &urls); err != nil {
		return nil, err
	}
	return urls, nil
}

// ExchangeOAuthCode trades the code from an OAuth callback for a token pair
func (s *Service) ExchangeOAuthCode(ctx context.Context, code string) (User, error) {
	if code == "" {
		return User{}, ErrMissingCode
	}

	var tokens Tokens
	if err := s.api.Post(ctx, socialExchangePath, exchangeRequest{Code: code}, &tokens); err != nil {
		return User{}, err
	}

	return s.StoreTokens(ctx, tokens)
}

// FetchUser loads the profile from the backend and caches it
func (s *Service) FetchUser(ctx context.Context) (User, error) {
	var user User
	if err := s.api.Get(ctx, currentUserPath, &user); err != nil {
		log.Error().Err(err).Msg("Failed to fetch user profile")
		return User{}, err
	}

	s.setUser(ctx, user)
	return user, nil
}

// Restore resumes a session persisted by an earlier run. It reports false
// when there is nothing to resume.
func (s *Service) Restore(ctx context.Context) (User, bool, error) {
	if _, ok := s.store.GetAccess(ctx); !ok {
		return User{}, false, nil
	}

	s.session.Start()

	cached, hasCached := s.cachedUser(ctx)
	if hasCached {
		s.mu.Lock()
		s.user = &cached
		s.mu.Unlock()
	}

	user, err := s.FetchUser(ctx)
	if err == nil {
		return user, true, nil
	}

	// Keep the cached profile when the profile endpoint is unavailable, but
	// not when the session itself is gone
	if hasCached && !errors.Is(err, session.ErrSessionExpired) {
		log.Warn().Err(err).Msg("Using cached profile, refresh of user profile failed")
		return cached, true, nil
	}

	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	s.session.Stop()
	if clearErr := s.store.Clear(ctx); clearErr != nil {
		log.Error().Err(clearErr).Msg("Failed to clear credentials after failed restore")
	}
	return User{}, false, err
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	return s.api.Post(ctx, passwordResetPath, PasswordResetPayload{Email: email}, nil)
}

func (s *Service) ConfirmPasswordReset(ctx context.Context, payload PasswordResetConfirmPayload) error {
	return s.api.Post(ctx, passwordResetConfirmPath, payload, nil)
}

// ResendVerificationEmail asks the backend to mail a new verification link
// to the signed-in user
func (s *Service) ResendVerificationEmail(ctx context.Context) error {
	return s.api.Post(ctx, verifyEmailPath, nil, nil)
}

func (s *Service) ConfirmEmail(ctx context.Context, payload EmailConfirmPayload) error {
	if err := s.api.Post(ctx, verifyEmailConfirmPath, payload, nil); err != nil {
		return err
	}

	// Verified flag lives on the profile
	if s.IsAuthenticated() {
		if _, err := s.FetchUser(ctx); err != nil {
			log.Warn().Err(err).Msg("Email confirmed but profile reload failed")
		}
	}
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, payload PasswordChangePayload) error {
	user, ok := s.CurrentUser()
	if !ok {
		return ErrNotAuthenticated
	}

	return s.api.Patch(ctx, fmt.Sprintf("/users/%d/change-password/", user.ID), payload, nil)
}

func (s *Service) begin(ctx context.Context, tokens Tokens) error {
	if err := s.store.SetPair(ctx, tokens.Access, tokens.Refresh); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	s.session.Start()
	return nil
}

func (s *Service) setUser(ctx context.Context, user User) {
	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()

	if err := s.store.SetCachedUser(ctx, user); err != nil {
		log.Warn().Err(err).Msg("Failed to cache user profile")
	}
}

func (s *Service) cachedUser(ctx context.Context) (User, bool) {
	raw, ok := s.store.CachedUser(ctx)
	if !ok {
		return User{}, false
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		log.Warn().Err(err).Msg("Discarding unreadable cached profile")
		return User{}, false
	}
	return user, true
}
