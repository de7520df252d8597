// Package session keeps the access token fresh and decides when a session
// can no longer be kept alive.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devfolio/dashboard/internal/config"
	"github.com/devfolio/dashboard/internal/jwtclaims"
	"github.com/devfolio/dashboard/internal/tokenstore"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// errSuperseded is returned by a refresh whose session was stopped while
// the network call was in flight
var errSuperseded = fmt.Errorf("%w: session ended during refresh", ErrRefreshRejected)

// Manager owns the renewal heartbeat, the single-flight refresh slot and the
// transition to an expired session. One Manager exists per application session.
type Manager struct {
	store     *tokenstore.Store
	refresher Refresher
	cfg       config.SessionConfig
	now       func() time.Time

	flight singleflight.Group

	mu         sync.Mutex
	cancel     context.CancelFunc
	breaker    *gobreaker.CircuitBreaker
	generation uint64
	expired    bool
	listeners  []func(cause error)
}

type Option func(*Manager)

// WithClock replaces the time source used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(store *tokenstore.Store, refresher Refresher, cfg config.SessionConfig, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		refresher: refresher,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnExpired registers fn to be called once each time the session expires
func (m *Manager) OnExpired(fn func(cause error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Start (re)starts the heartbeat and resets the failure count. The first
// check runs immediately since the stored token may already be stale.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	breaker := m.newBreaker()
	m.cancel = cancel
	m.breaker = breaker
	m.expired = false

	go m.heartbeat(ctx, breaker)

	log.Info().
		Dur("interval", m.cfg.HeartbeatInterval).
		Dur("expiry_buffer", m.cfg.ExpiryBuffer).
		Msg("Refresh heartbeat started")
}

// Stop halts the heartbeat. Stored tokens are left untouched.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	m.generation++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
		log.Debug().Msg("Refresh heartbeat stopped")
	}
	m.breaker = nil
}

// Active reports whether the heartbeat is running
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// ConsecutiveFailures returns the current heartbeat failure count
func (m *Manager) ConsecutiveFailures() int {
	m.mu.Lock()
	breaker := m.breaker
	m.mu.Unlock()

	if breaker == nil {
		return 0
	}
	if breaker.State() == gobreaker.StateOpen {
		return m.cfg.MaxConsecutiveFailures
	}
	return int(breaker.Counts().ConsecutiveFailures)
}

// Refresh returns a freshly rotated access token. Concurrent callers share
// one network call and all receive its result; the slot frees once it settles.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	return m.await(ctx, m.join())
}

// join attaches to the in-flight refresh, starting one if the slot is free.
// The caller is registered on the flight by the time join returns.
func (m *Manager) join() <-chan singleflight.Result {
	return m.flight.DoChan(refreshKey, func() (interface{}, error) {
		return m.refresh()
	})
}

func (m *Manager) await(ctx context.Context, ch <-chan singleflight.Result) (string, error) {
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refresh runs detached from any single caller so that one caller giving up
// does not fail everyone waiting on the same slot
func (m *Manager) refresh() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RefreshTimeout)
	defer cancel()

	m.mu.Lock()
	generation := m.generation
	m.mu.Unlock()

	refreshToken, ok := m.store.GetRefresh(ctx)
	if !ok {
		return "", ErrNoRefreshToken
	}

	pair, err := m.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("Token refresh failed")
		return "", err
	}

	m.mu.Lock()
	superseded := m.generation != generation
	m.mu.Unlock()
	if superseded {
		// Whatever ended the session owns the store now
		if access, ok := m.store.GetAccess(ctx); ok {
			return access, nil
		}
		return "", errSuperseded
	}

	if err := m.store.SetPair(ctx, pair.Access, pair.Refresh); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefreshRejected, err)
	}

	log.Debug().Msg("Tokens refreshed")
	return pair.Access, nil
}

// Expire ends the session: the heartbeat stops, credentials are cleared and
// listeners are told, once per session, that the session is over.
func (m *Manager) Expire(ctx context.Context, cause error) {
	m.mu.Lock()
	m.stopLocked()
	notified := m.expired
	m.expired = true
	listeners := append([]func(error){}, m.listeners...)
	m.mu.Unlock()

	m.finishExpiry(ctx, cause, notified, listeners)
}

func (m *Manager) finishExpiry(ctx context.Context, cause error, notified bool, listeners []func(error)) {
	if err := m.store.Clear(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to clear credentials on session expiry")
	}

	if notified {
		return
	}

	log.Warn().Err(cause).Msg("Session expired")
	for _, fn := range listeners {
		fn(cause)
	}
}

func (m *Manager) newBreaker() *gobreaker.CircuitBreaker {
	ceiling := uint32(m.cfg.MaxConsecutiveFailures)
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "session-heartbeat",
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= ceiling
		},
	})
}

func (m *Manager) heartbeat(ctx context.Context, breaker *gobreaker.CircuitBreaker) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	m.tick(ctx, breaker)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, breaker)
		}
	}
}

func (m *Manager) tick(ctx context.Context, breaker *gobreaker.CircuitBreaker) {
	access, ok := m.store.GetAccess(ctx)
	if !ok {
		return
	}
	if !jwtclaims.IsExpiring(access, m.cfg.ExpiryBuffer, m.now()) {
		return
	}

	_, err := breaker.Execute(func() (interface{}, error) {
		return m.Refresh(ctx)
	})
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		return
	}

	if breaker.State() != gobreaker.StateOpen {
		log.Warn().
			Err(err).
			Uint32("failures", breaker.Counts().ConsecutiveFailures).
			Int("max_failures", m.cfg.MaxConsecutiveFailures).
			Msg("Heartbeat refresh failed")
		return
	}

	log.Error().
		Err(err).
		Int("max_failures", m.cfg.MaxConsecutiveFailures).
		Msg("Too many heartbeat refresh failures, ending session")

	m.mu.Lock()
	if ctx.Err() != nil {
		// Stopped or restarted while this tick was deciding
		m.mu.Unlock()
		return
	}
	m.stopLocked()
	notified := m.expired
	m.expired = true
	listeners := append([]func(error){}, m.listeners...)
	m.mu.Unlock()

	m.finishExpiry(context.Background(), err, notified, listeners)
}
