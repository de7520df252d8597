package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devfolio/dashboard/internal/config"
	"github.com/devfolio/dashboard/internal/tokenstore"
	"github.com/golang-jwt/jwt/v5"
)

var errBackendDown = errors.New("backend down")

func mintToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
	}).SignedString([]byte("test"))
	if err != nil {
		t.Fatalf("Failed to mint token: %v", err)
	}
	return token
}

// fakeRefresher scripts refresh outcomes per call. Calls past the end of
// results succeed.
type fakeRefresher struct {
	mu       sync.Mutex
	calls    int
	received []string
	results  []error
	access   func() string
	entered  chan struct{}
	release  chan struct{}
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (tokenstore.Pair, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.received = append(f.received, refreshToken)
	var err error
	if n <= len(f.results) {
		err = f.results[n-1]
	}
	f.mu.Unlock()

	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return tokenstore.Pair{}, ctx.Err()
		}
	}

	if err != nil {
		return tokenstore.Pair{}, fmt.Errorf("%w: %v", ErrRefreshRejected, err)
	}

	access := fmt.Sprintf("a%d", n)
	if f.access != nil {
		access = f.access()
	}
	return tokenstore.Pair{Access: access, Refresh: fmt.Sprintf("r%d", n)}, nil
}

func (f *fakeRefresher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() config.SessionConfig {
	return config.SessionConfig{
		HeartbeatInterval:      10 * time.Millisecond,
		ExpiryBuffer:           30 * time.Second,
		MaxConsecutiveFailures: 3,
		RefreshTimeout:         time.Second,
	}
}

func newTestManager(t *testing.T, refresher Refresher) (*Manager, *tokenstore.Store) {
	t.Helper()
	store := tokenstore.New(tokenstore.NewMemoryBackend())
	m := NewManager(store, refresher, testConfig())
	t.Cleanup(m.Stop)
	return m, store
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestRefreshSingleFlight(t *testing.T) {
	refresher := &fakeRefresher{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	m, store := newTestManager(t, refresher)
	ctx := context.Background()

	if err := store.SetPair(ctx, "a0", "r0"); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	const callers = 10
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		tokens[0], errs[0] = m.Refresh(ctx)
	}()
	<-refresher.entered

	for i := 1; i < callers; i++ {
		flight := m.join()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.await(ctx, flight)
		}(i)
	}

	close(refresher.release)
	wg.Wait()

	if refresher.Calls() != 1 {
		t.Errorf("Expected exactly 1 refresh call, got %d", refresher.Calls())
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Errorf("Caller %d got error: %v", i, errs[i])
		}
		if tokens[i] != "a1" {
			t.Errorf("Caller %d expected token a1, got %q", i, tokens[i])
		}
	}

	pair, _ := store.GetPair(ctx)
	if pair != (tokenstore.Pair{Access: "a1", Refresh: "r1"}) {
		t.Errorf("Expected store to hold the rotated pair, got %+v", pair)
	}
}

func TestRefreshSlotFreesAfterSettling(t *testing.T) {
	refresher := &fakeRefresher{results: []error{errBackendDown}}
	m, store := newTestManager(t, refresher)
	ctx := context.Background()

	if err := store.SetPair(ctx, "a0", "r0"); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	if _, err := m.Refresh(ctx); !errors.Is(err, ErrRefreshRejected) {
		t.Fatalf("Expected ErrRefreshRejected, got %v", err)
	}

	token, err := m.Refresh(ctx)
	if err != nil {
		t.Fatalf("Expected second refresh to succeed, got %v", err)
	}
	if token != "a2" {
		t.Errorf("Expected token a2, got %q", token)
	}
}

func TestRefreshNeverReusesRotatedToken(t *testing.T) {
	refresher := &fakeRefresher{}
	m, store := newTestManager(t, refresher)
	ctx := context.Background()

	if err := store.SetPair(ctx, "a0", "r0"); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := m.Refresh(ctx); err != nil {
			t.Fatalf("Refresh %d failed: %v", i, err)
		}
	}

	want := []string{"r0", "r1", "r2"}
	for i, got := range refresher.received {
		if got != want[i] {
			t.Errorf("Refresh %d sent %q, want %q", i, got, want[i])
		}
	}
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	refresher := &fakeRefresher{}
	m, _ := newTestManager(t, refresher)

	_, err := m.Refresh(context.Background())
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("Expected ErrNoRefreshToken, got %v", err)
	}
	if refresher.Calls() != 0 {
		t.Errorf("Expected no network call, got %d", refresher.Calls())
	}
}

func TestRefreshCallerContextDoesNotCancelOthers(t *testing.T) {
	refresher := &fakeRefresher{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	m, store := newTestManager(t, refresher)

	if err := store.SetPair(context.Background(), "a0", "r0"); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	impatient, cancel := context.WithCancel(context.Background())
	impatientErr := make(chan error, 1)
	go func() {
		_, err := m.Refresh(impatient)
		impatientErr <- err
	}()

	<-refresher.entered

	// The second caller is on the flight before anything settles
	flight := m.join()
	patient := make(chan string, 1)
	go func() {
		token, _ := m.await(context.Background(), flight)
		patient <- token
	}()

	cancel()
	if err := <-impatientErr; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled for the cancelled caller, got %v", err)
	}

	close(refresher.release)
	if token := <-patient; token != "a1" {
		t.Errorf("Expected remaining caller to receive a1, got %q", token)
	}
	if calls := refresher.Calls(); calls != 1 {
		t.Errorf("Expected one network call, got %d", calls)
	}
}

func TestRefreshAfterStopDoesNotRestoreTokens(t *testing.T) {
	refresher := &fakeRefresher{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	m, store := newTestManager(t, refresher)
	ctx := context.Background()

	if err := store.SetPair(ctx, "a0", "r0"); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		_, err := m.Refresh(ctx)
		result <- err
	}()

	<-refresher.entered
	m.Stop()
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Failed to clear store: %v", err)
	}
	close(refresher.release)

	if err := <-result; !errors.Is(err, ErrRefreshRejected) {
		t.Errorf("Expected superseded refresh to fail, got %v", err)
	}
	if _, ok := store.GetAccess(ctx); ok {
		t.Error("Expected store to stay empty after logout")
	}
}

func TestHeartbeatFailureCeiling(t *testing.T) {
	refresher := &fakeRefresher{results: []error{errBackendDown, errBackendDown, errBackendDown, errBackendDown}}
	m, store := newTestManager(t, refresher)
	ctx := context.Background()

	if err := store.SetPair(ctx, mintToken(t, time.Now().Add(5*time.Second)), "r0"); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	expired := make(chan error, 4)
	m.OnExpired(func(cause error) { expired <- cause })

	m.Start()

	select {
	case cause := <-expired:
		if !errors.Is(cause, ErrRefreshRejected) {
			t.Errorf("Expected expiry cause to be a rejected refresh, got %v", cause)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Session did not expire")
	}

	if calls := refresher.Calls(); calls != 3 {
		t.Errorf("Expected exactly 3 refresh attempts, got %d", calls)
	}
	if m.Active() {
		t.Error("Expected heartbeat to be stopped")
	}
	if _, ok := store.GetAccess(ctx); ok {
		t.Error("Expected credentials to be cleared")
	}

	time.Sleep(50 * time.Millisecond)
	if calls := refresher.Calls(); calls != 3 {
		t.Errorf("Expected no refresh after expiry, got %d calls", calls)
	}
	if len(expired) != 0 {
		t.Error("Expected a single expiry notification")
	}
}

func TestHeartbeatSuccessResetsFailureCount(t *testing.T) {
	refresher := &fakeRefresher{
		results: []error{errBackendDown, errBackendDown, nil, errBackendDown, errBackendDown, nil, errBackendDown, errBackendDown},
	}
	refresher.access = func() string { return mintToken(t, time.Now().Add(5*time.Second)) }
	m, store := newTestManager(t, refresher)

	if err := store.SetPair(context.Background(), mintToken(t, time.Now().Add(5*time.Second)), "r0"); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	var expired atomic.Bool
	m.OnExpired(func(error) { expired.Store(true) })

	m.Start()
	waitFor(t, 2*time.Second, func() bool { return refresher.Calls() >= 10 })
	m.Stop()

	if expired.Load() {
		t.Error("Expected interleaved successes to keep the session alive")
	}
}

func TestHeartbeatFailuresBelowCeiling(t *testing.T) {
	refresher := &fakeRefresher{
		entered: make(chan struct{}, 1),
		results: []error{errBackendDown, errBackendDown},
	}
	refresher.access = func() string { return mintToken(t, time.Now().Add(time.Hour)) }
	m, store := newTestManager(t, refresher)

	if err := store.SetPair(context.Background(), mintToken(t, time.Now().Add(5*time.Second)), "r0"); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	var expired atomic.Bool
	m.OnExpired(func(error) { expired.Store(true) })

	m.Start()
	waitFor(t, 2*time.Second, func() bool { return refresher.Calls() >= 3 })
	waitFor(t, time.Second, func() bool { return m.ConsecutiveFailures() == 0 })

	if expired.Load() {
		t.Error("Expected two failures to stay below the ceiling")
	}
	if !m.Active() {
		t.Error("Expected heartbeat to keep running")
	}
}

func TestHeartbeatSkipsFreshToken(t *testing.T) {
	refresher := &fakeRefresher{}
	m, store := newTestManager(t, refresher)

	if err := store.SetPair(context.Background(), mintToken(t, time.Now().Add(time.Hour)), "r0"); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	m.Start()
	time.Sleep(60 * time.Millisecond)

	if calls := refresher.Calls(); calls != 0 {
		t.Errorf("Expected no refresh for a fresh token, got %d", calls)
	}
}

func TestHeartbeatWithoutSessionIsNoop(t *testing.T) {
	refresher := &fakeRefresher{}
	m, _ := newTestManager(t, refresher)

	m.Start()
	time.Sleep(60 * time.Millisecond)

	if calls := refresher.Calls(); calls != 0 {
		t.Errorf("Expected no refresh without a token, got %d", calls)
	}
	if !m.Active() {
		t.Error("Expected heartbeat to be active")
	}
}

func TestStopKeepsTokens(t *testing.T) {
	m, store := newTestManager(t, &fakeRefresher{})
	ctx := context.Background()

	if err := store.SetPair(ctx, mintToken(t, time.Now().Add(time.Hour)), "r0"); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	m.Start()
	m.Stop()

	if m.Active() {
		t.Error("Expected heartbeat to be stopped")
	}
	if _, ok := store.GetPair(ctx); !ok {
		t.Error("Expected Stop to leave tokens in place")
	}
}

func TestExpireNotifiesOncePerSession(t *testing.T) {
	m, store := newTestManager(t, &fakeRefresher{})
	ctx := context.Background()

	if err := store.SetPair(ctx, "a0", "r0"); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	var notified atomic.Int32
	m.OnExpired(func(error) { notified.Add(1) })

	m.Start()
	m.Expire(ctx, ErrRefreshRejected)
	m.Expire(ctx, ErrRefreshRejected)

	if got := notified.Load(); got != 1 {
		t.Errorf("Expected 1 notification, got %d", got)
	}
	if _, ok := store.GetPair(ctx); ok {
		t.Error("Expected Expire to clear credentials")
	}

	m.Start()
	m.Expire(ctx, ErrNoRefreshToken)
	if got := notified.Load(); got != 2 {
		t.Errorf("Expected a new session to notify again, got %d", got)
	}
}

func TestSessionExpiredError(t *testing.T) {
	err := fmt.Errorf("request failed: %w", &SessionExpiredError{StatusCode: 401, Cause: ErrNoRefreshToken})

	if !errors.Is(err, ErrSessionExpired) {
		t.Error("Expected error to match ErrSessionExpired")
	}
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Error("Expected error to unwrap to its cause")
	}

	var expired *SessionExpiredError
	if !errors.As(err, &expired) || expired.StatusCode != 401 {
		t.Errorf("Expected SessionExpiredError with status 401, got %v", err)
	}
}
