package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding-window limiter keyed by client
type Limiter struct {
	mu      sync.Mutex
	limits  map[string][]time.Time
	window  time.Duration
	maxHits int
	now     func() time.Time
}

func NewLimiter(window time.Duration, maxHits int) *Limiter {
	return &Limiter{
		limits:  make(map[string][]time.Time),
		window:  window,
		maxHits: maxHits,
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) Allow(key string) bool {
	ok, _ := l.Reserve(key)
	return ok
}

// Reserve records a hit for key if the window has room. When it does not,
// the returned duration is how long until the oldest hit leaves the window.
func (l *Limiter) Reserve(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hits := l.prune(key, now.Add(-l.window))

	if len(hits) >= l.maxHits {
		if len(hits) == 0 {
			return false, l.window
		}
		return false, hits[0].Add(l.window).Sub(now)
	}

	l.limits[key] = append(hits, now)
	return true, 0
}

// Len reports how many keys are currently tracked
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key := range l.limits {
		l.prune(key, now.Add(-l.window))
	}
	return len(l.limits)
}

// prune drops hits older than windowStart and forgets idle keys
func (l *Limiter) prune(key string, windowStart time.Time) []time.Time {
	hits, exists := l.limits[key]
	if !exists {
		return nil
	}

	valid := hits[:0]
	for _, hit := range hits {
		if hit.After(windowStart) {
			valid = append(valid, hit)
		}
	}
	if len(valid) == 0 {
		delete(l.limits, key)
		return nil
	}
	l.limits[key] = valid
	return valid
}
