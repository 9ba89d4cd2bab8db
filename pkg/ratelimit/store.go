package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status reports the quota state for a single key.
type Status struct {
	// Count is the number of admitted requests in the current window.
	Count int `json:"count"`

	// Limit is the configured per-window admission limit.
	Limit int `json:"limit"`

	// Remaining is the quota left in the current window, clamped at 0.
	Remaining int `json:"remaining"`

	// ResetAt is when the current window ends. Zero when no window is open.
	ResetAt time.Time `json:"resetAt"`
}

// Stats describes the store as a whole.
type Stats struct {
	Entries int           `json:"totalEntries"`
	Limit   int           `json:"dailyLimit"`
	Window  time.Duration `json:"window"`
}

// record tracks one key's usage within its rolling window.
type record struct {
	count   int
	resetAt time.Time
}

// Store is an in-memory quota store keyed by device fingerprint or IP.
// Each key accumulates a request count within a rolling window that opens
// on the key's first admitted request. It is safe for concurrent use.
//
// Single-process only: counters are not shared across instances.
type Store struct {
	mu     sync.Mutex
	data   map[string]*record
	limit  int
	window time.Duration

	// nowFn is swapped in tests to control the clock.
	nowFn func() time.Time
}

// NewStore creates a quota store enforcing at most limit admitted requests
// per key per window.
func NewStore(limit int, window time.Duration) *Store {
	return &Store{
		data:   make(map[string]*record),
		limit:  limit,
		window: window,
		nowFn:  time.Now,
	}
}

// Limit returns the configured per-window admission limit.
func (s *Store) Limit() int {
	return s.limit
}

// get returns the live state for a key, evicting a stale record in place.
// Caller must hold s.mu.
func (s *Store) get(key string) (count int, resetAt time.Time) {
	rec, ok := s.data[key]
	if !ok {
		return 0, time.Time{}
	}

	if !s.nowFn().Before(rec.resetAt) {
		delete(s.data, key)
		return 0, time.Time{}
	}

	return rec.count, rec.resetAt
}

// Get returns the current status for a key without mutating it. A key with
// no active window reports count 0 and a zero ResetAt.
func (s *Store) Get(key string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, resetAt := s.get(key)
	return s.status(count, resetAt)
}

// Increment admits one request for a key, opening a new window if none is
// active, and returns the updated status.
func (s *Store) Increment(key string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.increment(key)
}

// increment is the core of Increment. Caller must hold s.mu.
func (s *Store) increment(key string) Status {
	count, resetAt := s.get(key)

	if resetAt.IsZero() {
		resetAt = s.nowFn().Add(s.window)
	}
	count++

	s.data[key] = &record{count: count, resetAt: resetAt}
	return s.status(count, resetAt)
}

// IsLimitExceeded reports whether a key has used up its window quota.
func (s *Store) IsLimitExceeded(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, _ := s.get(key)
	return count >= s.limit
}

// CheckAndIncrement atomically checks the limit and, if not exceeded,
// admits the request. The check happens before the increment, so an
// admitted request can never push the count past the limit.
func (s *Store) CheckAndIncrement(key string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count, resetAt := s.get(key)
	if count >= s.limit {
		return s.status(count, resetAt), false
	}

	return s.increment(key), true
}

// Reset removes the record for a key.
func (s *Store) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
}

// Sweep removes all records whose window has expired and returns the
// number of active entries left.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	for key, rec := range s.data {
		if !now.Before(rec.resetAt) {
			delete(s.data, key)
		}
	}

	return len(s.data)
}

// Stats returns store-wide statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Entries: len(s.data),
		Limit:   s.limit,
		Window:  s.window,
	}
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
// The sweep takes the store lock only for the duration of one map pass and
// never blocks on I/O, so request handling is not held up.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			active := s.Sweep()
			slog.Debug("Rate limit cleanup", "active_entries", active)
		}
	}
}

func (s *Store) status(count int, resetAt time.Time) Status {
	remaining := s.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Status{
		Count:     count,
		Limit:     s.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
