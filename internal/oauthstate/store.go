// Package oauthstate implements the CSRF state store used to bind an
// authorization request to its callback. It generalizes a TokenBroker-style
// cache (a mutex-guarded map with TTL-aware entries and an explicit
// invalidate) from a token cache into a one-shot state cache with a
// capacity guard and a background sweep.
package oauthstate

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/oauthctl/internal/oauthcrypto"
	"github.com/erauner12/oauthctl/internal/oautherr"
)

const (
	// DefaultTTL is the default lifetime of a state entry.
	DefaultTTL = 5 * time.Minute
	MinTTL     = 1 * time.Minute
	MaxTTL     = 10 * time.Minute

	// DefaultCapacity caps active entries before DosGuardTripped fires.
	DefaultCapacity = 1000
)

// Entry is one bound CSRF-state record.
type Entry struct {
	State     string
	Data      any
	CreatedAt time.Time
	ExpiresAt time.Time
	SessionID string
}

// Store is a one-shot, TTL-bounded CSRF state cache.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	ttl      time.Duration
	capacity int
}

// New creates a Store with the given TTL (DefaultTTL if zero, clamped to
// [MinTTL, MaxTTL]) and capacity (DefaultCapacity if zero).
func New(ttl time.Duration, capacity int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl < MinTTL {
		ttl = MinTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		entries:  make(map[string]*Entry),
		ttl:      ttl,
		capacity: capacity,
	}
}

// Create generates and stores a new state value, optionally bound to data
// and a session ID. Returns oautherr.DosGuardTripped if the store is full
// after evicting expired entries.
func (s *Store) Create(data any, sessionID string) (*Entry, error) {
	state, err := oauthcrypto.RandomState(256)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictExpiredLocked()
	if len(s.entries) >= s.capacity {
		return nil, oautherr.DosGuardTripped{Limit: s.capacity}
	}

	now := time.Now()
	entry := &Entry{
		State:     state,
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		SessionID: sessionID,
	}
	s.entries[state] = entry
	return entry, nil
}

// Verify performs an atomic check-and-delete lookup: the first call for a
// given state returns its entry, every subsequent call (or one after
// expiry) returns (nil, false). sessionID, if non-empty, must match the
// entry's bound session.
func (s *Store) Verify(state, sessionID string) (*Entry, bool) {
	if !isValidStateFormat(state) {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return nil, false
	}
	delete(s.entries, state) // one-shot regardless of outcome

	if time.Now().After(entry.ExpiresAt) {
		return nil, false
	}
	if sessionID != "" && entry.SessionID != "" && entry.SessionID != sessionID {
		return nil, false
	}
	return entry, true
}

// isValidStateFormat rejects malformed states before touching storage:
// must be hex and the correct length (32 bytes -> 64 chars).
func isValidStateFormat(state string) bool {
	if len(state) != 64 {
		return false
	}
	_, err := hex.DecodeString(state)
	return err == nil
}

func (s *Store) evictExpiredLocked() {
	now := time.Now()
	for k, v := range s.entries {
		if now.After(v.ExpiresAt) {
			delete(s.entries, k)
		}
	}
}

// Sweep runs a periodic eviction of expired entries until ctx is canceled.
// The caller owns cancellation so the goroutine never outlives its owner.
func (s *Store) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			before := len(s.entries)
			s.evictExpiredLocked()
			after := len(s.entries)
			s.mu.Unlock()
			if before != after {
				log.Debug().Int("evicted", before-after).Msg("oauthstate: swept expired entries")
			}
		}
	}
}

// Len reports the number of stored (not-yet-verified) entries, including
// expired ones that Create or Sweep has not evicted yet. Useful for tests
// and CLI diagnostics.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
