// Package grant keeps the set of live, time-bounded sharing grants.
//
// A grant lets one viewer read one owner's latest encrypted location until it
// expires. There is at most one grant per (owner, viewer) pair; granting again
// replaces the previous one.
package grant

import (
	"sort"
	"sync"
	"time"

	"github.com/amaydixit11/locvault/internal/core"
	"github.com/google/uuid"
)

// Grant is one owner's authorization of one viewer
type Grant struct {
	ID        uuid.UUID `json:"id"`
	Owner     string    `json:"owner"`
	Viewer    string    `json:"viewer"`
	GrantedAt time.Time `json:"granted_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ActiveAt reports whether the grant is still valid at t.
// Expiry is strict: a grant is no longer active at exactly ExpiresAt.
func (g Grant) ActiveAt(t time.Time) bool {
	return g.ExpiresAt.After(t)
}

// Remaining returns how long the grant has left at t (zero once expired)
func (g Grant) Remaining(t time.Time) time.Duration {
	if !g.ActiveAt(t) {
		return 0
	}
	return g.ExpiresAt.Sub(t)
}

type pair struct {
	owner  string
	viewer string
}

// Store is the authoritative set of grants.
// All methods take the same lock, so a sweep never races a grant or a check.
type Store struct {
	mu     sync.Mutex
	grants map[pair]Grant
	clock  core.Clock
}

// NewStore creates an empty store. A nil clock means the system clock.
func NewStore(clock core.Clock) *Store {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Store{
		grants: make(map[pair]Grant),
		clock:  clock,
	}
}

// Grant inserts or replaces the grant for (owner, viewer), valid for
// durationMinutes from now. Identifier and duration validation is the caller's job.
func (s *Store) Grant(owner, viewer string, durationMinutes int) Grant {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	g := Grant{
		ID:        uuid.New(),
		Owner:     owner,
		Viewer:    viewer,
		GrantedAt: now,
		ExpiresAt: now.Add(time.Duration(durationMinutes) * time.Minute),
	}
	s.grants[pair{owner, viewer}] = g
	return g
}

// IsAccessAllowed reports whether viewer currently holds a live grant from owner.
// It checks expiry itself and does not depend on RevokeExpired having run.
func (s *Store) IsAccessAllowed(owner, viewer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[pair{owner, viewer}]
	return ok && g.ActiveAt(s.clock.Now())
}

// RevokeExpired removes every grant whose expiry is at or before now and
// returns how many were removed.
func (s *Store) RevokeExpired() int {
	return len(s.SweepExpired())
}

// SweepExpired is RevokeExpired returning the removed grants
func (s *Store) SweepExpired() []Grant {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var removed []Grant
	for k, g := range s.grants {
		if !g.ActiveAt(now) {
			delete(s.grants, k)
			removed = append(removed, g)
		}
	}
	return removed
}

// Revoke cancels the grant for (owner, viewer) before its natural expiry.
// It reports whether a live grant was removed.
func (s *Store) Revoke(owner, viewer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := pair{owner, viewer}
	g, ok := s.grants[k]
	if !ok {
		return false
	}
	delete(s.grants, k)
	return g.ActiveAt(s.clock.Now())
}

// Get returns the live grant for (owner, viewer), if any
func (s *Store) Get(owner, viewer string) (Grant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[pair{owner, viewer}]
	if !ok || !g.ActiveAt(s.clock.Now()) {
		return Grant{}, false
	}
	return g, true
}

// ListByOwner returns the owner's live grants, soonest expiry first
func (s *Store) ListByOwner(owner string) []Grant {
	s.mu.Lock()
	now := s.clock.Now()
	result := make([]Grant, 0)
	for k, g := range s.grants {
		if k.owner == owner && g.ActiveAt(now) {
			result = append(result, g)
		}
	}
	s.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].ExpiresAt.Equal(result[j].ExpiresAt) {
			return result[i].Viewer < result[j].Viewer
		}
		return result[i].ExpiresAt.Before(result[j].ExpiresAt)
	})
	return result
}

// Len returns the number of grants held, expired or not
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.grants)
}
