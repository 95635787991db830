package wizard

import (
	"sync"
	"time"
)

type entry struct {
	s    *Session
	seen time.Time
}

// Registry keeps at most one in-progress session per user and forgets idle ones.
type Registry struct {
	mu       sync.Mutex
	idle     time.Duration
	sessions map[int64]*entry
}

func NewRegistry(idle time.Duration) *Registry {
	return &Registry{idle: idle, sessions: map[int64]*entry{}}
}

// Begin stores s as the user's session, discarding any previous one.
func (r *Registry) Begin(s *Session, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.UserID] = &entry{s: s, seen: now}
}

// Get returns the user's live session and marks it used at now.
func (r *Registry) Get(userID int64, now time.Time) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	if r.expired(e, now) {
		delete(r.sessions, userID)
		return nil, false
	}
	e.seen = now
	return e.s, true
}

func (r *Registry) Drop(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

// Evict removes idle sessions and returns how many were dropped.
func (r *Registry) Evict(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.sessions {
		if r.expired(e, now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) expired(e *entry, now time.Time) bool {
	return r.idle > 0 && now.Sub(e.seen) > r.idle
}
