package state

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrInProgress is returned by Begin when the owner already has a live session.
	ErrInProgress = errors.New("state: session already in progress")
	// ErrNoSession is returned when an operation needs a session the owner does not have.
	ErrNoSession = errors.New("state: no active session")
)

// DefaultTimeout is the idle period after which a session is considered expired.
const DefaultTimeout = 300 * time.Second

// Status describes the outcome of a Lookup.
type Status int

const (
	// StatusNone means the owner is idle.
	StatusNone Status = iota
	// StatusActive means a live session was found.
	StatusActive
	// StatusExpired means a session existed but idled past the timeout; it has been discarded.
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExpired:
		return "expired"
	}
	return "none"
}

// Session is the per-owner record kept by the Registry.
type Session[T any] struct {
	Value        T
	StartedAt    time.Time
	LastActivity time.Time
}

// Options configures a Registry.
type Options struct {
	// Timeout is the idle threshold; zero selects DefaultTimeout, negative disables expiry.
	Timeout time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Registry maps textual owner ids to at most one session each.
// All methods are safe for concurrent use; the sweeper and message handlers share one lock.
type Registry[T any] struct {
	mu       sync.Mutex
	sessions map[string]*Session[T]
	timeout  time.Duration
	now      func() time.Time
}

// NewRegistry builds an empty in-memory registry.
func NewRegistry[T any](opts Options) *Registry[T] {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry[T]{
		sessions: make(map[string]*Session[T]),
		timeout:  timeout,
		now:      now,
	}
}

// Timeout returns the configured idle threshold.
func (r *Registry[T]) Timeout() time.Duration {
	return r.timeout
}

func (r *Registry[T]) expired(s *Session[T], now time.Time) bool {
	return r.timeout > 0 && now.Sub(s.LastActivity) > r.timeout
}

// Begin opens a session for owner. It refuses with ErrInProgress, leaving the existing
// session untouched, unless that session has already expired.
func (r *Registry[T]) Begin(owner string, value T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if cur, ok := r.sessions[owner]; ok && !r.expired(cur, now) {
		return ErrInProgress
	}
	r.sessions[owner] = &Session[T]{Value: value, StartedAt: now, LastActivity: now}
	return nil
}

// Lookup returns the owner's session. An expired session is discarded as part of the
// lookup and returned with StatusExpired so the caller can tell the owner.
func (r *Registry[T]) Lookup(owner string) (Session[T], Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[owner]
	if !ok {
		return Session[T]{}, StatusNone
	}
	if r.expired(cur, r.now()) {
		delete(r.sessions, owner)
		return *cur, StatusExpired
	}
	return *cur, StatusActive
}

// Active reports whether owner has a live session without mutating the registry.
func (r *Registry[T]) Active(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[owner]
	return ok && !r.expired(cur, r.now())
}

// Update replaces the session value and refreshes its activity timestamp.
func (r *Registry[T]) Update(owner string, value T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[owner]
	if !ok {
		return ErrNoSession
	}
	cur.Value = value
	cur.LastActivity = r.now()
	return nil
}

// Discard removes the owner's session and reports whether one existed.
func (r *Registry[T]) Discard(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[owner]
	delete(r.sessions, owner)
	return ok
}

// Expired lists owners whose sessions have idled past the timeout, in sorted order.
// Nothing is removed; callers reclaim each owner through Lookup so that the removal
// happens under whatever per-owner discipline they apply to regular input.
func (r *Registry[T]) Expired() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var owners []string
	for owner, s := range r.sessions {
		if r.expired(s, now) {
			owners = append(owners, owner)
		}
	}
	sort.Strings(owners)
	return owners
}

// Len returns the number of stored sessions, expired ones included until swept.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
