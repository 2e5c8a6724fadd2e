package sessionpool

import (
	"database/sql"
	"sync"
	"time"

	"github.com/arma-extdb/extdb-core/internal/metrics"
)

// PinReason describes why a session is marked pinned. The pool does not
// consult it: Release returns a pinned session to the pool like any other.
type PinReason string

const (
	PinNone        PinReason = ""
	PinTransaction PinReason = "transaction"
	PinPrepared    PinReason = "prepared"
)

// State tracks a session's lifecycle state within the pool.
type State int

const (
	StateIdle State = iota
	StateActive
	StateClosed
)

// Session wraps a *sql.DB with the bookkeeping the pool needs to manage
// it: identity, lifecycle state, pin status, and idle-time accounting.
// An off-pool session (see Pool.Acquire) uses the same type with
// offPool set, so callers use one uniform API regardless of provenance.
type Session struct {
	mu sync.Mutex

	db        *sql.DB
	id        uint64
	backend   Kind
	state     State
	pinReason PinReason
	pinnedAt  time.Time

	createdAt  time.Time
	lastUsedAt time.Time

	// offPool marks a session fabricated directly from the connection
	// descriptor on pool exhaustion. It is never returned to the idle
	// list; Release closes it outright.
	offPool bool
}

func newSession(id uint64, backend Kind, db *sql.DB, offPool bool) *Session {
	now := time.Now()
	return &Session{
		db:         db,
		id:         id,
		backend:    backend,
		state:      StateIdle,
		createdAt:  now,
		lastUsedAt: now,
		offPool:    offPool,
	}
}

// DB returns the underlying *sql.DB for use by protocol handlers.
func (s *Session) DB() *sql.DB { return s.db }

// ID returns the session's pool-local identifier.
func (s *Session) ID() uint64 { return s.id }

// Backend returns the backend kind this session is connected to.
func (s *Session) Backend() Kind { return s.backend }

// IsOffPool reports whether this session was fabricated outside the
// pool on exhaustion (and must therefore be discarded, not recycled).
func (s *Session) IsOffPool() bool { return s.offPool }

// Pin records reason and, if the session was not already pinned, the
// time the pin started, until Unpin. It does not keep Release from
// returning the session to the pool.
func (s *Session) Pin(reason PinReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pinReason == PinNone {
		s.pinnedAt = time.Now()
	}
	s.pinReason = reason
}

// Unpin clears any pin and returns how long the session was pinned.
func (s *Session) Unpin() time.Duration {
	s.mu.Lock()
	var dur time.Duration
	reason := s.pinReason
	if reason != PinNone {
		dur = time.Since(s.pinnedAt)
	}
	s.pinReason = PinNone
	s.pinnedAt = time.Time{}
	backend := s.backend
	s.mu.Unlock()

	if reason != PinNone {
		metrics.PinningDuration.WithLabelValues(string(backend), string(reason)).Observe(dur.Seconds())
	}
	return dur
}

// IsPinned reports whether the session is currently pinned.
func (s *Session) IsPinned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pinReason != PinNone
}

func (s *Session) markAcquired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateActive
	s.lastUsedAt = time.Now()
}

func (s *Session) markIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.lastUsedAt = time.Now()
}

func (s *Session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

func (s *Session) idleDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastUsedAt)
}

// Close closes the underlying database connection.
func (s *Session) Close() error {
	s.markClosed()
	return s.db.Close()
}
