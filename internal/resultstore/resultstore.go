// Package resultstore implements the pending-wait table and chunked
// result buffer behind the ASYNC_WITH_RESULT / POLL command pair. A
// caller reserves a correlation ID before work is posted, a worker
// delivers the finished envelope once, and the host polls — possibly
// many times — until the (chunked) envelope drains and the entry is
// erased.
package resultstore

import (
	"sync"

	"github.com/arma-extdb/extdb-core/internal/metrics"
)

// Status describes the outcome of a Poll call.
type Status int

const (
	// Unknown: id is not reserved and holds no result — either it was
	// never issued, or a prior poll already drained and erased it.
	Unknown Status = iota
	// InFlight: id is reserved but the worker hasn't delivered yet.
	InFlight
	// Chunk: id has a result; Poll returned up to maxLen bytes of it.
	// The remainder (possibly empty) stays stored for the next poll.
	Chunk
	// Done: the previous poll drained the last byte; this poll observed
	// the terminal empty remainder and erased the entry, freeing the id
	// for reuse.
	Done
)

// Store holds pending reservations and delivered-but-undrained result
// tails, guarded by a single mutex — writes dominate reads here,
// mirroring a single critical section around both maps.
type Store struct {
	mu      sync.Mutex
	pending map[uint64]struct{}
	results map[uint64]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		pending: make(map[uint64]struct{}),
		results: make(map[uint64]string),
	}
}

// Reserve marks id as pending before any work referencing it is posted,
// so a poll against it never reports "unknown id" while work is in
// flight.
func (s *Store) Reserve(id uint64) {
	s.mu.Lock()
	s.pending[id] = struct{}{}
	n := len(s.pending) + len(s.results)
	s.mu.Unlock()
	metrics.ResultStorePending.Set(float64(n))
}

// Deliver stores the finished envelope for id and clears its pending
// mark. A second Deliver for the same id would silently clobber the
// first — handlers never retry through this interface, so callers must
// guarantee at most one Deliver per reservation.
func (s *Store) Deliver(id uint64, envelope string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.results[id] = envelope
	n := len(s.pending) + len(s.results)
	s.mu.Unlock()
	metrics.ResultStorePending.Set(float64(n))
}

// Poll drains up to maxLen bytes of id's result.
//
// Two-step terminal semantics: the call that takes the last bytes
// returns them as Chunk and leaves an empty remainder stored, and only
// the NEXT call observes Done, returns an empty chunk and erases the
// entry. This gives the
// host a clean, unambiguous end-of-stream before the id becomes
// reusable.
func (s *Store) Poll(id uint64, maxLen int) (chunk string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tail, found := s.results[id]; found {
		if tail == "" {
			delete(s.results, id)
			metrics.ResultStorePending.Set(float64(len(s.pending) + len(s.results)))
			return "", Done
		}
		if maxLen <= 0 || maxLen > len(tail) {
			maxLen = len(tail)
		}
		chunk = tail[:maxLen]
		s.results[id] = tail[maxLen:]
		return chunk, Chunk
	}

	if _, waiting := s.pending[id]; waiting {
		return "", InFlight
	}
	return "", Unknown
}

// Len reports the number of correlation IDs currently tracked (pending
// or holding an undelivered result), for metrics only.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) + len(s.results)
}
