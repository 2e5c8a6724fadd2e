package sessionpool

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arma-extdb/extdb-core/internal/metrics"
)

const defaultAcquireTimeout = 5 * time.Second

// Pool manages a bounded set of sessions against a single connection
// descriptor: min_sessions pre-opened, a max_sessions ceiling, idle
// reaping, and an off-pool fallback on exhaustion.
type Pool struct {
	mu sync.Mutex

	desc *Descriptor

	idle   []*Session
	active map[uint64]*Session

	nextID atomic.Uint64

	closed bool

	waiters []chan *Session
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New opens a pool for desc, eagerly creating min_sessions connections.
func New(ctx context.Context, desc *Descriptor) (*Pool, error) {
	if desc.MaxSessions <= 0 {
		return nil, fmt.Errorf("sessionpool: max_sessions must be positive")
	}
	p := &Pool{
		desc:   desc,
		idle:   make([]*Session, 0, desc.MaxSessions),
		active: make(map[uint64]*Session),
		stopCh: make(chan struct{}),
	}

	for i := 0; i < desc.MinSessions; i++ {
		sess, err := p.createSession(ctx)
		if err != nil {
			log.Printf("[sessionpool] WARNING: backend %s — failed to create warm session %d/%d: %v",
				desc.Type, i+1, desc.MinSessions, err)
			continue
		}
		p.idle = append(p.idle, sess)
	}

	p.updateMetrics()
	log.Printf("[sessionpool] backend %s — pool initialized: %d idle, max=%d",
		desc.Type, len(p.idle), desc.MaxSessions)

	p.wg.Add(1)
	go p.maintenanceLoop()

	return p, nil
}

// Acquire returns a session from the pool. If the pool is at capacity it
// blocks up to an internal bound (Descriptor.AcquireTimeout, default
// 5s); if that bound elapses, it fabricates a one-shot off-pool session
// directly from the connection descriptor rather than surfacing an
// error — per the pool's exhaustion-fallback contract, PoolExhausted is
// never visible outside this package.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	start := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("sessionpool: pool closed for backend %s", p.desc.Type)
	}

	if sess := p.popIdle(); sess != nil {
		p.active[sess.id] = sess
		sess.markAcquired()
		p.updateMetrics()
		p.mu.Unlock()
		metrics.SessionsTotal.WithLabelValues(string(p.desc.Type), "acquired").Inc()
		return sess, nil
	}

	total := len(p.idle) + len(p.active)
	if total < p.desc.MaxSessions {
		p.mu.Unlock()
		sess, err := p.createSession(ctx)
		if err != nil {
			metrics.SessionErrors.WithLabelValues(string(p.desc.Type), "create_failed").Inc()
			return nil, fmt.Errorf("sessionpool: creating session for backend %s: %w", p.desc.Type, err)
		}
		sess.markAcquired()
		p.mu.Lock()
		p.active[sess.id] = sess
		p.updateMetrics()
		p.mu.Unlock()
		metrics.SessionsTotal.WithLabelValues(string(p.desc.Type), "acquired").Inc()
		return sess, nil
	}

	// Pool exhausted — enter the bounded wait queue.
	waiterCh := make(chan *Session, 1)
	p.waiters = append(p.waiters, waiterCh)
	metrics.SessionQueueLength.WithLabelValues(string(p.desc.Type)).Set(float64(len(p.waiters)))
	p.mu.Unlock()

	timeout := p.desc.AcquireTimeout
	if timeout == 0 {
		timeout = defaultAcquireTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sess := <-waiterCh:
		metrics.SessionQueueWaitDuration.WithLabelValues(string(p.desc.Type)).Observe(time.Since(start).Seconds())
		if sess == nil {
			metrics.SessionsTotal.WithLabelValues(string(p.desc.Type), "queue_error").Inc()
			return nil, fmt.Errorf("sessionpool: pool closed while waiting for backend %s", p.desc.Type)
		}
		metrics.SessionsTotal.WithLabelValues(string(p.desc.Type), "acquired").Inc()
		return sess, nil

	case <-timer.C:
		p.removeWaiter(waiterCh)
		metrics.SessionQueueWaitDuration.WithLabelValues(string(p.desc.Type)).Observe(time.Since(start).Seconds())
		return p.offPoolFallback(ctx)

	case <-ctx.Done():
		p.removeWaiter(waiterCh)
		return nil, ctx.Err()
	}
}

// offPoolFallback fabricates a one-shot session directly from the
// connection descriptor, bypassing the pool entirely. It is not added
// to idle/active bookkeeping; Release closes it outright.
func (p *Pool) offPoolFallback(ctx context.Context) (*Session, error) {
	driver, dsn := p.desc.driverAndDSN()
	if driver == "" {
		return nil, fmt.Errorf("sessionpool: unknown backend kind %q", p.desc.Type)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		metrics.SessionErrors.WithLabelValues(string(p.desc.Type), "offpool_open_failed").Inc()
		return nil, fmt.Errorf("sessionpool: off-pool sql.Open for backend %s: %w", p.desc.Type, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		metrics.SessionErrors.WithLabelValues(string(p.desc.Type), "offpool_ping_failed").Inc()
		return nil, fmt.Errorf("sessionpool: off-pool ping for backend %s: %w", p.desc.Type, err)
	}

	sess := newSession(p.nextID.Add(1), p.desc.Type, db, true)
	sess.markAcquired()
	metrics.OffPoolSessionsTotal.WithLabelValues(string(p.desc.Type)).Inc()
	metrics.SessionsTotal.WithLabelValues(string(p.desc.Type), "offpool_acquired").Inc()
	log.Printf("[sessionpool] backend %s — pool exhausted, fabricated off-pool session %d", p.desc.Type, sess.id)
	return sess, nil
}

// Release returns sess to the pool, or closes it outright if it is an
// off-pool session or the pool has been closed.
func (p *Pool) Release(sess *Session) {
	if sess == nil {
		return
	}
	if sess.IsOffPool() {
		sess.Close()
		metrics.SessionsTotal.WithLabelValues(string(p.desc.Type), "offpool_released").Inc()
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		sess.Close()
		return
	}
	delete(p.active, sess.id)
	p.mu.Unlock()

	sess.markIdle()

	p.mu.Lock()
	if len(p.waiters) > 0 {
		waiterCh := p.waiters[0]
		p.waiters = p.waiters[1:]
		metrics.SessionQueueLength.WithLabelValues(string(p.desc.Type)).Set(float64(len(p.waiters)))
		sess.markAcquired()
		p.active[sess.id] = sess
		p.updateMetrics()
		p.mu.Unlock()
		waiterCh <- sess
		metrics.SessionsTotal.WithLabelValues(string(p.desc.Type), "released").Inc()
		return
	}

	p.idle = append(p.idle, sess)
	p.updateMetrics()
	p.mu.Unlock()
	metrics.SessionsTotal.WithLabelValues(string(p.desc.Type), "released").Inc()
}

// Discard removes sess from the pool permanently (the handler hit a
// backend error it doesn't trust the session's state after).
func (p *Pool) Discard(sess *Session) {
	if sess == nil {
		return
	}
	if !sess.IsOffPool() {
		p.mu.Lock()
		delete(p.active, sess.id)
		p.updateMetrics()
		p.mu.Unlock()
	}
	sess.Close()
	metrics.SessionErrors.WithLabelValues(string(p.desc.Type), "discarded").Inc()
}

// Close shuts the pool down, closing every session and waking waiters
// with a nil delivery so they see the closed-pool error.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)

	for _, w := range p.waiters {
		close(w)
	}
	p.waiters = nil

	for _, s := range p.idle {
		s.Close()
	}
	p.idle = nil
	for _, s := range p.active {
		s.Close()
	}
	p.active = nil
	p.mu.Unlock()

	p.wg.Wait()
	log.Printf("[sessionpool] backend %s — pool closed", p.desc.Type)
	return nil
}

// Stats reports the pool's current occupancy.
type Stats struct {
	Backend   Kind
	Active    int
	Idle      int
	Max       int
	WaitQueue int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Backend:   p.desc.Type,
		Active:    len(p.active),
		Idle:      len(p.idle),
		Max:       p.desc.MaxSessions,
		WaitQueue: len(p.waiters),
	}
}

func (p *Pool) createSession(ctx context.Context) (*Session, error) {
	driver, dsn := p.desc.driverAndDSN()
	if driver == "" {
		return nil, fmt.Errorf("unknown backend kind %q", p.desc.Type)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// Each Session maps 1:1 to a single physical connection; the pool
	// itself is the layer that multiplexes across many, so sql.DB's own
	// pooling would only fight ours.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return newSession(p.nextID.Add(1), p.desc.Type, db, false), nil
}

func (p *Pool) popIdle() *Session {
	for len(p.idle) > 0 {
		n := len(p.idle) - 1
		sess := p.idle[n]
		p.idle = p.idle[:n]

		if p.desc.IdleTime > 0 && sess.idleDuration() > p.desc.IdleTime {
			sess.Close()
			continue
		}
		return sess
	}
	return nil
}

func (p *Pool) removeWaiter(ch chan *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			metrics.SessionQueueLength.WithLabelValues(string(p.desc.Type)).Set(float64(len(p.waiters)))
			break
		}
	}
}

func (p *Pool) updateMetrics() {
	metrics.SessionsActive.WithLabelValues(string(p.desc.Type)).Set(float64(len(p.active)))
	metrics.SessionsIdle.WithLabelValues(string(p.desc.Type)).Set(float64(len(p.idle)))
	metrics.SessionsMax.WithLabelValues(string(p.desc.Type)).Set(float64(p.desc.MaxSessions))
}

func (p *Pool) maintenanceLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.evictStale()
			p.ensureMinSessions()
		}
	}
}

func (p *Pool) evictStale() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.desc.IdleTime == 0 {
		return
	}

	remaining := make([]*Session, 0, len(p.idle))
	evicted := 0
	for _, sess := range p.idle {
		if sess.idleDuration() > p.desc.IdleTime {
			sess.Close()
			evicted++
		} else {
			remaining = append(remaining, sess)
		}
	}
	p.idle = remaining

	if evicted > 0 {
		log.Printf("[sessionpool] backend %s — evicted %d stale sessions", p.desc.Type, evicted)
		p.updateMetrics()
	}
}

func (p *Pool) ensureMinSessions() {
	p.mu.Lock()
	deficit := p.desc.MinSessions - len(p.idle)
	total := len(p.idle) + len(p.active)
	headroom := p.desc.MaxSessions - total
	if deficit > headroom {
		deficit = headroom
	}
	p.mu.Unlock()

	if deficit <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	created := 0
	for i := 0; i < deficit; i++ {
		sess, err := p.createSession(ctx)
		if err != nil {
			log.Printf("[sessionpool] backend %s — failed to create min_sessions session: %v", p.desc.Type, err)
			break
		}
		p.mu.Lock()
		p.idle = append(p.idle, sess)
		p.mu.Unlock()
		created++
	}

	if created > 0 {
		p.mu.Lock()
		p.updateMetrics()
		p.mu.Unlock()
		log.Printf("[sessionpool] backend %s — replenished %d idle sessions", p.desc.Type, created)
	}
}
