// Package dispatcher implements the text-ABI parser/router: the single
// entry per host call, the SYNC/ASYNC/POLL/CONTROL command kinds, SYNC
// response chunking, and the control-plane state machine. It is the
// component the host ABI surface (internal/host) calls into.
package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/arma-extdb/extdb-core/internal/idalloc"
	"github.com/arma-extdb/extdb-core/internal/metrics"
	"github.com/arma-extdb/extdb-core/internal/protocol"
	"github.com/arma-extdb/extdb-core/internal/resultstore"
	"github.com/arma-extdb/extdb-core/internal/sessionpool"
	"github.com/arma-extdb/extdb-core/internal/workerpool"
)

const version = "17"

const (
	errInvalidMessage  = `[0,"Error Invalid Message"]`
	errInvalidFormat   = `[0,"Error Invalid Format"]`
	errUnknownProtocol = `[0,"Error Unknown Protocol"]`
	errBusy            = `[0,"Error Busy"]`
)

// ControlState is the control-plane state machine: OPEN -> DB_ATTACHED
// -> LOCKED, monotonic and terminal at LOCKED.
type ControlState int

const (
	StateOpen ControlState = iota
	StateDBAttached
	StateLocked
)

// Dispatcher wires together the id allocator, result store, protocol
// registry, worker pool, and session pool into the request multiplexer
// described by the host ABI. It implements protocol.Core so handlers can
// reach the attached session pool.
type Dispatcher struct {
	outSize        int
	maxOutstanding int64

	ids     *idalloc.Allocator
	results *resultstore.Store
	reg     *protocol.Registry
	pool    *workerpool.Pool

	dbConfigs map[string]*sessionpool.Descriptor

	// stateMu guards the control-plane state machine and the attached
	// session pool — both are control-plane mutations and share the
	// same terminal-lock check.
	stateMu  sync.Mutex
	state    ControlState
	sessions *sessionpool.Pool
	dbType   sessionpool.Kind

	// reservationMu is the single lock covering "protocol exists" +
	// "reserve id", so an id is never exposed to the host for a protocol
	// that turns out not to exist.
	reservationMu sync.Mutex
}

// Config carries the construction-time parameters the control plane and
// worker pool need.
type Config struct {
	OutSize        int
	Workers        int
	MaxOutstanding int64 // 0 disables the admission-control cap
	Databases      map[string]*sessionpool.Descriptor
}

// New builds a Dispatcher with its own worker pool, ready to accept
// control and data commands.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		outSize:        cfg.OutSize,
		maxOutstanding: cfg.MaxOutstanding,
		ids:            idalloc.New(),
		results:        resultstore.New(),
		reg:            protocol.NewRegistry(),
		pool:           workerpool.New(cfg.Workers),
		dbConfigs:      cfg.Databases,
	}
}

// Sessions implements protocol.Core.
func (d *Dispatcher) Sessions() *sessionpool.Pool {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.sessions
}

// DBType implements protocol.Core.
func (d *Dispatcher) DBType() sessionpool.Kind {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.dbType
}

// Dispatch decodes a single host command and returns the full reply
// envelope. It never blocks beyond control handling, inline SYNC
// execution, and result-store polling.
func (d *Dispatcher) Dispatch(input string) string {
	if len(input) <= 2 {
		metrics.DispatcherRequestsTotal.WithLabelValues("invalid", "error").Inc()
		return errInvalidMessage
	}

	kind := input[0]
	rest := input[2:]

	switch kind {
	case '0':
		return d.dispatchSync(rest)
	case '1':
		return d.dispatchFireAndForget(rest)
	case '2':
		return d.dispatchAsyncWithResult(rest)
	case '5':
		return d.dispatchPoll(rest)
	case '9':
		return d.dispatchControl(input)
	default:
		metrics.DispatcherRequestsTotal.WithLabelValues("invalid", "error").Inc()
		return errInvalidMessage
	}
}

// splitProtocolPayload splits "PROTOCOL:PAYLOAD" on the first colon.
func splitProtocolPayload(s string) (proto, payload string, ok bool) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// buildEnvelope wraps a handler's raw payload (or its error) into the
// envelope stored for polling: no space after the comma, matching
// saveResult_mutexlock's "[1," + result + "]". An empty successful
// payload becomes "[1]" instead of "[1,]".
func buildEnvelope(payload string, err error) string {
	if err != nil {
		return fmt.Sprintf(`[0,"Error %s Exception"]`, protocol.ErrorKind(err))
	}
	if payload == "" {
		return "[1]"
	}
	return "[1," + payload + "]"
}

// buildInlineEnvelope wraps a handler's raw payload (or its error) into
// the envelope returned directly for a SYNC reply that fits inline: a
// space after the comma, matching the inline success case's
// "[1, " + result + "]" — distinct from the no-space form stored for
// polling.
func buildInlineEnvelope(payload string, err error) string {
	if err != nil {
		return fmt.Sprintf(`[0,"Error %s Exception"]`, protocol.ErrorKind(err))
	}
	if payload == "" {
		return "[1]"
	}
	return "[1, " + payload + "]"
}

func (d *Dispatcher) dispatchSync(rest string) string {
	proto, payload, ok := splitProtocolPayload(rest)
	if !ok {
		metrics.DispatcherRequestsTotal.WithLabelValues("sync", "error").Inc()
		return errInvalidFormat
	}

	h, found := d.reg.Lookup(proto)
	if !found {
		metrics.DispatcherRequestsTotal.WithLabelValues("sync", "error").Inc()
		return errUnknownProtocol
	}

	result, callErr := h.Call(d, payload)
	stored := buildEnvelope(result, callErr)

	room := d.outSize - 9
	if room < 0 {
		room = 0
	}
	if len(stored) <= room {
		metrics.DispatcherRequestsTotal.WithLabelValues("sync", "ok").Inc()
		return buildInlineEnvelope(result, callErr)
	}

	id := d.ids.Allocate()
	d.results.Reserve(id)
	d.results.Deliver(id, stored)
	metrics.DispatcherRequestsTotal.WithLabelValues("sync", "buffered").Inc()
	return fmt.Sprintf(`[2,"%d"]`, id)
}

func (d *Dispatcher) dispatchFireAndForget(rest string) string {
	proto, payload, ok := splitProtocolPayload(rest)
	if !ok {
		metrics.DispatcherRequestsTotal.WithLabelValues("async_oneway", "error").Inc()
		return errInvalidFormat
	}

	h, found := d.reg.Lookup(proto)
	if !found {
		metrics.DispatcherRequestsTotal.WithLabelValues("async_oneway", "error").Inc()
		return errUnknownProtocol
	}

	d.pool.Submit(func() {
		h.Call(d, payload)
	})
	metrics.DispatcherRequestsTotal.WithLabelValues("async_oneway", "ok").Inc()
	return "[1]"
}

func (d *Dispatcher) dispatchAsyncWithResult(rest string) string {
	proto, payload, ok := splitProtocolPayload(rest)
	if !ok {
		metrics.DispatcherRequestsTotal.WithLabelValues("async_result", "error").Inc()
		return errInvalidFormat
	}

	if d.maxOutstanding > 0 && d.pool.Outstanding() >= d.maxOutstanding {
		metrics.DispatcherBusyRejections.Inc()
		metrics.DispatcherRequestsTotal.WithLabelValues("async_result", "busy").Inc()
		return errBusy
	}

	// The existence check and the id reservation happen under the same
	// lock: an id must never be exposed to the host for a protocol that
	// isn't registered.
	d.reservationMu.Lock()
	h, found := d.reg.Lookup(proto)
	if !found {
		d.reservationMu.Unlock()
		metrics.DispatcherRequestsTotal.WithLabelValues("async_result", "error").Inc()
		return errUnknownProtocol
	}
	id := d.ids.Allocate()
	d.results.Reserve(id)
	d.reservationMu.Unlock()

	d.pool.IncOutstanding()
	d.pool.Submit(func() {
		defer d.pool.DecOutstanding()
		result, callErr := h.Call(d, payload)
		d.results.Deliver(id, buildEnvelope(result, callErr))
	})

	metrics.DispatcherRequestsTotal.WithLabelValues("async_result", "ok").Inc()
	return fmt.Sprintf(`[2,"%d"]`, id)
}

func (d *Dispatcher) dispatchPoll(rest string) string {
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		metrics.DispatcherRequestsTotal.WithLabelValues("poll", "error").Inc()
		return errInvalidFormat
	}

	room := d.outSize - 1
	if room < 0 {
		room = 0
	}
	chunk, status := d.results.Poll(id, room)

	switch status {
	case resultstore.Chunk:
		metrics.DispatcherRequestsTotal.WithLabelValues("poll", "chunk").Inc()
		return chunk
	case resultstore.InFlight:
		metrics.DispatcherRequestsTotal.WithLabelValues("poll", "inflight").Inc()
		return "[3]"
	case resultstore.Done:
		d.ids.Free(id)
		metrics.DispatcherRequestsTotal.WithLabelValues("poll", "done").Inc()
		return ""
	default: // resultstore.Unknown
		metrics.DispatcherRequestsTotal.WithLabelValues("poll", "unknown").Inc()
		return ""
	}
}

// Close performs the cooperative shutdown order: stop the pool, drain
// the queue, join workers, clear the registry, close the session pool.
func (d *Dispatcher) Close() {
	d.pool.Shutdown()
	d.reg = protocol.NewRegistry()

	d.stateMu.Lock()
	sessions := d.sessions
	d.sessions = nil
	d.stateMu.Unlock()

	if sessions != nil {
		sessions.Close()
	}
}

// newSessionPool is a small helper used by the control plane to build
// a session pool from a named config section.
func newSessionPool(ctx context.Context, desc *sessionpool.Descriptor) (*sessionpool.Pool, error) {
	return sessionpool.New(ctx, desc)
}
