// Package protocol implements the pluggable protocol handler registry
// and the handler kinds shipped with the core: raw SQL execution, stored
// procedure calls, an append-only log sink, and a Redis pub/sub
// publisher standing in for "external RPC" work.
package protocol

import (
	"fmt"
	"sync"

	"github.com/arma-extdb/extdb-core/internal/sessionpool"
)

// Core is the back-reference handlers receive on Init and Call, giving
// them access to the session pool and backend type without depending on
// the host package directly (which would create an import cycle: host
// builds the registry, handlers need the host's resources).
type Core interface {
	Sessions() *sessionpool.Pool
	DBType() sessionpool.Kind
}

// Handler is a protocol handler: Init configures it once at registration
// time (returning false aborts the registration), Call executes a single
// request payload and returns the raw result payload (not yet wrapped in
// a "[1,...]"/"[0,...]" envelope — the dispatcher does that).
type Handler interface {
	Init(core Core, initStr string) bool
	Call(core Core, input string) (result string, err error)
}

// Kind names a handler family constructible by Registry.Register.
type Kind string

const (
	KindRawSQL    Kind = "RAWSQL"
	KindProcedure Kind = "PROCEDURE"
	KindLog       Kind = "LOG"
	KindPubSub    Kind = "PUBSUB"
	KindEcho      Kind = "ECHO"
)

// Registry holds named, initialized protocol handlers. Many workers read
// it concurrently; writes only happen from CONTROL:PROTOCOL commands.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register constructs a handler of kind, initializes it with initStr,
// and binds it to name. Re-registering an existing name is rejected
// (Open Question (b): this spec chooses "reject"). If Init returns
// false, the registration is rolled back and nothing is bound.
func (r *Registry) Register(core Core, kind Kind, name, initStr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("protocol: name %q already registered", name)
	}

	h, err := construct(kind)
	if err != nil {
		return err
	}

	if !h.Init(core, initStr) {
		return fmt.Errorf("protocol: %s handler %q failed to initialize", kind, name)
	}

	r.handlers[name] = h
	return nil
}

// Lookup returns the handler bound to name, if any.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

func construct(kind Kind) (Handler, error) {
	switch kind {
	case KindRawSQL:
		return &RawSQL{}, nil
	case KindProcedure:
		return &Procedure{}, nil
	case KindLog:
		return &LogSink{}, nil
	case KindPubSub:
		return &PubSub{}, nil
	case KindEcho:
		return &Echo{}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown protocol kind %q", kind)
	}
}
