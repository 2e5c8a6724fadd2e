// Package host exposes the single re-entrant entry point the trusted
// host process calls into: one Call per request, backed by the
// dispatcher, protocol registry, session pool, and worker pool wired
// together from configuration.
package host

import (
	"github.com/arma-extdb/extdb-core/internal/config"
	"github.com/arma-extdb/extdb-core/internal/dispatcher"
	"github.com/arma-extdb/extdb-core/internal/sessionpool"
)

// Core is the process-wide object a host process builds once at
// startup and calls repeatedly, once per incoming request.
type Core struct {
	d *dispatcher.Dispatcher
}

// New builds a Core from a loaded configuration.
func New(cfg *config.Config) *Core {
	databases := make(map[string]*sessionpool.Descriptor, len(cfg.Databases))
	for name, db := range cfg.Databases {
		databases[name] = db
	}

	return &Core{
		d: dispatcher.New(dispatcher.Config{
			OutSize:        cfg.Core.OutputSize,
			Workers:        cfg.Core.Workers,
			MaxOutstanding: cfg.Core.MaxOutstanding,
			Databases:      databases,
		}),
	}
}

// Call decodes and executes a single host command, returning the full
// reply envelope. It is safe to call concurrently from many goroutines
// — the host process is expected to do exactly that, one call per
// client request.
func (c *Core) Call(input string) string {
	return c.d.Dispatch(input)
}

// Close performs an ordered shutdown: stop accepting new work, drain
// the worker pool, then close the attached session pool.
func (c *Core) Close() {
	c.d.Close()
}
