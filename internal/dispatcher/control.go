package dispatcher

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/arma-extdb/extdb-core/internal/protocol"
)

const (
	// errAlreadyLocked is the reply to DATABASE and PROTOCOL once the
	// core is locked: an empty reply, so the command is silently ignored.
	errAlreadyLocked = ""
	errNoSuchSection = `[0,"Error Unknown Database Section"]`
	errBadCommand    = `[0,"Error Invalid Command"]`
)

// dispatchControl handles kind 9: the whole input (including the leading
// "9") is tokenized on ':' and the token count selects the command
// shape. Token counts: 2 -> VERSION/LOCK/OUTPUTSIZE, 3 -> DATABASE, 4 ->
// PROTOCOL without an init string, 5 -> PROTOCOL with one.
func (d *Dispatcher) dispatchControl(input string) string {
	tokens := strings.Split(input, ":")

	switch len(tokens) {
	case 2:
		switch strings.ToUpper(tokens[1]) {
		case "VERSION":
			return version
		case "LOCK":
			return d.lock()
		case "OUTPUTSIZE":
			return strconv.Itoa(d.outSize)
		default:
			return errBadCommand
		}
	case 3:
		if !strings.EqualFold(tokens[1], "DATABASE") {
			return errBadCommand
		}
		return d.attachDatabase(tokens[2])
	case 4:
		if !strings.EqualFold(tokens[1], "PROTOCOL") {
			return errBadCommand
		}
		return d.registerProtocol(tokens[2], tokens[3], "")
	case 5:
		if !strings.EqualFold(tokens[1], "PROTOCOL") {
			return errBadCommand
		}
		return d.registerProtocol(tokens[2], tokens[3], tokens[4])
	default:
		return errBadCommand
	}
}

// lock advances the control-plane state machine to its terminal state.
// Locking is idempotent: locking an already-locked core is a no-op
// success, never an error, since the state machine is monotonic.
func (d *Dispatcher) lock() string {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.state = StateLocked
	return "[1]"
}

// attachDatabase builds a session pool from a named config section and
// attaches it as the core's single active backend. Once the core is
// locked, database attachment is rejected — the backend is fixed for
// the life of the process.
func (d *Dispatcher) attachDatabase(section string) string {
	d.stateMu.Lock()
	if d.state == StateLocked {
		d.stateMu.Unlock()
		return errAlreadyLocked
	}
	desc, ok := d.dbConfigs[section]
	d.stateMu.Unlock()
	if !ok {
		return errNoSuchSection
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := newSessionPool(ctx, desc)
	if err != nil {
		// Attachment failures are fatal to the process: a DATABASE
		// command names the one backend every subsequent protocol call
		// depends on, so limping along with no pool serves no one.
		panic("dispatcher: database attach failed for section " + section + ": " + err.Error())
	}

	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.state == StateLocked {
		pool.Close()
		return errAlreadyLocked
	}
	if d.sessions != nil {
		d.sessions.Close()
	}
	d.sessions = pool
	d.dbType = desc.Type
	d.state = StateDBAttached
	return "[1]"
}

// registerProtocol constructs and initializes a named protocol handler.
// Locking also freezes the protocol registry.
func (d *Dispatcher) registerProtocol(kind, name, initStr string) string {
	d.stateMu.Lock()
	locked := d.state == StateLocked
	d.stateMu.Unlock()
	if locked {
		return errAlreadyLocked
	}

	if err := d.reg.Register(d, protocol.Kind(strings.ToUpper(kind)), name, initStr); err != nil {
		return `[0,"Error ` + err.Error() + `"]`
	}
	return "[1]"
}
