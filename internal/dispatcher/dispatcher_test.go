package dispatcher

import (
	"strings"
	"testing"
	"time"

	"github.com/arma-extdb/extdb-core/internal/protocol"
	"github.com/arma-extdb/extdb-core/internal/sessionpool"
)

func newTestDispatcher(t *testing.T, outSize int) *Dispatcher {
	t.Helper()
	d := New(Config{OutSize: outSize, Workers: 2})
	t.Cleanup(d.Close)
	return d
}

func registerEcho(t *testing.T, d *Dispatcher, name string) {
	t.Helper()
	if err := d.reg.Register(d, protocol.KindEcho, name, ""); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
}

func TestDispatchVersion(t *testing.T) {
	d := newTestDispatcher(t, 80)
	got := d.Dispatch("9:VERSION")
	if got != version {
		t.Fatalf("VERSION = %q, want %q", got, version)
	}
}

func TestDispatchInvalidPrefix(t *testing.T) {
	d := newTestDispatcher(t, 80)
	got := d.Dispatch("7:FOO:bar")
	if got != errInvalidMessage {
		t.Fatalf("got %q, want %q", got, errInvalidMessage)
	}
}

func TestDispatchShortInputIsInvalid(t *testing.T) {
	d := newTestDispatcher(t, 80)
	got := d.Dispatch("0:")
	if got != errInvalidMessage {
		t.Fatalf("got %q, want %q", got, errInvalidMessage)
	}
}

func TestAsyncWithResultUnknownProtocolNeverExposesID(t *testing.T) {
	d := newTestDispatcher(t, 80)
	got := d.Dispatch("2:nope:hello")
	if got != errUnknownProtocol {
		t.Fatalf("got %q, want %q", got, errUnknownProtocol)
	}
	// No id was ever handed out, so polling id 0 must report unknown, not
	// in-flight or a delivered chunk.
	poll := d.Dispatch("5:0")
	if poll != "" {
		t.Fatalf("poll on never-allocated id = %q, want empty", poll)
	}
}

func TestAsyncWithResultSmallPayloadPollsOnce(t *testing.T) {
	d := newTestDispatcher(t, 80)
	registerEcho(t, d, "echo")

	reply := d.Dispatch("2:echo:hi")
	if reply != `[2,"0"]` {
		t.Fatalf("reply = %q, want [2,\"0\"]", reply)
	}

	deadline := time.Now().Add(time.Second)
	var chunk string
	for time.Now().Before(deadline) {
		chunk = d.Dispatch("5:0")
		if chunk != "[3]" {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if chunk != "[1,hi]" {
		t.Fatalf("first poll = %q, want [1,hi]", chunk)
	}

	final := d.Dispatch("5:0")
	if final != "" {
		t.Fatalf("second poll = %q, want empty", final)
	}
}

func TestSyncSmallResultInlineHasSpaceAfterComma(t *testing.T) {
	d := newTestDispatcher(t, 80)
	registerEcho(t, d, "echo")

	reply := d.Dispatch("0:echo:hi")
	if reply != "[1, hi]" {
		t.Fatalf("reply = %q, want %q", reply, "[1, hi]")
	}
}

func TestSyncOversizeResultChunksAcrossPolls(t *testing.T) {
	d := newTestDispatcher(t, 80)
	registerEcho(t, d, "big")
	payload := strings.Repeat("X", 200)

	reply := d.Dispatch("0:big:" + payload)
	if reply != `[2,"0"]` {
		t.Fatalf("reply = %q, want [2,\"0\"]", reply)
	}

	var got strings.Builder
	for {
		chunk := d.Dispatch("5:0")
		if chunk == "" {
			break
		}
		got.WriteString(chunk)
	}

	want := "[1," + payload + "]"
	if got.String() != want {
		t.Fatalf("reassembled = %q (len %d), want len %d", got.String()[:min(40, got.Len())], got.Len(), len(want))
	}
}

func TestControlLockThenProtocolRegistrationRejected(t *testing.T) {
	d := newTestDispatcher(t, 80)

	locked := d.Dispatch("9:LOCK")
	if locked != "[1]" {
		t.Fatalf("LOCK = %q, want [1]", locked)
	}

	reg := d.Dispatch("9:PROTOCOL:LOG:another")
	if reg != errAlreadyLocked {
		t.Fatalf("PROTOCOL after LOCK = %q, want %q", reg, errAlreadyLocked)
	}

	if _, ok := d.reg.Lookup("another"); ok {
		t.Fatalf("protocol %q should not have been registered", "another")
	}
}

func TestControlOutputSize(t *testing.T) {
	d := newTestDispatcher(t, 80)
	got := d.Dispatch("9:OUTPUTSIZE")
	if got != "80" {
		t.Fatalf("OUTPUTSIZE = %q, want %q", got, "80")
	}
}

func TestControlDatabaseUnknownSection(t *testing.T) {
	d := New(Config{OutSize: 80, Workers: 1, Databases: map[string]*sessionpool.Descriptor{}})
	defer d.Close()
	got := d.Dispatch("9:DATABASE:main")
	if got != errNoSuchSection {
		t.Fatalf("DATABASE unknown section = %q, want %q", got, errNoSuchSection)
	}
}
