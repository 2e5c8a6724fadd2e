package protocol

import (
	"testing"

	"github.com/arma-extdb/extdb-core/internal/sessionpool"
)

type fakeCore struct{}

func (fakeCore) Sessions() *sessionpool.Pool { return nil }
func (fakeCore) DBType() sessionpool.Kind    { return sessionpool.SQLite }

func TestRegisterRejectsDuplicateName(t *testing.T) {
	t.Chdir(t.TempDir())
	r := NewRegistry()
	core := fakeCore{}

	if err := r.Register(core, KindLog, "mylog", ""); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(core, KindLog, "mylog", ""); err == nil {
		t.Fatal("expected re-registering an existing name to be rejected")
	}
}

func TestRegisterUnknownKind(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(fakeCore{}, Kind("NOPE"), "x", ""); err == nil {
		t.Fatal("expected unknown kind to error")
	}
	if _, ok := r.Lookup("x"); ok {
		t.Fatal("a failed registration must not bind the name")
	}
}

func TestRawSQLInitAcceptsSQLiteBackend(t *testing.T) {
	h := &RawSQL{}
	core := fakeCore{}
	if !h.Init(core, "") {
		t.Fatal("RawSQL should init against a SQLite-backed core")
	}
}

func TestRawSQLAddQuotesCaseInsensitive(t *testing.T) {
	h := &RawSQL{}
	core := fakeCore{}
	h.Init(core, "add_quotes")
	if !h.stringDataTypeCheck {
		t.Fatal("ADD_QUOTES flag must be recognized case-insensitively")
	}
}

func TestLookupMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("nope"); ok {
		t.Fatal("expected lookup of unregistered name to fail")
	}
}
