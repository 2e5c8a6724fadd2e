package sessionpool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestDescriptor(t *testing.T) *Descriptor {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sqlite"), 0o755); err != nil {
		t.Fatalf("mkdir sqlite dir: %v", err)
	}
	t.Chdir(dir)

	return &Descriptor{
		Type:           SQLite,
		Name:           "pool_test.db",
		MinSessions:    1,
		MaxSessions:    2,
		AcquireTimeout: 100 * time.Millisecond,
	}
}

func TestPoolAcquireReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, newTestDescriptor(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	sess, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if sess.IsOffPool() {
		t.Fatal("first acquire under max_sessions must not be off-pool")
	}
	p.Release(sess)

	stats := p.Stats()
	if stats.Active != 0 {
		t.Fatalf("Active = %d, want 0 after release", stats.Active)
	}
}

func TestPoolExhaustionFallsBackOffPool(t *testing.T) {
	ctx := context.Background()
	desc := newTestDescriptor(t)
	desc.MinSessions = 0
	desc.MaxSessions = 1
	desc.AcquireTimeout = 50 * time.Millisecond

	p, err := New(ctx, desc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	held, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire (held): %v", err)
	}
	defer p.Release(held)

	overflow, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire (overflow): %v", err)
	}
	if !overflow.IsOffPool() {
		t.Fatal("expected an off-pool session when the pool is exhausted")
	}
	p.Release(overflow)
}

func TestPoolCloseWakesWaiters(t *testing.T) {
	ctx := context.Background()
	desc := newTestDescriptor(t)
	desc.MinSessions = 0
	desc.MaxSessions = 1
	desc.AcquireTimeout = 5 * time.Second

	p, err := New(ctx, desc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	held, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	waitErrCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		waitErrCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	p.Close()
	held.Close()

	select {
	case err := <-waitErrCh:
		if err == nil {
			t.Fatal("expected an error once the pool closes while a waiter is queued")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken after Close")
	}
}
