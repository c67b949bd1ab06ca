package store

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestCompareAndDeleteConsumesOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if err := s.Set(ctx, "matchmaking/arrays/alice", []byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}

	ok, err := s.CompareAndDelete(ctx, "matchmaking/arrays/alice", []byte(`{"a":1}`))
	if err != nil || !ok {
		t.Fatalf("first delete: ok=%v err=%v", ok, err)
	}

	ok, err = s.CompareAndDelete(ctx, "matchmaking/arrays/alice", []byte(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second delete must lose")
	}
}

func TestCompareAndDeleteRejectsStaleRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	s.Set(ctx, "k", []byte("v1"))
	s.Set(ctx, "k", []byte("v2"))

	ok, err := s.CompareAndDelete(ctx, "k", []byte("v1"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("delete with stale expected value must fail")
	}
}

func TestUpdateReadModifyWrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	err := s.Update(ctx, "counter", func(current []byte) ([]byte, error) {
		if current != nil {
			t.Fatalf("expected absent key, got %q", current)
		}
		return []byte("1"), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.Update(ctx, "counter", func(current []byte) ([]byte, error) {
		if string(current) != "1" {
			t.Fatalf("current = %q", current)
		}
		return nil, ErrUnchanged
	})
	if err != nil {
		t.Fatal(err)
	}

	v, err := s.Get(ctx, "counter")
	if err != nil || string(v) != "1" {
		t.Fatalf("get after aborted update: %q %v", v, err)
	}
}

func TestListImmediateChildrenOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	s.Set(ctx, "matchmaking/arrays/alice", []byte("a"))
	s.Set(ctx, "matchmaking/arrays/bob", []byte("b"))
	s.Set(ctx, "matchmaking/arrays/bob/nested", []byte("x"))
	s.Set(ctx, "matchmaking/graphs/carol", []byte("c"))

	out, err := s.List(ctx, "matchmaking/arrays")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d children, want 2: %v", len(out), out)
	}
	if string(out["alice"]) != "a" || string(out["bob"]) != "b" {
		t.Fatalf("unexpected listing: %v", out)
	}
}

func TestWatchValueDeliversSnapshotThenUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	s.Set(ctx, "k", []byte("first"))

	ch, cancel, err := s.WatchValue(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if got := recv(t, ch); string(got) != "first" {
		t.Fatalf("snapshot = %q", got)
	}

	s.Set(ctx, "k", []byte("second"))
	if got := recv(t, ch); string(got) != "second" {
		t.Fatalf("update = %q", got)
	}

	s.Delete(ctx, "k")
	if got := recv(t, ch); got != nil {
		t.Fatalf("delete should deliver nil, got %q", got)
	}
}

func TestWatchChildrenOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	for i := 0; i < 3; i++ {
		s.PushChild(ctx, "sig/cands", []byte(fmt.Sprintf("c%d", i)))
	}

	ch, cancel, err := s.WatchChildren(ctx, "sig/cands")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	for i := 0; i < 3; i++ {
		if got := recv(t, ch); string(got) != fmt.Sprintf("c%d", i) {
			t.Fatalf("backfill[%d] = %q", i, got)
		}
	}

	for i := 3; i < 6; i++ {
		s.PushChild(ctx, "sig/cands", []byte(fmt.Sprintf("c%d", i)))
	}
	for i := 3; i < 6; i++ {
		if got := recv(t, ch); string(got) != fmt.Sprintf("c%d", i) {
			t.Fatalf("live[%d] = %q", i, got)
		}
	}
}

func TestPresenceCleanupOnClose(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	s.Set(ctx, "matchmaking/arrays/alice", []byte("entry"))
	s.Set(ctx, "status/alice", []byte("waiting"))

	if _, err := s.OnDisconnectDelete(ctx, "matchmaking/arrays/alice"); err != nil {
		t.Fatal(err)
	}
	cancelStatus, err := s.OnDisconnectDelete(ctx, "status/alice")
	if err != nil {
		t.Fatal(err)
	}
	cancelStatus() // revoked registrations must survive the disconnect

	s.Close()

	m := s.(*memoryStore)
	m.mu.Lock()
	_, entryLives := m.values["matchmaking/arrays/alice"]
	_, statusLives := m.values["status/alice"]
	m.mu.Unlock()

	if entryLives {
		t.Error("registered key must be deleted on disconnect")
	}
	if !statusLives {
		t.Error("revoked registration must not delete the key")
	}
}

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for watch delivery")
		return nil
	}
}

func TestDeleteDropsChildren(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	s.Set(ctx, "signaling/sess/alice", []byte(`{"offer":null}`))
	for i := 0; i < 3; i++ {
		s.PushChild(ctx, "signaling/sess/alice", []byte(fmt.Sprintf("c%d", i)))
	}

	if err := s.Delete(ctx, "signaling/sess/alice"); err != nil {
		t.Fatal(err)
	}

	kids, err := s.Children(ctx, "signaling/sess/alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(kids) != 0 {
		t.Fatalf("children survived delete: %v", kids)
	}

	// A watcher registered after the delete must see an empty backlog.
	ch, cancel, err := s.WatchChildren(ctx, "signaling/sess/alice")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()
	select {
	case v := <-ch:
		t.Fatalf("unexpected backfill after delete: %q", v)
	case <-time.After(50 * time.Millisecond):
	}
}
