package repository

import (
	"context"
	"testing"
	"time"

	"github.com/Mayankdaya/CodeClash-sub000/internal/models"
	"github.com/Mayankdaya/CodeClash-sub000/internal/store"
	"github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
)

func recvSession(t *testing.T, ch <-chan *models.Session) *models.Session {
	t.Helper()
	select {
	case ss := <-ch:
		return ss
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a session update")
		return nil
	}
}

func TestWatchSessionDeliversStatusTransitions(t *testing.T) {
	ctx := context.Background()
	l := logger.InitializeTestZapLogger()
	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })

	repo := NewSessionRepository(st, l)

	ss := &models.Session{
		ID:      "sess-1",
		TopicID: "arrays",
		Participants: [2]models.Participant{
			{UserID: "alice"},
			{UserID: "bob"},
		},
		Status: models.SessionStatusActive,
	}
	if err := repo.Create(ctx, ss); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updates, cancel, err := repo.WatchSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("WatchSession: %v", err)
	}
	defer cancel()

	if got := recvSession(t, updates); got == nil || got.Status != models.SessionStatusActive {
		t.Fatalf("snapshot = %+v, want active session", got)
	}

	if _, err := repo.Mutate(ctx, "sess-1", func(ss *models.Session) error {
		ss.Status = models.SessionStatusFinished
		return nil
	}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	if got := recvSession(t, updates); got == nil || got.Status != models.SessionStatusFinished {
		t.Fatalf("update = %+v, want finished session", got)
	}

	if err := repo.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := recvSession(t, updates); got != nil {
		t.Fatalf("delete should deliver nil, got %+v", got)
	}
}
