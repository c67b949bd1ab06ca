package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoStopsAtBudget(t *testing.T) {
	s := NewSupervisor(Policy{MaxAttempts: 3, Delay: time.Millisecond})

	calls := 0
	err := s.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})

	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
}

func TestDoSucceedsMidway(t *testing.T) {
	s := NewSupervisor(Policy{MaxAttempts: 5, Delay: time.Millisecond})

	calls := 0
	err := s.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestAllowPersistsAcrossCallers(t *testing.T) {
	s := NewSupervisor(Policy{MaxAttempts: 2})

	if !s.Allow() || !s.Allow() {
		t.Fatal("first two attempts should be allowed")
	}
	if s.Allow() {
		t.Fatal("third attempt should be rejected")
	}

	s.Reset()
	if !s.Allow() {
		t.Fatal("attempt after reset should be allowed")
	}
	if s.Attempts() != 1 {
		t.Fatalf("expected 1 attempt after reset, got %d", s.Attempts())
	}
}

func TestDoHonorsContextCancel(t *testing.T) {
	s := NewSupervisor(Policy{MaxAttempts: 10, Delay: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := s.Do(ctx, func(ctx context.Context) error {
		return errors.New("keep going")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	s := NewSupervisor(Policy{MaxAttempts: 5, Delay: time.Millisecond})

	fatal := errors.New("NOPERM")
	calls := 0
	err := s.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(fatal)
	})

	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
	if !errors.Is(err, fatal) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if errors.Is(err, ErrBudgetExhausted) {
		t.Fatal("permanent error must not be reported as exhaustion")
	}
}
