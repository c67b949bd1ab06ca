// Package retry implements the bounded-attempt supervision policy shared by
// the peer-connection manager and the match coordinator.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrBudgetExhausted = errors.New("retry budget exhausted")

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do returns it immediately instead of consuming the
// remaining attempts. Authorization failures are the typical case.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Supervisor tracks attempts against a Policy. The counter persists across
// callers until Reset, so manual retries cannot bypass the budget.
type Supervisor struct {
	policy   Policy
	attempts int
}

func NewSupervisor(policy Policy) *Supervisor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Supervisor{policy: policy}
}

// Allow reports whether another attempt fits within the budget and, if so,
// records it.
func (s *Supervisor) Allow() bool {
	if s.attempts >= s.policy.MaxAttempts {
		return false
	}
	s.attempts++
	return true
}

func (s *Supervisor) Attempts() int {
	return s.attempts
}

func (s *Supervisor) Reset() {
	s.attempts = 0
}

// Do runs op until it succeeds or the budget is exhausted, sleeping the fixed
// delay between attempts. The supervisor's counter is consumed, not reset, so
// a shared Supervisor spreads its budget across Do calls.
func (s *Supervisor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for s.Allow() {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = op(ctx)
		if last == nil {
			return nil
		}

		var pe *permanentError
		if errors.As(last, &pe) {
			return pe.err
		}

		if s.attempts >= s.policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.policy.Delay):
		}
	}

	if last != nil {
		return fmt.Errorf("%w after %d attempts: %v", ErrBudgetExhausted, s.attempts, last)
	}
	return ErrBudgetExhausted
}
