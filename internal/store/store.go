// Package store abstracts the external key-addressed pub/sub store: a
// hierarchical key space with per-key reads and writes, compare-and-swap
// style transactions, ordered child lists with child-added subscriptions, and
// presence-cleanup registration.
package store

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("key not found")
	// ErrUnchanged aborts an Update without writing.
	ErrUnchanged = errors.New("no change")
	ErrClosed    = errors.New("store client is closed")
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// CompareAndDelete removes key only when its current value equals
	// expected, and reports whether it did. A false return with nil error
	// means another writer got there first.
	CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error)

	// Update runs a transactional read-modify-write on key. fn receives the
	// current value (nil when the key is absent) and returns the
	// replacement. Returning ErrUnchanged aborts without writing.
	Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error

	// List returns the immediate children under prefix as suffix -> value.
	List(ctx context.Context, prefix string) (map[string][]byte, error)

	// PushChild appends value to the ordered child list at key.
	PushChild(ctx context.Context, key string, value []byte) error
	Children(ctx context.Context, key string) ([][]byte, error)

	// WatchValue delivers the current value at key (when present), then
	// every subsequent write. A delete is delivered as nil. cancel detaches
	// the subscription and closes the channel.
	WatchValue(ctx context.Context, key string) (<-chan []byte, func(), error)

	// WatchChildren delivers existing children in append order, then each
	// new child in write order, each exactly once.
	WatchChildren(ctx context.Context, key string) (<-chan []byte, func(), error)

	// OnDisconnectDelete registers key for automatic removal when this
	// client's connection to the store drops. cancel revokes the
	// registration without deleting the key.
	OnDisconnectDelete(ctx context.Context, key string) (func(), error)

	Close() error
}

// TransientError marks store failures the caller may retry at its next
// natural trigger.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermissionError marks authorization failures from the store. These are
// fatal and must not be silently retried.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("store permission denied: %v", e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
