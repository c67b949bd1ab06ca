package store

import (
	"bytes"
	"context"
	"strings"
	"sync"
)

// memoryStore is a process-local Store used by tests and the two-peer
// simulation script. Watch channels are buffered; a subscriber that falls 64
// notifications behind starts losing them, which mirrors the at-most-once
// delivery of a flaky relay.
type memoryStore struct {
	mu        sync.Mutex
	values    map[string][]byte
	children  map[string][][]byte
	valueSubs map[string]map[int]chan []byte
	childSubs map[string]map[int]chan []byte
	nextSub   int
	cleanup   map[string]struct{}
	closed    bool
}

const watchBuffer = 64

func NewMemory() Store {
	return &memoryStore{
		values:    make(map[string][]byte),
		children:  make(map[string][][]byte),
		valueSubs: make(map[string]map[int]chan []byte),
		childSubs: make(map[string]map[int]chan []byte),
		cleanup:   make(map[string]struct{}),
	}
}

func (m *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *memoryStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.setLocked(key, bytes.Clone(value))
	return nil
}

func (m *memoryStore) setLocked(key string, value []byte) {
	m.values[key] = value
	m.notifyValueLocked(key, value)
}

func (m *memoryStore) deleteLocked(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	m.notifyValueLocked(key, nil)
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.deleteLocked(key)
	delete(m.children, key)
	return nil
}

func (m *memoryStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}

	current, ok := m.values[key]
	if !ok || !bytes.Equal(current, expected) {
		return false, nil
	}

	m.deleteLocked(key)
	return true, nil
}

func (m *memoryStore) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	var current []byte
	if v, ok := m.values[key]; ok {
		current = bytes.Clone(v)
	}

	next, err := fn(current)
	if err == ErrUnchanged {
		return nil
	}
	if err != nil {
		return err
	}

	m.setLocked(key, bytes.Clone(next))
	return nil
}

func (m *memoryStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	out := make(map[string][]byte)
	p := prefix + "/"
	for k, v := range m.values {
		if !strings.HasPrefix(k, p) {
			continue
		}
		suffix := k[len(p):]
		if strings.Contains(suffix, "/") {
			continue
		}
		out[suffix] = bytes.Clone(v)
	}
	return out, nil
}

func (m *memoryStore) PushChild(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	v := bytes.Clone(value)
	m.children[key] = append(m.children[key], v)
	for _, ch := range m.childSubs[key] {
		select {
		case ch <- bytes.Clone(v):
		default:
		}
	}
	return nil
}

func (m *memoryStore) Children(ctx context.Context, key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	out := make([][]byte, 0, len(m.children[key]))
	for _, v := range m.children[key] {
		out = append(out, bytes.Clone(v))
	}
	return out, nil
}

func (m *memoryStore) WatchValue(ctx context.Context, key string) (<-chan []byte, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, ErrClosed
	}

	ch := make(chan []byte, watchBuffer)
	if v, ok := m.values[key]; ok {
		ch <- bytes.Clone(v)
	}

	id := m.nextSub
	m.nextSub++
	if m.valueSubs[key] == nil {
		m.valueSubs[key] = make(map[int]chan []byte)
	}
	m.valueSubs[key][id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if subs, ok := m.valueSubs[key]; ok {
			if _, live := subs[id]; live {
				delete(subs, id)
				close(ch)
			}
		}
	}
	return ch, cancel, nil
}

func (m *memoryStore) WatchChildren(ctx context.Context, key string) (<-chan []byte, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, ErrClosed
	}

	ch := make(chan []byte, watchBuffer)
	for _, v := range m.children[key] {
		select {
		case ch <- bytes.Clone(v):
		default:
		}
	}

	id := m.nextSub
	m.nextSub++
	if m.childSubs[key] == nil {
		m.childSubs[key] = make(map[int]chan []byte)
	}
	m.childSubs[key][id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if subs, ok := m.childSubs[key]; ok {
			if _, live := subs[id]; live {
				delete(subs, id)
				close(ch)
			}
		}
	}
	return ch, cancel, nil
}

func (m *memoryStore) OnDisconnectDelete(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	m.cleanup[key] = struct{}{}

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.cleanup, key)
	}
	return cancel, nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	for key := range m.cleanup {
		m.deleteLocked(key)
	}
	m.cleanup = make(map[string]struct{})
	m.closed = true
	return nil
}

func (m *memoryStore) notifyValueLocked(key string, value []byte) {
	for _, ch := range m.valueSubs[key] {
		var v []byte
		if value != nil {
			v = bytes.Clone(value)
		}
		select {
		case ch <- v:
		default:
		}
	}
}
