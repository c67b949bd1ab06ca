package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Mayankdaya/CodeClash-sub000/pkg/logger"
)

// redisStore implements Store on a Redis keyspace. Values live under one key
// per path, child lists are Redis lists, and watches ride on pub/sub
// channels that every writer publishes to. Presence-cleanup is a TTL
// heartbeat: registered keys expire shortly after the client stops
// refreshing them.
type redisStore struct {
	cli         *redis.Client
	l           logger.Logger
	presenceTTL time.Duration

	mu      sync.Mutex
	cleanup map[string]struct{}
	closed  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

const maxTxRetries = 5

// Messages on value channels carry a one-byte kind prefix so a deletion can
// be told apart from an empty value.
const (
	msgValue  = 'V'
	msgDelete = 'D'
	msgChild  = 'C'
)

func NewRedis(cli *redis.Client, presenceTTL time.Duration, l logger.Logger) Store {
	s := &redisStore{
		cli:         cli,
		l:           l,
		presenceTTL: presenceTTL,
		cleanup:     make(map[string]struct{}),
		stopCh:      make(chan struct{}),
	}

	s.wg.Add(1)
	go s.heartbeatLoop()

	return s
}

func (s *redisStore) valueKey(key string) string   { return "cc:v:" + key }
func (s *redisStore) childKey(key string) string   { return "cc:c:" + key }
func (s *redisStore) valueChan(key string) string  { return "cc:vch:" + key }
func (s *redisStore) childChan(key string) string  { return "cc:cch:" + key }

// classify sorts go-redis errors into the two store error classes:
// authorization failures are fatal, everything else is retryable at the
// next trigger.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "NOPERM") || strings.Contains(msg, "NOAUTH") || strings.Contains(msg, "WRONGPASS") {
		return &PermissionError{Err: err}
	}
	return &TransientError{Err: err}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.cli.Get(ctx, s.valueKey(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		s.l.Errorf(ctx, "store.redisStore.Get: %v", err)
		return nil, classify(err)
	}
	return v, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte) error {
	pipe := s.cli.Pipeline()
	pipe.Set(ctx, s.valueKey(key), value, 0)
	pipe.Publish(ctx, s.valueChan(key), append([]byte{msgValue}, value...))

	if _, err := pipe.Exec(ctx); err != nil {
		s.l.Errorf(ctx, "store.redisStore.Set: %v", err)
		return classify(err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	pipe := s.cli.Pipeline()
	pipe.Del(ctx, s.valueKey(key))
	pipe.Del(ctx, s.childKey(key))
	pipe.Publish(ctx, s.valueChan(key), []byte{msgDelete})

	if _, err := pipe.Exec(ctx); err != nil {
		s.l.Errorf(ctx, "store.redisStore.Delete: %v", err)
		return classify(err)
	}
	return nil
}

// compareAndDeleteScript deletes the key only when its value still matches,
// publishing the tombstone in the same atomic step.
var compareAndDeleteScript = redis.NewScript(`
	local cur = redis.call('GET', KEYS[1])
	if cur == ARGV[1] then
		redis.call('DEL', KEYS[1])
		redis.call('PUBLISH', KEYS[2], ARGV[2])
		return 1
	end
	return 0
`)

func (s *redisStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	res, err := compareAndDeleteScript.Run(ctx, s.cli,
		[]string{s.valueKey(key), s.valueChan(key)},
		expected, string([]byte{msgDelete}),
	).Int()
	if err != nil {
		s.l.Errorf(ctx, "store.redisStore.CompareAndDelete: %v", err)
		return false, classify(err)
	}
	return res == 1, nil
}

func (s *redisStore) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	vk := s.valueKey(key)

	for i := 0; i < maxTxRetries; i++ {
		var fnErr error
		err := s.cli.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, vk).Bytes()
			if err == redis.Nil {
				current = nil
			} else if err != nil {
				return err
			}

			next, err := fn(current)
			if err != nil {
				fnErr = err
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, vk, next, 0)
				pipe.Publish(ctx, s.valueChan(key), append([]byte{msgValue}, next...))
				return nil
			})
			return err
		}, vk)

		switch {
		case err == nil:
			return nil
		case err == ErrUnchanged:
			return nil
		case err == redis.TxFailedErr:
			continue
		case fnErr != nil && errors.Is(err, fnErr):
			return err
		default:
			s.l.Errorf(ctx, "store.redisStore.Update: %v", err)
			return classify(err)
		}
	}

	return &TransientError{Err: redis.TxFailedErr}
}

func (s *redisStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	pattern := s.valueKey(prefix) + "/*"

	out := make(map[string][]byte)
	iter := s.cli.Scan(ctx, 0, pattern, 256).Iterator()
	base := s.valueKey(prefix) + "/"

	var keys []string
	for iter.Next(ctx) {
		k := iter.Val()
		suffix := strings.TrimPrefix(k, base)
		if strings.Contains(suffix, "/") {
			continue
		}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		s.l.Errorf(ctx, "store.redisStore.List: %v", err)
		return nil, classify(err)
	}

	if len(keys) == 0 {
		return out, nil
	}

	vals, err := s.cli.MGet(ctx, keys...).Result()
	if err != nil {
		s.l.Errorf(ctx, "store.redisStore.List: %v", err)
		return nil, classify(err)
	}

	for i, k := range keys {
		str, ok := vals[i].(string)
		if !ok {
			continue // expired between scan and fetch
		}
		out[strings.TrimPrefix(k, base)] = []byte(str)
	}
	return out, nil
}

// childEnvelope gives every pushed child a store-assigned id so a watcher
// can merge the backfill with live pub/sub traffic exactly once.
type childEnvelope struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"v"`
}

func (s *redisStore) PushChild(ctx context.Context, key string, value []byte) error {
	env, err := json.Marshal(childEnvelope{ID: uuid.NewString(), Value: value})
	if err != nil {
		return err
	}

	pipe := s.cli.Pipeline()
	pipe.RPush(ctx, s.childKey(key), env)
	pipe.Publish(ctx, s.childChan(key), append([]byte{msgChild}, env...))

	if _, err := pipe.Exec(ctx); err != nil {
		s.l.Errorf(ctx, "store.redisStore.PushChild: %v", err)
		return classify(err)
	}
	return nil
}

func (s *redisStore) Children(ctx context.Context, key string) ([][]byte, error) {
	raw, err := s.cli.LRange(ctx, s.childKey(key), 0, -1).Result()
	if err != nil {
		s.l.Errorf(ctx, "store.redisStore.Children: %v", err)
		return nil, classify(err)
	}

	out := make([][]byte, 0, len(raw))
	for _, r := range raw {
		var env childEnvelope
		if err := json.Unmarshal([]byte(r), &env); err != nil {
			continue
		}
		out = append(out, env.Value)
	}
	return out, nil
}

func (s *redisStore) WatchValue(ctx context.Context, key string) (<-chan []byte, func(), error) {
	ps := s.cli.Subscribe(ctx, s.valueChan(key))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, classify(err)
	}

	out := make(chan []byte, watchBuffer)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			ps.Close()
		})
	}

	go func() {
		defer close(out)

		// Snapshot after subscribing so no write is missed; a duplicate of
		// the snapshot may follow via pub/sub, which value consumers treat
		// idempotently.
		if v, err := s.Get(ctx, key); err == nil {
			select {
			case out <- v:
			case <-stop:
				return
			}
		}

		msgs := ps.Channel()
		for {
			select {
			case <-stop:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				payload := []byte(msg.Payload)
				if len(payload) == 0 {
					continue
				}
				switch payload[0] {
				case msgDelete:
					select {
					case out <- nil:
					case <-stop:
						return
					}
				case msgValue:
					select {
					case out <- payload[1:]:
					case <-stop:
						return
					}
				}
			}
		}
	}()

	return out, cancel, nil
}

func (s *redisStore) WatchChildren(ctx context.Context, key string) (<-chan []byte, func(), error) {
	ps := s.cli.Subscribe(ctx, s.childChan(key))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, classify(err)
	}

	out := make(chan []byte, watchBuffer)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			ps.Close()
		})
	}

	go func() {
		defer close(out)

		seen := make(map[string]struct{})
		deliver := func(env childEnvelope) bool {
			if _, dup := seen[env.ID]; dup {
				return true
			}
			seen[env.ID] = struct{}{}
			select {
			case out <- env.Value:
				return true
			case <-stop:
				return false
			}
		}

		// Backfill the list after subscribing; envelope ids make the merge
		// with live traffic exactly-once.
		raw, err := s.cli.LRange(ctx, s.childKey(key), 0, -1).Result()
		if err != nil {
			s.l.Warnf(ctx, "store.redisStore.WatchChildren backfill: %v", err)
		}
		for _, r := range raw {
			var env childEnvelope
			if err := json.Unmarshal([]byte(r), &env); err != nil {
				continue
			}
			if !deliver(env) {
				return
			}
		}

		msgs := ps.Channel()
		for {
			select {
			case <-stop:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				payload := []byte(msg.Payload)
				if len(payload) == 0 || payload[0] != msgChild {
					continue
				}
				var env childEnvelope
				if err := json.Unmarshal(payload[1:], &env); err != nil {
					continue
				}
				if !deliver(env) {
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

func (s *redisStore) OnDisconnectDelete(ctx context.Context, key string) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.cleanup[key] = struct{}{}
	s.mu.Unlock()

	// The key only lives as long as the heartbeat keeps renewing it.
	if err := s.cli.PExpire(ctx, s.valueKey(key), s.presenceTTL).Err(); err != nil {
		return nil, classify(err)
	}

	cancel := func() {
		s.mu.Lock()
		delete(s.cleanup, key)
		s.mu.Unlock()
		s.cli.Persist(context.Background(), s.valueKey(key))
	}
	return cancel, nil
}

func (s *redisStore) heartbeatLoop() {
	defer s.wg.Done()

	interval := s.presenceTTL / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			keys := make([]string, 0, len(s.cleanup))
			for k := range s.cleanup {
				keys = append(keys, k)
			}
			s.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), interval)
			for _, k := range keys {
				if err := s.cli.PExpire(ctx, s.valueKey(k), s.presenceTTL).Err(); err != nil {
					s.l.Warnf(ctx, "store.redisStore.heartbeat %s: %v", k, err)
				}
			}
			cancel()
		}
	}
}

// Close deletes all presence-registered keys and stops the heartbeat. The
// Redis client itself is owned by the caller.
func (s *redisStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	keys := make([]string, 0, len(s.cleanup))
	for k := range s.cleanup {
		keys = append(keys, k)
	}
	s.cleanup = make(map[string]struct{})
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			s.l.Warnf(ctx, "store.redisStore.Close cleanup %s: %v", k, err)
		}
	}
	return nil
}
