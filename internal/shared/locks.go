package shared

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Locker serializes mutating operations per stock key. LockPair acquires
// both keys in stable order so concurrent transfers cannot deadlock.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
	LockPair(ctx context.Context, a, b string) (release func(), err error)
}

// KeyMutex is an in-process Locker backed by reference-counted mutexes.
type KeyMutex struct {
	mu      sync.Mutex
	entries map[string]*keyMutexEntry
}

type keyMutexEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyMutex constructs a KeyMutex.
func NewKeyMutex() *KeyMutex {
	return &KeyMutex{entries: make(map[string]*keyMutexEntry)}
}

// Lock acquires the mutex for key, blocking until available.
func (m *KeyMutex) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry := m.acquireEntry(key)
	entry.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			m.releaseEntry(key)
		})
	}, nil
}

// LockPair acquires both keys ordered by string comparison.
func (m *KeyMutex) LockPair(ctx context.Context, a, b string) (func(), error) {
	if a == b {
		return m.Lock(ctx, a)
	}
	first, second := orderedPair(a, b)
	releaseFirst, err := m.Lock(ctx, first)
	if err != nil {
		return nil, err
	}
	releaseSecond, err := m.Lock(ctx, second)
	if err != nil {
		releaseFirst()
		return nil, err
	}
	return func() {
		releaseSecond()
		releaseFirst()
	}, nil
}

func (m *KeyMutex) acquireEntry(key string) *keyMutexEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		entry = &keyMutexEntry{}
		m.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (m *KeyMutex) releaseEntry(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.entries, key)
	}
}

// RedisLocker serializes operations across service instances using redislock.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	retry  redislock.RetryStrategy
}

// NewRedisLocker constructs a RedisLocker on top of a go-redis client.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		client: redislock.New(client),
		ttl:    ttl,
		retry:  redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 200),
	}
}

// Lock obtains a distributed lock for key.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, lockName(key), l.ttl, &redislock.Options{RetryStrategy: l.retry})
	if err != nil {
		return nil, fmt.Errorf("shared: obtain lock %q: %w", key, err)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = lock.Release(context.Background())
		})
	}, nil
}

// LockPair obtains both keys ordered by string comparison.
func (l *RedisLocker) LockPair(ctx context.Context, a, b string) (func(), error) {
	if a == b {
		return l.Lock(ctx, a)
	}
	first, second := orderedPair(a, b)
	releaseFirst, err := l.Lock(ctx, first)
	if err != nil {
		return nil, err
	}
	releaseSecond, err := l.Lock(ctx, second)
	if err != nil {
		releaseFirst()
		return nil, err
	}
	return func() {
		releaseSecond()
		releaseFirst()
	}, nil
}

func orderedPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

func lockName(key string) string {
	return "stock:key:" + key + ":lock"
}
