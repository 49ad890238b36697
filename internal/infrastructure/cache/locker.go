package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
)

const defaultLockTTL = 30 * time.Second

// RedisLocker provides cross-replica mutual exclusion through redsync.
type RedisLocker struct {
	redis *Redis
	ttl   time.Duration
}

func NewRedisLocker(r *Redis, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{redis: r, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	mutex := l.redis.rs.NewMutex(key("lock", name), redsync.WithExpiry(l.ttl))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return func(ctx context.Context) error {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			l.redis.log.Error().Err(err).Str("lock", name).Msg("failed to unlock mutex")
			return err
		}
		return nil
	}, nil
}

// MemoryLocker serialises lock holders within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]chan struct{})}
}

func (l *MemoryLocker) Lock(ctx context.Context, name string) (func(context.Context) error, error) {
	l.mu.Lock()
	ch, ok := l.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[name] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire lock %s: %w", name, ctx.Err())
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}
