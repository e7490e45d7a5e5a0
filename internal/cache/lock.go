package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var ErrNotObtained = errors.New("lock not obtained")

type Lock interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

type RedisLocker struct {
	client *redislock.Client
	opts   *redislock.Options
}

func NewRedisLocker(rds *redis.Client) *RedisLocker {
	return &RedisLocker{
		client: redislock.New(rds),
		opts: &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 3),
		},
	}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock, err := l.client.Obtain(ctx, "LOCK"+key, ttl, l.opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// LocalLocker serializes within one process.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]time.Time
	now   func() time.Time
	retry time.Duration
	tries int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]time.Time{}, now: time.Now, retry: 100 * time.Millisecond, tries: 3}
}

func (l *LocalLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	for attempt := 0; ; attempt++ {
		if l.tryObtain(key, ttl) {
			return &localLock{locker: l, key: key}, nil
		}
		if attempt >= l.tries {
			return nil, ErrNotObtained
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * l.retry):
		}
	}
}

func (l *LocalLocker) tryObtain(key string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until, ok := l.held[key]; ok && l.now().Before(until) {
		return false
	}
	l.held[key] = l.now().Add(ttl)
	return true
}

type localLock struct {
	locker *LocalLocker
	key    string
}

func (l *localLock) Release(context.Context) error {
	l.locker.mu.Lock()
	delete(l.locker.held, l.key)
	l.locker.mu.Unlock()
	return nil
}
