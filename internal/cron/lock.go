package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 10 * time.Minute

// Lock guards a single job run across cron-worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Locker hands out the lock for a named job.
type Locker interface {
	For(job string) Lock
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
}

// RedisLocker issues per-job SETNX locks. The TTL bounds how long a crashed holder
// keeps a job from running elsewhere.
type RedisLocker struct {
	store lockStore
	keyOf func(job string) string
	ttl   time.Duration
}

func NewRedisLocker(store lockStore, keyOf func(job string) string, ttl time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if keyOf == nil {
		return nil, errors.New("lock key function required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{store: store, keyOf: keyOf, ttl: ttl}, nil
}

func (l *RedisLocker) For(job string) Lock {
	return &redisLock{store: l.store, key: l.keyOf(job), ttl: l.ttl}
}

type redisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	token string
}

func (l *redisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if won {
		l.token = token
	}
	return won, nil
}

// Release is a no-op unless this lock still holds the key.
func (l *redisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.store.ReleaseIfOwner(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
