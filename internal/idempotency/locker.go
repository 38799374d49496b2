// Package idempotency guards client-supplied request ids so a retried
// payment request is processed at most once.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "idempotency:"

// RedisLocker claims keys with SETNX so claims are shared across instances.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(redisURL string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return &RedisLocker{client: redis.NewClient(opts)}, nil
}

func NewRedisLockerWithClient(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire idempotency key: %w", err)
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// MemoryLocker is a single-process locker.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: make(map[string]time.Time), now: time.Now}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.entries[key]; ok && now.Before(expires) {
		return false, nil
	}
	l.entries[key] = now.Add(ttl)
	return true, nil
}

func (l *MemoryLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}
