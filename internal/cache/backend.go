package cache

import (
	"context"
	"errors"
	"time"

	gocache "github.com/Code-Hex/go-generics-cache"
	"github.com/redis/go-redis/v9"
)

// Backend is the raw key-value tier behind a Store. It is not expected to
// support key enumeration.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisBackend stores entries in Redis with native expiry.
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend wraps client.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *RedisBackend) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.client.Del(ctx, keys...).Err()
}

// MemoryBackend keeps entries in process memory.
type MemoryBackend struct {
	entries *gocache.Cache[string, []byte]
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: gocache.New[string, []byte]()}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := b.entries.Get(key)
	return val, ok, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl > 0 {
		b.entries.Set(key, value, gocache.WithExpiration(ttl))
		return nil
	}
	b.entries.Set(key, value)
	return nil
}

func (b *MemoryBackend) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		b.entries.Delete(key)
	}
	return nil
}
