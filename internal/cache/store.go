package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store is a best-effort TTL cache. No method returns an error: backend
// failures are logged and reads degrade to misses.
//
// Store keeps an index of every key it has set so that DelByPattern and
// Reset work without backend key enumeration. The index is process-local:
// keys written by other instances sharing the backend are not visible here.
// Entries leave the index when deleted, when a read misses, or once their
// TTL has passed.
type Store struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time

	mu   sync.Mutex
	keys map[string]time.Time // key -> expiry, zero when unbounded
	sets int
}

// pruneEvery is the number of Set calls between sweeps of expired index entries.
const pruneEvery = 256

// NewStore creates a Store over backend.
func NewStore(backend Backend, logger *zap.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
		keys:    make(map[string]time.Time),
	}
}

// Get returns the value for key, or false on miss or backend failure.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	val, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		s.mu.Lock()
		delete(s.keys, key)
		s.mu.Unlock()
	}
	return val, ok
}

// Set stores value under key for ttl.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := s.backend.Set(ctx, key, value, ttl); err != nil {
		s.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return
	}
	var expiry time.Time
	if ttl > 0 {
		expiry = s.now().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = expiry
	s.sets++
	if s.sets%pruneEvery == 0 {
		s.pruneLocked()
	}
}

// Del removes key.
func (s *Store) Del(ctx context.Context, key string) {
	s.DelMany(ctx, []string{key})
}

// DelMany removes keys. Keys stay indexed if the backend delete fails.
func (s *Store) DelMany(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := s.backend.Del(ctx, keys...); err != nil {
		s.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return
	}
	s.mu.Lock()
	for _, key := range keys {
		delete(s.keys, key)
	}
	s.mu.Unlock()
}

// DelByPattern removes every indexed key containing substr.
func (s *Store) DelByPattern(ctx context.Context, substr string) {
	matched := s.matchKeys(func(key string) bool { return strings.Contains(key, substr) })
	if len(matched) == 0 {
		return
	}
	s.DelMany(ctx, matched)
	s.logger.Debug("cache keys deleted by pattern", zap.String("pattern", substr), zap.Int("count", len(matched)))
}

// Reset removes every indexed key.
func (s *Store) Reset(ctx context.Context) {
	s.DelMany(ctx, s.Keys())
	s.logger.Info("cache reset")
}

// Keys returns the indexed keys in sorted order.
func (s *Store) Keys() []string {
	return s.matchKeys(func(string) bool { return true })
}

func (s *Store) matchKeys(match func(string) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	out := make([]string, 0, len(s.keys))
	for key := range s.keys {
		if match(key) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Store) pruneLocked() {
	now := s.now()
	for key, expiry := range s.keys {
		if !expiry.IsZero() && !now.Before(expiry) {
			delete(s.keys, key)
		}
	}
}
