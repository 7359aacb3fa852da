// Package dedup tracks provider message ids already processed, so
// at-least-once delivery from webhooks and polling does not double-apply
// events.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a processed id is remembered. Providers do
// not redeliver beyond this horizon.
const DefaultTTL = 7 * 24 * time.Hour

// SeenStore answers whether a provider message id was already processed.
type SeenStore interface {
	// Seen reports whether the key was marked before.
	Seen(ctx context.Context, key string) (bool, error)
	// Mark records the key for ttl. Marking an existing key extends it.
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

// Key builds the dedup key for one provider message within a tenant
// channel.
func Key(hostID, channel, providerMessageID string) string {
	return strings.Join([]string{"seen", hostID, channel, providerMessageID}, ":")
}

// RedisStore is the shared SeenStore used in deployment.
type RedisStore struct {
	client *redis.Client
}

var _ SeenStore = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("dedup exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := s.client.Set(ctx, key, 1, ttl).Err(); err != nil {
		return fmt.Errorf("dedup set: %w", err)
	}
	return nil
}

// MemoryStore is the in-process SeenStore for tests and single-node runs
// without Redis. Expiry is checked lazily on read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

var _ SeenStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]time.Time{}}
}

func (s *MemoryStore) Seen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(deadline) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Mark(_ context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = time.Now().Add(ttl)
	return nil
}
