package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a signature store backed by Redis, for deployments where
// more than one engine process may receive the same occurrence. Expiry is
// handled by key TTL; Remember uses SET NX so concurrent writers of the
// same signature collapse to a single winner.
type RedisStore struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedisStore creates a Redis-backed store. A non-positive window falls
// back to DefaultWindow.
func NewRedisStore(client *redis.Client, window time.Duration) *RedisStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisStore{client: client, window: window, prefix: "trigger:sig:"}
}

// Seen implements Store.
func (s *RedisStore) Seen(ctx context.Context, sig string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+sig).Result()
	if err != nil {
		return false, fmt.Errorf("dedup redis exists: %w", err)
	}
	return n > 0, nil
}

// Remember implements Store.
func (s *RedisStore) Remember(ctx context.Context, sig string) (bool, error) {
	set, err := s.client.SetNX(ctx, s.prefix+sig, 1, s.window).Result()
	if err != nil {
		return false, fmt.Errorf("dedup redis setnx: %w", err)
	}
	return !set, nil
}
