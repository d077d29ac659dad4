package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisStore backs the guard with a shared Redis so multiple instances
// see the same window and ban state. TTL expiry replaces the memory
// store's janitor.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, eris.Wrap(err, "ratelimit: redis ping")
	}
	return &RedisStore{client: client, prefix: "intake:rl:"}, nil
}

func (s *RedisStore) Get(ctx context.Context, identity string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.prefix+identity).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "ratelimit: redis get")
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// A corrupt entry is treated as absent rather than poisoning
		// the guard.
		return nil, nil
	}
	return &e, nil
}

func (s *RedisStore) Put(ctx context.Context, identity string, e *Entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "ratelimit: marshal entry")
	}
	if err := s.client.Set(ctx, s.prefix+identity, data, ttl).Err(); err != nil {
		return eris.Wrap(err, "ratelimit: redis set")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, identity string) error {
	return eris.Wrap(s.client.Del(ctx, s.prefix+identity).Err(), "ratelimit: redis del")
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
