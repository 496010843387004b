// Package redis provides store implementations backed by a shared Redis,
// for deployments running more than one gateway instance.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/promptgate/ports"
	"github.com/go-redis/redis/v8"
)

// Config holds Redis connection settings.
type Config struct {
	URL       string        // redis:// URL
	Retention time.Duration // completed-event retention (default: 90 days)
}

// Store implements the KeyStore, CounterStore, PoolStore and EventStore
// ports against Redis. Atomicity comes from Redis itself: a Lua script
// for the counter check-and-increment, LPOP for pool pops and SETNX for
// event claims.
type Store struct {
	client    *redis.Client
	retention time.Duration
}

const (
	registryKey   = "keys"
	counterPrefix = "counter:"
	poolPrefix    = "pool:"
	eventPrefix   = "event:"

	eventClaimed = "claimed"
	eventDone    = "done"
)

// incrementBelow increments KEYS[1] only while below ARGV[1] (negative =
// no ceiling). Returns {count, applied}.
var incrementBelow = redis.NewScript(`
local c = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if limit >= 0 and c >= limit then
  return {c, 0}
end
c = redis.call('INCR', KEYS[1])
return {c, 1}
`)

// releaseClaim deletes KEYS[1] only while it is still an unfinished claim.
var releaseClaim = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
end
return 1
`)

// New connects to Redis and verifies the connection.
func New(cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, cfg.Retention), nil
}

// NewWithClient wraps an existing client (for testing with miniredis).
func NewWithClient(client *redis.Client, retention time.Duration) *Store {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &Store{client: client, retention: retention}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// -----------------------------------------------------------------------------
// KeyStore
// -----------------------------------------------------------------------------

// Resolve returns the tier ID owning a key.
func (s *Store) Resolve(ctx context.Context, key string) (string, bool, error) {
	tierID, err := s.client.HGet(ctx, registryKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget: %w", err)
	}
	return tierID, true, nil
}

// Register adds a key to the registry.
func (s *Store) Register(ctx context.Context, key, tierID string) error {
	if err := s.client.HSet(ctx, registryKey, key, tierID).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// CounterStore
// -----------------------------------------------------------------------------

// Get returns the current count for a key.
func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, counterPrefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return n, nil
}

// IncrementBelow atomically increments the counter if count < limit.
func (s *Store) IncrementBelow(ctx context.Context, key string, limit int64) (int64, bool, error) {
	res, err := incrementBelow.Run(ctx, s.client, []string{counterPrefix + key}, limit).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis eval: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, false, fmt.Errorf("unexpected script result: %v", res)
	}
	count, _ := vals[0].(int64)
	applied, _ := vals[1].(int64)
	return count, applied == 1, nil
}

// Reset zeroes the counter for one key.
func (s *Store) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, counterPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// ResetAll zeroes every tracked counter.
func (s *Store) ResetAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, counterPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// -----------------------------------------------------------------------------
// PoolStore
// -----------------------------------------------------------------------------

// Pop atomically removes and returns the head of a tier's pool.
func (s *Store) Pop(ctx context.Context, tierID string) (string, error) {
	key, err := s.client.LPop(ctx, poolPrefix+tierID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ports.ErrPoolExhausted
	}
	if err != nil {
		return "", fmt.Errorf("redis lpop: %w", err)
	}
	return key, nil
}

// Seed appends keys to the tail of a tier's pool.
func (s *Store) Seed(ctx context.Context, tierID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	vals := make([]interface{}, len(keys))
	for i, k := range keys {
		vals[i] = k
	}
	if err := s.client.RPush(ctx, poolPrefix+tierID, vals...).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

// Size returns the number of keys left in a tier's pool.
func (s *Store) Size(ctx context.Context, tierID string) (int, error) {
	n, err := s.client.LLen(ctx, poolPrefix+tierID).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen: %w", err)
	}
	return int(n), nil
}

// -----------------------------------------------------------------------------
// EventStore
// -----------------------------------------------------------------------------

// Claim atomically marks an event as in-flight.
func (s *Store) Claim(ctx context.Context, eventID string) (bool, error) {
	claimed, err := s.client.SetNX(ctx, eventPrefix+eventID, eventClaimed, s.retention).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return claimed, nil
}

// Complete marks a claimed event as fully processed. The retention TTL
// bounds the idempotency window.
func (s *Store) Complete(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, eventPrefix+eventID, eventDone, s.retention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Release drops an unfinished claim so the event can be retried.
func (s *Store) Release(ctx context.Context, eventID string) error {
	if err := releaseClaim.Run(ctx, s.client, []string{eventPrefix + eventID}, eventClaimed).Err(); err != nil {
		return fmt.Errorf("redis eval: %w", err)
	}
	return nil
}

// Processed reports whether an event has been fully processed.
func (s *Store) Processed(ctx context.Context, eventID string) (bool, error) {
	v, err := s.client.Get(ctx, eventPrefix+eventID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	return v == eventDone, nil
}

// Ensure interface compliance.
var (
	_ ports.KeyStore     = (*Store)(nil)
	_ ports.CounterStore = (*Store)(nil)
	_ ports.PoolStore    = (*Store)(nil)
	_ ports.EventStore   = (*Store)(nil)
)
