// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher provides password/token hashing.
type Hasher interface {
	// Hash generates a hash from a plaintext value.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// KeyStore is the registry of active API keys and their tiers.
// Register must be visible to Resolve immediately (read-your-writes with
// the provisioning pool).
type KeyStore interface {
	// Resolve returns the tier ID owning a key, ok=false if the key is
	// not registered.
	Resolve(ctx context.Context, key string) (tierID string, ok bool, err error)

	// Register adds a key to the registry.
	Register(ctx context.Context, key, tierID string) error
}

// CounterStore tracks per-key monthly usage counts.
type CounterStore interface {
	// Get returns the current count for a key (0 if never used).
	Get(ctx context.Context, key string) (int64, error)

	// IncrementBelow atomically increments the counter if the current
	// count is below limit, returning the resulting count and whether the
	// increment was applied. A negative limit means no ceiling: the
	// counter is incremented unconditionally. The check-then-increment is
	// a single atomic step with respect to concurrent callers on the same
	// key.
	IncrementBelow(ctx context.Context, key string, limit int64) (count int64, allowed bool, err error)

	// Reset zeroes the counter for one key. Idempotent, mutually
	// exclusive with in-flight increments on the same key.
	Reset(ctx context.Context, key string) error

	// ResetAll zeroes every tracked counter.
	ResetAll(ctx context.Context) error
}

// ErrPoolExhausted is returned by Pop when a tier's pool has no keys left.
var ErrPoolExhausted = errors.New("key pool exhausted")

// PoolStore holds per-tier FIFO pools of not-yet-issued keys.
type PoolStore interface {
	// Pop atomically removes and returns the head of a tier's pool.
	// Concurrent callers never receive the same key. Returns
	// ErrPoolExhausted when the pool is empty. A popped key is gone for
	// good; pops are never reversed.
	Pop(ctx context.Context, tierID string) (string, error)

	// Seed appends keys to the tail of a tier's pool.
	Seed(ctx context.Context, tierID string, keys []string) error

	// Size returns the number of keys left in a tier's pool.
	Size(ctx context.Context, tierID string) (int, error)
}

// EventStore deduplicates payment events by event ID.
type EventStore interface {
	// Claim atomically marks an event as in-flight. Returns false if the
	// event was already claimed or completed, so two concurrent
	// deliveries of the same ID cannot both pass.
	Claim(ctx context.Context, eventID string) (bool, error)

	// Complete marks a claimed event as fully processed. Completed
	// events stay recorded for the retention window.
	Complete(ctx context.Context, eventID string) error

	// Release drops an unfinished claim so a later delivery can retry
	// the event (e.g. after a pool refill).
	Release(ctx context.Context, eventID string) error

	// Processed reports whether an event has been fully processed.
	Processed(ctx context.Context, eventID string) (bool, error)
}

// -----------------------------------------------------------------------------
// External Service Ports
// -----------------------------------------------------------------------------

// Upstream represents the text-generation service being fronted.
type Upstream interface {
	// Generate forwards a prompt and returns the generated text.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Notifier delivers a provisioned key to its recipient out-of-band.
// Failures here must never corrupt allocation state.
type Notifier interface {
	// Send delivers (recipient, key, tier name).
	Send(ctx context.Context, recipient, apiKey, tierName string) error
}
