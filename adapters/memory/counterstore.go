package memory

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/artpar/promptgate/domain/quota"
	"github.com/artpar/promptgate/ports"
)

// counterShard is a single shard of the counter store.
type counterShard struct {
	mu     sync.Mutex
	counts map[string]int64
}

// CounterStore is a sharded in-memory implementation of ports.CounterStore.
// Sharding reduces lock contention; the per-shard mutex makes the
// check-then-increment a single critical section per key.
type CounterStore struct {
	shards    []*counterShard
	numShards int
}

// NewCounterStore creates a new sharded counter store.
// numShards <= 0 selects the default of 32.
func NewCounterStore(numShards int) *CounterStore {
	if numShards <= 0 {
		numShards = 32
	}
	s := &CounterStore{
		shards:    make([]*counterShard, numShards),
		numShards: numShards,
	}
	for i := range s.shards {
		s.shards[i] = &counterShard{counts: make(map[string]int64)}
	}
	return s
}

// getShard returns the shard for a given key.
func (s *CounterStore) getShard(key string) *counterShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

// Get returns the current count for a key.
func (s *CounterStore) Get(ctx context.Context, key string) (int64, error) {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return shard.counts[key], nil
}

// IncrementBelow atomically increments the counter if count < limit.
// A negative limit increments unconditionally.
func (s *CounterStore) IncrementBelow(ctx context.Context, key string, limit int64) (int64, bool, error) {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	d := quota.Check(shard.counts[key], limit)
	if !d.Allowed {
		return d.Count, false, nil
	}
	shard.counts[key] = d.Count
	return d.Count, true, nil
}

// Reset zeroes the counter for one key.
func (s *CounterStore) Reset(ctx context.Context, key string) error {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.counts[key] = 0
	return nil
}

// ResetAll zeroes every tracked counter.
func (s *CounterStore) ResetAll(ctx context.Context) error {
	for _, shard := range s.shards {
		shard.mu.Lock()
		for k := range shard.counts {
			shard.counts[k] = 0
		}
		shard.mu.Unlock()
	}
	return nil
}

// Ensure interface compliance.
var _ ports.CounterStore = (*CounterStore)(nil)
