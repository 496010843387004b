package memory

import (
	"context"
	"sync"

	"github.com/artpar/promptgate/ports"
)

// PoolStore is an in-memory implementation of ports.PoolStore.
// Each tier holds a FIFO slice of unissued keys; Pop is linearizable
// under the store mutex.
type PoolStore struct {
	mu    sync.Mutex
	pools map[string][]string // tier ID -> FIFO of keys
}

// NewPoolStore creates a new in-memory pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{pools: make(map[string][]string)}
}

// Pop atomically removes and returns the head of a tier's pool.
func (s *PoolStore) Pop(ctx context.Context, tierID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool := s.pools[tierID]
	if len(pool) == 0 {
		return "", ports.ErrPoolExhausted
	}

	key := pool[0]
	s.pools[tierID] = pool[1:]
	return key, nil
}

// Seed appends keys to the tail of a tier's pool.
func (s *PoolStore) Seed(ctx context.Context, tierID string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[tierID] = append(s.pools[tierID], keys...)
	return nil
}

// Size returns the number of keys left in a tier's pool.
func (s *PoolStore) Size(ctx context.Context, tierID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pools[tierID]), nil
}

// Ensure interface compliance.
var _ ports.PoolStore = (*PoolStore)(nil)
