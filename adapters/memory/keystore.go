// Package memory provides in-memory store implementations.
// Suitable for single-instance deployments; the redis adapters cover
// shared deployments.
package memory

import (
	"context"
	"sync"

	"github.com/artpar/promptgate/ports"
)

// KeyStore is an in-memory implementation of ports.KeyStore.
type KeyStore struct {
	mu    sync.RWMutex
	tiers map[string]string // key -> tier ID
}

// NewKeyStore creates a new in-memory key store.
// seed maps pre-configured keys to tier IDs.
func NewKeyStore(seed map[string]string) *KeyStore {
	tiers := make(map[string]string, len(seed))
	for k, t := range seed {
		tiers[k] = t
	}
	return &KeyStore{tiers: tiers}
}

// Resolve returns the tier ID owning a key.
func (s *KeyStore) Resolve(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tierID, ok := s.tiers[key]
	return tierID, ok, nil
}

// Register adds a key to the registry.
func (s *KeyStore) Register(ctx context.Context, key, tierID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[key] = tierID
	return nil
}

// Len returns the number of registered keys (for testing).
func (s *KeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tiers)
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
