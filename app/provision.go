package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/promptgate/adapters/metrics"
	"github.com/artpar/promptgate/ports"
	"github.com/rs/zerolog"
)

// Provisioner hands out keys from per-tier pools of unissued keys.
type Provisioner struct {
	pools    ports.PoolStore
	keys     ports.KeyStore
	counters ports.CounterStore
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

// NewProvisioner creates a provisioner. metrics may be nil.
func NewProvisioner(pools ports.PoolStore, keys ports.KeyStore, counters ports.CounterStore, m *metrics.Collector, logger zerolog.Logger) *Provisioner {
	return &Provisioner{pools: pools, keys: keys, counters: counters, metrics: m, logger: logger}
}

// Allocate pops an unissued key for a tier, registers it and initializes
// its usage counter, then returns it. The pop is linearizable in the pool
// store, and the key is registered before this returns, so a successful
// caller can use the key immediately. A popped key never goes back into
// the pool, whatever happens afterwards.
func (p *Provisioner) Allocate(ctx context.Context, tierID string) (string, error) {
	key, err := p.pools.Pop(ctx, tierID)
	if err != nil {
		if errors.Is(err, ports.ErrPoolExhausted) {
			p.logger.Error().
				Str("tier", tierID).
				Msg("key pool exhausted, provisioning blocked until refill")
			if p.metrics != nil {
				p.metrics.PoolExhaustions.WithLabelValues(tierID).Inc()
			}
			return "", err
		}
		return "", fmt.Errorf("pop pool: %w", err)
	}

	if err := p.keys.Register(ctx, key, tierID); err != nil {
		// The key is out of the pool but unusable. This must never pass
		// silently: an allocated-but-unregistered key is an invariant
		// violation, not a recoverable error.
		p.logger.Error().Err(err).
			Str("tier", tierID).
			Str("key", redact(key)).
			Msg("allocated key could not be registered")
		return "", fmt.Errorf("register key: %w", err)
	}

	if err := p.counters.Reset(ctx, key); err != nil {
		return "", fmt.Errorf("init counter: %w", err)
	}

	if p.metrics != nil {
		if size, err := p.pools.Size(ctx, tierID); err == nil {
			p.metrics.PoolKeys.WithLabelValues(tierID).Set(float64(size))
		}
	}

	p.logger.Info().
		Str("tier", tierID).
		Str("key", redact(key)).
		Msg("key allocated from pool")

	return key, nil
}

// PoolSize reports the unissued keys left for a tier.
func (p *Provisioner) PoolSize(ctx context.Context, tierID string) (int, error) {
	return p.pools.Size(ctx, tierID)
}
