// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/promptgate/domain/quota"
	"github.com/artpar/promptgate/domain/tier"
	"github.com/artpar/promptgate/ports"
	"github.com/rs/zerolog"
)

// ErrUnknownKey indicates the key is not in the registry.
var ErrUnknownKey = errors.New("unknown api key")

// QuotaTracker enforces per-key monthly quotas against tier limits.
type QuotaTracker struct {
	keys     ports.KeyStore
	counters ports.CounterStore
	tiers    func() []tier.Tier // hot-reloadable tier config
	logger   zerolog.Logger
}

// NewQuotaTracker creates a quota tracker. tiers is called on every check
// so configuration reloads take effect without restart.
func NewQuotaTracker(keys ports.KeyStore, counters ports.CounterStore, tiers func() []tier.Tier, logger zerolog.Logger) *QuotaTracker {
	return &QuotaTracker{keys: keys, counters: counters, tiers: tiers, logger: logger}
}

// CheckAndIncrement admits a call for a key if its tier quota allows it.
// The check-then-act is atomic in the counter store: two simultaneous
// calls at count = limit-1 get exactly one admission. Returns
// ErrUnknownKey for unregistered keys; a rejected decision never leaves
// the counter past the limit.
func (t *QuotaTracker) CheckAndIncrement(ctx context.Context, key string) (tier.Tier, quota.Decision, error) {
	owned, err := t.tierFor(ctx, key)
	if err != nil {
		return tier.Tier{}, quota.Decision{}, err
	}

	count, allowed, err := t.counters.IncrementBelow(ctx, key, owned.RequestsPerMonth)
	if err != nil {
		return tier.Tier{}, quota.Decision{}, fmt.Errorf("increment counter: %w", err)
	}

	return owned, quota.Decision{
		Allowed:   allowed,
		Count:     count,
		Limit:     owned.RequestsPerMonth,
		Remaining: quota.Remaining(count, owned.RequestsPerMonth),
	}, nil
}

// Usage describes a key's current quota position.
type Usage struct {
	TierID    string
	TierName  string
	Used      int64
	Limit     int64 // -1 = unlimited
	Remaining int64 // -1 = unlimited
}

// Usage returns a read-only snapshot for a key without charging quota.
func (t *QuotaTracker) Usage(ctx context.Context, key string) (Usage, error) {
	owned, err := t.tierFor(ctx, key)
	if err != nil {
		return Usage{}, err
	}

	count, err := t.counters.Get(ctx, key)
	if err != nil {
		return Usage{}, fmt.Errorf("read counter: %w", err)
	}

	return Usage{
		TierID:    owned.ID,
		TierName:  owned.Name,
		Used:      count,
		Limit:     owned.RequestsPerMonth,
		Remaining: quota.Remaining(count, owned.RequestsPerMonth),
	}, nil
}

// ResetOne zeroes the counter for a single key. Idempotent.
func (t *QuotaTracker) ResetOne(ctx context.Context, key string) error {
	if err := t.counters.Reset(ctx, key); err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	t.logger.Info().Str("key", redact(key)).Msg("usage counter reset")
	return nil
}

// ResetAll zeroes every tracked counter. Idempotent.
func (t *QuotaTracker) ResetAll(ctx context.Context) error {
	if err := t.counters.ResetAll(ctx); err != nil {
		return fmt.Errorf("reset counters: %w", err)
	}
	t.logger.Info().Msg("all usage counters reset")
	return nil
}

// tierFor resolves a key to its configured tier.
func (t *QuotaTracker) tierFor(ctx context.Context, key string) (tier.Tier, error) {
	tierID, ok, err := t.keys.Resolve(ctx, key)
	if err != nil {
		return tier.Tier{}, fmt.Errorf("resolve key: %w", err)
	}
	if !ok {
		return tier.Tier{}, ErrUnknownKey
	}

	owned, found := tier.Find(t.tiers(), tierID)
	if !found {
		// Key registered under a tier that was removed from config.
		return tier.Tier{}, fmt.Errorf("key tier %q not configured", tierID)
	}
	return owned, nil
}

// redact keeps only a short prefix of a key for log lines.
func redact(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}
