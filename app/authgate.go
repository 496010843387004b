package app

import (
	"context"
	"errors"

	"github.com/artpar/promptgate/domain/quota"
	"github.com/rs/zerolog"
)

// Authorization failure modes surfaced to the HTTP layer.
var (
	ErrUnauthenticated = errors.New("missing api key")
	ErrUnauthorized    = errors.New("api key not recognized")
	ErrQuotaExceeded   = errors.New("monthly quota exceeded")
)

// AuthGate is the request-time entry point: registry lookup plus quota
// charge, in one call.
type AuthGate struct {
	tracker *QuotaTracker
	logger  zerolog.Logger
}

// NewAuthGate creates an auth gate over a quota tracker.
func NewAuthGate(tracker *QuotaTracker, logger zerolog.Logger) *AuthGate {
	return &AuthGate{tracker: tracker, logger: logger}
}

// AuthResult describes an admitted call.
type AuthResult struct {
	TierID   string
	Decision quota.Decision
}

// Authorize accepts or rejects a call for a raw key. Quota is charged
// only when the call is admitted; rejected calls leave the counter
// untouched.
func (g *AuthGate) Authorize(ctx context.Context, rawKey string) (AuthResult, error) {
	if rawKey == "" {
		return AuthResult{}, ErrUnauthenticated
	}

	owned, decision, err := g.tracker.CheckAndIncrement(ctx, rawKey)
	if err != nil {
		if errors.Is(err, ErrUnknownKey) {
			g.logger.Debug().Str("key", redact(rawKey)).Msg("rejected unknown key")
			return AuthResult{}, ErrUnauthorized
		}
		return AuthResult{}, err
	}

	if !decision.Allowed {
		g.logger.Info().
			Str("key", redact(rawKey)).
			Int64("limit", decision.Limit).
			Msg("rejected over-quota key")
		return AuthResult{}, ErrQuotaExceeded
	}

	return AuthResult{TierID: owned.ID, Decision: decision}, nil
}
