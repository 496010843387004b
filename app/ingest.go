package app

import (
	"context"
	"errors"

	"github.com/artpar/promptgate/adapters/metrics"
	"github.com/artpar/promptgate/domain/payment"
	"github.com/artpar/promptgate/domain/tier"
	"github.com/artpar/promptgate/ports"
	"github.com/rs/zerolog"
)

// Rejection reasons surfaced to the payment provider.
const (
	ReasonInvalidSignature = "invalid signature"
	ReasonInvalidPayload   = "invalid payload"
	ReasonUnknownPlan      = "unknown plan"
)

// Outcome is the ingestor's answer to one webhook delivery.
type Outcome struct {
	Accepted bool
	Reason   string // set on rejection
}

var (
	accepted = Outcome{Accepted: true}
)

func rejected(reason string) Outcome {
	return Outcome{Accepted: false, Reason: reason}
}

// WebhookIngestor drives key provisioning from payment provider events:
// verify, deduplicate, resolve the tier, allocate a key, notify.
type WebhookIngestor struct {
	secret      string
	events      ports.EventStore
	provisioner *Provisioner
	notifier    ports.Notifier
	tiers       func() []tier.Tier
	metrics     *metrics.Collector
	logger      zerolog.Logger
}

// IngestorDeps contains dependencies for the WebhookIngestor.
type IngestorDeps struct {
	Secret      string
	Events      ports.EventStore
	Provisioner *Provisioner
	Notifier    ports.Notifier
	Tiers       func() []tier.Tier
	Metrics     *metrics.Collector // may be nil
	Logger      zerolog.Logger
}

// NewWebhookIngestor creates a webhook ingestor.
func NewWebhookIngestor(deps IngestorDeps) *WebhookIngestor {
	return &WebhookIngestor{
		secret:      deps.Secret,
		events:      deps.Events,
		provisioner: deps.Provisioner,
		notifier:    deps.Notifier,
		tiers:       deps.Tiers,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// Handle processes one webhook delivery. The signature is checked over
// the exact raw bytes received. Replays of processed events are
// acknowledged without side effects. Once verification passes, the work
// runs on a context detached from the caller: a disconnecting provider
// must not cancel provisioning after a key left the pool.
func (w *WebhookIngestor) Handle(ctx context.Context, rawPayload []byte, signature string) Outcome {
	if !payment.VerifySignature(rawPayload, signature, w.secret) {
		w.logger.Warn().Msg("webhook signature verification failed")
		w.count("rejected_signature")
		return rejected(ReasonInvalidSignature)
	}

	event, err := payment.Parse(rawPayload)
	if err != nil {
		w.logger.Warn().Err(err).Msg("webhook payload rejected")
		w.count("rejected_payload")
		return rejected(ReasonInvalidPayload)
	}

	// Verified from here on: side effects must survive caller disconnect.
	ctx = context.WithoutCancel(ctx)

	if !payment.IsProvisioning(event.Type) {
		w.logger.Debug().
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Msg("ignoring non-provisioning webhook event")
		w.count("ignored")
		return accepted
	}

	if event.Email == "" {
		w.logger.Warn().Str("event_id", event.ID).Msg("checkout event missing recipient")
		w.count("rejected_payload")
		return rejected(ReasonInvalidPayload)
	}

	claimed, err := w.events.Claim(ctx, event.ID)
	if err != nil {
		w.logger.Error().Err(err).Str("event_id", event.ID).Msg("event claim failed")
		w.count("error")
		return rejected("internal error")
	}
	if !claimed {
		// Provider retry of an event already handled (or in flight).
		w.logger.Info().Str("event_id", event.ID).Msg("duplicate webhook delivery acknowledged")
		w.count("duplicate")
		return accepted
	}

	resolved, found := tier.ForPrice(w.tiers(), event.PriceID)
	if !found {
		// Let a corrected delivery of the same event id through later.
		w.release(ctx, event.ID)
		w.logger.Warn().
			Str("event_id", event.ID).
			Str("price_id", event.PriceID).
			Msg("webhook price id not mapped to any tier")
		w.count("unknown_plan")
		return rejected(ReasonUnknownPlan)
	}

	key, err := w.provisioner.Allocate(ctx, resolved.ID)
	if err != nil {
		if errors.Is(err, ports.ErrPoolExhausted) {
			// The payment succeeded; provisioning becomes an operator
			// backlog item. The claim is released so replaying the event
			// after a refill completes it.
			w.release(ctx, event.ID)
			w.logger.Error().
				Str("event_id", event.ID).
				Str("tier", resolved.ID).
				Str("recipient", event.Email).
				Msg("provisioning backlogged: pool exhausted, manual follow-up required")
			w.count("exhausted")
			return accepted
		}
		w.release(ctx, event.ID)
		w.logger.Error().Err(err).Str("event_id", event.ID).Msg("allocation failed")
		w.count("error")
		return rejected("internal error")
	}

	// The key is allocated for good; record the event as processed before
	// the notification so a provider retry cannot allocate a second key.
	if err := w.events.Complete(ctx, event.ID); err != nil {
		w.logger.Error().Err(err).Str("event_id", event.ID).Msg("failed to mark event processed")
	}

	// Notification runs after every store lock is released. A failed
	// send never returns the key to the pool or re-allocates: the gap is
	// logged for a manual resend.
	if err := w.notifier.Send(ctx, event.Email, key, resolved.Name); err != nil {
		w.logger.Error().Err(err).
			Str("event_id", event.ID).
			Str("recipient", event.Email).
			Str("tier", resolved.ID).
			Msg("key delivery failed, manual resend required")
		if w.metrics != nil {
			w.metrics.NotificationFailures.Inc()
		}
		w.count("notify_failed")
		return accepted
	}

	w.logger.Info().
		Str("event_id", event.ID).
		Str("tier", resolved.ID).
		Str("recipient", event.Email).
		Msg("key provisioned and delivered")
	w.count("provisioned")
	return accepted
}

// release drops an event claim, logging a failure to do so.
func (w *WebhookIngestor) release(ctx context.Context, eventID string) {
	if err := w.events.Release(ctx, eventID); err != nil {
		w.logger.Error().Err(err).Str("event_id", eventID).Msg("failed to release event claim")
	}
}

func (w *WebhookIngestor) count(outcome string) {
	if w.metrics != nil {
		w.metrics.WebhookEvents.WithLabelValues(outcome).Inc()
	}
}
