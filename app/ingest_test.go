package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/artpar/promptgate/adapters/clock"
	"github.com/artpar/promptgate/adapters/email"
	"github.com/artpar/promptgate/adapters/memory"
	"github.com/artpar/promptgate/domain/payment"
	"github.com/rs/zerolog"
)

const webhookSecret = "whsec_test"

type ingestFixture struct {
	ingestor *WebhookIngestor
	pools    *memory.PoolStore
	keys     *memory.KeyStore
	counters *memory.CounterStore
	events   *memory.EventStore
	notifier *email.MockNotifier
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()

	f := &ingestFixture{
		pools:    memory.NewPoolStore(),
		keys:     memory.NewKeyStore(nil),
		counters: memory.NewCounterStore(4),
		notifier: email.NewMockNotifier(),
	}
	f.events = memory.NewEventStore(memory.EventStoreConfig{Clock: clock.Real{}})
	t.Cleanup(func() { f.events.Close() })

	provisioner := NewProvisioner(f.pools, f.keys, f.counters, nil, zerolog.Nop())
	f.ingestor = NewWebhookIngestor(IngestorDeps{
		Secret:      webhookSecret,
		Events:      f.events,
		Provisioner: provisioner,
		Notifier:    f.notifier,
		Tiers:       staticTiers,
		Logger:      zerolog.Nop(),
	})
	return f
}

// deliver signs and submits a payload the way the provider would.
func (f *ingestFixture) deliver(payload string) Outcome {
	raw := []byte(payload)
	return f.ingestor.Handle(context.Background(), raw, payment.Sign(raw, webhookSecret))
}

func checkoutPayload(eventID, priceID, recipient string) string {
	return fmt.Sprintf(`{"id":%q,"type":"checkout.completed","price_id":%q,"email":%q}`,
		eventID, priceID, recipient)
}

func TestIngestorProvisionsKey(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.pools.Seed(ctx, "pro", []string{"key-new"})

	outcome := f.deliver(checkoutPayload("evt_1", "price_pro", "buyer@example.com"))
	if !outcome.Accepted {
		t.Fatalf("outcome = %+v, want accepted", outcome)
	}

	tierID, ok, _ := f.keys.Resolve(ctx, "key-new")
	if !ok || tierID != "pro" {
		t.Errorf("allocated key resolves to (%q, %v), want (pro, true)", tierID, ok)
	}

	sent := f.notifier.Sent()
	if len(sent) != 1 {
		t.Fatalf("notifications sent = %d, want 1", len(sent))
	}
	if sent[0].Recipient != "buyer@example.com" || sent[0].APIKey != "key-new" || sent[0].TierName != "Pro" {
		t.Errorf("notification = %+v, want buyer@example.com/key-new/Pro", sent[0])
	}

	if processed, _ := f.events.Processed(ctx, "evt_1"); !processed {
		t.Error("event not marked processed after successful provisioning")
	}
}

func TestIngestorRejectsBadSignature(t *testing.T) {
	f := newIngestFixture(t)
	f.pools.Seed(context.Background(), "pro", []string{"key-new"})

	payload := []byte(checkoutPayload("evt_1", "price_pro", "a@b.com"))
	outcome := f.ingestor.Handle(context.Background(), payload, "bad-signature")
	if outcome.Accepted || outcome.Reason != ReasonInvalidSignature {
		t.Errorf("outcome = %+v, want rejected %q", outcome, ReasonInvalidSignature)
	}

	// No side effects at all.
	if size, _ := f.pools.Size(context.Background(), "pro"); size != 1 {
		t.Errorf("pool size = %d after rejected delivery, want 1", size)
	}
	if f.notifier.Count() != 0 {
		t.Errorf("notifications = %d, want 0", f.notifier.Count())
	}
}

func TestIngestorRejectsTamperedPayload(t *testing.T) {
	f := newIngestFixture(t)

	original := []byte(checkoutPayload("evt_1", "price_basic", "a@b.com"))
	tampered := []byte(checkoutPayload("evt_1", "price_ent", "a@b.com"))

	outcome := f.ingestor.Handle(context.Background(), tampered, payment.Sign(original, webhookSecret))
	if outcome.Accepted || outcome.Reason != ReasonInvalidSignature {
		t.Errorf("outcome = %+v, want rejected %q", outcome, ReasonInvalidSignature)
	}
}

func TestIngestorRejectsInvalidPayload(t *testing.T) {
	f := newIngestFixture(t)

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", "not json"},
		{"missing id", `{"type":"checkout.completed","price_id":"price_pro","email":"a@b.com"}`},
		{"missing email", `{"id":"evt_1","type":"checkout.completed","price_id":"price_pro"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := f.deliver(tt.payload)
			if outcome.Accepted || outcome.Reason != ReasonInvalidPayload {
				t.Errorf("outcome = %+v, want rejected %q", outcome, ReasonInvalidPayload)
			}
		})
	}
}

func TestIngestorIgnoresOtherEventTypes(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.pools.Seed(ctx, "pro", []string{"key-new"})

	outcome := f.deliver(`{"id":"evt_1","type":"invoice.paid","price_id":"price_pro","email":"a@b.com"}`)
	if !outcome.Accepted {
		t.Fatalf("outcome = %+v, want accepted", outcome)
	}

	if size, _ := f.pools.Size(ctx, "pro"); size != 1 {
		t.Errorf("pool size = %d, want 1 (untouched)", size)
	}
	if f.notifier.Count() != 0 {
		t.Errorf("notifications = %d, want 0", f.notifier.Count())
	}
	// Ignored events are not recorded: a later checkout reusing nothing.
	if processed, _ := f.events.Processed(ctx, "evt_1"); processed {
		t.Error("ignored event marked processed")
	}
}

func TestIngestorDeduplicatesReplays(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.pools.Seed(ctx, "pro", []string{"key-1", "key-2"})

	payload := checkoutPayload("evt_1", "price_pro", "a@b.com")
	for i := 0; i < 3; i++ {
		outcome := f.deliver(payload)
		if !outcome.Accepted {
			t.Fatalf("delivery %d: outcome = %+v, want accepted", i+1, outcome)
		}
	}

	// One key left the pool, one notification went out.
	if size, _ := f.pools.Size(ctx, "pro"); size != 1 {
		t.Errorf("pool size = %d after replays, want 1", size)
	}
	if f.notifier.Count() != 1 {
		t.Errorf("notifications = %d after replays, want 1", f.notifier.Count())
	}
}

func TestIngestorUnknownPlan(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.pools.Seed(ctx, "pro", []string{"key-new"})

	outcome := f.deliver(checkoutPayload("evt_1", "price_never_configured", "a@b.com"))
	if outcome.Accepted || outcome.Reason != ReasonUnknownPlan {
		t.Errorf("outcome = %+v, want rejected %q", outcome, ReasonUnknownPlan)
	}
	if size, _ := f.pools.Size(ctx, "pro"); size != 1 {
		t.Errorf("pool size = %d, want 1 (untouched)", size)
	}

	// The claim is released: a redelivery after a config fix completes.
	if claimed, _ := f.events.Claim(ctx, "evt_1"); !claimed {
		t.Error("event claim not released after unknown plan rejection")
	}
}

func TestIngestorPoolExhausted(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	payload := checkoutPayload("evt_1", "price_pro", "a@b.com")
	outcome := f.deliver(payload)
	if !outcome.Accepted {
		t.Fatalf("outcome = %+v, want accepted (payment succeeded, provisioning backlogged)", outcome)
	}
	if f.notifier.Count() != 0 {
		t.Errorf("notifications = %d, want 0", f.notifier.Count())
	}

	// After an operator refills the pool, replaying the same event
	// finishes the provisioning.
	f.pools.Seed(ctx, "pro", []string{"key-refill"})
	outcome = f.deliver(payload)
	if !outcome.Accepted {
		t.Fatalf("replay outcome = %+v, want accepted", outcome)
	}
	if f.notifier.Count() != 1 {
		t.Errorf("notifications after refill replay = %d, want 1", f.notifier.Count())
	}
	tierID, ok, _ := f.keys.Resolve(ctx, "key-refill")
	if !ok || tierID != "pro" {
		t.Errorf("Resolve(key-refill) = (%q, %v), want (pro, true)", tierID, ok)
	}
}

func TestIngestorNotificationFailureKeepsKey(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	f.pools.Seed(ctx, "pro", []string{"key-1", "key-2"})
	f.notifier.SetShouldFail(true, nil)

	payload := checkoutPayload("evt_1", "price_pro", "a@b.com")
	outcome := f.deliver(payload)
	if !outcome.Accepted {
		t.Fatalf("outcome = %+v, want accepted despite notification failure", outcome)
	}

	// The key stays allocated and registered.
	if _, ok, _ := f.keys.Resolve(ctx, "key-1"); !ok {
		t.Error("allocated key lost after notification failure")
	}
	if size, _ := f.pools.Size(ctx, "pro"); size != 1 {
		t.Errorf("pool size = %d, want 1", size)
	}

	// The event is processed: a provider retry must not allocate again.
	f.notifier.SetShouldFail(false, nil)
	f.deliver(payload)
	if size, _ := f.pools.Size(ctx, "pro"); size != 1 {
		t.Errorf("pool size = %d after retry, want 1 (no second allocation)", size)
	}
	if f.notifier.Count() != 0 {
		t.Errorf("notifications = %d after retry, want 0 (manual resend path)", f.notifier.Count())
	}
}
