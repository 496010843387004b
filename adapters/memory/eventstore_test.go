package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/artpar/promptgate/adapters/clock"
)

func newTestEventStore(t *testing.T, fake *clock.Fake) *EventStore {
	t.Helper()
	store := NewEventStore(EventStoreConfig{
		Retention:       90 * 24 * time.Hour,
		CleanupInterval: time.Hour,
		Clock:           fake,
	})
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEventStoreClaimOnce(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestEventStore(t, fake)
	ctx := context.Background()

	claimed, err := store.Claim(ctx, "evt_1")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if !claimed {
		t.Fatal("first Claim() = false, want true")
	}

	claimed, _ = store.Claim(ctx, "evt_1")
	if claimed {
		t.Error("second Claim() = true, want false")
	}

	// Different event IDs do not collide.
	claimed, _ = store.Claim(ctx, "evt_2")
	if !claimed {
		t.Error("Claim(evt_2) = false, want true")
	}
}

func TestEventStoreReleaseReopensClaim(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestEventStore(t, fake)
	ctx := context.Background()

	store.Claim(ctx, "evt_1")
	if err := store.Release(ctx, "evt_1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	claimed, _ := store.Claim(ctx, "evt_1")
	if !claimed {
		t.Error("Claim() after Release() = false, want true")
	}
}

func TestEventStoreCompleteIsPermanent(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestEventStore(t, fake)
	ctx := context.Background()

	store.Claim(ctx, "evt_1")
	if err := store.Complete(ctx, "evt_1"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	processed, _ := store.Processed(ctx, "evt_1")
	if !processed {
		t.Error("Processed() = false after Complete, want true")
	}

	// Release must not undo completion.
	store.Release(ctx, "evt_1")
	processed, _ = store.Processed(ctx, "evt_1")
	if !processed {
		t.Error("Processed() = false after Release of a completed event, want true")
	}
	if claimed, _ := store.Claim(ctx, "evt_1"); claimed {
		t.Error("Claim() of a completed event = true, want false")
	}
}

func TestEventStorePruneRetention(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestEventStore(t, fake)
	ctx := context.Background()

	store.Claim(ctx, "evt_old")
	store.Complete(ctx, "evt_old")
	store.Claim(ctx, "evt_pending") // claimed but never completed

	fake.Advance(91 * 24 * time.Hour)

	store.Claim(ctx, "evt_recent")
	store.Complete(ctx, "evt_recent")

	store.Prune()

	// The old completed event is gone and claimable again.
	if claimed, _ := store.Claim(ctx, "evt_old"); !claimed {
		t.Error("Claim(evt_old) after retention = false, want true")
	}
	// The recent completed event still blocks replays.
	if claimed, _ := store.Claim(ctx, "evt_recent"); claimed {
		t.Error("Claim(evt_recent) = true, want false")
	}
	// An in-flight claim is never pruned by retention.
	if claimed, _ := store.Claim(ctx, "evt_pending"); claimed {
		t.Error("Claim(evt_pending) = true, want false")
	}
}

func TestEventStoreClaimConcurrent(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := newTestEventStore(t, fake)
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.Claim(ctx, "evt_contested")
			if err != nil {
				t.Errorf("Claim() error = %v", err)
				return
			}
			if claimed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d concurrent claims won, want exactly 1", wins)
	}
}
