package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/promptgate/ports"
)

// eventState tracks the lifecycle of one event ID.
type eventState struct {
	completed   bool
	completedAt time.Time
}

// EventStore is an in-memory implementation of ports.EventStore.
// Completed event IDs are retained for a bounded window and pruned by a
// background loop, keeping the idempotency record from growing forever.
type EventStore struct {
	mu     sync.Mutex
	events map[string]eventState

	retention time.Duration
	clock     ports.Clock
	cleanup   *time.Ticker
	done      chan struct{}
}

// EventStoreConfig configures the event store.
type EventStoreConfig struct {
	Retention       time.Duration // how long completed events block replays (default: 90 days)
	CleanupInterval time.Duration // how often to prune (default: 1h)
	Clock           ports.Clock
}

// NewEventStore creates a new in-memory event store.
func NewEventStore(cfg EventStoreConfig) *EventStore {
	if cfg.Retention <= 0 {
		cfg.Retention = 90 * 24 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}

	s := &EventStore{
		events:    make(map[string]eventState),
		retention: cfg.Retention,
		clock:     cfg.Clock,
		done:      make(chan struct{}),
	}

	s.cleanup = time.NewTicker(cfg.CleanupInterval)
	go s.cleanupLoop()

	return s
}

// Claim atomically marks an event as in-flight.
func (s *EventStore) Claim(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.events[eventID]; seen {
		return false, nil
	}
	s.events[eventID] = eventState{}
	return true, nil
}

// Complete marks a claimed event as fully processed.
func (s *EventStore) Complete(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[eventID] = eventState{completed: true, completedAt: s.clock.Now()}
	return nil
}

// Release drops an unfinished claim so the event can be retried.
// Completed events are never released.
func (s *EventStore) Release(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.events[eventID]; ok && !st.completed {
		delete(s.events, eventID)
	}
	return nil
}

// Processed reports whether an event has been fully processed.
func (s *EventStore) Processed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.events[eventID]
	return ok && st.completed, nil
}

// cleanupLoop periodically prunes completed events past retention.
func (s *EventStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanup.C:
			s.prune()
		case <-s.done:
			return
		}
	}
}

// prune removes completed events older than the retention window.
func (s *EventStore) prune() {
	cutoff := s.clock.Now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.events {
		if st.completed && st.completedAt.Before(cutoff) {
			delete(s.events, id)
		}
	}
}

// Prune runs a prune pass immediately (for testing).
func (s *EventStore) Prune() {
	s.prune()
}

// Close stops the cleanup goroutine.
func (s *EventStore) Close() error {
	close(s.done)
	s.cleanup.Stop()
	return nil
}

// Len returns the number of tracked events (for testing).
func (s *EventStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Ensure interface compliance.
var _ ports.EventStore = (*EventStore)(nil)
