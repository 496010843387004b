package email

import (
	"context"
	"fmt"
	"sync"

	"github.com/artpar/promptgate/ports"
)

// MockNotifier is a notifier for testing.
// It stores notifications in memory instead of sending them.
type MockNotifier struct {
	mu    sync.Mutex
	sent  []SentNotification
	fail  bool
	errIs error
}

// SentNotification records one delivered notification.
type SentNotification struct {
	Recipient string
	APIKey    string
	TierName  string
}

// NewMockNotifier creates a new mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Send stores the notification in memory.
func (m *MockNotifier) Send(ctx context.Context, recipient, apiKey, tierName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		if m.errIs != nil {
			return m.errIs
		}
		return fmt.Errorf("mock notification failure")
	}

	m.sent = append(m.sent, SentNotification{
		Recipient: recipient,
		APIKey:    apiKey,
		TierName:  tierName,
	})
	return nil
}

// Sent returns all stored notifications.
func (m *MockNotifier) Sent() []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]SentNotification, len(m.sent))
	copy(result, m.sent)
	return result
}

// Count returns the number of notifications sent.
func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// SetShouldFail configures the mock to fail on all send attempts.
func (m *MockNotifier) SetShouldFail(fail bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
	m.errIs = err
}

// Ensure interface compliance.
var _ ports.Notifier = (*MockNotifier)(nil)
