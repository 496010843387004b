package email

import (
	"context"

	"github.com/artpar/promptgate/ports"
)

// NoopNotifier is a no-op notifier for when email is disabled.
type NoopNotifier struct{}

// NewNoopNotifier creates a new no-op notifier.
func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

// Send does nothing.
func (n *NoopNotifier) Send(ctx context.Context, recipient, apiKey, tierName string) error {
	return nil
}

// Ensure interface compliance.
var _ ports.Notifier = (*NoopNotifier)(nil)
