// Package payment provides payment webhook value types and pure functions
// for signature verification and payload parsing.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Event types delivered by the payment provider.
const (
	EventCheckoutCompleted = "checkout.completed"
)

// Event represents a payment provider event (immutable value type).
type Event struct {
	ID      string // unique event identifier, used for deduplication
	Type    string
	PriceID string // maps to a tier
	Email   string // recipient for the provisioned key
}

// Sign computes the hex HMAC-SHA256 of a payload with the shared secret.
// This is a PURE function.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 signature over the exact raw
// payload bytes. Signatures are computed over the bytes as received, never
// a re-serialized form. This is a PURE function.
func VerifySignature(payload []byte, signature, secret string) bool {
	expected := Sign(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// wireEvent is the provider's JSON representation.
type wireEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	PriceID string `json:"price_id"`
	Email   string `json:"email"`
}

// Parse decodes a webhook payload into an Event.
// This is a PURE function.
func Parse(payload []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, fmt.Errorf("parse webhook payload: %w", err)
	}
	if w.ID == "" {
		return Event{}, errors.New("webhook payload missing event id")
	}
	if w.Type == "" {
		return Event{}, errors.New("webhook payload missing event type")
	}
	return Event{
		ID:      w.ID,
		Type:    w.Type,
		PriceID: w.PriceID,
		Email:   w.Email,
	}, nil
}

// IsProvisioning reports whether an event type drives key provisioning.
// All other event kinds are acknowledged and ignored.
// This is a PURE function.
func IsProvisioning(eventType string) bool {
	return eventType == EventCheckoutCompleted
}
