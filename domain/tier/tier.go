// Package tier provides tier value types and pure functions.
package tier

// Unlimited is the sentinel for tiers without a monthly request ceiling.
const Unlimited int64 = -1

// Tier represents a service plan (immutable value type).
type Tier struct {
	ID               string
	Name             string
	RequestsPerMonth int64  // Unlimited (-1) = no ceiling
	PriceID          string // payment provider price identifier
}

// Find finds a tier by ID in a list.
// This is a PURE function.
func Find(tiers []Tier, id string) (Tier, bool) {
	for _, t := range tiers {
		if t.ID == id {
			return t, true
		}
	}
	return Tier{}, false
}

// ForPrice finds the tier mapped to a payment price identifier.
// This is a PURE function.
func ForPrice(tiers []Tier, priceID string) (Tier, bool) {
	if priceID == "" {
		return Tier{}, false
	}
	for _, t := range tiers {
		if t.PriceID == priceID {
			return t, true
		}
	}
	return Tier{}, false
}

// IsUnlimited checks if a tier has no monthly request ceiling.
// This is a PURE function.
func IsUnlimited(t Tier) bool {
	return t.RequestsPerMonth < 0
}
