// Package quota provides pure functions for quota enforcement.
// All functions are deterministic with no side effects.
package quota

// Decision represents the outcome of a quota check (value type).
type Decision struct {
	Allowed   bool
	Count     int64 // usage after the check (unchanged when not allowed)
	Limit     int64 // -1 = unlimited
	Remaining int64 // -1 = unlimited, never negative otherwise
}

// Check decides whether one more request fits under the limit.
// The limit is a hard ceiling: at count == limit the request is rejected
// and the count must not advance. This is a PURE function; the atomic
// read-compare-increment lives in the counter stores.
func Check(count, limit int64) Decision {
	if limit < 0 {
		return Decision{
			Allowed:   true,
			Count:     count + 1,
			Limit:     limit,
			Remaining: -1,
		}
	}

	if count >= limit {
		return Decision{
			Allowed:   false,
			Count:     count,
			Limit:     limit,
			Remaining: 0,
		}
	}

	newCount := count + 1
	return Decision{
		Allowed:   true,
		Count:     newCount,
		Limit:     limit,
		Remaining: limit - newCount,
	}
}

// Remaining computes the requests left under a limit.
// Returns -1 for unlimited and never goes negative.
// This is a PURE function.
func Remaining(count, limit int64) int64 {
	if limit < 0 {
		return -1
	}
	if count >= limit {
		return 0
	}
	return limit - count
}
