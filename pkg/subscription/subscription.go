package subscription

import (
	"time"

	"github.com/google/uuid"
)

// DefaultGracePeriod is the tolerance added past a subscription's period end
// before paid access is revoked. It absorbs clock skew between the provider
// and this service as well as webhook delivery latency, so a user is not
// locked out at the exact expiry instant while the renewal event is in flight.
const DefaultGracePeriod = 24 * time.Hour

// Subscription is the locally persisted record of a user's billing state.
// Each user has at most one record, created lazily on the first checkout
// attempt and never deleted. Provider-owned fields (Status, PriceID, period
// bounds, CancelAtPeriodEnd) are a cache of external truth as of the last
// successfully applied snapshot, not local truth.
type Subscription struct {
	UserID             uuid.UUID // primary key - one record per user
	CustomerID         string    // provider customer ID; assigned once, never reassigned
	SubscriptionID     string    // provider subscription ID; empty until a subscription is created
	PriceID            string    // price of the most recently billed item
	Status             Status
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool // user requested cancellation effective at period end
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsIncomplete reports whether a previously started checkout was never
// finished. The checkout flow reuses such subscriptions instead of creating
// a second one to avoid double-charging.
func (s *Subscription) IsIncomplete() bool {
	return s.Status == StatusIncomplete
}

// EntitledAt reports whether the record grants paid access at the given
// instant. Access requires an active status and a period end that, extended
// by the grace window, is still in the future. Records without a known
// period end never grant access.
func (s *Subscription) EntitledAt(now time.Time, grace time.Duration) bool {
	if s.Status != StatusActive || s.CurrentPeriodEnd == nil {
		return false
	}
	return s.CurrentPeriodEnd.Add(grace).After(now)
}
