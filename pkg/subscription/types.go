package subscription

import "github.com/google/uuid"

// Status represents the provider's subscription state. The set of values is
// owned by the provider and treated as opaque; the constants below cover the
// states this service branches on or that commonly appear in snapshots.
type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusActive     Status = "active"
	StatusTrialing   Status = "trialing"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusUnpaid     Status = "unpaid"
)

// Entitlement is the result of resolving a user's paid access. It is always
// derived from the stored record and wall-clock time, never persisted.
type Entitlement struct {
	Subscription *Subscription
	Entitled     bool
}

// CheckoutRequest carries the data needed to begin a checkout for a plan.
// Name and Email seed the provider customer on first purchase.
type CheckoutRequest struct {
	UserID  uuid.UUID
	Name    string
	Email   string
	PriceID string
}
