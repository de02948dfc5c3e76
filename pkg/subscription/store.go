package subscription

import (
	"context"

	"github.com/google/uuid"
)

// Store defines persistence for subscription records. Each user has at most
// one record, so UserID serves as the primary key with a secondary unique
// constraint on CustomerID.
//
// The two-path upsert contract is deliberate: Create inserts the
// customer-only row during first checkout, ApplySnapshot overwrites the
// provider-owned fields of the row matched by customer ID. Both are single
// atomic writes; concurrent writers race with last-writer-wins semantics and
// never produce a half-written record.
type Store interface {
	// Get retrieves the record for a user.
	// Returns ErrSubscriptionNotFound if none exists.
	Get(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Create inserts a new record holding only the user and customer
	// identity, before any provider subscription exists.
	// Returns ErrSubscriptionExists if the user already has a record.
	Create(ctx context.Context, userID uuid.UUID, customerID string) (*Subscription, error)

	// ApplySnapshot overwrites the provider-owned fields of the record
	// matched by snap.CustomerID in a single atomic write. Applying the
	// same snapshot twice yields the same record.
	// Returns ErrSubscriptionNotFound if no record matches.
	ApplySnapshot(ctx context.Context, snap Snapshot) error
}
