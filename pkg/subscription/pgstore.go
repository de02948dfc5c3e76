package subscription

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pressmark/pressmark/pkg/pg"
)

// PostgresStore persists subscription records in the subscriptions table
// (see migrations/). Every write is a single-row statement, so concurrent
// checkout and webhook writers rely on Postgres row atomicity instead of an
// application-level lock.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("subscription: pgx pool is required")
	}
	return &PostgresStore{pool: pool}
}

const subscriptionColumns = `user_id, customer_id, subscription_id, price_id, status,
	current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)

	var (
		sub                    Subscription
		subID, priceID, status *string
	)
	err := row.Scan(&sub.UserID, &sub.CustomerID, &subID, &priceID, &status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	if subID != nil {
		sub.SubscriptionID = *subID
	}
	if priceID != nil {
		sub.PriceID = *priceID
	}
	if status != nil {
		sub.Status = Status(*status)
	}
	return &sub, nil
}

func (s *PostgresStore) Create(ctx context.Context, userID uuid.UUID, customerID string) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO subscriptions (user_id, customer_id)
		 VALUES ($1, $2)
		 RETURNING created_at, updated_at`, userID, customerID)

	sub := Subscription{UserID: userID, CustomerID: customerID}
	if err := row.Scan(&sub.CreatedAt, &sub.UpdatedAt); err != nil {
		if pg.IsDuplicateKeyError(err) {
			return nil, ErrSubscriptionExists
		}
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return &sub, nil
}

func (s *PostgresStore) ApplySnapshot(ctx context.Context, snap Snapshot) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions
		 SET subscription_id = $2,
		     price_id = $3,
		     status = $4,
		     current_period_start = $5,
		     current_period_end = $6,
		     cancel_at_period_end = $7,
		     updated_at = now()
		 WHERE customer_id = $1`,
		snap.CustomerID, snap.SubscriptionID, snap.PriceID, string(snap.Status),
		snap.CurrentPeriodStart, snap.CurrentPeriodEnd, snap.CancelAtPeriodEnd)
	if err != nil {
		return fmt.Errorf("apply subscription snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}
