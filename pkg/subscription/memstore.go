package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store for tests and local development. It honors
// the same contract as the Postgres store: one record per user, a unique
// customer ID, and atomic whole-record writes.
type MemStore struct {
	mu         sync.RWMutex
	byUser     map[uuid.UUID]Subscription
	byCustomer map[string]uuid.UUID
}

func NewMemStore() *MemStore {
	return &MemStore{
		byUser:     make(map[uuid.UUID]Subscription),
		byCustomer: make(map[string]uuid.UUID),
	}
}

func (s *MemStore) Get(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.byUser[userID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (s *MemStore) Create(ctx context.Context, userID uuid.UUID, customerID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUser[userID]; ok {
		return nil, ErrSubscriptionExists
	}
	if _, ok := s.byCustomer[customerID]; ok {
		return nil, ErrSubscriptionExists
	}

	now := time.Now().UTC()
	sub := Subscription{
		UserID:     userID,
		CustomerID: customerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.byUser[userID] = sub
	s.byCustomer[customerID] = userID
	return &sub, nil
}

func (s *MemStore) ApplySnapshot(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.byCustomer[snap.CustomerID]
	if !ok {
		return ErrSubscriptionNotFound
	}

	sub := s.byUser[userID]
	sub.SubscriptionID = snap.SubscriptionID
	sub.PriceID = snap.PriceID
	sub.Status = snap.Status
	start, end := snap.CurrentPeriodStart, snap.CurrentPeriodEnd
	sub.CurrentPeriodStart = &start
	sub.CurrentPeriodEnd = &end
	sub.CancelAtPeriodEnd = snap.CancelAtPeriodEnd
	sub.UpdatedAt = time.Now().UTC()
	s.byUser[userID] = sub
	return nil
}
