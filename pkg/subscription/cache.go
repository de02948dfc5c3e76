package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CachedStore is a read-through cache decorator over a Store. Entitlement is
// resolved on every premium page view, so record reads dominate; records
// change only on checkout and webhook events, so a short TTL keeps the cache
// honest even when an invalidation is lost.
//
// Cache failures never fail the request: reads fall through to the inner
// store and write-side invalidation errors are only logged.
type CachedStore struct {
	inner  Store
	client redis.UniversalClient
	ttl    time.Duration
	log    *slog.Logger
}

func NewCachedStore(inner Store, client redis.UniversalClient, ttl time.Duration, log *slog.Logger) *CachedStore {
	if inner == nil {
		panic("subscription: inner store is required")
	}
	if client == nil {
		panic("subscription: redis client is required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl, log: log}
}

func userKey(userID uuid.UUID) string { return "subscription:user:" + userID.String() }
func customerKey(cusID string) string { return "subscription:customer:" + cusID }

func (s *CachedStore) Get(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	raw, err := s.client.Get(ctx, userKey(userID)).Bytes()
	if err == nil {
		var sub Subscription
		if err := json.Unmarshal(raw, &sub); err == nil {
			return &sub, nil
		}
		// Unreadable entry, drop it and fall through to the inner store.
		s.client.Del(ctx, userKey(userID))
	} else if !errors.Is(err, redis.Nil) {
		s.log.WarnContext(ctx, "subscription cache read failed", slog.Any("error", err))
	}

	sub, err := s.inner.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.set(ctx, sub)
	return sub, nil
}

func (s *CachedStore) Create(ctx context.Context, userID uuid.UUID, customerID string) (*Subscription, error) {
	sub, err := s.inner.Create(ctx, userID, customerID)
	if err != nil {
		return nil, err
	}
	s.set(ctx, sub)
	return sub, nil
}

// ApplySnapshot delegates, then invalidates instead of re-caching: the inner
// store owns the merged record and the next Get repopulates the entry.
func (s *CachedStore) ApplySnapshot(ctx context.Context, snap Snapshot) error {
	if err := s.inner.ApplySnapshot(ctx, snap); err != nil {
		return err
	}

	userID, err := s.client.Get(ctx, customerKey(snap.CustomerID)).Result()
	if err == nil {
		if err := s.client.Del(ctx, "subscription:user:"+userID, customerKey(snap.CustomerID)).Err(); err != nil {
			s.log.WarnContext(ctx, "subscription cache invalidation failed", slog.Any("error", err))
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.WarnContext(ctx, "subscription cache invalidation failed", slog.Any("error", err))
	}
	return nil
}

func (s *CachedStore) set(ctx context.Context, sub *Subscription) {
	raw, err := json.Marshal(sub)
	if err != nil {
		return
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, userKey(sub.UserID), raw, s.ttl)
	pipe.Set(ctx, customerKey(sub.CustomerID), sub.UserID.String(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.WarnContext(ctx, "subscription cache write failed", slog.Any("error", err))
	}
}
