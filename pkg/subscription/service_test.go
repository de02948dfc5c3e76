package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pressmark/pressmark/pkg/subscription"
)

// Mock implementations
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCustomer(ctx context.Context, name, email string, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, name, email, userID)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateSubscription(ctx context.Context, customerID, priceID string, userID uuid.UUID) (*subscription.CheckoutSession, error) {
	args := m.Called(ctx, customerID, priceID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.CheckoutSession), args.Error(1)
}

func (m *mockGateway) GetSubscription(ctx context.Context, subscriptionID string) (*subscription.Snapshot, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Snapshot), args.Error(1)
}

func (m *mockGateway) GetInvoice(ctx context.Context, invoiceID string) (*subscription.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Invoice), args.Error(1)
}

func (m *mockGateway) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*subscription.PaymentIntent, error) {
	args := m.Called(ctx, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.PaymentIntent), args.Error(1)
}

func (m *mockGateway) ListPrices(ctx context.Context, lookupKeys []string) ([]subscription.Price, error) {
	args := m.Called(ctx, lookupKeys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.Price), args.Error(1)
}

func (m *mockGateway) ListActiveSubscriptions(ctx context.Context, customerID string) ([]subscription.Snapshot, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]subscription.Snapshot), args.Error(1)
}

func (m *mockGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	args := m.Called(ctx, customerID, returnURL)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) VerifyWebhook(payload []byte, signature string) (subscription.Event, error) {
	args := m.Called(payload, signature)
	return args.Get(0).(subscription.Event), args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, userID uuid.UUID) (*subscription.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockStore) Create(ctx context.Context, userID uuid.UUID, customerID string) (*subscription.Subscription, error) {
	args := m.Called(ctx, userID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Subscription), args.Error(1)
}

func (m *mockStore) ApplySnapshot(ctx context.Context, snap subscription.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

// Test helpers
func testPlans() subscription.PlansListSource {
	return subscription.NewInMemSource(
		subscription.Plan{
			ID:        "monthly",
			Name:      "Premium Monthly",
			LookupKey: "monthly",
			Public:    true,
		},
		subscription.Plan{
			ID:        "legacy",
			Name:      "Legacy Annual",
			LookupKey: "legacy_annual",
			Public:    false,
		},
	)
}

func newTestService(t *testing.T, gateway subscription.Gateway, store subscription.Store, opts ...subscription.ServiceOption) subscription.Service {
	t.Helper()
	svc, err := subscription.NewService(context.Background(), testPlans(), gateway, store, opts...)
	require.NoError(t, err)
	return svc
}

func fixedClock(now time.Time) subscription.ServiceOption {
	return subscription.WithClock(func() time.Time { return now })
}

func timePtr(t time.Time) *time.Time { return &t }

func TestService_Entitlement(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()

	t.Run("no user ID resolves to not entitled", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		svc := newTestService(t, &mockGateway{}, store, fixedClock(now))

		ent := svc.Entitlement(context.Background(), uuid.Nil)
		assert.False(t, ent.Entitled)
		assert.Nil(t, ent.Subscription)
		store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("no record resolves to not entitled", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("Get", mock.Anything, userID).Return(nil, subscription.ErrSubscriptionNotFound)
		svc := newTestService(t, &mockGateway{}, store, fixedClock(now))

		ent := svc.Entitlement(context.Background(), userID)
		assert.False(t, ent.Entitled)
		assert.Nil(t, ent.Subscription)
	})

	t.Run("lookup failure fails closed", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("Get", mock.Anything, userID).Return(nil, errors.New("connection refused"))
		svc := newTestService(t, &mockGateway{}, store, fixedClock(now))

		ent := svc.Entitlement(context.Background(), userID)
		assert.False(t, ent.Entitled)
	})

	t.Run("active subscription within period is entitled", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("Get", mock.Anything, userID).Return(&subscription.Subscription{
			UserID:           userID,
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: timePtr(now.Add(48 * time.Hour)),
		}, nil)
		svc := newTestService(t, &mockGateway{}, store, fixedClock(now))

		ent := svc.Entitlement(context.Background(), userID)
		assert.True(t, ent.Entitled)
		require.NotNil(t, ent.Subscription)
	})

	t.Run("expired beyond grace is not entitled", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("Get", mock.Anything, userID).Return(&subscription.Subscription{
			UserID:           userID,
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: timePtr(now.Add(-48 * time.Hour)),
		}, nil)
		svc := newTestService(t, &mockGateway{}, store, fixedClock(now))

		assert.False(t, svc.Entitlement(context.Background(), userID).Entitled)
	})

	t.Run("expired within grace window stays entitled", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("Get", mock.Anything, userID).Return(&subscription.Subscription{
			UserID:           userID,
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: timePtr(now.Add(-12 * time.Hour)),
		}, nil)
		svc := newTestService(t, &mockGateway{}, store, fixedClock(now))

		assert.True(t, svc.Entitlement(context.Background(), userID).Entitled)
	})

	t.Run("non-active status is never entitled", func(t *testing.T) {
		t.Parallel()
		store := &mockStore{}
		store.On("Get", mock.Anything, userID).Return(&subscription.Subscription{
			UserID:           userID,
			Status:           subscription.StatusPastDue,
			CurrentPeriodEnd: timePtr(now.Add(48 * time.Hour)),
		}, nil)
		svc := newTestService(t, &mockGateway{}, store, fixedClock(now))

		assert.False(t, svc.Entitlement(context.Background(), userID).Entitled)
	})
}

func TestService_BeginCheckout(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	req := subscription.CheckoutRequest{
		UserID:  userID,
		Name:    "Alice",
		Email:   "a@x.com",
		PriceID: "price_123",
	}

	t.Run("creates customer and subscription for new user", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		store := &mockStore{}

		store.On("Get", mock.Anything, userID).Return(nil, subscription.ErrSubscriptionNotFound)
		gateway.On("CreateCustomer", mock.Anything, "Alice", "a@x.com", userID).Return("cus_1", nil)
		store.On("Create", mock.Anything, userID, "cus_1").Return(&subscription.Subscription{
			UserID:     userID,
			CustomerID: "cus_1",
		}, nil)

		snap := subscription.Snapshot{
			SubscriptionID:     "sub_1",
			CustomerID:         "cus_1",
			PriceID:            "price_123",
			Status:             subscription.StatusIncomplete,
			CurrentPeriodStart: time.Now().UTC(),
			CurrentPeriodEnd:   time.Now().UTC().Add(30 * 24 * time.Hour),
		}
		gateway.On("CreateSubscription", mock.Anything, "cus_1", "price_123", userID).
			Return(&subscription.CheckoutSession{Snapshot: snap, ClientSecret: "pi_secret_1"}, nil)
		store.On("ApplySnapshot", mock.Anything, snap).Return(nil)

		svc := newTestService(t, gateway, store)

		secret, err := svc.BeginCheckout(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "pi_secret_1", secret)
		gateway.AssertExpectations(t)
		store.AssertExpectations(t)
	})

	t.Run("reuses incomplete subscription instead of creating a second one", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		store := &mockStore{}

		store.On("Get", mock.Anything, userID).Return(&subscription.Subscription{
			UserID:         userID,
			CustomerID:     "cus_1",
			SubscriptionID: "sub_1",
			Status:         subscription.StatusIncomplete,
		}, nil)
		gateway.On("GetSubscription", mock.Anything, "sub_1").
			Return(&subscription.Snapshot{SubscriptionID: "sub_1", LatestInvoiceID: "in_1"}, nil)
		gateway.On("GetInvoice", mock.Anything, "in_1").
			Return(&subscription.Invoice{ID: "in_1", PaymentIntentID: "pi_1"}, nil)
		gateway.On("GetPaymentIntent", mock.Anything, "pi_1").
			Return(&subscription.PaymentIntent{ID: "pi_1", ClientSecret: "pi_secret_existing"}, nil)

		svc := newTestService(t, gateway, store)

		secret, err := svc.BeginCheckout(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "pi_secret_existing", secret)
		gateway.AssertNotCalled(t, "CreateSubscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		gateway.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("replaces terminal subscription with a new one", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		store := &mockStore{}

		store.On("Get", mock.Anything, userID).Return(&subscription.Subscription{
			UserID:         userID,
			CustomerID:     "cus_1",
			SubscriptionID: "sub_old",
			Status:         subscription.StatusCanceled,
		}, nil)
		gateway.On("CreateSubscription", mock.Anything, "cus_1", "price_123", userID).
			Return(&subscription.CheckoutSession{
				Snapshot:     subscription.Snapshot{SubscriptionID: "sub_new", CustomerID: "cus_1"},
				ClientSecret: "pi_secret_new",
			}, nil)
		store.On("ApplySnapshot", mock.Anything, mock.Anything).Return(nil)

		svc := newTestService(t, gateway, store)

		secret, err := svc.BeginCheckout(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "pi_secret_new", secret)
	})

	t.Run("missing price ID", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t, &mockGateway{}, &mockStore{})

		_, err := svc.BeginCheckout(context.Background(), subscription.CheckoutRequest{UserID: userID})
		assert.ErrorIs(t, err, subscription.ErrMissingPriceID)
	})

	t.Run("missing user ID", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t, &mockGateway{}, &mockStore{})

		_, err := svc.BeginCheckout(context.Background(), subscription.CheckoutRequest{PriceID: "price_123"})
		assert.ErrorIs(t, err, subscription.ErrMissingUserID)
	})

	t.Run("missing client secret is a provider contract violation", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		store := &mockStore{}

		store.On("Get", mock.Anything, userID).Return(&subscription.Subscription{
			UserID:     userID,
			CustomerID: "cus_1",
		}, nil)
		gateway.On("CreateSubscription", mock.Anything, "cus_1", "price_123", userID).
			Return(&subscription.CheckoutSession{
				Snapshot: subscription.Snapshot{SubscriptionID: "sub_1", CustomerID: "cus_1"},
			}, nil)
		// The snapshot is still persisted before the secret check, so the
		// record never points at a customer with no known subscription.
		store.On("ApplySnapshot", mock.Anything, mock.Anything).Return(nil)

		svc := newTestService(t, gateway, store)

		_, err := svc.BeginCheckout(context.Background(), req)
		assert.ErrorIs(t, err, subscription.ErrNoClientSecret)
		store.AssertCalled(t, "ApplySnapshot", mock.Anything, mock.Anything)
	})

	t.Run("customer creation failure surfaces as provider error", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		store := &mockStore{}

		store.On("Get", mock.Anything, userID).Return(nil, subscription.ErrSubscriptionNotFound)
		gateway.On("CreateCustomer", mock.Anything, "Alice", "a@x.com", userID).
			Return("", errors.New("stripe: 503"))

		svc := newTestService(t, gateway, store)

		_, err := svc.BeginCheckout(context.Background(), req)
		assert.ErrorIs(t, err, subscription.ErrProviderUnavailable)
		store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestService_HandleWebhook(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"id":"evt_1"}`)

	t.Run("rejects bad signature without state change", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		store := &mockStore{}
		gateway.On("VerifyWebhook", payload, "bad-sig").
			Return(subscription.Event{}, errors.Join(subscription.ErrWebhookVerificationFailed, errors.New("hmac mismatch")))

		svc := newTestService(t, gateway, store)

		err := svc.HandleWebhook(context.Background(), payload, "bad-sig")
		assert.ErrorIs(t, err, subscription.ErrWebhookVerificationFailed)
		store.AssertNotCalled(t, "ApplySnapshot", mock.Anything, mock.Anything)
		gateway.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
	})

	t.Run("applies fetched snapshot and is idempotent", func(t *testing.T) {
		t.Parallel()
		userID := uuid.New()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		periodEnd := now.Add(30 * 24 * time.Hour)

		store := subscription.NewMemStore()
		_, err := store.Create(context.Background(), userID, "cus_1")
		require.NoError(t, err)

		snap := &subscription.Snapshot{
			SubscriptionID:     "sub_1",
			CustomerID:         "cus_1",
			PriceID:            "price_123",
			Status:             subscription.StatusActive,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   periodEnd,
		}
		gateway := &mockGateway{}
		gateway.On("VerifyWebhook", payload, "sig").
			Return(subscription.Event{Kind: subscription.EventSubscriptionUpdated, SubscriptionID: "sub_1"}, nil)
		gateway.On("GetSubscription", mock.Anything, "sub_1").Return(snap, nil)

		svc := newTestService(t, gateway, store, fixedClock(now))

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, "sig"))

		first, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, first.Status)
		assert.Equal(t, "sub_1", first.SubscriptionID)
		assert.Equal(t, "price_123", first.PriceID)
		require.NotNil(t, first.CurrentPeriodEnd)
		assert.True(t, first.CurrentPeriodEnd.Equal(periodEnd))

		// The freshly applied snapshot grants entitlement.
		assert.True(t, svc.Entitlement(context.Background(), userID).Entitled)

		// Redelivery of the same event yields an identical record.
		require.NoError(t, svc.HandleWebhook(context.Background(), payload, "sig"))
		second, err := store.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, first.Status, second.Status)
		assert.Equal(t, first.SubscriptionID, second.SubscriptionID)
		assert.Equal(t, first.PriceID, second.PriceID)
		assert.True(t, first.CurrentPeriodEnd.Equal(*second.CurrentPeriodEnd))
		assert.Equal(t, first.CancelAtPeriodEnd, second.CancelAtPeriodEnd)
	})

	t.Run("acknowledges unknown event kinds without action", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		store := &mockStore{}
		gateway.On("VerifyWebhook", payload, "sig").
			Return(subscription.Event{Kind: subscription.EventIgnored, ProviderEvent: "customer.created"}, nil)

		svc := newTestService(t, gateway, store)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, "sig"))
		gateway.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "ApplySnapshot", mock.Anything, mock.Anything)
	})

	t.Run("acknowledges snapshot fetch failures", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		store := &mockStore{}
		gateway.On("VerifyWebhook", payload, "sig").
			Return(subscription.Event{Kind: subscription.EventInvoicePaid, SubscriptionID: "sub_1"}, nil)
		gateway.On("GetSubscription", mock.Anything, "sub_1").Return(nil, errors.New("stripe: 502"))

		svc := newTestService(t, gateway, store)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, "sig"))
		store.AssertNotCalled(t, "ApplySnapshot", mock.Anything, mock.Anything)
	})

	t.Run("acknowledges apply failures", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		gateway.On("VerifyWebhook", payload, "sig").
			Return(subscription.Event{Kind: subscription.EventCheckoutCompleted, SubscriptionID: "sub_1"}, nil)
		gateway.On("GetSubscription", mock.Anything, "sub_1").
			Return(&subscription.Snapshot{SubscriptionID: "sub_1", CustomerID: "cus_unknown"}, nil)

		// Empty store: no record matches the snapshot's customer.
		svc := newTestService(t, gateway, subscription.NewMemStore())

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, "sig"))
	})

	t.Run("acknowledges verified but unparseable payloads", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		store := &mockStore{}
		gateway.On("VerifyWebhook", payload, "sig").
			Return(subscription.Event{}, errors.Join(subscription.ErrInvalidEventPayload, errors.New("unexpected end of JSON input")))

		svc := newTestService(t, gateway, store)

		require.NoError(t, svc.HandleWebhook(context.Background(), payload, "sig"))
		store.AssertNotCalled(t, "ApplySnapshot", mock.Anything, mock.Anything)
	})
}

func TestService_BillingPortalURL(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("requires an existing record", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		store := &mockStore{}
		store.On("Get", mock.Anything, userID).Return(nil, subscription.ErrSubscriptionNotFound)

		svc := newTestService(t, gateway, store)

		_, err := svc.BillingPortalURL(context.Background(), userID)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
		gateway.AssertNotCalled(t, "CreatePortalSession", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("mints portal URL for stored customer", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		store := &mockStore{}
		store.On("Get", mock.Anything, userID).Return(&subscription.Subscription{
			UserID:     userID,
			CustomerID: "cus_1",
		}, nil)
		gateway.On("CreatePortalSession", mock.Anything, "cus_1", "https://app.example.com/settings/billing").
			Return("https://billing.stripe.com/p/session_1", nil)

		svc := newTestService(t, gateway, store,
			subscription.WithPortalReturnURL("https://app.example.com/settings/billing"))

		url, err := svc.BillingPortalURL(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, "https://billing.stripe.com/p/session_1", url)
	})
}

func TestService_Prices(t *testing.T) {
	t.Parallel()

	t.Run("lists prices for public plans only", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		gateway.On("ListPrices", mock.Anything, []string{"monthly"}).
			Return([]subscription.Price{{ID: "price_123", LookupKey: "monthly", UnitAmount: 980, Currency: "jpy"}}, nil)

		svc := newTestService(t, gateway, &mockStore{})

		prices, err := svc.Prices(context.Background())
		require.NoError(t, err)
		require.Len(t, prices, 1)
		assert.Equal(t, "price_123", prices[0].ID)
	})
}

func TestService_ActiveSubscriptions(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("requires an existing record", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		store := &mockStore{}
		store.On("Get", mock.Anything, userID).Return(nil, subscription.ErrSubscriptionNotFound)

		svc := newTestService(t, gateway, store)

		_, err := svc.ActiveSubscriptions(context.Background(), userID)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("lists active subscriptions for stored customer", func(t *testing.T) {
		t.Parallel()
		gateway := &mockGateway{}
		store := &mockStore{}
		store.On("Get", mock.Anything, userID).Return(&subscription.Subscription{
			UserID:     userID,
			CustomerID: "cus_1",
		}, nil)
		gateway.On("ListActiveSubscriptions", mock.Anything, "cus_1").
			Return([]subscription.Snapshot{{
				SubscriptionID:       "sub_1",
				Status:               subscription.StatusActive,
				DefaultPaymentMethod: &subscription.PaymentMethod{Brand: "visa", Last4: "4242"},
			}}, nil)

		svc := newTestService(t, gateway, store)

		snaps, err := svc.ActiveSubscriptions(context.Background(), userID)
		require.NoError(t, err)
		require.Len(t, snaps, 1)
		require.NotNil(t, snaps[0].DefaultPaymentMethod)
		assert.Equal(t, "4242", snaps[0].DefaultPaymentMethod.Last4)
	})
}
