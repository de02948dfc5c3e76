package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Service defines the public interface for subscription lifecycle management.
//
// BeginCheckout and HandleWebhook both write to the store and may race on
// the same record; the store's atomic single-row writes make that safe, with
// last-writer-wins semantics. HandleWebhook is the source of truth for
// provider-side status transitions - BeginCheckout performs an initial,
// best-effort write that later webhook events confirm or overwrite.
type Service interface {
	// Entitlement resolves whether a user currently has paid access.
	// It never returns an error: lookup failures are logged and degrade to
	// "not entitled" so entitlement checks cannot break page rendering.
	Entitlement(ctx context.Context, userID uuid.UUID) Entitlement

	// BeginCheckout ensures a provider customer exists for the user, resumes
	// or creates a provider subscription for the requested price, and
	// returns the client secret the payment UI needs to confirm payment.
	BeginCheckout(ctx context.Context, req CheckoutRequest) (string, error)

	// HandleWebhook verifies and applies a provider webhook delivery.
	// It returns an error wrapped with ErrWebhookVerificationFailed on a bad
	// signature; any failure past verification is logged and swallowed so
	// the provider does not retry-storm the endpoint.
	HandleWebhook(ctx context.Context, payload []byte, signature string) error

	// BillingPortalURL mints a redirect URL to the provider-hosted
	// self-service billing page for the user's stored customer.
	// Returns ErrSubscriptionNotFound if the user never started a checkout.
	BillingPortalURL(ctx context.Context, userID uuid.UUID) (string, error)

	// Prices lists the provider prices for the catalog's public plans.
	Prices(ctx context.Context) ([]Price, error)

	// ActiveSubscriptions lists the user's active provider subscriptions
	// with their default payment method, for billing settings pages.
	ActiveSubscriptions(ctx context.Context, userID uuid.UUID) ([]Snapshot, error)
}

// PlansListSource defines how the plan catalog is loaded into the service.
type PlansListSource interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

type service struct {
	plans     map[string]Plan
	gateway   Gateway
	store     Store
	log       *slog.Logger
	now       func() time.Time
	grace     time.Duration
	returnURL string
}

// NewService creates a new Service with the given dependencies.
// Panics if required parameters (src, gateway, store) are nil to fail fast
// during initialization. Use ServiceOption functions to configure optional
// settings like the grace period or the portal return URL.
func NewService(ctx context.Context, src PlansListSource, gateway Gateway, store Store, opts ...ServiceOption) (Service, error) {
	if src == nil {
		panic("subscription: PlansListSource is required")
	}
	if gateway == nil {
		panic("subscription: Gateway is required")
	}
	if store == nil {
		panic("subscription: Store is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	s := &service{
		plans:   plans,
		gateway: gateway,
		store:   store,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
		grace:   DefaultGracePeriod,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Entitlement resolves paid access from the stored record and wall-clock
// time. Entitled requires an active status and a period end that, extended
// by the grace window, is still in the future.
func (s *service) Entitlement(ctx context.Context, userID uuid.UUID) Entitlement {
	if userID == uuid.Nil {
		return Entitlement{}
	}

	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrSubscriptionNotFound) {
			s.log.ErrorContext(ctx, "entitlement lookup failed",
				slog.String("user_id", userID.String()),
				slog.Any("error", err))
		}
		return Entitlement{}
	}

	return Entitlement{
		Subscription: sub,
		Entitled:     sub.EntitledAt(s.now(), s.grace),
	}
}

// BeginCheckout drives the synchronous half of the lifecycle:
//
//  1. Lazily create a provider customer and a customer-only record on the
//     user's first purchase attempt.
//  2. If a previously started checkout was never finished, reuse its
//     provider subscription instead of creating a second one - retrieve the
//     existing subscription, its latest invoice, and that invoice's payment
//     intent, and hand back the intent's client secret.
//  3. Otherwise create a new provider subscription in incomplete mode and
//     immediately persist its snapshot, so the record is never left
//     pointing at a customer with no known subscription.
func (s *service) BeginCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	if req.UserID == uuid.Nil {
		return "", ErrMissingUserID
	}
	if req.PriceID == "" {
		return "", ErrMissingPriceID
	}

	sub, err := s.store.Get(ctx, req.UserID)
	switch {
	case err == nil:
	case errors.Is(err, ErrSubscriptionNotFound):
		customerID, err := s.gateway.CreateCustomer(ctx, req.Name, req.Email, req.UserID)
		if err != nil {
			return "", errors.Join(ErrProviderUnavailable, err)
		}
		sub, err = s.store.Create(ctx, req.UserID, customerID)
		if err != nil {
			return "", err
		}
	default:
		return "", err
	}

	if sub.IsIncomplete() && sub.SubscriptionID != "" {
		return s.resumeCheckout(ctx, sub.SubscriptionID)
	}

	sess, err := s.gateway.CreateSubscription(ctx, sub.CustomerID, req.PriceID, req.UserID)
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}
	if err := s.store.ApplySnapshot(ctx, sess.Snapshot); err != nil {
		return "", err
	}
	if sess.ClientSecret == "" {
		return "", ErrNoClientSecret
	}
	return sess.ClientSecret, nil
}

// resumeCheckout recovers the client secret of a half-finished checkout by
// walking subscription -> latest invoice -> payment intent.
func (s *service) resumeCheckout(ctx context.Context, subscriptionID string) (string, error) {
	snap, err := s.gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}

	inv, err := s.gateway.GetInvoice(ctx, snap.LatestInvoiceID)
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}

	intent, err := s.gateway.GetPaymentIntent(ctx, inv.PaymentIntentID)
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}

	if intent.ClientSecret == "" {
		return "", ErrNoClientSecret
	}
	return intent.ClientSecret, nil
}

// HandleWebhook drives the asynchronous half of the lifecycle. The webhook
// payload carries only a reference to the subscription, so the current
// snapshot is fetched from the provider and upserted by customer ID.
//
// Only signature verification failures surface to the caller. Fetch and
// apply failures are logged and acknowledged: a missed update is recoverable
// by the next event, while a non-2xx response would trigger provider-side
// redelivery of every failing event.
func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, ErrWebhookVerificationFailed) {
			return err
		}
		s.log.ErrorContext(ctx, "webhook: event parsing failed", slog.Any("error", err))
		return nil
	}

	switch event.Kind {
	case EventCheckoutCompleted, EventInvoicePaid, EventSubscriptionUpdated:
	default:
		return nil
	}

	if event.SubscriptionID == "" {
		s.log.WarnContext(ctx, "webhook: event carries no subscription reference",
			slog.String("provider_event", event.ProviderEvent))
		return nil
	}

	snap, err := s.gateway.GetSubscription(ctx, event.SubscriptionID)
	if err != nil {
		s.log.ErrorContext(ctx, "webhook: snapshot fetch failed",
			slog.String("provider_event", event.ProviderEvent),
			slog.String("subscription_id", event.SubscriptionID),
			slog.Any("error", err))
		return nil
	}

	if err := s.store.ApplySnapshot(ctx, *snap); err != nil {
		s.log.ErrorContext(ctx, "webhook: snapshot apply failed",
			slog.String("provider_event", event.ProviderEvent),
			slog.String("customer_id", snap.CustomerID),
			slog.Any("error", err))
		return nil
	}

	s.log.InfoContext(ctx, "webhook: subscription snapshot applied",
		slog.String("provider_event", event.ProviderEvent),
		slog.String("subscription_id", snap.SubscriptionID),
		slog.String("status", string(snap.Status)))
	return nil
}

// BillingPortalURL requires an existing record: a subscription that was
// never started cannot be managed. No local state is mutated.
func (s *service) BillingPortalURL(ctx context.Context, userID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", ErrMissingUserID
	}

	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	url, err := s.gateway.CreatePortalSession(ctx, sub.CustomerID, s.returnURL)
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}
	return url, nil
}

// Prices lists provider prices by the lookup keys of the catalog's public
// plans, for rendering the pricing page.
func (s *service) Prices(ctx context.Context) ([]Price, error) {
	keys := make([]string, 0, len(s.plans))
	for _, plan := range s.plans {
		if plan.Public {
			keys = append(keys, plan.LookupKey)
		}
	}
	slices.Sort(keys)

	prices, err := s.gateway.ListPrices(ctx, keys)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	return prices, nil
}

// ActiveSubscriptions lists the user's active provider subscriptions with
// the default payment method expanded.
func (s *service) ActiveSubscriptions(ctx context.Context, userID uuid.UUID) ([]Snapshot, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUserID
	}

	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	snaps, err := s.gateway.ListActiveSubscriptions(ctx, sub.CustomerID)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	return snaps, nil
}
