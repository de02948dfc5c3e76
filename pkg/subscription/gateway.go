package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Gateway defines the minimal interface to the external billing provider.
// It is constructed explicitly and injected into the service so tests can
// substitute a fake implementation with scripted responses; no component
// reaches for an ambient provider client.
//
// Implementations should use the official provider SDK and keep
// provider-specific quirks (expansion syntax, metadata fields, signature
// schemes) behind this boundary.
type Gateway interface {
	// CreateCustomer registers a new provider customer carrying the user ID
	// as reconciliation metadata and returns the provider customer ID.
	CreateCustomer(ctx context.Context, name, email string, userID uuid.UUID) (string, error)

	// CreateSubscription creates a provider subscription in "incomplete,
	// requires payment confirmation" mode for the given price, with the
	// latest invoice and its payment intent expanded so the client secret
	// is available from the creation response.
	CreateSubscription(ctx context.Context, customerID, priceID string, userID uuid.UUID) (*CheckoutSession, error)

	// GetSubscription fetches the current snapshot of a provider subscription.
	GetSubscription(ctx context.Context, subscriptionID string) (*Snapshot, error)

	// GetInvoice fetches an invoice including its payment intent reference.
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)

	// GetPaymentIntent fetches a payment intent including its client secret.
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)

	// ListPrices lists provider prices matching the given lookup keys with
	// their product expanded.
	ListPrices(ctx context.Context, lookupKeys []string) ([]Price, error)

	// ListActiveSubscriptions lists a customer's active subscriptions with
	// the default payment method expanded.
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]Snapshot, error)

	// CreatePortalSession mints a provider-hosted self-service billing page
	// session scoped to the customer and returns its URL.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	// VerifyWebhook verifies the provider signature over the exact payload
	// bytes and parses the event. Signature mismatches are reported wrapped
	// with ErrWebhookVerificationFailed; a verified but unparseable payload
	// is wrapped with ErrInvalidEventPayload.
	VerifyWebhook(payload []byte, signature string) (Event, error)
}

// Snapshot is the full subscription state returned by the provider at a
// point in time. Applying a snapshot overwrites the local record, so
// applying the same snapshot twice yields the same record.
type Snapshot struct {
	SubscriptionID     string
	CustomerID         string
	PriceID            string // first line item's price
	Status             Status
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool

	// LatestInvoiceID references the invoice for the current billing cycle,
	// used to recover the payment intent of an unfinished checkout.
	LatestInvoiceID string

	// DefaultPaymentMethod is populated only by ListActiveSubscriptions.
	DefaultPaymentMethod *PaymentMethod
}

// CheckoutSession is the result of creating a provider subscription in
// incomplete mode: the snapshot to persist plus the client secret the
// payment UI needs to confirm payment directly against the provider.
type CheckoutSession struct {
	Snapshot     Snapshot
	ClientSecret string
}

// Invoice is the subset of a provider invoice the checkout flow needs.
type Invoice struct {
	ID              string
	PaymentIntentID string
}

// PaymentIntent is the subset of a provider payment intent the checkout
// flow needs.
type PaymentIntent struct {
	ID           string
	ClientSecret string
}

// Price describes a purchasable provider price with its product expanded.
type Price struct {
	ID          string `json:"id"`
	LookupKey   string `json:"lookup_key"`
	Currency    string `json:"currency"`
	UnitAmount  int64  `json:"unit_amount"`
	Interval    string `json:"interval,omitempty"`
	ProductName string `json:"product_name,omitempty"`
}

// PaymentMethod describes a card on file, for display on billing pages.
type PaymentMethod struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
}

// EventKind is the closed set of webhook event kinds this service acts on.
// Every other provider event maps to EventIgnored: unknown kinds are
// acknowledged without action so new provider events never fail the webhook.
type EventKind string

const (
	// EventCheckoutCompleted fires when the initial payment succeeds.
	EventCheckoutCompleted EventKind = "checkout_completed"
	// EventInvoicePaid fires when a recurring invoice is paid.
	EventInvoicePaid EventKind = "invoice_paid"
	// EventSubscriptionUpdated fires when the provider-side subscription
	// details change (plan switch, cancellation scheduling, status moves).
	EventSubscriptionUpdated EventKind = "subscription_updated"
	// EventIgnored marks every event kind this service takes no action on.
	EventIgnored EventKind = "ignored"
)

// Event is a verified, normalized webhook event. The payload carries only a
// reference to the subscription, not full state; the reconciler fetches the
// current snapshot before applying.
type Event struct {
	Kind           EventKind
	ProviderEvent  string // original provider event name
	SubscriptionID string // referenced provider subscription; empty for ignored events
}
