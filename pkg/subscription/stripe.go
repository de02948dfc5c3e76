package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v81"
	portalsession "github.com/stripe/stripe-go/v81/billingportal/session"
	"github.com/stripe/stripe-go/v81/customer"
	"github.com/stripe/stripe-go/v81/invoice"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/price"
	sub "github.com/stripe/stripe-go/v81/subscription"
	"github.com/stripe/stripe-go/v81/webhook"
)

// StripeConfig holds configuration for the Stripe billing gateway.
type StripeConfig struct {
	APIKey        string `env:"STRIPE_API_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// StripeGateway implements Gateway on top of the official Stripe SDK.
type StripeGateway struct {
	webhookSecret string
}

// NewStripeGateway creates a new Stripe billing gateway.
// The API key is installed as the SDK client key; the webhook secret stays
// local to the gateway for signature verification.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	stripe.Key = cfg.APIKey

	return &StripeGateway{webhookSecret: cfg.WebhookSecret}, nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, name, email string, userID uuid.UUID) (string, error) {
	params := &stripe.CustomerParams{
		Name:  stripe.String(name),
		Email: stripe.String(email),
	}
	params.Context = ctx
	// user_id metadata lets provider-side records be traced back to the
	// local user during manual reconciliation.
	params.AddMetadata("user_id", userID.String())

	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, customerID, priceID string, userID uuid.UUID) (*CheckoutSession, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		// default_incomplete defers payment to the in-browser confirmation
		// step; the subscription stays incomplete until the intent succeeds.
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID.String())
	params.AddExpand("latest_invoice.payment_intent")

	created, err := sub.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe subscription: %w", err)
	}

	sess := &CheckoutSession{Snapshot: snapshotFromStripe(created)}
	if created.LatestInvoice != nil && created.LatestInvoice.PaymentIntent != nil {
		sess.ClientSecret = created.LatestInvoice.PaymentIntent.ClientSecret
	}
	return sess, nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*Snapshot, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	current, err := sub.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve stripe subscription %s: %w", subscriptionID, err)
	}
	snap := snapshotFromStripe(current)
	return &snap, nil
}

func (g *StripeGateway) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	params := &stripe.InvoiceParams{}
	params.Context = ctx

	inv, err := invoice.Get(invoiceID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve stripe invoice %s: %w", invoiceID, err)
	}

	out := &Invoice{ID: inv.ID}
	if inv.PaymentIntent != nil {
		out.PaymentIntentID = inv.PaymentIntent.ID
	}
	return out, nil
}

func (g *StripeGateway) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := paymentintent.Get(paymentIntentID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve stripe payment intent %s: %w", paymentIntentID, err)
	}
	return &PaymentIntent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (g *StripeGateway) ListPrices(ctx context.Context, lookupKeys []string) ([]Price, error) {
	params := &stripe.PriceListParams{
		LookupKeys: stripe.StringSlice(lookupKeys),
	}
	params.Context = ctx
	params.AddExpand("data.product")

	var prices []Price
	it := price.List(params)
	for it.Next() {
		p := it.Price()
		out := Price{
			ID:         p.ID,
			LookupKey:  p.LookupKey,
			Currency:   string(p.Currency),
			UnitAmount: p.UnitAmount,
		}
		if p.Recurring != nil {
			out.Interval = string(p.Recurring.Interval)
		}
		if p.Product != nil {
			out.ProductName = p.Product.Name
		}
		prices = append(prices, out)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list stripe prices: %w", err)
	}
	return prices, nil
}

func (g *StripeGateway) ListActiveSubscriptions(ctx context.Context, customerID string) ([]Snapshot, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.AddExpand("data.default_payment_method")

	var snaps []Snapshot
	it := sub.List(params)
	for it.Next() {
		current := it.Subscription()
		snap := snapshotFromStripe(current)
		if pm := current.DefaultPaymentMethod; pm != nil && pm.Card != nil {
			snap.DefaultPaymentMethod = &PaymentMethod{
				ID:       pm.ID,
				Brand:    string(pm.Card.Brand),
				Last4:    pm.Card.Last4,
				ExpMonth: pm.Card.ExpMonth,
				ExpYear:  pm.Card.ExpYear,
			}
		}
		snaps = append(snaps, snap)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list stripe subscriptions: %w", err)
	}
	return snaps, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe billing portal session: %w", err)
	}
	return sess.URL, nil
}

// VerifyWebhook recomputes the signature over the exact payload bytes and
// maps the event onto the closed EventKind set. Events this service does not
// handle come back as EventIgnored rather than an error.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return Event{}, errors.Join(ErrWebhookVerificationFailed, err)
	}
	return eventFromStripe(ev)
}

func eventFromStripe(ev stripe.Event) (Event, error) {
	out := Event{Kind: EventIgnored, ProviderEvent: string(ev.Type)}

	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return Event{}, errors.Join(ErrInvalidEventPayload, err)
		}
		out.Kind = EventCheckoutCompleted
		if sess.Subscription != nil {
			out.SubscriptionID = sess.Subscription.ID
		}

	case stripe.EventTypeInvoicePaymentSucceeded:
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return Event{}, errors.Join(ErrInvalidEventPayload, err)
		}
		out.Kind = EventInvoicePaid
		if inv.Subscription != nil {
			out.SubscriptionID = inv.Subscription.ID
		}

	case stripe.EventTypeCustomerSubscriptionUpdated:
		var updated stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &updated); err != nil {
			return Event{}, errors.Join(ErrInvalidEventPayload, err)
		}
		out.Kind = EventSubscriptionUpdated
		out.SubscriptionID = updated.ID
	}

	return out, nil
}

func snapshotFromStripe(s *stripe.Subscription) Snapshot {
	snap := Snapshot{
		SubscriptionID:     s.ID,
		Status:             Status(s.Status),
		CurrentPeriodStart: time.Unix(s.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(s.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		snap.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		snap.PriceID = s.Items.Data[0].Price.ID
	}
	if s.LatestInvoice != nil {
		snap.LatestInvoiceID = s.LatestInvoice.ID
	}
	return snap
}
