// Package billing exposes the subscription lifecycle over HTTP: the provider
// webhook endpoint plus the JSON endpoints the payment and settings pages
// call. Authentication is handled upstream; the caller's identity reaches
// this package through an injected IdentityResolver.
package billing

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pressmark/pressmark/pkg/subscription"
)

// maxWebhookBody bounds webhook payload reads. Provider events stay well
// under this; anything larger is not a legitimate delivery.
const maxWebhookBody = 1 << 20

// Identity is the authenticated caller of a billing endpoint.
type Identity struct {
	UserID uuid.UUID
	Name   string
	Email  string
}

// IdentityResolver extracts the authenticated user from the request,
// typically from the session established by the auth middleware in front of
// this service. Returning false yields a 401 for user-scoped endpoints; the
// webhook endpoint never consults it.
type IdentityResolver func(r *http.Request) (Identity, bool)

type Handler struct {
	svc      subscription.Service
	identity IdentityResolver
	log      *slog.Logger
}

// NewHandler creates the billing HTTP handler.
// Panics if svc or identity is nil to fail fast during initialization.
func NewHandler(svc subscription.Service, identity IdentityResolver, log *slog.Logger) *Handler {
	if svc == nil {
		panic("billing: subscription service is required")
	}
	if identity == nil {
		panic("billing: identity resolver is required")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{svc: svc, identity: identity, log: log}
}

// Router returns the billing routes. The webhook route sits at the top level
// because the provider endpoint is configured once and never versioned with
// the rest of the API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/webhook", h.handleWebhook)
	r.Get("/billing/prices", h.handlePrices)
	r.Post("/billing/checkout", h.handleCheckout)
	r.Post("/billing/portal", h.handlePortal)
	r.Get("/billing/entitlement", h.handleEntitlement)
	r.Get("/billing/subscription", h.handleSubscriptions)
	return r
}

// handleWebhook accepts provider event deliveries. The signature is computed
// over the exact body bytes, so the body must be read raw before any
// decoding. Responds 200 "OK" for processed or harmlessly ignored events and
// 400 only when signature verification fails.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if err := h.svc.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		http.Error(w, "webhook signature verification failed", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) handlePrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.svc.Prices(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"prices": prices})
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	user, ok := h.identity(r)
	if !ok {
		h.respondErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var body struct {
		PriceID string `json:"price_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	secret, err := h.svc.BeginCheckout(r.Context(), subscription.CheckoutRequest{
		UserID:  user.UserID,
		Name:    user.Name,
		Email:   user.Email,
		PriceID: body.PriceID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"client_secret": secret})
}

func (h *Handler) handlePortal(w http.ResponseWriter, r *http.Request) {
	user, ok := h.identity(r)
	if !ok {
		h.respondErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	url, err := h.svc.BillingPortalURL(r.Context(), user.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	user, ok := h.identity(r)
	if !ok {
		h.respondErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ent := h.svc.Entitlement(r.Context(), user.UserID)

	resp := map[string]any{"entitled": ent.Entitled}
	if sub := ent.Subscription; sub != nil {
		resp["subscription"] = map[string]any{
			"status":               sub.Status,
			"price_id":             sub.PriceID,
			"current_period_end":   sub.CurrentPeriodEnd,
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
		}
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.identity(r)
	if !ok {
		h.respondErrorMessage(w, http.StatusUnauthorized, "authentication required")
		return
	}

	snaps, err := h.svc.ActiveSubscriptions(r.Context(), user.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	subs := make([]map[string]any, 0, len(snaps))
	for _, snap := range snaps {
		entry := map[string]any{
			"subscription_id":      snap.SubscriptionID,
			"price_id":             snap.PriceID,
			"status":               snap.Status,
			"current_period_end":   snap.CurrentPeriodEnd,
			"cancel_at_period_end": snap.CancelAtPeriodEnd,
		}
		if snap.DefaultPaymentMethod != nil {
			entry["default_payment_method"] = snap.DefaultPaymentMethod
		}
		subs = append(subs, entry)
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

// respondError maps core error kinds to HTTP statuses. Anything outside the
// small caller-facing set is a generic retryable failure; details go to the
// log, not the client.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		h.respondErrorMessage(w, http.StatusNotFound, "no subscription found")
	case errors.Is(err, subscription.ErrMissingPriceID),
		errors.Is(err, subscription.ErrMissingUserID),
		errors.Is(err, subscription.ErrNoClientSecret):
		h.respondErrorMessage(w, http.StatusBadRequest, err.Error())
	default:
		h.log.ErrorContext(r.Context(), "billing request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		h.respondErrorMessage(w, http.StatusInternalServerError, "something went wrong, please try again")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("failed to encode response", slog.Any("error", err))
	}
}

func (h *Handler) respondErrorMessage(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, map[string]string{"error": msg})
}
