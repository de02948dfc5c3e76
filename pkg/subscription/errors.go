package subscription

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("subscription already exists")

	ErrMissingUserID  = errors.New("user ID is required")
	ErrMissingPriceID = errors.New("price ID is required")

	// ErrNoClientSecret indicates the provider response carried no payment
	// intent client secret. This is a contract violation of the provider
	// response, not a recoverable local state.
	ErrNoClientSecret = errors.New("no client secret returned from provider")

	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
	ErrInvalidEventPayload       = errors.New("invalid webhook event payload")
	ErrProviderUnavailable       = errors.New("billing provider request failed")

	ErrPlanNotFound             = errors.New("subscription plan not found")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")

	// Provider-specific errors
	ErrMissingAPIKey        = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret = errors.New("billing provider webhook secret is required")
)
