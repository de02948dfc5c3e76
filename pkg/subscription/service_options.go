package subscription

import (
	"log/slog"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithLogger sets the logger used for degraded-path reporting (entitlement
// lookup failures, swallowed webhook errors). Nil loggers are ignored.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the wall-clock source used by entitlement resolution.
// This is intended for tests that need deterministic time.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithGracePeriod overrides the tolerance window added past a period end
// before entitlement is revoked. Non-positive values are ignored.
func WithGracePeriod(grace time.Duration) ServiceOption {
	return func(s *service) {
		if grace > 0 {
			s.grace = grace
		}
	}
}

// WithPortalReturnURL sets the URL the provider-hosted billing portal
// redirects back to, typically the application's billing settings page.
func WithPortalReturnURL(url string) ServiceOption {
	return func(s *service) {
		s.returnURL = url
	}
}
