// Package subscription keeps a locally persisted subscription record
// consistent with the state held by an external billing provider.
//
// The provider communicates state changes asynchronously through webhooks
// while the client drives changes synchronously through checkout, and both
// paths race on the same record. The package resolves that tension with a
// small set of rules:
//
//   - The record is a cache of provider truth. Provider-owned fields are
//     authoritative only as of the last successfully applied snapshot.
//   - The webhook reconciler is the source of truth for status transitions.
//     Checkout performs an initial, best-effort write that later events
//     confirm or overwrite.
//   - Every store write is a single atomic upsert, so concurrent writers
//     follow last-writer-wins and never produce a half-written record.
//   - Entitlement is derived from the record and wall-clock time (with a
//     grace window past the period end), never persisted.
//
// # Usage
//
//	gateway, err := subscription.NewStripeGateway(stripeCfg)
//	if err != nil {
//		// handle error
//	}
//
//	svc, err := subscription.NewService(ctx,
//		subscription.NewYAMLSource("plans.yaml"),
//		gateway,
//		subscription.NewPostgresStore(pool),
//		subscription.WithLogger(log),
//		subscription.WithPortalReturnURL(baseURL+"/settings/billing"),
//	)
//	if err != nil {
//		// handle error
//	}
//
//	secret, err := svc.BeginCheckout(ctx, subscription.CheckoutRequest{
//		UserID:  userID,
//		Name:    "Alice",
//		Email:   "alice@example.com",
//		PriceID: "price_123",
//	})
//
// The Gateway and Store interfaces are injected so tests can script
// provider responses and verify call sequencing without network access.
package subscription
