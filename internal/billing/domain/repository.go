package domain

import (
	"context"
	"time"
)

// SubscriptionRepository persists subscriptions. Finders return nil, nil
// when nothing matches.
type SubscriptionRepository interface {
	Create(ctx context.Context, s *Subscription) error
	FindByTenant(ctx context.Context, tenantID int64) (*Subscription, error)
	FindByStripeSubscriptionID(ctx context.Context, id string) (*Subscription, error)
	FindByStripeCustomerID(ctx context.Context, id string) (*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
	SetStripeCustomer(ctx context.Context, tenantID int64, customerID string, at time.Time) error
}

// WebhookEventRepository stores provider events for idempotency.
type WebhookEventRepository interface {
	// Insert records a Pending event. It reports false when the external id
	// was already recorded.
	Insert(ctx context.Context, e *WebhookEvent) (bool, error)
	MarkProcessed(ctx context.Context, externalID string, tenantID *int64, at time.Time) error
	// MarkFailed records a failure unless the event already left Pending.
	MarkFailed(ctx context.Context, externalID, message string, at time.Time) error
	// Retry moves a Failed event back to Pending. It reports false when the
	// event is not Failed.
	Retry(ctx context.Context, externalID string) (bool, error)
	Find(ctx context.Context, externalID string) (*WebhookEvent, error)
}
