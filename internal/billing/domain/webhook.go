package domain

import (
	"strconv"
	"time"
)

// Provider event types handled by the webhook processor.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventInvoicePaid          = "invoice.paid"
)

// MetadataTenantID and MetadataPlan are the metadata keys sent on every
// outbound provider call so asynchronous events can be correlated.
const (
	MetadataTenantID = "tenant_id"
	MetadataPlan     = "plan"
	MetadataRUC      = "ruc"
)

// WebhookStatus tracks a received provider event.
type WebhookStatus string

const (
	WebhookPending   WebhookStatus = "Pending"
	WebhookProcessed WebhookStatus = "Processed"
	WebhookFailed    WebhookStatus = "Failed"
)

// WebhookEvent is the idempotency record of one provider event.
type WebhookEvent struct {
	ID              int64
	ExternalEventID string
	Type            string
	TenantID        *int64
	Status          WebhookStatus
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
	ErrorMessage    string
	Payload         []byte
}

// ProviderEvent is a verified billing provider event decoded into the
// fields this system acts on.
type ProviderEvent struct {
	ID      string
	Type    string
	Payload []byte

	Checkout     *CheckoutSnapshot
	Subscription *SubscriptionSnapshot
	Invoice      *InvoiceSnapshot
}

// CheckoutSnapshot is the part of a completed checkout session we use.
type CheckoutSnapshot struct {
	SessionID      string
	CustomerID     string
	SubscriptionID string
	Metadata       map[string]string
}

// SubscriptionSnapshot is the provider's view of a subscription.
type SubscriptionSnapshot struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	Metadata          map[string]string
	TrialEnd          *time.Time
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	CanceledAt        *time.Time
}

// InvoiceSnapshot is the part of an invoice we use.
type InvoiceSnapshot struct {
	CustomerID     string
	SubscriptionID string
	Metadata       map[string]string
}

// TenantIDFromMetadata reads a positive tenant id from provider metadata.
func TenantIDFromMetadata(md map[string]string) (int64, bool) {
	raw, ok := md[MetadataTenantID]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// StatusFromProvider maps a provider subscription status onto ours.
func StatusFromProvider(status string, cancelAtPeriodEnd bool) SubscriptionStatus {
	switch status {
	case "active":
		if cancelAtPeriodEnd {
			return StatusCanceledAtPeriodEnd
		}
		return StatusActive
	case "trialing":
		return StatusTrialing
	case "past_due", "unpaid":
		return StatusPastDue
	case "canceled":
		return StatusCanceled
	default:
		return StatusIncomplete
	}
}
