package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/vorluno/planilla/internal/billing/domain"
)

// DefaultTolerance is the accepted age of a webhook signature.
const DefaultTolerance = webhook.DefaultTolerance

// Verifier checks webhook signatures and decodes events.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier creates a verifier for the endpoint secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret, tolerance: DefaultTolerance}
}

// Verify checks the Stripe-Signature header of payload and decodes the
// event. Any signature problem is reported as domain.ErrInvalidSignature.
func (v *Verifier) Verify(payload []byte, signature string) (domain.ProviderEvent, error) {
	if v.secret == "" {
		return domain.ProviderEvent{}, domain.ErrBillingDisabled
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.ProviderEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return decodeEvent(event, payload)
}

func decodeEvent(event stripeapi.Event, payload []byte) (domain.ProviderEvent, error) {
	out := domain.ProviderEvent{ID: event.ID, Type: string(event.Type), Payload: payload}
	if event.Data == nil {
		return out, nil
	}
	raw := event.Data.Raw

	switch out.Type {
	case domain.EventCheckoutCompleted:
		var sess stripeapi.CheckoutSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			return out, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Checkout = &domain.CheckoutSnapshot{
			SessionID:      sess.ID,
			CustomerID:     customerID(sess.Customer),
			SubscriptionID: subscriptionID(sess.Subscription),
			Metadata:       sess.Metadata,
		}

	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		var sub stripeapi.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return out, fmt.Errorf("decode subscription: %w", err)
		}
		snap := &domain.SubscriptionSnapshot{
			ID:                sub.ID,
			CustomerID:        customerID(sub.Customer),
			Status:            string(sub.Status),
			Metadata:          sub.Metadata,
			TrialEnd:          unixTime(sub.TrialEnd),
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			CanceledAt:        unixTime(sub.CanceledAt),
		}
		if sub.Items != nil && len(sub.Items.Data) > 0 {
			item := sub.Items.Data[0]
			if item.Price != nil {
				snap.PriceID = item.Price.ID
			}
			snap.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
		}
		out.Subscription = snap

	case domain.EventInvoicePaymentFailed, domain.EventInvoicePaid:
		var inv stripeapi.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return out, fmt.Errorf("decode invoice: %w", err)
		}
		snap := &domain.InvoiceSnapshot{
			CustomerID: customerID(inv.Customer),
			Metadata:   inv.Metadata,
		}
		if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
			details := inv.Parent.SubscriptionDetails
			snap.SubscriptionID = subscriptionID(details.Subscription)
			if len(details.Metadata) > 0 {
				snap.Metadata = details.Metadata
			}
		}
		out.Invoice = snap
	}
	return out, nil
}

func customerID(c *stripeapi.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func subscriptionID(s *stripeapi.Subscription) string {
	if s == nil {
		return ""
	}
	return s.ID
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
