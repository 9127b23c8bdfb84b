package domain

import shared "github.com/vorluno/planilla/internal/shared/domain"

var (
	ErrUnknownPlan          = shared.NewError(shared.KindValidation, "unknown plan")
	ErrFreePlanCheckout     = shared.NewError(shared.KindValidation, "the Free plan does not need a checkout")
	ErrSubscriptionNotFound = shared.NewError(shared.KindNotFound, "subscription not found")
	// ErrNoBillingCustomer is returned by portal, cancel and plan changes
	// before the tenant has completed a checkout.
	ErrNoBillingCustomer = shared.NewError(shared.KindValidation, "no billing account exists for this tenant yet")
	// ErrBillingProvider hides provider failures behind one generic message.
	ErrBillingProvider = shared.NewError(shared.KindExternal, "billing provider unavailable, try again later")
	ErrBillingDisabled = shared.NewError(shared.KindExternal, "billing is not configured")
	// ErrWebhookTenantUnknown is recorded when an event cannot be tied to a
	// tenant.
	ErrWebhookTenantUnknown = shared.NewError(shared.KindNotFound, "webhook event does not reference a known tenant")
	ErrInvalidSignature     = shared.NewError(shared.KindUnauthenticated, "invalid webhook signature")
)
