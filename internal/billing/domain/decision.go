package domain

import (
	"fmt"

	shared "github.com/vorluno/planilla/internal/shared/domain"
)

// DenyCode classifies a denied entitlement check.
type DenyCode string

const (
	DenyNone               DenyCode = ""
	DenyTenantInactive     DenyCode = "tenant_inactive"
	DenyNoSubscription     DenyCode = "no_subscription"
	DenyPastDue            DenyCode = "past_due"
	DenyCanceled           DenyCode = "canceled"
	DenyInactiveStatus     DenyCode = "inactive_status"
	DenyTrialExpired       DenyCode = "trial_expired"
	DenyLimitReached       DenyCode = "limit_reached"
	DenyFeatureUnavailable DenyCode = "feature_unavailable"
	DenyInternal           DenyCode = "internal"
)

// Decision is the outcome of an entitlement check.
type Decision struct {
	Allowed       bool     `json:"allowed"`
	Reason        string   `json:"reason,omitempty"`
	Code          DenyCode `json:"code,omitempty"`
	CurrentCount  int      `json:"current_count,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	SuggestedPlan Plan     `json:"suggested_plan,omitempty"`
}

// Allow returns a positive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a negative decision.
func Deny(code DenyCode, reason string) Decision {
	return Decision{Code: code, Reason: reason}
}

// Err returns nil for allowed decisions and a *DenialError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DenialError{Decision: d}
}

// DenialError carries a denied decision to the transport edge.
type DenialError struct {
	Decision Decision
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("entitlement denied (%s): %s", e.Decision.Code, e.Decision.Reason)
}

// Kind maps limit denials to Conflict, tenant denials to Forbidden and the
// rest to PaymentRequired.
func (e *DenialError) Kind() shared.Kind {
	switch e.Decision.Code {
	case DenyLimitReached:
		return shared.KindConflict
	case DenyTenantInactive:
		return shared.KindForbidden
	case DenyInternal:
		return shared.KindInternal
	default:
		return shared.KindPaymentRequired
	}
}
