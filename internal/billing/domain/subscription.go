package domain

import "time"

// SubscriptionStatus is the billing state of a tenant's subscription.
type SubscriptionStatus string

const (
	StatusActive              SubscriptionStatus = "Active"
	StatusTrialing            SubscriptionStatus = "Trialing"
	StatusPastDue             SubscriptionStatus = "PastDue"
	StatusCanceled            SubscriptionStatus = "Canceled"
	StatusCanceledAtPeriodEnd SubscriptionStatus = "CanceledAtPeriodEnd"
	StatusIncomplete          SubscriptionStatus = "Incomplete"
)

// DefaultTrialDays is the trial length granted at registration.
const DefaultTrialDays = 14

// Subscription is a tenant's plan and billing state. There is at most one
// per tenant.
type Subscription struct {
	ID                   int64
	TenantID             int64
	Plan                 Plan
	Status               SubscriptionStatus
	TrialEndsAt          *time.Time
	NextBillingDate      *time.Time
	StripeCustomerID     string
	StripeSubscriptionID string
	MonthlyPriceCents    int64
	CustomMaxEmployees   int
	CustomMaxUsers       int
	CanceledAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewTrial starts a trial of plan for tenantID.
func NewTrial(tenantID int64, plan Plan, days int, now time.Time) *Subscription {
	if days <= 0 {
		days = DefaultTrialDays
	}
	now = now.UTC()
	ends := now.AddDate(0, 0, days)
	return &Subscription{
		TenantID:          tenantID,
		Plan:              plan,
		Status:            StatusTrialing,
		TrialEndsAt:       &ends,
		MonthlyPriceCents: plan.Limits().MonthlyPriceCents,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// EffectiveMaxEmployees returns the custom employee limit when set, else the
// plan's.
func (s *Subscription) EffectiveMaxEmployees() int {
	if s.CustomMaxEmployees > 0 {
		return s.CustomMaxEmployees
	}
	return s.Plan.Limits().MaxEmployees
}

// EffectiveMaxUsers returns the custom user limit when set, else the plan's.
func (s *Subscription) EffectiveMaxUsers() int {
	if s.CustomMaxUsers > 0 {
		return s.CustomMaxUsers
	}
	return s.Plan.Limits().MaxUsers
}

// IsActiveOrTrialing reports whether the tenant currently has paid or trial
// access. Cancellation at period end keeps access until the period closes.
func (s *Subscription) IsActiveOrTrialing() bool {
	switch s.Status {
	case StatusActive, StatusTrialing, StatusCanceledAtPeriodEnd:
		return true
	default:
		return false
	}
}

// IsTrialExpired reports whether a trial ended before now.
func (s *Subscription) IsTrialExpired(now time.Time) bool {
	return s.Status == StatusTrialing && s.TrialEndsAt != nil && s.TrialEndsAt.Before(now)
}
