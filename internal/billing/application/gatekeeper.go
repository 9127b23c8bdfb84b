package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vorluno/planilla/internal/billing/domain"
	shared "github.com/vorluno/planilla/internal/shared/domain"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
	"github.com/vorluno/planilla/pkg/observability"
)

// Entitlement check names, used in logs and metrics.
const (
	CheckCreateEmployee = "create_employee"
	CheckInviteUser     = "invite_user"
	CheckExportReports  = "export_reports"
	CheckUseAPI         = "use_api"
)

// ErrEntitlementCheck is returned alongside a DenyInternal decision when a
// check could not be evaluated.
var ErrEntitlementCheck = shared.NewError(shared.KindInternal, "could not verify plan limits, try again")

const internalReason = "Could not verify plan limits. Please try again."

// TenantReader reads the tenant directory.
type TenantReader interface {
	FindByID(ctx context.Context, id int64) (*tenancy.Tenant, error)
}

// UsageCounter returns live resource counts for a tenant. Counts are read
// through the caller's transaction.
type UsageCounter interface {
	CountActiveEmployees(ctx context.Context, tenantID int64) (int, error)
	CountActiveMembers(ctx context.Context, tenantID int64) (int, error)
	CountPendingInvitations(ctx context.Context, tenantID int64, now time.Time) (int, error)
}

// Gatekeeper decides whether a tenant's plan and billing state allow an
// operation. Every failure to evaluate denies.
type Gatekeeper struct {
	tenants       TenantReader
	subscriptions domain.SubscriptionRepository
	usage         UsageCounter
	logger        *slog.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

// NewGatekeeper creates a gatekeeper.
func NewGatekeeper(tenants TenantReader, subscriptions domain.SubscriptionRepository, usage UsageCounter, logger *slog.Logger, metrics *observability.Metrics) *Gatekeeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gatekeeper{
		tenants:       tenants,
		subscriptions: subscriptions,
		usage:         usage,
		logger:        logger.With("component", "gatekeeper"),
		metrics:       metrics,
		now:           time.Now,
	}
}

// CanCreateEmployee checks the active employee limit.
func (g *Gatekeeper) CanCreateEmployee(ctx context.Context, tenantID int64) (domain.Decision, error) {
	return g.run(ctx, CheckCreateEmployee, tenantID, func(ctx context.Context, sub *domain.Subscription) (domain.Decision, error) {
		current, err := g.usage.CountActiveEmployees(ctx, tenantID)
		if err != nil {
			return domain.Decision{}, fmt.Errorf("count employees: %w", err)
		}
		return limitDecision(sub, current, resourceEmployees), nil
	})
}

// CanInviteUser checks the user limit, counting active members and pending
// invitations.
func (g *Gatekeeper) CanInviteUser(ctx context.Context, tenantID int64) (domain.Decision, error) {
	return g.run(ctx, CheckInviteUser, tenantID, func(ctx context.Context, sub *domain.Subscription) (domain.Decision, error) {
		members, err := g.usage.CountActiveMembers(ctx, tenantID)
		if err != nil {
			return domain.Decision{}, fmt.Errorf("count members: %w", err)
		}
		pending, err := g.usage.CountPendingInvitations(ctx, tenantID, g.now())
		if err != nil {
			return domain.Decision{}, fmt.Errorf("count invitations: %w", err)
		}
		return limitDecision(sub, members+pending, resourceUsers), nil
	})
}

// CanExportReports checks the export feature.
func (g *Gatekeeper) CanExportReports(ctx context.Context, tenantID int64) (domain.Decision, error) {
	return g.feature(ctx, CheckExportReports, tenantID, "report exports", domain.PlanLimits.CanExport)
}

// CanUseAPI checks the API access feature.
func (g *Gatekeeper) CanUseAPI(ctx context.Context, tenantID int64) (domain.Decision, error) {
	return g.feature(ctx, CheckUseAPI, tenantID, "API access", func(l domain.PlanLimits) bool { return l.CanUseAPI })
}

// Overview runs every check for a tenant, keyed by check name, so clients
// can show which actions the current plan allows.
func (g *Gatekeeper) Overview(ctx context.Context, tenantID int64) (map[string]domain.Decision, error) {
	checks := []struct {
		name string
		run  func(context.Context, int64) (domain.Decision, error)
	}{
		{CheckCreateEmployee, g.CanCreateEmployee},
		{CheckInviteUser, g.CanInviteUser},
		{CheckExportReports, g.CanExportReports},
		{CheckUseAPI, g.CanUseAPI},
	}
	out := make(map[string]domain.Decision, len(checks))
	for _, c := range checks {
		d, err := c.run(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		out[c.name] = d
	}
	return out, nil
}

type limitFunc func(ctx context.Context, sub *domain.Subscription) (domain.Decision, error)

// run applies the shared order for count checks: tenant active, missing
// subscription falls back to Free, delinquent status denies, then the count.
func (g *Gatekeeper) run(ctx context.Context, check string, tenantID int64, count limitFunc) (domain.Decision, error) {
	ctx = observability.WithTenantID(ctx, tenantID)
	logger := observability.LogOperation(g.logger, check)

	decision, err := func() (domain.Decision, error) {
		if d, ok, err := g.tenantGate(ctx, tenantID); err != nil || !ok {
			return d, err
		}
		sub, err := g.subscriptions.FindByTenant(ctx, tenantID)
		if err != nil {
			return domain.Decision{}, fmt.Errorf("load subscription: %w", err)
		}
		if sub == nil {
			logger.WarnContext(ctx, "tenant has no subscription, applying Free plan limits")
		} else if d, ok := statusGate(sub); !ok {
			return d, nil
		}
		return count(ctx, sub)
	}()
	return g.finish(ctx, logger, check, decision, err)
}

func (g *Gatekeeper) feature(ctx context.Context, check string, tenantID int64, name string, has func(domain.PlanLimits) bool) (domain.Decision, error) {
	ctx = observability.WithTenantID(ctx, tenantID)
	logger := observability.LogOperation(g.logger, check)

	decision, err := func() (domain.Decision, error) {
		if d, ok, err := g.tenantGate(ctx, tenantID); err != nil || !ok {
			return d, err
		}
		sub, err := g.subscriptions.FindByTenant(ctx, tenantID)
		if err != nil {
			return domain.Decision{}, fmt.Errorf("load subscription: %w", err)
		}
		if sub == nil {
			d := domain.Deny(domain.DenyNoSubscription, fmt.Sprintf("An active subscription is required for %s.", name))
			d.SuggestedPlan = firstPlanWith(has)
			return d, nil
		}
		switch sub.Status {
		case domain.StatusTrialing:
			if sub.IsTrialExpired(g.now()) {
				d := domain.Deny(domain.DenyTrialExpired, "Your trial has ended. Choose a plan to continue.")
				d.SuggestedPlan = firstPlanWith(has)
				return d, nil
			}
			return domain.Allow(), nil
		case domain.StatusActive, domain.StatusCanceledAtPeriodEnd:
			if has(sub.Plan.Limits()) {
				return domain.Allow(), nil
			}
			d := domain.Deny(domain.DenyFeatureUnavailable,
				fmt.Sprintf("Your %s plan does not include %s.", sub.Plan, name))
			if p := firstPlanWith(has); p != "" {
				d.SuggestedPlan = p
				d.Reason += fmt.Sprintf(" Upgrade to %s to enable it.", p)
			}
			return d, nil
		default:
			d, _ := statusGate(sub)
			if d.Code == "" {
				d = domain.Deny(domain.DenyInactiveStatus, "Your subscription is not active. Complete the payment to continue.")
			}
			return d, nil
		}
	}()
	return g.finish(ctx, logger, check, decision, err)
}

func (g *Gatekeeper) tenantGate(ctx context.Context, tenantID int64) (domain.Decision, bool, error) {
	tenant, err := g.tenants.FindByID(ctx, tenantID)
	if errors.Is(err, tenancy.ErrTenantNotFound) || (err == nil && !tenant.IsActive) {
		return domain.Deny(domain.DenyTenantInactive, "Tenant not found or inactive."), false, nil
	}
	if err != nil {
		return domain.Decision{}, false, fmt.Errorf("load tenant: %w", err)
	}
	return domain.Decision{}, true, nil
}

func (g *Gatekeeper) finish(ctx context.Context, logger *slog.Logger, check string, d domain.Decision, err error) (domain.Decision, error) {
	if err != nil {
		logger.ErrorContext(ctx, "entitlement check failed", observability.ErrorKey, err)
		g.metrics.EntitlementDecision(check, false)
		return domain.Deny(domain.DenyInternal, internalReason), ErrEntitlementCheck
	}
	if !d.Allowed {
		logger.WarnContext(ctx, "entitlement denied", "code", string(d.Code), "current", d.CurrentCount, "limit", d.Limit)
	}
	g.metrics.EntitlementDecision(check, d.Allowed)
	return d, nil
}

// statusGate denies delinquent subscriptions.
func statusGate(sub *domain.Subscription) (domain.Decision, bool) {
	switch sub.Status {
	case domain.StatusPastDue:
		return domain.Deny(domain.DenyPastDue,
			"Your subscription has a pending payment. Update your payment method to continue."), false
	case domain.StatusCanceled:
		return domain.Deny(domain.DenyCanceled,
			"Your subscription has been canceled. Reactivate it to continue."), false
	default:
		return domain.Decision{}, true
	}
}

type resource struct {
	noun  string
	limit func(*domain.Subscription) int
}

var (
	resourceEmployees = resource{noun: "active employees", limit: (*domain.Subscription).EffectiveMaxEmployees}
	resourceUsers     = resource{noun: "users", limit: (*domain.Subscription).EffectiveMaxUsers}
)

// limitDecision compares a live count with the effective limit. A limit of
// N admits exactly N resources. A nil subscription is measured against Free.
func limitDecision(sub *domain.Subscription, current int, res resource) domain.Decision {
	plan := domain.PlanFree
	limit := res.limit(&domain.Subscription{Plan: domain.PlanFree})
	if sub != nil {
		plan = sub.Plan
		limit = res.limit(sub)
	}
	if current < limit {
		return domain.Decision{Allowed: true, CurrentCount: current, Limit: limit}
	}

	d := domain.Deny(domain.DenyLimitReached, "")
	d.CurrentCount = current
	d.Limit = limit

	next, ok := plan.Next()
	switch {
	case sub == nil:
		d.SuggestedPlan = domain.PlanStarter
		d.Reason = fmt.Sprintf("You have reached the limit of %d %s. Create a subscription to raise your limit.", limit, res.noun)
	case ok:
		d.SuggestedPlan = next
		d.Reason = fmt.Sprintf("You have reached the limit of %d %s on your %s plan. Upgrade to %s (%s %s) to continue.",
			limit, res.noun, plan, next, describeLimit(res.limit(&domain.Subscription{Plan: next})), res.noun)
	default:
		d.Reason = fmt.Sprintf("You have reached the limit of %d %s. Contact support to raise your limit.", limit, res.noun)
	}
	return d
}

func describeLimit(n int) string {
	if n >= domain.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("up to %d", n)
}

func firstPlanWith(has func(domain.PlanLimits) bool) domain.Plan {
	for _, l := range domain.Plans() {
		if has(l) {
			return l.Plan
		}
	}
	return ""
}
