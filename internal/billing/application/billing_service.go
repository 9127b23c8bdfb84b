package application

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/vorluno/planilla/internal/billing/domain"
	sharedapp "github.com/vorluno/planilla/internal/shared/application"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
	"github.com/vorluno/planilla/pkg/observability"
)

// AuditRecorder appends to a tenant's audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, tenantID int64, entry tenancy.AuditEntry) error
}

// TenantLocker reads tenants and locks one for the surrounding transaction.
type TenantLocker interface {
	TenantReader
	LockTenant(ctx context.Context, id int64) (*tenancy.Tenant, error)
}

// ServiceConfig configures BillingService.
type ServiceConfig struct {
	Prices          PriceTable
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
	// Timeout bounds every provider call.
	Timeout time.Duration
	// FailureThreshold consecutive failures open the circuit for
	// OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	return c
}

// SubscriptionSummary is the billing view of a tenant.
type SubscriptionSummary struct {
	HasSubscription   bool                      `json:"has_subscription"`
	Plan              domain.Plan               `json:"plan"`
	Status            domain.SubscriptionStatus `json:"status,omitempty"`
	TrialEndsAt       *time.Time                `json:"trial_ends_at,omitempty"`
	NextBillingDate   *time.Time                `json:"next_billing_date,omitempty"`
	MonthlyPriceCents int64                     `json:"monthly_price_cents"`
	HasBillingAccount bool                      `json:"has_billing_account"`
	Limits            domain.PlanLimits         `json:"limits"`
	MaxEmployees      int                       `json:"max_employees"`
	MaxUsers          int                       `json:"max_users"`
}

// Usage reports a tenant's consumption against its limits.
type Usage struct {
	EmployeesCount     int                       `json:"employees_count"`
	MaxEmployees       int                       `json:"max_employees"`
	UsersCount         int                       `json:"users_count"`
	MaxUsers           int                       `json:"max_users"`
	PendingInvitations int                       `json:"pending_invitations"`
	Plan               domain.Plan               `json:"plan"`
	Status             domain.SubscriptionStatus `json:"status,omitempty"`
	TrialEndsAt        *time.Time                `json:"trial_ends_at,omitempty"`
}

// BillingService drives checkout, portal and plan changes at the provider.
// Local subscription state only changes through webhooks, except for the
// stored customer id.
type BillingService struct {
	uow           sharedapp.UnitOfWork
	subscriptions domain.SubscriptionRepository
	tenants       TenantLocker
	usage         UsageCounter
	provider      Provider
	audit         AuditRecorder
	breaker       *gobreaker.CircuitBreaker[string]
	cfg           ServiceConfig
	logger        *slog.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

// NewBillingService creates a billing service. A nil provider disables the
// provider-backed operations.
func NewBillingService(
	uow sharedapp.UnitOfWork,
	subscriptions domain.SubscriptionRepository,
	tenants TenantLocker,
	usage UsageCounter,
	provider Provider,
	audit AuditRecorder,
	cfg ServiceConfig,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *BillingService {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	logger = logger.With("component", "billing")

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "billing-provider",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &BillingService{
		uow:           uow,
		subscriptions: subscriptions,
		tenants:       tenants,
		usage:         usage,
		provider:      provider,
		audit:         audit,
		breaker:       breaker,
		cfg:           cfg,
		logger:        logger,
		metrics:       metrics,
		now:           time.Now,
	}
}

// Enabled reports whether a provider is configured.
func (s *BillingService) Enabled() bool {
	return s != nil && s.provider != nil
}

// CreateCheckoutSession starts a subscription checkout for plan and returns
// the hosted checkout URL.
func (s *BillingService) CreateCheckoutSession(ctx context.Context, tc tenancy.TenantContext, plan domain.Plan) (string, error) {
	if err := tc.Require(tenancy.RoleOwner); err != nil {
		return "", err
	}
	if !s.Enabled() {
		return "", domain.ErrBillingDisabled
	}
	if !plan.IsValid() {
		return "", domain.ErrUnknownPlan
	}
	if plan == domain.PlanFree {
		return "", domain.ErrFreePlanCheckout
	}
	priceID, ok := s.cfg.Prices.PriceFor(plan)
	if !ok {
		s.logger.ErrorContext(ctx, "no price configured for plan", "plan", string(plan))
		return "", domain.ErrBillingDisabled
	}

	customerID, err := s.ensureCustomer(ctx, tc)
	if err != nil {
		return "", err
	}

	url, err := s.call(ctx, "create_checkout_session", func(ctx context.Context) (string, error) {
		return s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
			CustomerID: customerID,
			PriceID:    priceID,
			SuccessURL: s.cfg.SuccessURL,
			CancelURL:  s.cfg.CancelURL,
			Metadata:   planMetadata(tc.TenantID, plan),
		})
	})
	if err != nil {
		return "", err
	}

	s.record(ctx, tc, tenancy.AuditCheckoutStarted, string(plan))
	return url, nil
}

// CreatePortalSession returns a billing portal URL for the tenant's
// customer.
func (s *BillingService) CreatePortalSession(ctx context.Context, tc tenancy.TenantContext) (string, error) {
	if err := tc.Require(tenancy.RoleAdmin); err != nil {
		return "", err
	}
	if !s.Enabled() {
		return "", domain.ErrBillingDisabled
	}
	sub, err := s.subscriptions.FindByTenant(ctx, tc.TenantID)
	if err != nil {
		return "", err
	}
	if sub == nil || sub.StripeCustomerID == "" {
		return "", domain.ErrNoBillingCustomer
	}
	return s.call(ctx, "create_portal_session", func(ctx context.Context) (string, error) {
		return s.provider.CreatePortalSession(ctx, sub.StripeCustomerID, s.cfg.PortalReturnURL)
	})
}

// Cancel asks the provider to cancel at period end. The local status
// follows when the provider reports the change.
func (s *BillingService) Cancel(ctx context.Context, tc tenancy.TenantContext) error {
	if err := tc.Require(tenancy.RoleOwner); err != nil {
		return err
	}
	sub, err := s.providerSubscription(ctx, tc.TenantID)
	if err != nil {
		return err
	}
	_, err = s.call(ctx, "cancel_subscription", func(ctx context.Context) (string, error) {
		return "", s.provider.CancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, map[string]string{
			domain.MetadataTenantID: strconv.FormatInt(tc.TenantID, 10),
		})
	})
	if err != nil {
		return err
	}
	s.record(ctx, tc, tenancy.AuditSubscriptionCancel, sub.StripeSubscriptionID)
	return nil
}

// ChangePlan moves the provider subscription to plan with prorations.
func (s *BillingService) ChangePlan(ctx context.Context, tc tenancy.TenantContext, plan domain.Plan) error {
	if err := tc.Require(tenancy.RoleOwner); err != nil {
		return err
	}
	if !plan.IsValid() || plan == domain.PlanFree {
		return domain.ErrUnknownPlan
	}
	sub, err := s.providerSubscription(ctx, tc.TenantID)
	if err != nil {
		return err
	}
	priceID, ok := s.cfg.Prices.PriceFor(plan)
	if !ok {
		return domain.ErrBillingDisabled
	}
	_, err = s.call(ctx, "change_plan", func(ctx context.Context) (string, error) {
		return "", s.provider.ChangePrice(ctx, sub.StripeSubscriptionID, priceID, planMetadata(tc.TenantID, plan))
	})
	if err != nil {
		return err
	}
	s.record(ctx, tc, tenancy.AuditPlanChangeRequest, string(plan))
	return nil
}

// Status summarizes the tenant's subscription.
func (s *BillingService) Status(ctx context.Context, tc tenancy.TenantContext) (SubscriptionSummary, error) {
	if err := tc.Require(tenancy.RoleEmployee); err != nil {
		return SubscriptionSummary{}, err
	}
	sub, err := s.subscriptions.FindByTenant(ctx, tc.TenantID)
	if err != nil {
		return SubscriptionSummary{}, err
	}
	if sub == nil {
		free := domain.PlanFree.Limits()
		return SubscriptionSummary{Plan: domain.PlanFree, Limits: free, MaxEmployees: free.MaxEmployees, MaxUsers: free.MaxUsers}, nil
	}
	return SubscriptionSummary{
		HasSubscription:   true,
		Plan:              sub.Plan,
		Status:            sub.Status,
		TrialEndsAt:       sub.TrialEndsAt,
		NextBillingDate:   sub.NextBillingDate,
		MonthlyPriceCents: sub.MonthlyPriceCents,
		HasBillingAccount: sub.StripeCustomerID != "",
		Limits:            sub.Plan.Limits(),
		MaxEmployees:      sub.EffectiveMaxEmployees(),
		MaxUsers:          sub.EffectiveMaxUsers(),
	}, nil
}

// Usage reports live counts against the effective limits.
func (s *BillingService) Usage(ctx context.Context, tc tenancy.TenantContext) (Usage, error) {
	summary, err := s.Status(ctx, tc)
	if err != nil {
		return Usage{}, err
	}
	employees, err := s.usage.CountActiveEmployees(ctx, tc.TenantID)
	if err != nil {
		return Usage{}, err
	}
	members, err := s.usage.CountActiveMembers(ctx, tc.TenantID)
	if err != nil {
		return Usage{}, err
	}
	pending, err := s.usage.CountPendingInvitations(ctx, tc.TenantID, s.now())
	if err != nil {
		return Usage{}, err
	}
	return Usage{
		EmployeesCount:     employees,
		MaxEmployees:       summary.MaxEmployees,
		UsersCount:         members,
		MaxUsers:           summary.MaxUsers,
		PendingInvitations: pending,
		Plan:               summary.Plan,
		Status:             summary.Status,
		TrialEndsAt:        summary.TrialEndsAt,
	}, nil
}

// ensureSubscription returns the tenant's subscription, creating an active
// Free one for tenants provisioned without it.
func (s *BillingService) ensureSubscription(ctx context.Context, tenantID int64) (*domain.Subscription, error) {
	sub, err := s.subscriptions.FindByTenant(ctx, tenantID)
	if err != nil || sub != nil {
		return sub, err
	}
	now := s.now().UTC()
	sub = &domain.Subscription{TenantID: tenantID, Plan: domain.PlanFree, Status: domain.StatusActive, CreatedAt: now, UpdatedAt: now}
	if err := s.subscriptions.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ensureCustomer returns the tenant's provider customer id, creating the
// customer when the tenant has none. The tenant row stays locked until the id
// is stored, so concurrent checkouts create one customer.
func (s *BillingService) ensureCustomer(ctx context.Context, tc tenancy.TenantContext) (string, error) {
	return sharedapp.InUnitOfWork(ctx, s.uow, func(ctx context.Context) (string, error) {
		tenant, err := s.tenants.LockTenant(ctx, tc.TenantID)
		if err != nil {
			return "", err
		}
		sub, err := s.ensureSubscription(ctx, tc.TenantID)
		if err != nil {
			return "", err
		}
		if sub.StripeCustomerID != "" {
			return sub.StripeCustomerID, nil
		}

		email := tenant.Email
		if email == "" {
			email = tc.Email
		}
		customerID, err := s.call(ctx, "create_customer", func(ctx context.Context) (string, error) {
			return s.provider.CreateCustomer(ctx, CustomerRequest{
				Email: email,
				Name:  tenant.Name,
				Metadata: map[string]string{
					domain.MetadataTenantID: strconv.FormatInt(tenant.ID, 10),
					domain.MetadataRUC:      tenant.RUC,
				},
			})
		})
		if err != nil {
			return "", err
		}
		if err := s.subscriptions.SetStripeCustomer(ctx, tc.TenantID, customerID, s.now()); err != nil {
			return "", err
		}
		return customerID, nil
	})
}

func (s *BillingService) providerSubscription(ctx context.Context, tenantID int64) (*domain.Subscription, error) {
	if !s.Enabled() {
		return nil, domain.ErrBillingDisabled
	}
	sub, err := s.subscriptions.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.StripeSubscriptionID == "" {
		return nil, domain.ErrNoBillingCustomer
	}
	return sub, nil
}

// call runs one provider operation under the timeout and circuit breaker.
// Provider errors are logged and replaced by ErrBillingProvider.
func (s *BillingService) call(ctx context.Context, op string, fn func(ctx context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	out, err := s.breaker.Execute(func() (string, error) {
		return fn(ctx)
	})
	s.metrics.BillingProviderCall(op, err)
	if err != nil {
		attrs := []any{observability.OperationKey, op, observability.ErrorKey, err}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			attrs = append(attrs, "circuit", "open")
		}
		s.logger.ErrorContext(ctx, "billing provider call failed", attrs...)
		return "", domain.ErrBillingProvider
	}
	return out, nil
}

func (s *BillingService) record(ctx context.Context, tc tenancy.TenantContext, action, details string) {
	if s.audit == nil {
		return
	}
	entry := tenancy.AuditEntry{
		ActorEmail: tc.Email,
		Action:     action,
		EntityType: "Subscription",
		EntityID:   strconv.FormatInt(tc.TenantID, 10),
		Details:    details,
	}
	entry.ActorUserID.UUID, entry.ActorUserID.Valid = tc.UserID, true
	if err := s.audit.Record(ctx, tc.TenantID, entry); err != nil {
		s.logger.WarnContext(ctx, "audit write failed", "action", action, observability.ErrorKey, err)
	}
}

func planMetadata(tenantID int64, plan domain.Plan) map[string]string {
	return map[string]string{
		domain.MetadataTenantID: strconv.FormatInt(tenantID, 10),
		domain.MetadataPlan:     string(plan),
	}
}
