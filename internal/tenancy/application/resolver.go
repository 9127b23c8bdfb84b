package application

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	billing "github.com/vorluno/planilla/internal/billing/domain"
	"github.com/vorluno/planilla/internal/tenancy/domain"
)

// Credential claim names.
const (
	ClaimSubject    = "sub"
	ClaimEmail      = "email"
	ClaimTenantID   = "tenant_id"
	ClaimTenantRole = "tenant_role"
	ClaimPlan       = "plan"
)

// CurrentTenant is a fresh read of the caller's tenant.
type CurrentTenant struct {
	Tenant       *domain.Tenant
	Subscription *billing.Subscription
	Role         domain.Role
}

// Resolver turns verified credential claims into a TenantContext.
type Resolver struct {
	tenants       domain.TenantRepository
	subscriptions SubscriptionReader
}

// NewResolver creates a resolver.
func NewResolver(tenants domain.TenantRepository, subscriptions SubscriptionReader) *Resolver {
	return &Resolver{tenants: tenants, subscriptions: subscriptions}
}

// Resolve reads the caller identity from claims. Claims without a tenant
// yield an unauthenticated context. A malformed tenant claim fails closed
// with domain.ErrInvalidTenantClaim, and a subject that is not a user id
// fails with domain.ErrUnauthenticated. A missing or unknown role resolves
// to Employee.
func (r *Resolver) Resolve(claims map[string]any) (domain.TenantContext, error) {
	sub, _ := claims[ClaimSubject].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return domain.TenantContext{}, domain.ErrUnauthenticated
	}
	email, _ := claims[ClaimEmail].(string)

	raw, ok := claims[ClaimTenantID]
	if !ok || raw == nil {
		return domain.TenantContext{UserID: userID, Email: email}, nil
	}
	tenantID, ok := parseTenantID(raw)
	if !ok {
		return domain.TenantContext{}, domain.ErrInvalidTenantClaim
	}

	return domain.TenantContext{
		TenantID: tenantID,
		Role:     domain.RoleFromClaim(claims[ClaimTenantRole]),
		UserID:   userID,
		Email:    email,
	}, nil
}

func parseTenantID(v any) (int64, bool) {
	var (
		id  int64
		err error
	)
	switch value := v.(type) {
	case string:
		id, err = strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	case json.Number:
		id, err = value.Int64()
	case float64:
		if value != math.Trunc(value) || value > math.MaxInt64 {
			return 0, false
		}
		id = int64(value)
	default:
		return 0, false
	}
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// CurrentTenant reads the tenant and subscription of tc. It is never
// cached, so deactivation and plan changes show up on the next request.
func (r *Resolver) CurrentTenant(ctx context.Context, tc domain.TenantContext) (CurrentTenant, error) {
	if !tc.IsAuthenticated() {
		return CurrentTenant{}, domain.ErrUnauthenticated
	}
	tenant, err := r.tenants.FindByID(ctx, tc.TenantID)
	if err != nil {
		return CurrentTenant{}, err
	}
	sub, err := r.subscriptions.FindByTenant(ctx, tc.TenantID)
	if err != nil {
		return CurrentTenant{}, err
	}
	return CurrentTenant{Tenant: tenant, Subscription: sub, Role: tc.Role}, nil
}
