// Package application implements payroll use cases: employees, departments,
// positions, receipts and exports, each scoped to the caller's tenant.
package application

import (
	"context"
	"strconv"

	billing "github.com/vorluno/planilla/internal/billing/domain"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
)

// Entitlements is the part of the gatekeeper payroll consults.
type Entitlements interface {
	CanCreateEmployee(ctx context.Context, tenantID int64) (billing.Decision, error)
	CanExportReports(ctx context.Context, tenantID int64) (billing.Decision, error)
}

// TenantLocker serializes limit-affecting writes per tenant.
type TenantLocker interface {
	LockTenant(ctx context.Context, id int64) (*tenancy.Tenant, error)
}

// AuditRecorder appends to a tenant's audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, tenantID int64, entry tenancy.AuditEntry) error
}

func auditEntry(tc tenancy.TenantContext, action, entityType string, id int64, details string) tenancy.AuditEntry {
	e := tenancy.AuditEntry{
		ActorEmail: tc.Email,
		Action:     action,
		EntityType: entityType,
		EntityID:   strconv.FormatInt(id, 10),
		Details:    details,
	}
	e.ActorUserID.UUID, e.ActorUserID.Valid = tc.UserID, true
	return e
}

func allowed(ctx context.Context, check func(context.Context, int64) (billing.Decision, error), tenantID int64) error {
	d, err := check(ctx, tenantID)
	if err != nil {
		return err
	}
	return d.Err()
}
