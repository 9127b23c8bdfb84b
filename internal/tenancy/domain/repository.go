package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TenantRepository persists tenants. The tenants table is the tenant
// directory itself and is not row-scoped.
type TenantRepository interface {
	// Create inserts t and assigns its ID. Duplicate subdomains and tax ids
	// return ErrSubdomainTaken and ErrTaxIDTaken.
	Create(ctx context.Context, t *Tenant) error
	FindByID(ctx context.Context, id int64) (*Tenant, error)
	// LockTenant reads the tenant under a row lock held until the surrounding
	// unit of work ends. Limit-affecting mutations call it first.
	LockTenant(ctx context.Context, id int64) (*Tenant, error)
	SetActive(ctx context.Context, id int64, active bool, at time.Time) error
	List(ctx context.Context) ([]Tenant, error)
}

// MembershipRepository persists memberships of one tenant at a time.
type MembershipRepository interface {
	Create(ctx context.Context, tenantID int64, m *Membership) error
	FindByID(ctx context.Context, tenantID, id int64) (*Membership, error)
	FindByUser(ctx context.Context, tenantID int64, userID uuid.UUID) (*Membership, error)
	List(ctx context.Context, tenantID int64) ([]Membership, error)
	Update(ctx context.Context, tenantID int64, m *Membership) error
	CountActive(ctx context.Context, tenantID int64) (int, error)
	CountActiveOwners(ctx context.Context, tenantID int64) (int, error)
	TouchLogin(ctx context.Context, tenantID, id int64, at time.Time) error
}

// MembershipDirectory finds a user's memberships before any tenant is
// resolved, at login time.
type MembershipDirectory interface {
	// ActiveForUser returns active memberships in active tenants, oldest
	// first.
	ActiveForUser(ctx context.Context, userID uuid.UUID) ([]Membership, error)
}

// InvitationRepository persists invitations of one tenant at a time.
type InvitationRepository interface {
	Create(ctx context.Context, tenantID int64, inv *Invitation) error
	FindByID(ctx context.Context, tenantID, id int64) (*Invitation, error)
	ListPending(ctx context.Context, tenantID int64, now time.Time) ([]Invitation, error)
	CountPending(ctx context.Context, tenantID int64, now time.Time) (int, error)
	HasPending(ctx context.Context, tenantID int64, email string, now time.Time) (bool, error)
	// Update writes the acceptance and revocation timestamps.
	Update(ctx context.Context, tenantID int64, inv *Invitation) error
}

// InvitationDirectory looks invitations up by token. A token is the only
// credential an invitee holds, so these lookups precede tenant resolution.
type InvitationDirectory interface {
	FindByToken(ctx context.Context, token string) (*Invitation, error)
	// LockByToken reads the invitation under a row lock.
	LockByToken(ctx context.Context, token string) (*Invitation, error)
}

// AuditRepository appends to and reads a tenant's audit trail.
type AuditRepository interface {
	Append(ctx context.Context, tenantID int64, entry *AuditEntry) error
	List(ctx context.Context, tenantID int64, filter AuditFilter) (AuditPage, error)
}
