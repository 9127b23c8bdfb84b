package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	billing "github.com/vorluno/planilla/internal/billing/domain"
	"github.com/vorluno/planilla/internal/tenancy/domain"
)

// Entitlements is the part of the gatekeeper invitation issue needs.
type Entitlements interface {
	CanInviteUser(ctx context.Context, tenantID int64) (billing.Decision, error)
}

// SubscriptionReader reads a tenant's subscription; nil when absent.
type SubscriptionReader interface {
	FindByTenant(ctx context.Context, tenantID int64) (*billing.Subscription, error)
}

// UserProvisioner resolves the identity behind an e-mail address, creating
// it when it does not exist yet.
type UserProvisioner interface {
	// EnsureUser returns the user id for email. password and fullName are
	// only used, and required, when the user is new.
	EnsureUser(ctx context.Context, email, fullName, password string) (uuid.UUID, error)
}

// Session is an issued credential.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Plan      billing.Plan `json:"plan"`
}

// SessionIssuer issues a credential bound to one tenant and role.
type SessionIssuer interface {
	IssueSession(ctx context.Context, userID uuid.UUID, email string, tenantID int64, role domain.Role) (Session, error)
}
