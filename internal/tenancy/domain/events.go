package domain

import (
	"time"

	shared "github.com/vorluno/planilla/internal/shared/domain"
)

const (
	AggregateTenant     = "Tenant"
	AggregateMembership = "Membership"
	AggregateInvitation = "Invitation"
)

const (
	RoutingKeyTenantRegistered   = "tenancy.tenant.registered"
	RoutingKeyTenantActivated    = "tenancy.tenant.activated"
	RoutingKeyTenantDeactivated  = "tenancy.tenant.deactivated"
	RoutingKeyMemberRoleChanged  = "tenancy.member.role_changed"
	RoutingKeyMemberRemoved      = "tenancy.member.removed"
	RoutingKeyInvitationIssued   = "tenancy.invitation.issued"
	RoutingKeyInvitationAccepted = "tenancy.invitation.accepted"
	RoutingKeyInvitationRevoked  = "tenancy.invitation.revoked"
)

// TenantRegistered is emitted when a company signs up.
type TenantRegistered struct {
	shared.BaseEvent
	TenantID  int64  `json:"tenant_id"`
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
	OwnerID   string `json:"owner_id"`
}

// TenantStatusChanged is emitted when a tenant is activated or deactivated.
type TenantStatusChanged struct {
	shared.BaseEvent
	TenantID int64 `json:"tenant_id"`
	Active   bool  `json:"active"`
}

type MemberRoleChanged struct {
	shared.BaseEvent
	TenantID     int64  `json:"tenant_id"`
	UserID       string `json:"user_id"`
	PreviousRole Role   `json:"previous_role"`
	Role         Role   `json:"role"`
}

type MemberRemoved struct {
	shared.BaseEvent
	TenantID int64  `json:"tenant_id"`
	UserID   string `json:"user_id"`
}

type InvitationIssued struct {
	shared.BaseEvent
	TenantID  int64     `json:"tenant_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type InvitationAccepted struct {
	shared.BaseEvent
	TenantID int64  `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Role     Role   `json:"role"`
}

type InvitationRevoked struct {
	shared.BaseEvent
	TenantID int64 `json:"tenant_id"`
}
