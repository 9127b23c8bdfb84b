package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	shared "github.com/vorluno/planilla/internal/shared/domain"
)

// Membership links a user to a tenant with a role.
type Membership struct {
	shared.BaseAggregateRoot

	ID          int64
	TenantID    int64
	UserID      uuid.UUID
	Role        Role
	IsActive    bool
	JoinedAt    time.Time
	LastLoginAt *time.Time

	// Email and FullName are read from the user record for listings.
	Email    string
	FullName string
}

// NewMembership returns an active membership joined at now.
func NewMembership(tenantID int64, userID uuid.UUID, role Role, now time.Time) Membership {
	return Membership{
		TenantID: tenantID,
		UserID:   userID,
		Role:     role,
		IsActive: true,
		JoinedAt: now.UTC(),
	}
}

// IsActiveOwner reports whether the membership counts as one of the tenant's
// remaining owners.
func (m *Membership) IsActiveOwner() bool {
	return m.IsActive && m.Role == RoleOwner
}

// ChangeRole assigns a new role.
func (m *Membership) ChangeRole(role Role) {
	if m.Role == role {
		return
	}
	previous := m.Role
	m.Role = role
	m.AddDomainEvent(&MemberRoleChanged{
		BaseEvent:    shared.NewBaseEvent(strconv.FormatInt(m.ID, 10), AggregateMembership, RoutingKeyMemberRoleChanged),
		TenantID:     m.TenantID,
		UserID:       m.UserID.String(),
		PreviousRole: previous,
		Role:         role,
	})
}

// Deactivate removes the member's access without deleting history.
func (m *Membership) Deactivate() {
	if !m.IsActive {
		return
	}
	m.IsActive = false
	m.AddDomainEvent(&MemberRemoved{
		BaseEvent: shared.NewBaseEvent(strconv.FormatInt(m.ID, 10), AggregateMembership, RoutingKeyMemberRemoved),
		TenantID:  m.TenantID,
		UserID:    m.UserID.String(),
	})
}

// Reactivate restores access with role.
func (m *Membership) Reactivate(role Role, now time.Time) {
	m.IsActive = true
	m.Role = role
	m.JoinedAt = now.UTC()
}
