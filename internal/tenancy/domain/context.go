package domain

import "github.com/google/uuid"

// TenantContext is the caller identity resolved once per request from the
// credential. It is passed explicitly to every tenant-scoped operation.
type TenantContext struct {
	TenantID int64
	Role     Role
	UserID   uuid.UUID
	Email    string
}

// IsAuthenticated reports whether a tenant was resolved.
func (tc TenantContext) IsAuthenticated() bool {
	return tc.TenantID > 0
}

// HasRole reports whether the caller satisfies role in its tenant.
func (tc TenantContext) HasRole(role Role) bool {
	return tc.IsAuthenticated() && tc.Role.Satisfies(role)
}

// Require returns ErrUnauthenticated without a tenant and ErrForbidden when
// the caller's role does not satisfy role.
func (tc TenantContext) Require(role Role) error {
	if !tc.IsAuthenticated() {
		return ErrUnauthenticated
	}
	if !tc.Role.Satisfies(role) {
		return ErrForbidden
	}
	return nil
}
