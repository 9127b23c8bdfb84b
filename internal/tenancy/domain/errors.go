package domain

import shared "github.com/vorluno/planilla/internal/shared/domain"

var (
	// ErrUnauthenticated is returned when a tenant-scoped operation has no
	// resolved tenant.
	ErrUnauthenticated = shared.NewError(shared.KindUnauthenticated, "authentication required")
	// ErrForbidden is the generic role denial. It never says which role was
	// needed.
	ErrForbidden = shared.NewError(shared.KindForbidden, "forbidden")
	// ErrInvalidTenantClaim is returned for a tenant claim that is present but
	// not a positive integer.
	ErrInvalidTenantClaim = shared.NewError(shared.KindForbidden, "invalid tenant claim")
	ErrTenantNotFound     = shared.NewError(shared.KindNotFound, "tenant not found")
	ErrTenantInactive     = shared.NewError(shared.KindForbidden, "tenant is inactive")
	ErrSubdomainTaken     = shared.NewError(shared.KindConflict, "subdomain already registered")
	ErrTaxIDTaken         = shared.NewError(shared.KindConflict, "RUC and DV already registered")

	ErrMembershipNotFound = shared.NewError(shared.KindNotFound, "membership not found")
	ErrAlreadyMember      = shared.NewError(shared.KindConflict, "user is already a member of this tenant")
	ErrLastOwner          = shared.NewError(shared.KindConflict, "tenant must keep at least one active owner")

	ErrInvitationNotFound = shared.NewError(shared.KindNotFound, "invitation not found")
	// ErrInvitationInvalid is the single answer for unknown, revoked, used
	// or expired invitation tokens.
	ErrInvitationInvalid    = shared.NewError(shared.KindValidation, "invitation invalid or expired")
	ErrInvitationNotPending = shared.NewError(shared.KindConflict, "invitation is no longer pending")
	ErrDuplicateInvitation  = shared.NewError(shared.KindConflict, "a pending invitation already exists for this email")
)
