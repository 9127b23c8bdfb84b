package domain

import shared "github.com/vorluno/planilla/internal/shared/domain"

var (
	ErrInvalidEmail     = shared.NewError(shared.KindValidation, "invalid email address")
	ErrEmptyName        = shared.NewError(shared.KindValidation, "name cannot be empty")
	ErrNameTooLong      = shared.NewError(shared.KindValidation, "name exceeds maximum length")
	ErrPasswordTooShort = shared.NewError(shared.KindValidation, "password must be at least 8 characters")
	ErrPasswordTooLong  = shared.NewError(shared.KindValidation, "password must be at most 72 bytes")

	ErrUserNotFound = shared.NewError(shared.KindNotFound, "user not found")
	ErrEmailTaken   = shared.NewError(shared.KindConflict, "email already registered")

	// ErrInvalidCredentials is the single answer for unknown e-mails and
	// wrong passwords.
	ErrInvalidCredentials = shared.NewError(shared.KindUnauthenticated, "invalid email or password")
	// ErrNoActiveTenant is returned at login when the user belongs to no
	// active tenant.
	ErrNoActiveTenant = shared.NewError(shared.KindForbidden, "no active company membership")
)
