package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	shared "github.com/vorluno/planilla/internal/shared/domain"
)

// DefaultInvitationTTL is how long an invitation stays usable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

const tokenBytes = 32

// InvitationState is derived from an invitation's timestamps.
type InvitationState string

const (
	InvitationStatePending  InvitationState = "Pending"
	InvitationStateAccepted InvitationState = "Accepted"
	InvitationStateRevoked  InvitationState = "Revoked"
	InvitationStateExpired  InvitationState = "Expired"
)

// Invitation grants one e-mail address a role in a tenant.
type Invitation struct {
	shared.BaseAggregateRoot

	ID         int64
	TenantID   int64
	Email      string
	Role       Role
	Token      string
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	RevokedAt  *time.Time
	InvitedBy  uuid.UUID
	CreatedAt  time.Time

	// TenantName is filled by lookups that join the tenant.
	TenantName string
}

// NewInvitation creates a pending invitation with a fresh random token.
func NewInvitation(tenantID int64, email string, role Role, invitedBy uuid.UUID, ttl time.Duration, now time.Time) (*Invitation, error) {
	if !role.IsValid() {
		return nil, shared.NewValidationError("role", "is not a valid role")
	}
	if ttl <= 0 {
		ttl = DefaultInvitationTTL
	}
	token, err := NewInvitationToken()
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Invitation{
		TenantID:  tenantID,
		Email:     email,
		Role:      role,
		Token:     token,
		ExpiresAt: now.Add(ttl),
		InvitedBy: invitedBy,
		CreatedAt: now,
	}, nil
}

// NewInvitationToken returns 32 random bytes encoded as unpadded base64url.
func NewInvitationToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invitation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// State reports the invitation's state at now. Revocation and acceptance take
// precedence over expiry.
func (i *Invitation) State(now time.Time) InvitationState {
	switch {
	case i.RevokedAt != nil:
		return InvitationStateRevoked
	case i.AcceptedAt != nil:
		return InvitationStateAccepted
	case !i.ExpiresAt.After(now):
		return InvitationStateExpired
	default:
		return InvitationStatePending
	}
}

// Validate returns ErrInvitationInvalid unless the invitation is pending.
func (i *Invitation) Validate(now time.Time) error {
	if i.State(now) != InvitationStatePending {
		return ErrInvitationInvalid
	}
	return nil
}

// Issued records the issue event once the invitation has an id.
func (i *Invitation) Issued() {
	i.AddDomainEvent(&InvitationIssued{
		BaseEvent: shared.NewBaseEvent(strconv.FormatInt(i.ID, 10), AggregateInvitation, RoutingKeyInvitationIssued),
		TenantID:  i.TenantID,
		Email:     i.Email,
		Role:      i.Role,
		ExpiresAt: i.ExpiresAt,
	})
}

// Accept marks a pending invitation as used.
func (i *Invitation) Accept(userID uuid.UUID, now time.Time) error {
	if err := i.Validate(now); err != nil {
		return err
	}
	at := now.UTC()
	i.AcceptedAt = &at
	i.AddDomainEvent(&InvitationAccepted{
		BaseEvent: shared.NewBaseEvent(strconv.FormatInt(i.ID, 10), AggregateInvitation, RoutingKeyInvitationAccepted),
		TenantID:  i.TenantID,
		UserID:    userID.String(),
		Role:      i.Role,
	})
	return nil
}

// Revoke cancels a pending invitation. Revoking twice is a no-op; accepted
// or expired invitations cannot be revoked. It reports whether state changed.
func (i *Invitation) Revoke(now time.Time) (bool, error) {
	switch i.State(now) {
	case InvitationStateRevoked:
		return false, nil
	case InvitationStatePending:
		at := now.UTC()
		i.RevokedAt = &at
		i.AddDomainEvent(&InvitationRevoked{
			BaseEvent: shared.NewBaseEvent(strconv.FormatInt(i.ID, 10), AggregateInvitation, RoutingKeyInvitationRevoked),
			TenantID:  i.TenantID,
		})
		return true, nil
	default:
		return false, ErrInvitationNotPending
	}
}
