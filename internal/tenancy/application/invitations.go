package application

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	sharedapp "github.com/vorluno/planilla/internal/shared/application"
	shared "github.com/vorluno/planilla/internal/shared/domain"
	"github.com/vorluno/planilla/internal/tenancy/domain"
	"github.com/vorluno/planilla/pkg/observability"
)

// InvitationPreview is what an invitee sees before accepting.
type InvitationPreview struct {
	TenantName string      `json:"tenant_name"`
	Email      string      `json:"email"`
	Role       domain.Role `json:"role"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// AcceptInput carries the invitee's identity details. A new account is
// created from both fields; an existing account is proven by its password.
type AcceptInput struct {
	FullName string
	Password string
}

// AcceptResult is the membership created by accepting an invitation.
type AcceptResult struct {
	Session  Session
	TenantID int64
	UserID   uuid.UUID
	Email    string
	Role     domain.Role
}

// InvitationService issues, validates, accepts and revokes invitations.
type InvitationService struct {
	uow          sharedapp.UnitOfWork
	tenants      domain.TenantRepository
	invitations  domain.InvitationRepository
	directory    domain.InvitationDirectory
	memberships  domain.MembershipRepository
	entitlements Entitlements
	users        UserProvisioner
	sessions     SessionIssuer
	audit        *AuditService
	events       sharedapp.EventSink
	ttl          time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// InvitationDeps groups the collaborators of InvitationService.
type InvitationDeps struct {
	UnitOfWork   sharedapp.UnitOfWork
	Tenants      domain.TenantRepository
	Invitations  domain.InvitationRepository
	Directory    domain.InvitationDirectory
	Memberships  domain.MembershipRepository
	Entitlements Entitlements
	Users        UserProvisioner
	Sessions     SessionIssuer
	Audit        *AuditService
	Events       sharedapp.EventSink
	TTL          time.Duration
	Logger       *slog.Logger
}

// NewInvitationService creates an invitation service.
func NewInvitationService(deps InvitationDeps) *InvitationService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = domain.DefaultInvitationTTL
	}
	return &InvitationService{
		uow:          deps.UnitOfWork,
		tenants:      deps.Tenants,
		invitations:  deps.Invitations,
		directory:    deps.Directory,
		memberships:  deps.Memberships,
		entitlements: deps.Entitlements,
		users:        deps.Users,
		sessions:     deps.Sessions,
		audit:        deps.Audit,
		events:       deps.Events,
		ttl:          ttl,
		logger:       logger.With("component", "invitations"),
		now:          time.Now,
	}
}

// Issue invites email into the caller's tenant with role. Only admins and
// owners invite, and never to a role above their own. The user limit counts
// pending invitations, so the check and the insert share one transaction
// under the tenant lock.
func (s *InvitationService) Issue(ctx context.Context, tc domain.TenantContext, email string, role domain.Role) (*domain.Invitation, error) {
	if err := tc.Require(domain.RoleAdmin); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, shared.NewValidationError("role", "is not a valid role")
	}
	if !tc.Role.CanGrant(role) {
		s.logger.WarnContext(ctx, "invitation role above actor", observability.TenantIDKey, tc.TenantID, "role", role.String())
		return nil, domain.ErrForbidden
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	return sharedapp.InUnitOfWork(ctx, s.uow, func(ctx context.Context) (*domain.Invitation, error) {
		now := s.now().UTC()
		if err := s.lockActiveTenant(ctx, tc.TenantID); err != nil {
			return nil, err
		}

		decision, err := s.entitlements.CanInviteUser(ctx, tc.TenantID)
		if err != nil {
			return nil, err
		}
		if err := decision.Err(); err != nil {
			return nil, err
		}

		pending, err := s.invitations.HasPending(ctx, tc.TenantID, email, now)
		if err != nil {
			return nil, err
		}
		if pending {
			return nil, domain.ErrDuplicateInvitation
		}
		if err := s.ensureNotMember(ctx, tc.TenantID, email); err != nil {
			return nil, err
		}

		inv, err := domain.NewInvitation(tc.TenantID, email, role, tc.UserID, s.ttl, now)
		if err != nil {
			return nil, err
		}
		if err := s.invitations.Create(ctx, tc.TenantID, inv); err != nil {
			return nil, err
		}
		inv.Issued()

		if err := s.audit.Record(ctx, tc.TenantID, actorEntry(tc, domain.AuditInvitationIssued, "Invitation", strconv.FormatInt(inv.ID, 10), email+" as "+role.String())); err != nil {
			return nil, err
		}
		if err := sharedapp.PublishAggregateEvents(ctx, s.events, inv, sharedapp.NewEventMetadata(ctx, tc.TenantID, tc.UserID)); err != nil {
			return nil, err
		}
		return inv, nil
	})
}

// Validate previews the invitation behind token. Unknown, revoked, accepted
// and expired tokens all return domain.ErrInvitationInvalid.
func (s *InvitationService) Validate(ctx context.Context, token string) (InvitationPreview, error) {
	inv, err := s.byToken(ctx, token, s.directory.FindByToken)
	if err != nil {
		return InvitationPreview{}, err
	}
	return InvitationPreview{TenantName: inv.TenantName, Email: inv.Email, Role: inv.Role, ExpiresAt: inv.ExpiresAt}, nil
}

// Accept redeems token. The invitation row is locked first so two
// concurrent accepts cannot both succeed. The user limit is not checked
// again: the pending invitation already holds the seat.
func (s *InvitationService) Accept(ctx context.Context, token string, in AcceptInput) (AcceptResult, error) {
	return sharedapp.InUnitOfWork(ctx, s.uow, func(ctx context.Context) (AcceptResult, error) {
		inv, err := s.byToken(ctx, token, s.directory.LockByToken)
		if err != nil {
			return AcceptResult{}, err
		}
		now := s.now().UTC()

		userID, err := s.users.EnsureUser(ctx, inv.Email, in.FullName, in.Password)
		if err != nil {
			return AcceptResult{}, err
		}
		if err := s.lockActiveTenant(ctx, inv.TenantID); err != nil {
			return AcceptResult{}, err
		}

		member, err := s.memberships.FindByUser(ctx, inv.TenantID, userID)
		switch {
		case errors.Is(err, domain.ErrMembershipNotFound):
			m := domain.NewMembership(inv.TenantID, userID, inv.Role, now)
			if err := s.memberships.Create(ctx, inv.TenantID, &m); err != nil {
				return AcceptResult{}, err
			}
		case err != nil:
			return AcceptResult{}, err
		case member.IsActive:
			return AcceptResult{}, domain.ErrAlreadyMember
		default:
			member.Reactivate(inv.Role, now)
			if err := s.memberships.Update(ctx, inv.TenantID, member); err != nil {
				return AcceptResult{}, err
			}
		}

		if err := inv.Accept(userID, now); err != nil {
			return AcceptResult{}, err
		}
		if err := s.invitations.Update(ctx, inv.TenantID, inv); err != nil {
			return AcceptResult{}, err
		}

		actor := domain.TenantContext{TenantID: inv.TenantID, Role: inv.Role, UserID: userID, Email: inv.Email}
		if err := s.audit.Record(ctx, inv.TenantID, actorEntry(actor, domain.AuditInvitationAccepted, "Invitation", strconv.FormatInt(inv.ID, 10), "")); err != nil {
			return AcceptResult{}, err
		}
		if err := sharedapp.PublishAggregateEvents(ctx, s.events, inv, sharedapp.NewEventMetadata(ctx, inv.TenantID, userID)); err != nil {
			return AcceptResult{}, err
		}

		session, err := s.sessions.IssueSession(ctx, userID, inv.Email, inv.TenantID, inv.Role)
		if err != nil {
			return AcceptResult{}, err
		}
		return AcceptResult{Session: session, TenantID: inv.TenantID, UserID: userID, Email: inv.Email, Role: inv.Role}, nil
	})
}

// Revoke cancels a pending invitation of the caller's tenant. Revoking an
// already revoked invitation succeeds without change.
func (s *InvitationService) Revoke(ctx context.Context, tc domain.TenantContext, id int64) error {
	if err := tc.Require(domain.RoleAdmin); err != nil {
		return err
	}
	return sharedapp.WithUnitOfWork(ctx, s.uow, func(ctx context.Context) error {
		inv, err := s.invitations.FindByID(ctx, tc.TenantID, id)
		if err != nil {
			return err
		}
		changed, err := inv.Revoke(s.now())
		if err != nil || !changed {
			return err
		}
		if err := s.invitations.Update(ctx, tc.TenantID, inv); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tc.TenantID, actorEntry(tc, domain.AuditInvitationRevoked, "Invitation", strconv.FormatInt(inv.ID, 10), inv.Email)); err != nil {
			return err
		}
		return sharedapp.PublishAggregateEvents(ctx, s.events, inv, sharedapp.NewEventMetadata(ctx, tc.TenantID, tc.UserID))
	})
}

// List returns the tenant's pending invitations.
func (s *InvitationService) List(ctx context.Context, tc domain.TenantContext) ([]domain.Invitation, error) {
	if err := tc.Require(domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.invitations.ListPending(ctx, tc.TenantID, s.now())
}

func (s *InvitationService) byToken(ctx context.Context, token string, find func(context.Context, string) (*domain.Invitation, error)) (*domain.Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrInvitationInvalid
	}
	inv, err := find(ctx, token)
	if errors.Is(err, domain.ErrInvitationNotFound) {
		return nil, domain.ErrInvitationInvalid
	}
	if err != nil {
		return nil, err
	}
	if err := inv.Validate(s.now()); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *InvitationService) lockActiveTenant(ctx context.Context, tenantID int64) error {
	tenant, err := s.tenants.LockTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if !tenant.IsActive {
		return domain.ErrTenantInactive
	}
	return nil
}

func (s *InvitationService) ensureNotMember(ctx context.Context, tenantID int64, email string) error {
	members, err := s.memberships.List(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.IsActive && strings.EqualFold(m.Email, email) {
			return domain.ErrAlreadyMember
		}
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || len(raw) > 254 {
		return "", shared.NewValidationError("email", "must be a valid e-mail address")
	}
	return raw, nil
}
