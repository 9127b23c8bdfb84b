package application

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	sharedapp "github.com/vorluno/planilla/internal/shared/application"
	shared "github.com/vorluno/planilla/internal/shared/domain"
	"github.com/vorluno/planilla/internal/tenancy/domain"
	"github.com/vorluno/planilla/pkg/observability"
)

// MembershipService manages the members of a tenant.
type MembershipService struct {
	uow         sharedapp.UnitOfWork
	tenants     domain.TenantRepository
	memberships domain.MembershipRepository
	audit       *AuditService
	events      sharedapp.EventSink
	logger      *slog.Logger
	now         func() time.Time
}

// NewMembershipService creates a membership service.
func NewMembershipService(
	uow sharedapp.UnitOfWork,
	tenants domain.TenantRepository,
	memberships domain.MembershipRepository,
	audit *AuditService,
	events sharedapp.EventSink,
	logger *slog.Logger,
) *MembershipService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipService{
		uow:         uow,
		tenants:     tenants,
		memberships: memberships,
		audit:       audit,
		events:      events,
		logger:      logger.With("component", "memberships"),
		now:         time.Now,
	}
}

// List returns every membership of the caller's tenant.
func (s *MembershipService) List(ctx context.Context, tc domain.TenantContext) ([]domain.Membership, error) {
	if err := tc.Require(domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.memberships.List(ctx, tc.TenantID)
}

// ChangeRole assigns role to a member. Only owners grant or take away the
// Owner role, and the last active owner cannot be demoted.
func (s *MembershipService) ChangeRole(ctx context.Context, tc domain.TenantContext, membershipID int64, role domain.Role) (*domain.Membership, error) {
	if err := tc.Require(domain.RoleAdmin); err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, shared.NewValidationError("role", "is not a valid role")
	}

	return sharedapp.InUnitOfWork(ctx, s.uow, func(ctx context.Context) (*domain.Membership, error) {
		m, err := s.lockedMember(ctx, tc, membershipID)
		if err != nil {
			return nil, err
		}
		if !tc.Role.CanGrant(role) || !tc.Role.CanGrant(m.Role) {
			s.logger.WarnContext(ctx, "role change above actor", observability.TenantIDKey, tc.TenantID,
				"membership_id", membershipID, "role", role.String())
			return nil, domain.ErrForbidden
		}
		if m.Role == role {
			return m, nil
		}
		if m.IsActiveOwner() {
			if err := s.requireOtherOwner(ctx, tc.TenantID); err != nil {
				return nil, err
			}
		}

		previous := m.Role
		m.ChangeRole(role)
		if err := s.memberships.Update(ctx, tc.TenantID, m); err != nil {
			return nil, err
		}
		details := previous.String() + " -> " + role.String()
		if err := s.audit.Record(ctx, tc.TenantID, actorEntry(tc, domain.AuditMemberRoleChanged, "TenantUser", strconv.FormatInt(m.ID, 10), details)); err != nil {
			return nil, err
		}
		if err := sharedapp.PublishAggregateEvents(ctx, s.events, m, sharedapp.NewEventMetadata(ctx, tc.TenantID, tc.UserID)); err != nil {
			return nil, err
		}
		return m, nil
	})
}

// Remove deactivates a member. The last active owner cannot be removed.
func (s *MembershipService) Remove(ctx context.Context, tc domain.TenantContext, membershipID int64) error {
	if err := tc.Require(domain.RoleAdmin); err != nil {
		return err
	}

	return sharedapp.WithUnitOfWork(ctx, s.uow, func(ctx context.Context) error {
		m, err := s.lockedMember(ctx, tc, membershipID)
		if err != nil {
			return err
		}
		if !tc.Role.CanGrant(m.Role) {
			return domain.ErrForbidden
		}
		if m.IsActiveOwner() {
			if err := s.requireOtherOwner(ctx, tc.TenantID); err != nil {
				return err
			}
		}

		m.Deactivate()
		if err := s.memberships.Update(ctx, tc.TenantID, m); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tc.TenantID, actorEntry(tc, domain.AuditMemberRemoved, "TenantUser", strconv.FormatInt(m.ID, 10), m.Email)); err != nil {
			return err
		}
		return sharedapp.PublishAggregateEvents(ctx, s.events, m, sharedapp.NewEventMetadata(ctx, tc.TenantID, tc.UserID))
	})
}

// lockedMember locks the tenant and loads an active member of it.
func (s *MembershipService) lockedMember(ctx context.Context, tc domain.TenantContext, id int64) (*domain.Membership, error) {
	if _, err := s.tenants.LockTenant(ctx, tc.TenantID); err != nil {
		return nil, err
	}
	m, err := s.memberships.FindByID(ctx, tc.TenantID, id)
	if err != nil {
		return nil, err
	}
	if !m.IsActive {
		return nil, domain.ErrMembershipNotFound
	}
	return m, nil
}

func (s *MembershipService) requireOtherOwner(ctx context.Context, tenantID int64) error {
	owners, err := s.memberships.CountActiveOwners(ctx, tenantID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return domain.ErrLastOwner
	}
	return nil
}
