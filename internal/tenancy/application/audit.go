package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vorluno/planilla/internal/tenancy/domain"
	"github.com/vorluno/planilla/pkg/observability"
)

// AuditService writes and reads the per-tenant audit trail.
type AuditService struct {
	repo   domain.AuditRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditService creates an audit service.
func NewAuditService(repo domain.AuditRepository, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{repo: repo, logger: logger.With("component", "audit"), now: time.Now}
}

// Record appends entry to the tenant's trail in the caller's transaction.
func (s *AuditService) Record(ctx context.Context, tenantID int64, entry domain.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	if entry.IPAddress == "" {
		entry.IPAddress = observability.ClientIPFromContext(ctx)
	}
	entry.TenantID = tenantID
	return s.repo.Append(ctx, tenantID, &entry)
}

// List pages through the caller's tenant trail. Admins and owners only.
func (s *AuditService) List(ctx context.Context, tc domain.TenantContext, filter domain.AuditFilter) (domain.AuditPage, error) {
	if err := tc.Require(domain.RoleAdmin); err != nil {
		return domain.AuditPage{}, err
	}
	return s.repo.List(ctx, tc.TenantID, filter.Normalize())
}

func actorEntry(tc domain.TenantContext, action, entityType, entityID, details string) domain.AuditEntry {
	e := domain.AuditEntry{
		ActorEmail: tc.Email,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
	if tc.UserID != uuid.Nil {
		e.ActorUserID.UUID, e.ActorUserID.Valid = tc.UserID, true
	}
	return e
}
