package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	sharedapp "github.com/vorluno/planilla/internal/shared/application"
	"github.com/vorluno/planilla/internal/tenancy/domain"
)

// TenantAdmin is the operator view of the tenant directory, used by the
// CLI. It is not reachable from the HTTP API.
type TenantAdmin struct {
	uow     sharedapp.UnitOfWork
	tenants domain.TenantRepository
	events  sharedapp.EventSink
	logger  *slog.Logger
	now     func() time.Time
}

// NewTenantAdmin creates a tenant admin.
func NewTenantAdmin(uow sharedapp.UnitOfWork, tenants domain.TenantRepository, events sharedapp.EventSink, logger *slog.Logger) *TenantAdmin {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantAdmin{uow: uow, tenants: tenants, events: events, logger: logger.With("component", "tenant_admin"), now: time.Now}
}

// List returns every tenant.
func (a *TenantAdmin) List(ctx context.Context) ([]domain.Tenant, error) {
	return a.tenants.List(ctx)
}

// SetActive activates or deactivates a tenant. Deactivated tenants keep
// their data; every request for them is refused.
func (a *TenantAdmin) SetActive(ctx context.Context, tenantID int64, active bool) error {
	return sharedapp.WithUnitOfWork(ctx, a.uow, func(ctx context.Context) error {
		tenant, err := a.tenants.LockTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		now := a.now().UTC()
		if active {
			tenant.Activate(now)
		} else {
			tenant.Deactivate(now)
		}
		if len(tenant.DomainEvents()) == 0 {
			return nil
		}
		if err := a.tenants.SetActive(ctx, tenantID, active, now); err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "tenant status changed", "tenant", tenantID, "active", active)
		return sharedapp.PublishAggregateEvents(ctx, a.events, tenant, sharedapp.NewEventMetadata(ctx, tenantID, uuid.Nil))
	})
}
