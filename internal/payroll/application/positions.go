package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/vorluno/planilla/internal/payroll/domain"
	sharedapp "github.com/vorluno/planilla/internal/shared/application"
	shared "github.com/vorluno/planilla/internal/shared/domain"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
)

// PositionService manages positions. Admins write, every member reads.
type PositionService struct {
	uow         sharedapp.UnitOfWork
	positions   domain.PositionRepository
	departments domain.DepartmentRepository
	logger      *slog.Logger
	now         func() time.Time
}

// NewPositionService creates a position service.
func NewPositionService(uow sharedapp.UnitOfWork, positions domain.PositionRepository, departments domain.DepartmentRepository, logger *slog.Logger) *PositionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PositionService{uow: uow, positions: positions, departments: departments, logger: logger.With("component", "positions"), now: time.Now}
}

func (s *PositionService) Create(ctx context.Context, tc tenancy.TenantContext, in domain.PositionInput) (*domain.Position, error) {
	if err := tc.Require(tenancy.RoleAdmin); err != nil {
		return nil, err
	}
	pos, err := domain.NewPosition(tc.TenantID, in, s.now())
	if err != nil {
		return nil, err
	}
	return sharedapp.InUnitOfWork(ctx, s.uow, func(ctx context.Context) (*domain.Position, error) {
		if err := s.checkDepartment(ctx, tc.TenantID, pos.DepartmentID); err != nil {
			return nil, err
		}
		if err := s.positions.Create(ctx, tc.TenantID, pos); err != nil {
			return nil, err
		}
		return pos, nil
	})
}

func (s *PositionService) Get(ctx context.Context, tc tenancy.TenantContext, id int64) (*domain.Position, error) {
	if err := tc.Require(tenancy.RoleEmployee); err != nil {
		return nil, err
	}
	return s.positions.FindByID(ctx, tc.TenantID, id)
}

func (s *PositionService) List(ctx context.Context, tc tenancy.TenantContext, activeOnly bool) ([]domain.Position, error) {
	if err := tc.Require(tenancy.RoleEmployee); err != nil {
		return nil, err
	}
	return s.positions.List(ctx, tc.TenantID, activeOnly)
}

func (s *PositionService) Update(ctx context.Context, tc tenancy.TenantContext, id int64, in domain.PositionInput) (*domain.Position, error) {
	if err := tc.Require(tenancy.RoleAdmin); err != nil {
		return nil, err
	}
	return sharedapp.InUnitOfWork(ctx, s.uow, func(ctx context.Context) (*domain.Position, error) {
		pos, err := s.positions.FindByID(ctx, tc.TenantID, id)
		if err != nil {
			return nil, err
		}
		if err := pos.Update(in, s.now()); err != nil {
			return nil, err
		}
		if err := s.checkDepartment(ctx, tc.TenantID, pos.DepartmentID); err != nil {
			return nil, err
		}
		if err := s.positions.Update(ctx, tc.TenantID, pos); err != nil {
			return nil, err
		}
		return pos, nil
	})
}

func (s *PositionService) Deactivate(ctx context.Context, tc tenancy.TenantContext, id int64) error {
	if err := tc.Require(tenancy.RoleAdmin); err != nil {
		return err
	}
	return sharedapp.WithUnitOfWork(ctx, s.uow, func(ctx context.Context) error {
		pos, err := s.positions.FindByID(ctx, tc.TenantID, id)
		if err != nil {
			return err
		}
		pos.IsActive = false
		pos.UpdatedAt = s.now().UTC()
		return s.positions.Update(ctx, tc.TenantID, pos)
	})
}

// checkDepartment resolves the department inside the caller's tenant, so a
// foreign id reads as not found.
func (s *PositionService) checkDepartment(ctx context.Context, tenantID, departmentID int64) error {
	dep, err := s.departments.FindByID(ctx, tenantID, departmentID)
	if err != nil {
		return err
	}
	if !dep.IsActive {
		return shared.NewValidationError("department_id", "department is inactive")
	}
	return nil
}
