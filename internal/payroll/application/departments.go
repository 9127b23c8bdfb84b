package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/vorluno/planilla/internal/payroll/domain"
	sharedapp "github.com/vorluno/planilla/internal/shared/application"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
)

// DepartmentService manages departments. Admins write, every member reads.
type DepartmentService struct {
	uow         sharedapp.UnitOfWork
	departments domain.DepartmentRepository
	logger      *slog.Logger
	now         func() time.Time
}

// NewDepartmentService creates a department service.
func NewDepartmentService(uow sharedapp.UnitOfWork, departments domain.DepartmentRepository, logger *slog.Logger) *DepartmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DepartmentService{uow: uow, departments: departments, logger: logger.With("component", "departments"), now: time.Now}
}

func (s *DepartmentService) Create(ctx context.Context, tc tenancy.TenantContext, in domain.DepartmentInput) (*domain.Department, error) {
	if err := tc.Require(tenancy.RoleAdmin); err != nil {
		return nil, err
	}
	dep, err := domain.NewDepartment(tc.TenantID, in, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.departments.Create(ctx, tc.TenantID, dep); err != nil {
		return nil, err
	}
	return dep, nil
}

func (s *DepartmentService) Get(ctx context.Context, tc tenancy.TenantContext, id int64) (*domain.Department, error) {
	if err := tc.Require(tenancy.RoleEmployee); err != nil {
		return nil, err
	}
	return s.departments.FindByID(ctx, tc.TenantID, id)
}

func (s *DepartmentService) List(ctx context.Context, tc tenancy.TenantContext, activeOnly bool) ([]domain.Department, error) {
	if err := tc.Require(tenancy.RoleEmployee); err != nil {
		return nil, err
	}
	return s.departments.List(ctx, tc.TenantID, activeOnly)
}

func (s *DepartmentService) Update(ctx context.Context, tc tenancy.TenantContext, id int64, in domain.DepartmentInput) (*domain.Department, error) {
	if err := tc.Require(tenancy.RoleAdmin); err != nil {
		return nil, err
	}
	return sharedapp.InUnitOfWork(ctx, s.uow, func(ctx context.Context) (*domain.Department, error) {
		dep, err := s.departments.FindByID(ctx, tc.TenantID, id)
		if err != nil {
			return nil, err
		}
		if err := dep.Update(in, s.now()); err != nil {
			return nil, err
		}
		if err := s.departments.Update(ctx, tc.TenantID, dep); err != nil {
			return nil, err
		}
		return dep, nil
	})
}

// Deactivate retires a department once none of its positions is active.
func (s *DepartmentService) Deactivate(ctx context.Context, tc tenancy.TenantContext, id int64) error {
	if err := tc.Require(tenancy.RoleAdmin); err != nil {
		return err
	}
	return sharedapp.WithUnitOfWork(ctx, s.uow, func(ctx context.Context) error {
		dep, err := s.departments.FindByID(ctx, tc.TenantID, id)
		if err != nil {
			return err
		}
		n, err := s.departments.CountActivePositions(ctx, tc.TenantID, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrDepartmentInUse
		}
		dep.IsActive = false
		dep.UpdatedAt = s.now().UTC()
		return s.departments.Update(ctx, tc.TenantID, dep)
	})
}
