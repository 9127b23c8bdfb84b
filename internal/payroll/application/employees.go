package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/vorluno/planilla/internal/payroll/domain"
	sharedapp "github.com/vorluno/planilla/internal/shared/application"
	shared "github.com/vorluno/planilla/internal/shared/domain"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
	"github.com/vorluno/planilla/pkg/observability"
)

// EmployeeDeps groups the collaborators of EmployeeService.
type EmployeeDeps struct {
	UnitOfWork   sharedapp.UnitOfWork
	Tenants      TenantLocker
	Employees    domain.EmployeeRepository
	Departments  domain.DepartmentRepository
	Positions    domain.PositionRepository
	Entitlements Entitlements
	Audit        AuditRecorder
	Events       sharedapp.EventSink
	Logger       *slog.Logger
}

// EmployeeService manages a tenant's employees. Creating and reactivating
// employees count against the plan's employee limit.
type EmployeeService struct {
	uow          sharedapp.UnitOfWork
	tenants      TenantLocker
	employees    domain.EmployeeRepository
	departments  domain.DepartmentRepository
	positions    domain.PositionRepository
	entitlements Entitlements
	audit        AuditRecorder
	events       sharedapp.EventSink
	logger       *slog.Logger
	now          func() time.Time
}

// NewEmployeeService creates an employee service.
func NewEmployeeService(deps EmployeeDeps) *EmployeeService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EmployeeService{
		uow:          deps.UnitOfWork,
		tenants:      deps.Tenants,
		employees:    deps.Employees,
		departments:  deps.Departments,
		positions:    deps.Positions,
		entitlements: deps.Entitlements,
		audit:        deps.Audit,
		events:       deps.Events,
		logger:       logger.With("component", "employees"),
		now:          time.Now,
	}
}

// Create hires an employee. The limit check and the insert run under the
// tenant lock in one transaction.
func (s *EmployeeService) Create(ctx context.Context, tc tenancy.TenantContext, in domain.EmployeeInput) (*domain.Employee, error) {
	if err := tc.Require(tenancy.RoleManager); err != nil {
		return nil, err
	}
	emp, err := domain.NewEmployee(tc.TenantID, in, s.now())
	if err != nil {
		return nil, err
	}

	return sharedapp.InUnitOfWork(ctx, s.uow, func(ctx context.Context) (*domain.Employee, error) {
		if _, err := s.tenants.LockTenant(ctx, tc.TenantID); err != nil {
			return nil, err
		}
		if err := allowed(ctx, s.entitlements.CanCreateEmployee, tc.TenantID); err != nil {
			s.logger.WarnContext(ctx, "employee limit reached", observability.TenantIDKey, tc.TenantID, observability.ErrorKey, err)
			return nil, err
		}
		if err := s.checkAssignment(ctx, tc.TenantID, emp); err != nil {
			return nil, err
		}
		if err := s.employees.Create(ctx, tc.TenantID, emp); err != nil {
			return nil, err
		}
		emp.Created()
		if err := s.finish(ctx, tc, emp, tenancy.AuditEmployeeCreated); err != nil {
			return nil, err
		}
		return emp, nil
	})
}

// Get returns one employee of the caller's tenant.
func (s *EmployeeService) Get(ctx context.Context, tc tenancy.TenantContext, id int64) (*domain.Employee, error) {
	if err := tc.Require(tenancy.RoleEmployee); err != nil {
		return nil, err
	}
	return s.employees.FindByID(ctx, tc.TenantID, id)
}

// List returns the caller's tenant employees.
func (s *EmployeeService) List(ctx context.Context, tc tenancy.TenantContext, filter domain.EmployeeFilter) ([]domain.Employee, error) {
	if err := tc.Require(tenancy.RoleEmployee); err != nil {
		return nil, err
	}
	return s.employees.List(ctx, tc.TenantID, filter)
}

// Update replaces an employee's editable fields.
func (s *EmployeeService) Update(ctx context.Context, tc tenancy.TenantContext, id int64, in domain.EmployeeInput) (*domain.Employee, error) {
	if err := tc.Require(tenancy.RoleManager); err != nil {
		return nil, err
	}
	return sharedapp.InUnitOfWork(ctx, s.uow, func(ctx context.Context) (*domain.Employee, error) {
		emp, err := s.employees.FindByID(ctx, tc.TenantID, id)
		if err != nil {
			return nil, err
		}
		if err := emp.Update(in, s.now()); err != nil {
			return nil, err
		}
		if err := s.checkAssignment(ctx, tc.TenantID, emp); err != nil {
			return nil, err
		}
		if err := s.employees.Update(ctx, tc.TenantID, emp); err != nil {
			return nil, err
		}
		if err := s.finish(ctx, tc, emp, tenancy.AuditEmployeeUpdated); err != nil {
			return nil, err
		}
		return emp, nil
	})
}

// Deactivate takes an employee off the payroll, freeing a slot.
func (s *EmployeeService) Deactivate(ctx context.Context, tc tenancy.TenantContext, id int64) error {
	if err := tc.Require(tenancy.RoleManager); err != nil {
		return err
	}
	return sharedapp.WithUnitOfWork(ctx, s.uow, func(ctx context.Context) error {
		if _, err := s.tenants.LockTenant(ctx, tc.TenantID); err != nil {
			return err
		}
		emp, err := s.employees.FindByID(ctx, tc.TenantID, id)
		if err != nil {
			return err
		}
		if err := emp.Deactivate(s.now()); err != nil {
			return err
		}
		if err := s.employees.Update(ctx, tc.TenantID, emp); err != nil {
			return err
		}
		return s.finish(ctx, tc, emp, tenancy.AuditEmployeeDeactivated)
	})
}

// Reactivate puts an employee back on the payroll if the plan has room.
func (s *EmployeeService) Reactivate(ctx context.Context, tc tenancy.TenantContext, id int64) (*domain.Employee, error) {
	if err := tc.Require(tenancy.RoleManager); err != nil {
		return nil, err
	}
	return sharedapp.InUnitOfWork(ctx, s.uow, func(ctx context.Context) (*domain.Employee, error) {
		if _, err := s.tenants.LockTenant(ctx, tc.TenantID); err != nil {
			return nil, err
		}
		emp, err := s.employees.FindByID(ctx, tc.TenantID, id)
		if err != nil {
			return nil, err
		}
		if emp.IsActive {
			return nil, domain.ErrEmployeeActive
		}
		if err := allowed(ctx, s.entitlements.CanCreateEmployee, tc.TenantID); err != nil {
			return nil, err
		}
		if err := emp.Reactivate(s.now()); err != nil {
			return nil, err
		}
		if err := s.employees.Update(ctx, tc.TenantID, emp); err != nil {
			return nil, err
		}
		if err := s.finish(ctx, tc, emp, tenancy.AuditEmployeeReactivated); err != nil {
			return nil, err
		}
		return emp, nil
	})
}

// checkAssignment verifies the employee's department and position belong
// to the tenant, are active, agree with each other and admit the salary.
func (s *EmployeeService) checkAssignment(ctx context.Context, tenantID int64, emp *domain.Employee) error {
	if emp.DepartmentID != nil {
		dep, err := s.departments.FindByID(ctx, tenantID, *emp.DepartmentID)
		if err != nil {
			return err
		}
		if !dep.IsActive {
			return shared.NewValidationError("department_id", "department is inactive")
		}
	}
	if emp.PositionID == nil {
		return nil
	}
	pos, err := s.positions.FindByID(ctx, tenantID, *emp.PositionID)
	if err != nil {
		return err
	}
	verr := &shared.ValidationError{}
	if !pos.IsActive {
		verr.Add("position_id", "position is inactive")
	}
	if emp.DepartmentID != nil && *emp.DepartmentID != pos.DepartmentID {
		verr.Add("position_id", "position belongs to another department")
	}
	if !pos.AllowsSalary(emp.BaseSalaryCents) {
		verr.Add("base_salary", "is outside the position's salary range")
	}
	return verr.OrNil()
}

func (s *EmployeeService) finish(ctx context.Context, tc tenancy.TenantContext, emp *domain.Employee, action string) error {
	if err := s.audit.Record(ctx, tc.TenantID, auditEntry(tc, action, domain.AggregateEmployee, emp.ID, emp.FullName())); err != nil {
		return err
	}
	if err := sharedapp.PublishAggregateEvents(ctx, s.events, emp, sharedapp.NewEventMetadata(ctx, tc.TenantID, tc.UserID)); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, action, observability.TenantIDKey, tc.TenantID, "employee_id", emp.ID)
	return nil
}
