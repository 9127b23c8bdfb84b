package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/vorluno/planilla/internal/payroll/domain"
	sharedapp "github.com/vorluno/planilla/internal/shared/application"
	"github.com/vorluno/planilla/pkg/observability"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
)

// ReceiptService records and reads payroll receipts. Accountants and above
// may do both; employees see nothing here.
type ReceiptService struct {
	uow       sharedapp.UnitOfWork
	receipts  domain.ReceiptRepository
	employees domain.EmployeeRepository
	audit     AuditRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewReceiptService creates a receipt service.
func NewReceiptService(uow sharedapp.UnitOfWork, receipts domain.ReceiptRepository, employees domain.EmployeeRepository, audit AuditRecorder, logger *slog.Logger) *ReceiptService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptService{
		uow:       uow,
		receipts:  receipts,
		employees: employees,
		audit:     audit,
		logger:    logger.With("component", "receipts"),
		now:       time.Now,
	}
}

// Create stores a receipt for one of the caller's employees. An employee id
// of another tenant reads as ErrEmployeeNotFound.
func (s *ReceiptService) Create(ctx context.Context, tc tenancy.TenantContext, in domain.ReceiptInput) (*domain.PayrollReceipt, error) {
	if err := tc.Require(tenancy.RoleAccountant); err != nil {
		return nil, err
	}
	rc, err := domain.NewPayrollReceipt(tc.TenantID, in, s.now())
	if err != nil {
		return nil, err
	}
	rc, err = sharedapp.InUnitOfWork(ctx, s.uow, func(ctx context.Context) (*domain.PayrollReceipt, error) {
		emp, err := s.employees.FindByID(ctx, tc.TenantID, rc.EmployeeID)
		if err != nil {
			return nil, err
		}
		if err := s.receipts.Create(ctx, tc.TenantID, rc); err != nil {
			return nil, err
		}
		entry := auditEntry(tc, tenancy.AuditReceiptGenerated, "PayrollReceipt", rc.ID,
			emp.FullName()+" "+rc.PeriodStart.Format(time.DateOnly)+".."+rc.PeriodEnd.Format(time.DateOnly))
		if err := s.audit.Record(ctx, tc.TenantID, entry); err != nil {
			return nil, err
		}
		return rc, nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "payroll receipt generated", observability.TenantIDKey, tc.TenantID,
		"employee_id", rc.EmployeeID, "receipt_id", rc.ID)
	return rc, nil
}

func (s *ReceiptService) Get(ctx context.Context, tc tenancy.TenantContext, id int64) (*domain.PayrollReceipt, error) {
	if err := tc.Require(tenancy.RoleAccountant); err != nil {
		return nil, err
	}
	return s.receipts.FindByID(ctx, tc.TenantID, id)
}

func (s *ReceiptService) List(ctx context.Context, tc tenancy.TenantContext, filter domain.ReceiptFilter) ([]domain.PayrollReceipt, error) {
	if err := tc.Require(tenancy.RoleAccountant); err != nil {
		return nil, err
	}
	return s.receipts.List(ctx, tc.TenantID, filter)
}
