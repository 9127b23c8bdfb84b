package application

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/vorluno/planilla/internal/payroll/domain"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
	"github.com/vorluno/planilla/pkg/observability"
)

var exportHeader = []string{
	"id", "national_id", "first_name", "last_name", "department", "position",
	"base_salary", "pay_frequency", "hire_date", "active",
}

// ExportService writes payroll reports. Exports are a paid feature.
type ExportService struct {
	employees    domain.EmployeeRepository
	departments  domain.DepartmentRepository
	positions    domain.PositionRepository
	entitlements Entitlements
	audit        AuditRecorder
	logger       *slog.Logger
}

// NewExportService creates an export service.
func NewExportService(
	employees domain.EmployeeRepository,
	departments domain.DepartmentRepository,
	positions domain.PositionRepository,
	entitlements Entitlements,
	audit AuditRecorder,
	logger *slog.Logger,
) *ExportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportService{
		employees:    employees,
		departments:  departments,
		positions:    positions,
		entitlements: entitlements,
		audit:        audit,
		logger:       logger.With("component", "export"),
	}
}

// ExportEmployeesCSV writes the tenant's employees to w and returns the
// number of rows written. Accountants and above only.
func (s *ExportService) ExportEmployeesCSV(ctx context.Context, tc tenancy.TenantContext, w io.Writer, filter domain.EmployeeFilter) (int, error) {
	if err := tc.Require(tenancy.RoleAccountant); err != nil {
		return 0, err
	}
	if err := allowed(ctx, s.entitlements.CanExportReports, tc.TenantID); err != nil {
		s.logger.WarnContext(ctx, "export denied", observability.TenantIDKey, tc.TenantID, observability.ErrorKey, err)
		return 0, err
	}

	employees, err := s.employees.List(ctx, tc.TenantID, filter)
	if err != nil {
		return 0, err
	}
	departments, err := s.departments.List(ctx, tc.TenantID, false)
	if err != nil {
		return 0, err
	}
	positions, err := s.positions.List(ctx, tc.TenantID, false)
	if err != nil {
		return 0, err
	}
	depNames := make(map[int64]string, len(departments))
	for _, d := range departments {
		depNames[d.ID] = d.Name
	}
	posNames := make(map[int64]string, len(positions))
	for _, p := range positions {
		posNames[p.ID] = p.Name
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}
	for _, e := range employees {
		if err := cw.Write([]string{
			strconv.FormatInt(e.ID, 10),
			e.NationalID,
			e.FirstName,
			e.LastName,
			lookup(depNames, e.DepartmentID),
			lookup(posNames, e.PositionID),
			formatCents(e.BaseSalaryCents),
			string(e.PayFrequency),
			e.HireDate.Format("2006-01-02"),
			strconv.FormatBool(e.IsActive),
		}); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("write export: %w", err)
	}

	entry := auditEntry(tc, tenancy.AuditEmployeesExported, "Employee", 0, strconv.Itoa(len(employees))+" rows")
	entry.EntityID = ""
	if err := s.audit.Record(ctx, tc.TenantID, entry); err != nil {
		s.logger.WarnContext(ctx, "audit write failed", observability.ErrorKey, err)
	}
	return len(employees), nil
}

func lookup(names map[int64]string, id *int64) string {
	if id == nil {
		return ""
	}
	return names[*id]
}

// formatCents renders 123456 as "1234.56".
func formatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
