package persistence

import (
	"context"
	"fmt"

	"github.com/vorluno/planilla/internal/payroll/domain"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/isolation"
)

const receiptSelect = `
	SELECT id, tenant_id, employee_id, period_start, period_end,
	       gross_cents, deductions_cents, net_cents, generated_at
	FROM payroll_receipts
	WHERE tenant_id = :tenant_id`

// ReceiptRepository implements domain.ReceiptRepository.
type ReceiptRepository struct {
	conn database.Connection
}

// NewReceiptRepository creates a payroll receipt repository.
func NewReceiptRepository(conn database.Connection) *ReceiptRepository {
	return &ReceiptRepository{conn: conn}
}

// Create inserts r for tenantID. The employee reference is checked by a
// composite foreign key on (tenant_id, employee_id).
func (r *ReceiptRepository) Create(ctx context.Context, tenantID int64, rc *domain.PayrollReceipt) error {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return err
	}
	d := s.Driver()
	err = s.QueryRow(ctx, `
		INSERT INTO payroll_receipts (
			tenant_id, employee_id, period_start, period_end,
			gross_cents, deductions_cents, net_cents, generated_at
		) VALUES (:tenant_id, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		rc.EmployeeID, d.Time(rc.PeriodStart), d.Time(rc.PeriodEnd),
		rc.GrossCents, rc.DeductionsCents, rc.NetCents, d.Time(rc.GeneratedAt),
	).Scan(&rc.ID)
	if database.IsUniqueViolation(err) {
		return domain.ErrReceiptExists
	}
	if err != nil {
		return fmt.Errorf("insert payroll receipt: %w", err)
	}
	rc.TenantID = tenantID
	return nil
}

// FindByID returns a receipt of the tenant.
func (r *ReceiptRepository) FindByID(ctx context.Context, tenantID, id int64) (*domain.PayrollReceipt, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	rc, err := scanReceipt(s.QueryRow(ctx, receiptSelect+` AND id = ?`, id))
	if database.IsNoRows(err) {
		return nil, domain.ErrReceiptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load payroll receipt: %w", err)
	}
	return &rc, nil
}

// List returns the tenant's receipts, newest period first.
func (r *ReceiptRepository) List(ctx context.Context, tenantID int64, filter domain.ReceiptFilter) ([]domain.PayrollReceipt, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	d := s.Driver()
	query := receiptSelect
	var args []any
	if filter.EmployeeID > 0 {
		query += ` AND employee_id = ?`
		args = append(args, filter.EmployeeID)
	}
	if !filter.From.IsZero() {
		query += ` AND period_end >= ?`
		args = append(args, d.Time(filter.From))
	}
	if !filter.To.IsZero() {
		query += ` AND period_start <= ?`
		args = append(args, d.Time(filter.To))
	}
	rows, err := s.Query(ctx, query+` ORDER BY period_start DESC, employee_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list payroll receipts: %w", err)
	}
	return database.ScanAll(rows, scanReceipt)
}

func scanReceipt(row database.Row) (domain.PayrollReceipt, error) {
	var (
		rc                    domain.PayrollReceipt
		start, end, generated database.NullTime
	)
	if err := row.Scan(&rc.ID, &rc.TenantID, &rc.EmployeeID, &start, &end,
		&rc.GrossCents, &rc.DeductionsCents, &rc.NetCents, &generated); err != nil {
		return domain.PayrollReceipt{}, err
	}
	rc.PeriodStart = start.Time.UTC()
	rc.PeriodEnd = end.Time.UTC()
	rc.GeneratedAt = generated.Time
	return rc, nil
}
