// Package persistence stores payroll records through the tenant-scoped
// executor.
package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vorluno/planilla/internal/payroll/domain"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/isolation"
)

const employeeSelect = `
	SELECT id, tenant_id, first_name, last_name, national_id, base_salary_cents, hire_date,
	       department_id, position_id, pay_frequency, is_active, created_at, updated_at
	FROM employees
	WHERE tenant_id = :tenant_id`

// EmployeeRepository implements domain.EmployeeRepository.
type EmployeeRepository struct {
	conn database.Connection
}

// NewEmployeeRepository creates an employee repository.
func NewEmployeeRepository(conn database.Connection) *EmployeeRepository {
	return &EmployeeRepository{conn: conn}
}

// Create inserts e for tenantID.
func (r *EmployeeRepository) Create(ctx context.Context, tenantID int64, e *domain.Employee) error {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return err
	}
	d := s.Driver()
	err = s.QueryRow(ctx, `
		INSERT INTO employees (
			tenant_id, first_name, last_name, national_id, base_salary_cents, hire_date,
			department_id, position_id, pay_frequency, is_active, created_at, updated_at
		) VALUES (:tenant_id, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		e.FirstName, e.LastName, e.NationalID, e.BaseSalaryCents, d.Time(e.HireDate),
		nullID(e.DepartmentID), nullID(e.PositionID), string(e.PayFrequency), e.IsActive,
		d.Time(e.CreatedAt), d.Time(e.UpdatedAt),
	).Scan(&e.ID)
	if database.IsUniqueViolation(err) {
		return domain.ErrNationalIDTaken
	}
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	e.TenantID = tenantID
	return nil
}

// FindByID returns an employee of the tenant or domain.ErrEmployeeNotFound.
func (r *EmployeeRepository) FindByID(ctx context.Context, tenantID, id int64) (*domain.Employee, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	e, err := scanEmployee(s.QueryRow(ctx, employeeSelect+` AND id = ?`, id))
	if database.IsNoRows(err) {
		return nil, domain.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load employee: %w", err)
	}
	return &e, nil
}

// List returns the tenant's employees ordered by name.
func (r *EmployeeRepository) List(ctx context.Context, tenantID int64, filter domain.EmployeeFilter) ([]domain.Employee, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	query := employeeSelect
	var args []any
	if filter.ActiveOnly {
		query += ` AND is_active = ?`
		args = append(args, true)
	}
	if filter.DepartmentID > 0 {
		query += ` AND department_id = ?`
		args = append(args, filter.DepartmentID)
	}
	rows, err := s.Query(ctx, query+` ORDER BY last_name, first_name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return database.ScanAll(rows, scanEmployee)
}

// Update writes every mutable column.
func (r *EmployeeRepository) Update(ctx context.Context, tenantID int64, e *domain.Employee) error {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return err
	}
	d := s.Driver()
	res, err := s.Exec(ctx, `
		UPDATE employees SET
			first_name = ?, last_name = ?, national_id = ?, base_salary_cents = ?, hire_date = ?,
			department_id = ?, position_id = ?, pay_frequency = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND tenant_id = :tenant_id`,
		e.FirstName, e.LastName, e.NationalID, e.BaseSalaryCents, d.Time(e.HireDate),
		nullID(e.DepartmentID), nullID(e.PositionID), string(e.PayFrequency), e.IsActive, d.Time(e.UpdatedAt),
		e.ID)
	if database.IsUniqueViolation(err) {
		return domain.ErrNationalIDTaken
	}
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrEmployeeNotFound
	}
	return nil
}

func scanEmployee(row database.Row) (domain.Employee, error) {
	var (
		e                    domain.Employee
		frequency            string
		hire, created, upd   database.NullTime
		department, position sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.TenantID, &e.FirstName, &e.LastName, &e.NationalID, &e.BaseSalaryCents, &hire,
		&department, &position, &frequency, &e.IsActive, &created, &upd); err != nil {
		return domain.Employee{}, err
	}
	e.HireDate = hire.Time
	e.DepartmentID = idPtr(department)
	e.PositionID = idPtr(position)
	e.PayFrequency = domain.PayFrequency(frequency)
	e.CreatedAt = created.Time
	e.UpdatedAt = upd.Time
	return e, nil
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func idPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
