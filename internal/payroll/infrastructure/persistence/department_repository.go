package persistence

import (
	"context"
	"fmt"

	"github.com/vorluno/planilla/internal/payroll/domain"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/isolation"
)

const departmentSelect = `
	SELECT id, tenant_id, name, code, description, is_active, created_at, updated_at
	FROM departments
	WHERE tenant_id = :tenant_id`

// DepartmentRepository implements domain.DepartmentRepository.
type DepartmentRepository struct {
	conn database.Connection
}

// NewDepartmentRepository creates a department repository.
func NewDepartmentRepository(conn database.Connection) *DepartmentRepository {
	return &DepartmentRepository{conn: conn}
}

// Create inserts dep for tenantID.
func (r *DepartmentRepository) Create(ctx context.Context, tenantID int64, dep *domain.Department) error {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return err
	}
	d := s.Driver()
	err = s.QueryRow(ctx, `
		INSERT INTO departments (tenant_id, name, code, description, is_active, created_at, updated_at)
		VALUES (:tenant_id, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		dep.Name, dep.Code, dep.Description, dep.IsActive, d.Time(dep.CreatedAt), d.Time(dep.UpdatedAt),
	).Scan(&dep.ID)
	if database.IsUniqueViolation(err) {
		return domain.ErrDepartmentCodeUsed
	}
	if err != nil {
		return fmt.Errorf("insert department: %w", err)
	}
	dep.TenantID = tenantID
	return nil
}

// FindByID returns a department of the tenant.
func (r *DepartmentRepository) FindByID(ctx context.Context, tenantID, id int64) (*domain.Department, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	dep, err := scanDepartment(s.QueryRow(ctx, departmentSelect+` AND id = ?`, id))
	if database.IsNoRows(err) {
		return nil, domain.ErrDepartmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load department: %w", err)
	}
	return &dep, nil
}

// List returns the tenant's departments by code.
func (r *DepartmentRepository) List(ctx context.Context, tenantID int64, activeOnly bool) ([]domain.Department, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	var rows database.Rows
	if activeOnly {
		rows, err = s.Query(ctx, departmentSelect+` AND is_active = ? ORDER BY code`, true)
	} else {
		rows, err = s.Query(ctx, departmentSelect+` ORDER BY code`)
	}
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return database.ScanAll(rows, scanDepartment)
}

// Update writes the editable columns and the active flag.
func (r *DepartmentRepository) Update(ctx context.Context, tenantID int64, dep *domain.Department) error {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return err
	}
	res, err := s.Exec(ctx, `
		UPDATE departments SET name = ?, code = ?, description = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND tenant_id = :tenant_id`,
		dep.Name, dep.Code, dep.Description, dep.IsActive, s.Driver().Time(dep.UpdatedAt), dep.ID)
	if database.IsUniqueViolation(err) {
		return domain.ErrDepartmentCodeUsed
	}
	if err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrDepartmentNotFound
	}
	return nil
}

// CountActivePositions counts active positions of the department.
func (r *DepartmentRepository) CountActivePositions(ctx context.Context, tenantID, departmentID int64) (int, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.QueryRow(ctx, `
		SELECT COUNT(*) FROM positions
		WHERE tenant_id = :tenant_id AND department_id = ? AND is_active = ?`,
		departmentID, true).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count positions: %w", err)
	}
	return n, nil
}

func scanDepartment(row database.Row) (domain.Department, error) {
	var (
		dep          domain.Department
		created, upd database.NullTime
	)
	if err := row.Scan(&dep.ID, &dep.TenantID, &dep.Name, &dep.Code, &dep.Description, &dep.IsActive, &created, &upd); err != nil {
		return domain.Department{}, err
	}
	dep.CreatedAt = created.Time
	dep.UpdatedAt = upd.Time
	return dep, nil
}
