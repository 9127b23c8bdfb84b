package persistence

import (
	"context"
	"fmt"

	"github.com/vorluno/planilla/internal/payroll/domain"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/isolation"
)

const positionSelect = `
	SELECT id, tenant_id, department_id, name, code, min_salary_cents, max_salary_cents,
	       risk_level, is_active, created_at, updated_at
	FROM positions
	WHERE tenant_id = :tenant_id`

// PositionRepository implements domain.PositionRepository.
type PositionRepository struct {
	conn database.Connection
}

// NewPositionRepository creates a position repository.
func NewPositionRepository(conn database.Connection) *PositionRepository {
	return &PositionRepository{conn: conn}
}

// Create inserts p for tenantID. The department reference is checked by a
// composite foreign key on (tenant_id, department_id).
func (r *PositionRepository) Create(ctx context.Context, tenantID int64, p *domain.Position) error {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return err
	}
	d := s.Driver()
	err = s.QueryRow(ctx, `
		INSERT INTO positions (
			tenant_id, department_id, name, code, min_salary_cents, max_salary_cents,
			risk_level, is_active, created_at, updated_at
		) VALUES (:tenant_id, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		p.DepartmentID, p.Name, p.Code, p.MinSalaryCents, p.MaxSalaryCents,
		string(p.RiskLevel), p.IsActive, d.Time(p.CreatedAt), d.Time(p.UpdatedAt),
	).Scan(&p.ID)
	if database.IsUniqueViolation(err) {
		return domain.ErrPositionCodeUsed
	}
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	p.TenantID = tenantID
	return nil
}

// FindByID returns a position of the tenant.
func (r *PositionRepository) FindByID(ctx context.Context, tenantID, id int64) (*domain.Position, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	p, err := scanPosition(s.QueryRow(ctx, positionSelect+` AND id = ?`, id))
	if database.IsNoRows(err) {
		return nil, domain.ErrPositionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}
	return &p, nil
}

// List returns the tenant's positions by code.
func (r *PositionRepository) List(ctx context.Context, tenantID int64, activeOnly bool) ([]domain.Position, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	var rows database.Rows
	if activeOnly {
		rows, err = s.Query(ctx, positionSelect+` AND is_active = ? ORDER BY code`, true)
	} else {
		rows, err = s.Query(ctx, positionSelect+` ORDER BY code`)
	}
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return database.ScanAll(rows, scanPosition)
}

// Update writes the editable columns and the active flag.
func (r *PositionRepository) Update(ctx context.Context, tenantID int64, p *domain.Position) error {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return err
	}
	res, err := s.Exec(ctx, `
		UPDATE positions SET
			department_id = ?, name = ?, code = ?, min_salary_cents = ?, max_salary_cents = ?,
			risk_level = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND tenant_id = :tenant_id`,
		p.DepartmentID, p.Name, p.Code, p.MinSalaryCents, p.MaxSalaryCents,
		string(p.RiskLevel), p.IsActive, s.Driver().Time(p.UpdatedAt), p.ID)
	if database.IsUniqueViolation(err) {
		return domain.ErrPositionCodeUsed
	}
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPositionNotFound
	}
	return nil
}

func scanPosition(row database.Row) (domain.Position, error) {
	var (
		p            domain.Position
		risk         string
		created, upd database.NullTime
	)
	if err := row.Scan(&p.ID, &p.TenantID, &p.DepartmentID, &p.Name, &p.Code, &p.MinSalaryCents, &p.MaxSalaryCents,
		&risk, &p.IsActive, &created, &upd); err != nil {
		return domain.Position{}, err
	}
	p.RiskLevel = domain.RiskLevel(risk)
	p.CreatedAt = created.Time
	p.UpdatedAt = upd.Time
	return p, nil
}
