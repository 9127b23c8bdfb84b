package persistence

import (
	"context"
	"fmt"

	"github.com/vorluno/planilla/internal/payroll/domain"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/isolation"
)

// TaxConfigurationRepository implements domain.TaxConfigurationRepository.
type TaxConfigurationRepository struct {
	conn database.Connection
}

// NewTaxConfigurationRepository creates a tax configuration repository.
func NewTaxConfigurationRepository(conn database.Connection) *TaxConfigurationRepository {
	return &TaxConfigurationRepository{conn: conn}
}

// CreateIfAbsent inserts c unless (tenant, year) already exists.
func (r *TaxConfigurationRepository) CreateIfAbsent(ctx context.Context, tenantID int64, c *domain.TaxConfiguration) (bool, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return false, err
	}
	res, err := s.Exec(ctx, `
		INSERT INTO tax_configurations (
			tenant_id, year, description, css_employee_rate_bp, css_employer_rate_bp,
			educational_employee_rate_bp, educational_employer_rate_bp,
			dependent_deduction_cents, max_dependents, created_at
		) VALUES (:tenant_id, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, year) DO NOTHING`,
		c.Year, c.Description, c.CSSEmployeeRate, c.CSSEmployerRate,
		c.EducationalEmployeeRate, c.EducationalEmployerRate,
		c.DependentDeductionCents, c.MaxDependents, s.Driver().Time(c.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert tax configuration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	c.TenantID = tenantID
	return n == 1, nil
}

// FindByYear returns the tenant's configuration for year.
func (r *TaxConfigurationRepository) FindByYear(ctx context.Context, tenantID int64, year int) (*domain.TaxConfiguration, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	var (
		c       domain.TaxConfiguration
		created database.NullTime
	)
	err = s.QueryRow(ctx, `
		SELECT id, tenant_id, year, description, css_employee_rate_bp, css_employer_rate_bp,
		       educational_employee_rate_bp, educational_employer_rate_bp,
		       dependent_deduction_cents, max_dependents, created_at
		FROM tax_configurations
		WHERE tenant_id = :tenant_id AND year = ?`, year,
	).Scan(&c.ID, &c.TenantID, &c.Year, &c.Description, &c.CSSEmployeeRate, &c.CSSEmployerRate,
		&c.EducationalEmployeeRate, &c.EducationalEmployerRate,
		&c.DependentDeductionCents, &c.MaxDependents, &created)
	if database.IsNoRows(err) {
		return nil, domain.ErrTaxConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load tax configuration: %w", err)
	}
	c.CreatedAt = created.Time
	return &c, nil
}
