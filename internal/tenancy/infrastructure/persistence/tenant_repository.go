// Package persistence stores the tenancy context on PostgreSQL or SQLite.
package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/tenancy/domain"
)

const tenantColumns = `id, name, subdomain, ruc, dv, address, phone, email, is_active, created_at, updated_at`

// TenantRepository implements domain.TenantRepository.
type TenantRepository struct {
	conn database.Connection
}

// NewTenantRepository creates a tenant repository.
func NewTenantRepository(conn database.Connection) *TenantRepository {
	return &TenantRepository{conn: conn}
}

func (r *TenantRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

// Create inserts a tenant.
func (r *TenantRepository) Create(ctx context.Context, t *domain.Tenant) error {
	d := r.conn.Driver()
	err := r.exec(ctx).QueryRow(ctx, d.Rebind(`
		INSERT INTO tenants (name, subdomain, ruc, dv, address, phone, email, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		t.Name, t.Subdomain, t.RUC, t.DV, t.Address, t.Phone, t.Email, t.IsActive,
		d.Time(t.CreatedAt), d.Time(t.UpdatedAt),
	).Scan(&t.ID)
	if database.IsUniqueViolation(err) {
		if strings.Contains(err.Error(), "subdomain") {
			return domain.ErrSubdomainTaken
		}
		return domain.ErrTaxIDTaken
	}
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

// FindByID returns the tenant or domain.ErrTenantNotFound.
func (r *TenantRepository) FindByID(ctx context.Context, id int64) (*domain.Tenant, error) {
	return r.find(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
}

// LockTenant reads the tenant row under FOR UPDATE on PostgreSQL. SQLite
// transactions already hold the database write lock.
func (r *TenantRepository) LockTenant(ctx context.Context, id int64) (*domain.Tenant, error) {
	if !database.InTransaction(ctx) {
		return nil, database.ErrNoTransaction
	}
	return r.find(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`+r.conn.Driver().ForUpdate(), id)
}

func (r *TenantRepository) find(ctx context.Context, query string, args ...any) (*domain.Tenant, error) {
	t, err := scanTenant(r.exec(ctx).QueryRow(ctx, r.conn.Driver().Rebind(query), args...))
	if database.IsNoRows(err) {
		return nil, domain.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	return t, nil
}

// SetActive flips the tenant's active flag.
func (r *TenantRepository) SetActive(ctx context.Context, id int64, active bool, at time.Time) error {
	res, err := r.exec(ctx).Exec(ctx, r.conn.Driver().Rebind(`UPDATE tenants SET is_active = ?, updated_at = ? WHERE id = ?`),
		active, r.conn.Driver().Time(at), id)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTenantNotFound
	}
	return nil
}

// List returns every tenant ordered by id.
func (r *TenantRepository) List(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := r.exec(ctx).Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return database.ScanAll(rows, func(row database.Row) (domain.Tenant, error) {
		t, err := scanTenant(row)
		if err != nil {
			return domain.Tenant{}, err
		}
		return *t, nil
	})
}

func scanTenant(row database.Row) (*domain.Tenant, error) {
	var (
		t                    domain.Tenant
		createdAt, updatedAt database.NullTime
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.RUC, &t.DV, &t.Address, &t.Phone, &t.Email,
		&t.IsActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.CreatedAt = createdAt.Time
	t.UpdatedAt = updatedAt.Time
	return &t, nil
}
