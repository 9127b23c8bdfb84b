package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/isolation"
	"github.com/vorluno/planilla/internal/tenancy/domain"
)

// membershipSelect reads memberships of the scoped tenant with the user's
// name and e-mail.
const membershipSelect = `
	SELECT tu.id, tu.tenant_id, tu.user_id, tu.role, tu.is_active, tu.joined_at, tu.last_login_at,
	       u.email, u.full_name
	FROM tenant_users tu
	JOIN users u ON u.id = tu.user_id
	WHERE tu.tenant_id = :tenant_id`

// MembershipRepository implements domain.MembershipRepository through the
// tenant-scoped executor.
type MembershipRepository struct {
	conn database.Connection
}

// NewMembershipRepository creates a membership repository.
func NewMembershipRepository(conn database.Connection) *MembershipRepository {
	return &MembershipRepository{conn: conn}
}

// Create inserts m for tenantID and assigns its ID.
func (r *MembershipRepository) Create(ctx context.Context, tenantID int64, m *domain.Membership) error {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return err
	}
	err = s.QueryRow(ctx, `
		INSERT INTO tenant_users (tenant_id, user_id, role, is_active, joined_at, last_login_at)
		VALUES (:tenant_id, ?, ?, ?, ?, ?)
		RETURNING id`,
		m.UserID, int(m.Role), m.IsActive, s.Driver().Time(m.JoinedAt), s.Driver().NullTime(m.LastLoginAt),
	).Scan(&m.ID)
	if database.IsUniqueViolation(err) {
		return domain.ErrAlreadyMember
	}
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	m.TenantID = tenantID
	return nil
}

// FindByID returns a membership of the tenant or domain.ErrMembershipNotFound.
func (r *MembershipRepository) FindByID(ctx context.Context, tenantID, id int64) (*domain.Membership, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	return findMembership(s.QueryRow(ctx, membershipSelect+` AND tu.id = ?`, id))
}

// FindByUser returns the user's membership in the tenant.
func (r *MembershipRepository) FindByUser(ctx context.Context, tenantID int64, userID uuid.UUID) (*domain.Membership, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	return findMembership(s.QueryRow(ctx, membershipSelect+` AND tu.user_id = ?`, userID))
}

// List returns all memberships of the tenant, active and inactive.
func (r *MembershipRepository) List(ctx context.Context, tenantID int64) ([]domain.Membership, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Query(ctx, membershipSelect+` ORDER BY tu.joined_at, tu.id`)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return database.ScanAll(rows, scanMembershipValue)
}

// Update writes role, active flag and join time.
func (r *MembershipRepository) Update(ctx context.Context, tenantID int64, m *domain.Membership) error {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return err
	}
	res, err := s.Exec(ctx, `
		UPDATE tenant_users SET role = ?, is_active = ?, joined_at = ?
		WHERE id = ? AND tenant_id = :tenant_id`,
		int(m.Role), m.IsActive, s.Driver().Time(m.JoinedAt), m.ID)
	if err != nil {
		return fmt.Errorf("update membership: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMembershipNotFound
	}
	return nil
}

// CountActive counts active memberships.
func (r *MembershipRepository) CountActive(ctx context.Context, tenantID int64) (int, error) {
	return r.count(ctx, tenantID, `SELECT COUNT(*) FROM tenant_users WHERE tenant_id = :tenant_id AND is_active = ?`, true)
}

// CountActiveOwners counts active owners.
func (r *MembershipRepository) CountActiveOwners(ctx context.Context, tenantID int64) (int, error) {
	return r.count(ctx, tenantID,
		`SELECT COUNT(*) FROM tenant_users WHERE tenant_id = :tenant_id AND is_active = ? AND role = ?`,
		true, int(domain.RoleOwner))
}

func (r *MembershipRepository) count(ctx context.Context, tenantID int64, query string, args ...any) (int, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memberships: %w", err)
	}
	return n, nil
}

// TouchLogin records a login time.
func (r *MembershipRepository) TouchLogin(ctx context.Context, tenantID, id int64, at time.Time) error {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return err
	}
	_, err = s.Exec(ctx, `UPDATE tenant_users SET last_login_at = ? WHERE id = ? AND tenant_id = :tenant_id`,
		s.Driver().Time(at), id)
	return err
}

func findMembership(row database.Row) (*domain.Membership, error) {
	m, err := scanMembershipValue(row)
	if database.IsNoRows(err) {
		return nil, domain.ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	return &m, nil
}

func scanMembershipValue(row database.Row) (domain.Membership, error) {
	var (
		m                   domain.Membership
		role                int
		joinedAt, lastLogin database.NullTime
	)
	if err := row.Scan(&m.ID, &m.TenantID, &m.UserID, &role, &m.IsActive, &joinedAt, &lastLogin,
		&m.Email, &m.FullName); err != nil {
		return domain.Membership{}, err
	}
	m.Role = domain.Role(role)
	m.JoinedAt = joinedAt.Time
	m.LastLoginAt = lastLogin.Ptr()
	return m, nil
}
