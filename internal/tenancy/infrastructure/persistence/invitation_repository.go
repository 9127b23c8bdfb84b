package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/isolation"
	"github.com/vorluno/planilla/internal/tenancy/domain"
)

const invitationSelect = `
	SELECT i.id, i.tenant_id, i.email, i.role, i.token, i.expires_at, i.accepted_at, i.revoked_at,
	       i.invited_by, i.created_at, t.name
	FROM invitations i
	JOIN tenants t ON t.id = i.tenant_id
	WHERE i.tenant_id = :tenant_id`

// InvitationRepository implements domain.InvitationRepository through the
// tenant-scoped executor.
type InvitationRepository struct {
	conn database.Connection
}

// NewInvitationRepository creates an invitation repository.
func NewInvitationRepository(conn database.Connection) *InvitationRepository {
	return &InvitationRepository{conn: conn}
}

// Create inserts inv for tenantID and assigns its ID.
func (r *InvitationRepository) Create(ctx context.Context, tenantID int64, inv *domain.Invitation) error {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return err
	}
	d := s.Driver()
	err = s.QueryRow(ctx, `
		INSERT INTO invitations (tenant_id, email, role, token, expires_at, invited_by, created_at)
		VALUES (:tenant_id, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		strings.ToLower(inv.Email), int(inv.Role), inv.Token, d.Time(inv.ExpiresAt), inv.InvitedBy, d.Time(inv.CreatedAt),
	).Scan(&inv.ID)
	if err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	inv.TenantID = tenantID
	return nil
}

// FindByID returns an invitation of the tenant or domain.ErrInvitationNotFound.
func (r *InvitationRepository) FindByID(ctx context.Context, tenantID, id int64) (*domain.Invitation, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	inv, err := scanInvitation(s.QueryRow(ctx, invitationSelect+` AND i.id = ?`, id))
	if database.IsNoRows(err) {
		return nil, domain.ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load invitation: %w", err)
	}
	return inv, nil
}

// ListPending returns usable invitations, newest first.
func (r *InvitationRepository) ListPending(ctx context.Context, tenantID int64, now time.Time) ([]domain.Invitation, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Query(ctx, invitationSelect+`
		  AND i.accepted_at IS NULL AND i.revoked_at IS NULL AND i.expires_at > ?
		ORDER BY i.created_at DESC, i.id DESC`, s.Driver().Time(now))
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return database.ScanAll(rows, func(row database.Row) (domain.Invitation, error) {
		inv, err := scanInvitation(row)
		if err != nil {
			return domain.Invitation{}, err
		}
		return *inv, nil
	})
}

// CountPending counts usable invitations.
func (r *InvitationRepository) CountPending(ctx context.Context, tenantID int64, now time.Time) (int, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.QueryRow(ctx, `
		SELECT COUNT(*) FROM invitations
		WHERE tenant_id = :tenant_id
		  AND accepted_at IS NULL AND revoked_at IS NULL AND expires_at > ?`,
		s.Driver().Time(now)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count invitations: %w", err)
	}
	return n, nil
}

// HasPending reports whether email already holds a usable invitation.
func (r *InvitationRepository) HasPending(ctx context.Context, tenantID int64, email string, now time.Time) (bool, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return false, err
	}
	var n int
	err = s.QueryRow(ctx, `
		SELECT COUNT(*) FROM invitations
		WHERE tenant_id = :tenant_id AND email = ?
		  AND accepted_at IS NULL AND revoked_at IS NULL AND expires_at > ?`,
		strings.ToLower(email), s.Driver().Time(now)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check invitation: %w", err)
	}
	return n > 0, nil
}

// Update writes acceptance and revocation timestamps.
func (r *InvitationRepository) Update(ctx context.Context, tenantID int64, inv *domain.Invitation) error {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return err
	}
	res, err := s.Exec(ctx, `
		UPDATE invitations SET accepted_at = ?, revoked_at = ?
		WHERE id = ? AND tenant_id = :tenant_id`,
		s.Driver().NullTime(inv.AcceptedAt), s.Driver().NullTime(inv.RevokedAt), inv.ID)
	if err != nil {
		return fmt.Errorf("update invitation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInvitationNotFound
	}
	return nil
}

func scanInvitation(row database.Row) (*domain.Invitation, error) {
	var (
		inv                                       domain.Invitation
		role                                      int
		expiresAt, acceptedAt, revokedAt, created database.NullTime
	)
	if err := row.Scan(&inv.ID, &inv.TenantID, &inv.Email, &role, &inv.Token, &expiresAt, &acceptedAt,
		&revokedAt, &inv.InvitedBy, &created, &inv.TenantName); err != nil {
		return nil, err
	}
	inv.Role = domain.Role(role)
	inv.ExpiresAt = expiresAt.Time
	inv.AcceptedAt = acceptedAt.Ptr()
	inv.RevokedAt = revokedAt.Ptr()
	inv.CreatedAt = created.Time
	return &inv, nil
}
