package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/tenancy/domain"
)

// Directory answers the lookups that happen before a tenant is known: an
// invitee presenting a token and a user logging in. It implements
// domain.InvitationDirectory and domain.MembershipDirectory.
type Directory struct {
	conn database.Connection
}

// NewDirectory creates a directory over conn.
func NewDirectory(conn database.Connection) *Directory {
	return &Directory{conn: conn}
}

const invitationByToken = `
	SELECT i.id, i.tenant_id, i.email, i.role, i.token, i.expires_at, i.accepted_at, i.revoked_at,
	       i.invited_by, i.created_at, t.name
	FROM invitations i
	JOIN tenants t ON t.id = i.tenant_id
	WHERE i.token = ?`

// FindByToken returns the invitation holding token.
func (d *Directory) FindByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	return d.byToken(ctx, invitationByToken, token)
}

// LockByToken returns the invitation holding token under a row lock. Only
// the invitation row is locked; callers lock the tenant separately.
func (d *Directory) LockByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	if !database.InTransaction(ctx) {
		return nil, database.ErrNoTransaction
	}
	query := invitationByToken
	if d.conn.Driver() == database.DriverPostgres {
		query += " FOR UPDATE OF i"
	}
	return d.byToken(ctx, query, token)
}

func (d *Directory) byToken(ctx context.Context, query, token string) (*domain.Invitation, error) {
	row := database.ExecutorFromContext(ctx, d.conn).QueryRow(ctx, d.conn.Driver().Rebind(query), token)
	inv, err := scanInvitation(row)
	if database.IsNoRows(err) {
		return nil, domain.ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load invitation by token: %w", err)
	}
	return inv, nil
}

// ActiveForUser returns the user's active memberships in active tenants,
// oldest first.
func (d *Directory) ActiveForUser(ctx context.Context, userID uuid.UUID) ([]domain.Membership, error) {
	rows, err := database.ExecutorFromContext(ctx, d.conn).Query(ctx, d.conn.Driver().Rebind(`
		SELECT tu.id, tu.tenant_id, tu.user_id, tu.role, tu.is_active, tu.joined_at, tu.last_login_at,
		       u.email, u.full_name
		FROM tenant_users tu
		JOIN users u ON u.id = tu.user_id
		JOIN tenants t ON t.id = tu.tenant_id
		WHERE tu.user_id = ? AND tu.is_active = ? AND t.is_active = ?
		ORDER BY tu.joined_at, tu.id`), userID, true, true)
	if err != nil {
		return nil, fmt.Errorf("list user memberships: %w", err)
	}
	return database.ScanAll(rows, scanMembershipValue)
}
