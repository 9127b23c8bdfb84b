package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/isolation"
)

// UsageCounter counts a tenant's limited resources through the scoped
// executor, inside the caller's transaction when there is one.
type UsageCounter struct {
	conn database.Connection
}

// NewUsageCounter creates a usage counter.
func NewUsageCounter(conn database.Connection) *UsageCounter {
	return &UsageCounter{conn: conn}
}

// CountActiveEmployees counts active employees.
func (c *UsageCounter) CountActiveEmployees(ctx context.Context, tenantID int64) (int, error) {
	return c.count(ctx, tenantID, `SELECT COUNT(*) FROM employees WHERE tenant_id = :tenant_id AND is_active = ?`, true)
}

// CountActiveMembers counts active memberships.
func (c *UsageCounter) CountActiveMembers(ctx context.Context, tenantID int64) (int, error) {
	return c.count(ctx, tenantID, `SELECT COUNT(*) FROM tenant_users WHERE tenant_id = :tenant_id AND is_active = ?`, true)
}

// CountPendingInvitations counts invitations that are neither accepted,
// revoked nor expired at now.
func (c *UsageCounter) CountPendingInvitations(ctx context.Context, tenantID int64, now time.Time) (int, error) {
	return c.count(ctx, tenantID, `
		SELECT COUNT(*) FROM invitations
		WHERE tenant_id = :tenant_id AND accepted_at IS NULL AND revoked_at IS NULL AND expires_at > ?`,
		c.conn.Driver().Time(now))
}

func (c *UsageCounter) count(ctx context.Context, tenantID int64, query string, args ...any) (int, error) {
	s, err := isolation.Scope(c.conn, tenantID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return n, nil
}
