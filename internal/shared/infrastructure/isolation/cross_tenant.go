package isolation

import (
	"context"
	"log/slog"

	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
)

// CrossTenantExecutor runs statements that deliberately span tenants, such
// as seeding reference data for every tenant. Each one is created with a
// stated purpose and logged, and only operator tooling may construct it.
type CrossTenantExecutor struct {
	conn    database.Connection
	purpose string
	logger  *slog.Logger
}

// CrossTenant opens the cross-tenant escape hatch for purpose.
func CrossTenant(conn database.Connection, purpose string, logger *slog.Logger) *CrossTenantExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "isolation", "purpose", purpose)
	logger.Warn("cross-tenant executor opened")
	return &CrossTenantExecutor{conn: conn, purpose: purpose, logger: logger}
}

// Purpose returns the reason the executor was opened.
func (c *CrossTenantExecutor) Purpose() string {
	return c.purpose
}

// ForTenant returns a scoped executor for one tenant visited by the caller.
func (c *CrossTenantExecutor) ForTenant(tenantID int64) (*Scoped, error) {
	return Scope(c.conn, tenantID)
}

// Query runs an unscoped statement.
func (c *CrossTenantExecutor) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	c.logger.DebugContext(ctx, "cross-tenant query")
	return database.ExecutorFromContext(ctx, c.conn).Query(ctx, c.conn.Driver().Rebind(query), args...)
}

// Exec runs an unscoped statement.
func (c *CrossTenantExecutor) Exec(ctx context.Context, query string, args ...any) (database.Result, error) {
	c.logger.InfoContext(ctx, "cross-tenant exec")
	return database.ExecutorFromContext(ctx, c.conn).Exec(ctx, c.conn.Driver().Rebind(query), args...)
}
