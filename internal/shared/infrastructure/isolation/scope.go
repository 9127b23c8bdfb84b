// Package isolation enforces row-level tenant isolation for SQL access.
//
// Tenant-scoped repositories never build WHERE clauses for the tenant
// themselves. Every statement carries the :tenant_id token and the Scoped
// executor binds it from the resolved tenant, so a statement that forgets the
// tenant predicate cannot run at all.
package isolation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
)

// TenantToken marks where the tenant id is bound in a scoped statement.
const TenantToken = ":tenant_id"

var (
	// ErrNoTenant is returned when a scope is requested without a tenant.
	ErrNoTenant = errors.New("isolation: no tenant in scope")
	// ErrUnscopedQuery is returned for statements lacking the tenant token.
	ErrUnscopedQuery = errors.New("isolation: statement is not tenant scoped")
	// ErrArgumentMismatch is returned when placeholders and arguments disagree.
	ErrArgumentMismatch = errors.New("isolation: placeholder count does not match arguments")
)

// Scoped executes statements bound to a single tenant. It uses the
// transaction carried by the call context when there is one.
type Scoped struct {
	conn     database.Connection
	tenantID int64
}

// Scope returns an executor bound to tenantID. A non-positive tenant id is
// refused so that a missing tenant can never widen a query.
func Scope(conn database.Connection, tenantID int64) (*Scoped, error) {
	if tenantID <= 0 {
		return nil, ErrNoTenant
	}
	return &Scoped{conn: conn, tenantID: tenantID}, nil
}

// TenantID returns the bound tenant.
func (s *Scoped) TenantID() int64 {
	return s.tenantID
}

// Driver returns the underlying connection's driver.
func (s *Scoped) Driver() database.Driver {
	return s.conn.Driver()
}

// Exec runs a scoped statement that returns no rows.
func (s *Scoped) Exec(ctx context.Context, query string, args ...any) (database.Result, error) {
	q, bound, err := s.bind(query, args)
	if err != nil {
		return nil, err
	}
	return database.ExecutorFromContext(ctx, s.conn).Exec(ctx, q, bound...)
}

// QueryRow runs a scoped statement returning at most one row.
func (s *Scoped) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	q, bound, err := s.bind(query, args)
	if err != nil {
		return errRow{err: err}
	}
	return database.ExecutorFromContext(ctx, s.conn).QueryRow(ctx, q, bound...)
}

// Query runs a scoped statement returning rows.
func (s *Scoped) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	q, bound, err := s.bind(query, args)
	if err != nil {
		return nil, err
	}
	return database.ExecutorFromContext(ctx, s.conn).Query(ctx, q, bound...)
}

// bind replaces each :tenant_id token with a placeholder bound to the scope's
// tenant, interleaving it with the caller's positional arguments, then
// rewrites placeholders for the driver.
func (s *Scoped) bind(query string, args []any) (string, []any, error) {
	var (
		b        strings.Builder
		bound    = make([]any, 0, len(args)+1)
		next     int
		tokens   int
		inString bool
	)
	b.Grow(len(query))

	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inString = !inString
			b.WriteByte(c)
		case inString:
			b.WriteByte(c)
		case c == '?':
			if next >= len(args) {
				return "", nil, fmt.Errorf("%w: %d arguments", ErrArgumentMismatch, len(args))
			}
			bound = append(bound, args[next])
			next++
			b.WriteByte('?')
		case c == ':' && isToken(query, i):
			bound = append(bound, s.tenantID)
			tokens++
			b.WriteByte('?')
			i += len(TenantToken) - 1
		default:
			b.WriteByte(c)
		}
	}

	if tokens == 0 {
		return "", nil, ErrUnscopedQuery
	}
	if next != len(args) {
		return "", nil, fmt.Errorf("%w: %d placeholders, %d arguments", ErrArgumentMismatch, next, len(args))
	}
	return s.conn.Driver().Rebind(b.String()), bound, nil
}

func isToken(query string, i int) bool {
	if !strings.HasPrefix(query[i:], TenantToken) {
		return false
	}
	if i > 0 && query[i-1] == ':' {
		return false
	}
	end := i + len(TenantToken)
	return end == len(query) || !isIdentChar(query[end])
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}
