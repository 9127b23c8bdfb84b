package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	billingapp "github.com/vorluno/planilla/internal/billing/application"
	billing "github.com/vorluno/planilla/internal/billing/domain"
	billingdb "github.com/vorluno/planilla/internal/billing/infrastructure/persistence"
	shared "github.com/vorluno/planilla/internal/shared/domain"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/testdb"
	"github.com/vorluno/planilla/internal/tenancy/domain"
	"github.com/vorluno/planilla/internal/tenancy/infrastructure/persistence"
)

var testNow = time.Date(2026, 4, 6, 8, 0, 0, 0, time.UTC)

// fakeUsers provisions users straight into the users table so foreign keys
// hold.
type fakeUsers struct {
	conn database.Connection
	mu   sync.Mutex
	ids  map[string]uuid.UUID
}

func (f *fakeUsers) EnsureUser(ctx context.Context, email, fullName, password string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.ids[email]; ok {
		return id, nil
	}
	if len(password) < 8 {
		return uuid.Nil, shared.NewValidationError("password", "must be at least 8 characters")
	}
	id := uuid.New()
	d := f.conn.Driver()
	_, err := database.ExecutorFromContext(ctx, f.conn).Exec(ctx, d.Rebind(
		`INSERT INTO users (id, email, full_name, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`),
		id, email, fullName, "hash", d.Time(testNow), d.Time(testNow))
	if err != nil {
		return uuid.Nil, err
	}
	f.ids[email] = id
	return id, nil
}

type fakeSessions struct{}

func (fakeSessions) IssueSession(ctx context.Context, userID uuid.UUID, email string, tenantID int64, role domain.Role) (Session, error) {
	return Session{Token: fmt.Sprintf("%d:%s:%s", tenantID, role, userID), ExpiresAt: testNow.Add(time.Hour), Plan: billing.PlanProfessional}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (s *recordingSink) Append(ctx context.Context, events ...shared.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *recordingSink) routingKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.events))
	for _, e := range s.events {
		keys = append(keys, e.RoutingKey())
	}
	return keys
}

type fixture struct {
	conn        database.Connection
	tenants     *persistence.TenantRepository
	memberships *persistence.MembershipRepository
	invitations *persistence.InvitationRepository
	subs        *billingdb.SubscriptionRepository
	users       *fakeUsers
	sink        *recordingSink
	audit       *AuditService
	invites     *InvitationService
	members     *MembershipService
	admin       *TenantAdmin
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	logger := testdb.Logger()

	f := &fixture{
		conn:        conn,
		tenants:     persistence.NewTenantRepository(conn),
		memberships: persistence.NewMembershipRepository(conn),
		invitations: persistence.NewInvitationRepository(conn),
		subs:        billingdb.NewSubscriptionRepository(conn),
		users:       &fakeUsers{conn: conn, ids: map[string]uuid.UUID{}},
		sink:        &recordingSink{},
	}
	uow := database.NewUnitOfWork(conn)
	gatekeeper := billingapp.NewGatekeeper(f.tenants, f.subs, billingdb.NewUsageCounter(conn), logger, nil)

	f.audit = NewAuditService(persistence.NewAuditRepository(conn), logger)
	f.invites = NewInvitationService(InvitationDeps{
		UnitOfWork:   uow,
		Tenants:      f.tenants,
		Invitations:  f.invitations,
		Directory:    persistence.NewDirectory(conn),
		Memberships:  f.memberships,
		Entitlements: gatekeeper,
		Users:        f.users,
		Sessions:     fakeSessions{},
		Audit:        f.audit,
		Events:       f.sink,
		Logger:       logger,
	})
	f.members = NewMembershipService(uow, f.tenants, f.memberships, f.audit, f.sink, logger)
	f.admin = NewTenantAdmin(uow, f.tenants, f.sink, logger)
	return f
}

// tenant registers a tenant with an owner and a Professional trial whose
// user limit is maxUsers, and returns the owner's context.
func (f *fixture) tenant(t *testing.T, subdomain string, maxUsers int) domain.TenantContext {
	t.Helper()
	ctx := context.Background()

	tenant, err := domain.NewTenant(domain.TenantInput{Name: strings.ToUpper(subdomain), Subdomain: subdomain, RUC: subdomain, DV: "1"}, testNow)
	require.NoError(t, err)
	require.NoError(t, f.tenants.Create(ctx, tenant))

	email := "owner@" + subdomain + ".test"
	ownerID, err := f.users.EnsureUser(ctx, email, "Owner", "password1")
	require.NoError(t, err)
	m := domain.NewMembership(tenant.ID, ownerID, domain.RoleOwner, testNow)
	require.NoError(t, f.memberships.Create(ctx, tenant.ID, &m))

	sub := billing.NewTrial(tenant.ID, billing.PlanProfessional, 14, time.Now())
	sub.CustomMaxUsers = maxUsers
	require.NoError(t, f.subs.Create(ctx, sub))

	return domain.TenantContext{TenantID: tenant.ID, Role: domain.RoleOwner, UserID: ownerID, Email: email}
}

// member adds an active member with role directly.
func (f *fixture) member(t *testing.T, tc domain.TenantContext, email string, role domain.Role) (domain.TenantContext, int64) {
	t.Helper()
	ctx := context.Background()
	id, err := f.users.EnsureUser(ctx, email, "Member", "password1")
	require.NoError(t, err)
	m := domain.NewMembership(tc.TenantID, id, role, testNow)
	require.NoError(t, f.memberships.Create(ctx, tc.TenantID, &m))
	return domain.TenantContext{TenantID: tc.TenantID, Role: role, UserID: id, Email: email}, m.ID
}
