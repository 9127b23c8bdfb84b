package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	billingapp "github.com/vorluno/planilla/internal/billing/application"
	billing "github.com/vorluno/planilla/internal/billing/domain"
	billingdb "github.com/vorluno/planilla/internal/billing/infrastructure/persistence"
	"github.com/vorluno/planilla/internal/identity/domain"
	"github.com/vorluno/planilla/internal/identity/infrastructure/password"
	"github.com/vorluno/planilla/internal/identity/infrastructure/persistence"
	"github.com/vorluno/planilla/internal/identity/infrastructure/token"
	shared "github.com/vorluno/planilla/internal/shared/domain"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/testdb"
	tenancyapp "github.com/vorluno/planilla/internal/tenancy/application"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
	tenancydb "github.com/vorluno/planilla/internal/tenancy/infrastructure/persistence"
)

type authFixture struct {
	conn     database.Connection
	auth     *AuthService
	invites  *tenancyapp.InvitationService
	members  *tenancyapp.MembershipService
	resolver *tenancyapp.Resolver
	tokens   *token.Manager
	audit    *tenancyapp.AuditService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	conn := testdb.Open(t)
	logger := testdb.Logger()
	uow := database.NewUnitOfWork(conn)

	tenants := tenancydb.NewTenantRepository(conn)
	memberships := tenancydb.NewMembershipRepository(conn)
	subs := billingdb.NewSubscriptionRepository(conn)
	audit := tenancyapp.NewAuditService(tenancydb.NewAuditRepository(conn), logger)

	tokens, err := token.NewManager("test-secret-test-secret-test-secret", "planilla", time.Hour)
	require.NoError(t, err)

	auth, err := NewAuthService(AuthDeps{
		UnitOfWork:    uow,
		Users:         persistence.NewUserRepository(conn),
		Hasher:        password.NewHasher(bcrypt.MinCost),
		Tokens:        tokens,
		Tenants:       tenants,
		Memberships:   memberships,
		Directory:     tenancydb.NewDirectory(conn),
		Subscriptions: subs,
		Audit:         audit,
		Logger:        logger,
	})
	require.NoError(t, err)

	gatekeeper := billingapp.NewGatekeeper(tenants, subs, billingdb.NewUsageCounter(conn), logger, nil)
	invites := tenancyapp.NewInvitationService(tenancyapp.InvitationDeps{
		UnitOfWork:   uow,
		Tenants:      tenants,
		Invitations:  tenancydb.NewInvitationRepository(conn),
		Directory:    tenancydb.NewDirectory(conn),
		Memberships:  memberships,
		Entitlements: gatekeeper,
		Users:        auth,
		Sessions:     auth,
		Audit:        audit,
		Logger:       logger,
	})

	return &authFixture{
		conn:     conn,
		auth:     auth,
		invites:  invites,
		members:  tenancyapp.NewMembershipService(uow, tenants, memberships, audit, nil, logger),
		resolver: tenancyapp.NewResolver(tenants, subs),
		tokens:   tokens,
		audit:    audit,
	}
}

func registration(subdomain string) RegisterInput {
	return RegisterInput{
		Email:       "owner@" + subdomain + ".test",
		FullName:    "Owner " + subdomain,
		Password:    "correct horse",
		CompanyName: "Empresa " + subdomain,
		Subdomain:   subdomain,
		RUC:         "8-" + subdomain,
		DV:          "12",
	}
}

func (f *authFixture) context(t *testing.T, raw string) tenancy.TenantContext {
	t.Helper()
	claims, err := f.tokens.Verify(raw)
	require.NoError(t, err)
	tc, err := f.resolver.Resolve(claims)
	require.NoError(t, err)
	return tc
}

func TestRegisterCreatesTenantOwnerAndTrial(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.auth.Register(ctx, registration("acme"))
	require.NoError(t, err)

	assert.NotEmpty(t, res.Token)
	assert.Equal(t, tenancy.RoleOwner, res.Role)
	assert.Equal(t, "acme", res.Tenant.Subdomain)
	require.NotNil(t, res.Subscription)
	assert.Equal(t, billing.PlanProfessional, res.Subscription.Plan)
	assert.Equal(t, billing.StatusTrialing, res.Subscription.Status)

	tc := f.context(t, res.Token)
	assert.Equal(t, res.Tenant.ID, tc.TenantID)
	assert.Equal(t, tenancy.RoleOwner, tc.Role)
	assert.Equal(t, res.User.ID, tc.UserID)

	page, err := f.audit.List(ctx, tc, tenancy.AuditFilter{Action: tenancy.AuditTenantRegistered})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestRegisterValidatesAllFields(t *testing.T) {
	f := newAuthFixture(t)

	in := registration("acme")
	in.Email = "nope"
	in.Password = "short"
	in.Subdomain = "A"
	_, err := f.auth.Register(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "password")
	assert.Contains(t, verr.Fields, "subdomain")
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.auth.Register(ctx, registration("acme"))
	require.NoError(t, err)

	sameEmail := registration("other")
	sameEmail.Email = "owner@acme.test"
	_, err = f.auth.Register(ctx, sameEmail)
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	sameSubdomain := registration("acme")
	sameSubdomain.Email = "someone@else.test"
	sameSubdomain.RUC = "9-9"
	_, err = f.auth.Register(ctx, sameSubdomain)
	assert.ErrorIs(t, err, tenancy.ErrSubdomainTaken)

	// Nothing from the failed attempts survives.
	_, err = f.auth.Login(ctx, "someone@else.test", "correct horse")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg, err := f.auth.Register(ctx, registration("acme"))
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		res, err := f.auth.Login(ctx, "OWNER@acme.test", "correct horse")
		require.NoError(t, err)
		assert.Equal(t, reg.Tenant.ID, res.Tenant.ID)
		assert.Equal(t, tenancy.RoleOwner, res.Role)

		tc := f.context(t, res.Token)
		page, err := f.audit.List(ctx, tc, tenancy.AuditFilter{Action: tenancy.AuditUserLogin})
		require.NoError(t, err)
		assert.Len(t, page.Items, 1)
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		_, errPassword := f.auth.Login(ctx, "owner@acme.test", "wrong password")
		_, errEmail := f.auth.Login(ctx, "ghost@acme.test", "correct horse")
		assert.ErrorIs(t, errPassword, domain.ErrInvalidCredentials)
		assert.ErrorIs(t, errEmail, domain.ErrInvalidCredentials)
		assert.Equal(t, errPassword.Error(), errEmail.Error())
	})

	t.Run("deactivated tenant", func(t *testing.T) {
		other, err := f.auth.Register(ctx, registration("gone"))
		require.NoError(t, err)
		_, err = database.ExecutorFromContext(ctx, f.conn).Exec(ctx,
			f.conn.Driver().Rebind(`UPDATE tenants SET is_active = ? WHERE id = ?`), false, other.Tenant.ID)
		require.NoError(t, err)

		_, err = f.auth.Login(ctx, "owner@gone.test", "correct horse")
		assert.ErrorIs(t, err, domain.ErrNoActiveTenant)
	})
}

func TestInviteAcceptAndRefresh(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg, err := f.auth.Register(ctx, registration("acme"))
	require.NoError(t, err)
	owner := f.context(t, reg.Token)

	inv, err := f.invites.Issue(ctx, owner, "ana@acme.test", tenancy.RoleManager)
	require.NoError(t, err)

	accepted, err := f.invites.Accept(ctx, inv.Token, tenancyapp.AcceptInput{FullName: "Ana", Password: "ana password"})
	require.NoError(t, err)
	assert.Equal(t, billing.PlanProfessional, accepted.Session.Plan)

	ana := f.context(t, accepted.Session.Token)
	assert.Equal(t, reg.Tenant.ID, ana.TenantID)
	assert.Equal(t, tenancy.RoleManager, ana.Role)

	// The new account signs in with its own password.
	login, err := f.auth.Login(ctx, "ana@acme.test", "ana password")
	require.NoError(t, err)
	assert.Equal(t, tenancy.RoleManager, login.Role)

	// A role change shows up on refresh.
	members, err := f.members.List(ctx, owner)
	require.NoError(t, err)
	var anaMembership int64
	for _, m := range members {
		if m.UserID == ana.UserID {
			anaMembership = m.ID
		}
	}
	require.NotZero(t, anaMembership)
	_, err = f.members.ChangeRole(ctx, owner, anaMembership, tenancy.RoleAccountant)
	require.NoError(t, err)

	refreshed, err := f.auth.Refresh(ctx, ana)
	require.NoError(t, err)
	assert.Equal(t, tenancy.RoleAccountant, f.context(t, refreshed.Token).Role)

	// After removal the old credential is refused.
	require.NoError(t, f.members.Remove(ctx, owner, anaMembership))
	_, err = f.auth.Me(ctx, ana)
	assert.ErrorIs(t, err, tenancy.ErrForbidden)
}

func TestEnsureUserReusesExistingAccount(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	reg, err := f.auth.Register(ctx, registration("acme"))
	require.NoError(t, err)

	id, err := f.auth.EnsureUser(ctx, "owner@acme.test", "", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, id)

	_, err = f.auth.EnsureUser(ctx, "owner@acme.test", "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = f.auth.EnsureUser(ctx, "new@acme.test", "New", "short")
	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}

func TestAcceptRequiresExistingAccountPassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	victim, err := f.auth.Register(ctx, registration("victim"))
	require.NoError(t, err)
	other, err := f.auth.Register(ctx, registration("other"))
	require.NoError(t, err)
	otherOwner := f.context(t, other.Token)

	inv, err := f.invites.Issue(ctx, otherOwner, "owner@victim.test", tenancy.RoleAdmin)
	require.NoError(t, err)

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.invites.Accept(ctx, inv.Token, tenancyapp.AcceptInput{Password: "totally-wrong-password"})
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

		members, err := f.members.List(ctx, otherOwner)
		require.NoError(t, err)
		for _, m := range members {
			assert.NotEqual(t, victim.User.ID, m.UserID)
		}
	})

	t.Run("no password", func(t *testing.T) {
		_, err := f.invites.Accept(ctx, inv.Token, tenancyapp.AcceptInput{FullName: "Someone"})
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("account password", func(t *testing.T) {
		accepted, err := f.invites.Accept(ctx, inv.Token, tenancyapp.AcceptInput{Password: "correct horse"})
		require.NoError(t, err)
		assert.Equal(t, victim.User.ID, accepted.UserID)

		tc := f.context(t, accepted.Session.Token)
		assert.Equal(t, other.Tenant.ID, tc.TenantID)
		assert.Equal(t, tenancy.RoleAdmin, tc.Role)
	})
}
