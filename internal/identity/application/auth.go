package application

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	billing "github.com/vorluno/planilla/internal/billing/domain"
	"github.com/vorluno/planilla/internal/identity/domain"
	"github.com/vorluno/planilla/internal/identity/infrastructure/token"
	sharedapp "github.com/vorluno/planilla/internal/shared/application"
	shared "github.com/vorluno/planilla/internal/shared/domain"
	tenancyapp "github.com/vorluno/planilla/internal/tenancy/application"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
	"github.com/vorluno/planilla/pkg/observability"
)

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Matches(hash, plain string) (bool, error)
}

// TokenIssuer signs session credentials.
type TokenIssuer interface {
	Issue(s token.Subject) (string, time.Time, error)
}

// RegisterInput is a new company with its first owner.
type RegisterInput struct {
	Email        string
	FullName     string
	Password     string
	CompanyName  string
	Subdomain    string
	RUC          string
	DV           string
	Address      string
	Phone        string
	CompanyEmail string
}

// UserView is the public part of a user.
type UserView struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
}

// AuthResult is returned by every operation that issues a credential.
type AuthResult struct {
	Token        string
	ExpiresAt    time.Time
	User         UserView
	Tenant       *tenancy.Tenant
	Subscription *billing.Subscription
	Role         tenancy.Role
}

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	UnitOfWork    sharedapp.UnitOfWork
	Users         domain.UserRepository
	Hasher        PasswordHasher
	Tokens        TokenIssuer
	Tenants       tenancy.TenantRepository
	Memberships   tenancy.MembershipRepository
	Directory     tenancy.MembershipDirectory
	Subscriptions billing.SubscriptionRepository
	Audit         *tenancyapp.AuditService
	Events        sharedapp.EventSink
	TrialDays     int
	Logger        *slog.Logger
}

// AuthService registers companies, signs users in and issues credentials.
type AuthService struct {
	uow           sharedapp.UnitOfWork
	users         domain.UserRepository
	hasher        PasswordHasher
	tokens        TokenIssuer
	tenants       tenancy.TenantRepository
	memberships   tenancy.MembershipRepository
	directory     tenancy.MembershipDirectory
	subscriptions billing.SubscriptionRepository
	audit         *tenancyapp.AuditService
	events        sharedapp.EventSink
	trialDays     int
	logger        *slog.Logger
	now           func() time.Time

	// dummyHash keeps unknown-email logins as slow as wrong passwords.
	dummyHash string
}

// NewAuthService creates an auth service.
func NewAuthService(deps AuthDeps) (*AuthService, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trialDays := deps.TrialDays
	if trialDays <= 0 {
		trialDays = billing.DefaultTrialDays
	}
	dummy, err := deps.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &AuthService{
		uow:           deps.UnitOfWork,
		users:         deps.Users,
		hasher:        deps.Hasher,
		tokens:        deps.Tokens,
		tenants:       deps.Tenants,
		memberships:   deps.Memberships,
		directory:     deps.Directory,
		subscriptions: deps.Subscriptions,
		audit:         deps.Audit,
		events:        deps.Events,
		trialDays:     trialDays,
		logger:        logger.With("component", "auth"),
		now:           time.Now,
		dummyHash:     dummy,
	}, nil
}

// Register creates the user, the company, its owner membership and a
// Professional trial in one transaction, and signs the owner in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	now := s.now().UTC()
	verr := &shared.ValidationError{}

	email, err := domain.NewEmail(in.Email)
	if err != nil {
		verr.Add("email", err.Error())
	}
	name, err := domain.NewName(in.FullName)
	if err != nil {
		verr.Add("full_name", err.Error())
	}
	if err := domain.ValidatePassword(in.Password); err != nil {
		verr.Add("password", err.Error())
	}
	tenant, err := tenancy.NewTenant(tenancy.TenantInput{
		Name:      in.CompanyName,
		Subdomain: in.Subdomain,
		RUC:       in.RUC,
		DV:        in.DV,
		Address:   in.Address,
		Phone:     in.Phone,
		Email:     in.CompanyEmail,
	}, now)
	var tenantErr *shared.ValidationError
	if errors.As(err, &tenantErr) {
		for field, msg := range tenantErr.Fields {
			verr.Add(field, msg)
		}
	} else if err != nil {
		return AuthResult{}, err
	}
	if err := verr.OrNil(); err != nil {
		return AuthResult{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, err
	}

	return sharedapp.InUnitOfWork(ctx, s.uow, func(ctx context.Context) (AuthResult, error) {
		user := domain.NewUser(email, name, hash, now)
		if err := s.users.Create(ctx, user); err != nil {
			return AuthResult{}, err
		}
		if err := s.tenants.Create(ctx, tenant); err != nil {
			return AuthResult{}, err
		}
		owner := tenancy.NewMembership(tenant.ID, user.ID(), tenancy.RoleOwner, now)
		if err := s.memberships.Create(ctx, tenant.ID, &owner); err != nil {
			return AuthResult{}, err
		}
		sub := billing.NewTrial(tenant.ID, billing.PlanProfessional, s.trialDays, now)
		if err := s.subscriptions.Create(ctx, sub); err != nil {
			return AuthResult{}, err
		}
		tenant.Registered(owner)

		tc := tenancy.TenantContext{TenantID: tenant.ID, Role: tenancy.RoleOwner, UserID: user.ID(), Email: email.String()}
		if err := s.audit.Record(ctx, tenant.ID, tenancy.AuditEntry{
			ActorUserID: uuid.NullUUID{UUID: user.ID(), Valid: true},
			ActorEmail:  email.String(),
			Action:      tenancy.AuditTenantRegistered,
			EntityType:  "Tenant",
			EntityID:    strconv.FormatInt(tenant.ID, 10),
			Details:     tenant.Subdomain,
		}); err != nil {
			return AuthResult{}, err
		}
		md := sharedapp.NewEventMetadata(ctx, tenant.ID, user.ID())
		if err := sharedapp.PublishAggregateEvents(ctx, s.events, user, md); err != nil {
			return AuthResult{}, err
		}
		if err := sharedapp.PublishAggregateEvents(ctx, s.events, tenant, md); err != nil {
			return AuthResult{}, err
		}

		s.logger.InfoContext(ctx, "tenant registered", observability.TenantIDKey, tenant.ID, "subdomain", tenant.Subdomain)
		return s.result(tc, user, tenant, sub)
	})
}

// Login checks the password and signs the user into their oldest active
// membership.
func (s *AuthService) Login(ctx context.Context, rawEmail, password string) (AuthResult, error) {
	user, err := s.authenticate(ctx, rawEmail, password)
	if err != nil {
		return AuthResult{}, err
	}

	memberships, err := s.directory.ActiveForUser(ctx, user.ID())
	if err != nil {
		return AuthResult{}, err
	}
	if len(memberships) == 0 {
		s.logger.WarnContext(ctx, "login without active membership", "user_id", user.ID())
		return AuthResult{}, domain.ErrNoActiveTenant
	}
	m := memberships[0]
	tc := tenancy.TenantContext{TenantID: m.TenantID, Role: m.Role, UserID: user.ID(), Email: user.Email().String()}

	return sharedapp.InUnitOfWork(ctx, s.uow, func(ctx context.Context) (AuthResult, error) {
		now := s.now().UTC()
		if err := s.memberships.TouchLogin(ctx, m.TenantID, m.ID, now); err != nil {
			return AuthResult{}, err
		}
		tenant, err := s.tenants.FindByID(ctx, m.TenantID)
		if err != nil {
			return AuthResult{}, err
		}
		sub, err := s.subscriptions.FindByTenant(ctx, m.TenantID)
		if err != nil {
			return AuthResult{}, err
		}
		if err := s.audit.Record(ctx, m.TenantID, tenancy.AuditEntry{
			ActorUserID: uuid.NullUUID{UUID: user.ID(), Valid: true},
			ActorEmail:  user.Email().String(),
			Action:      tenancy.AuditUserLogin,
			EntityType:  "User",
			EntityID:    user.ID().String(),
		}); err != nil {
			return AuthResult{}, err
		}
		return s.result(tc, user, tenant, sub)
	})
}

// Refresh reissues the caller's credential from current membership state,
// so role changes and plan changes take effect.
func (s *AuthService) Refresh(ctx context.Context, tc tenancy.TenantContext) (AuthResult, error) {
	me, err := s.Me(ctx, tc)
	if err != nil {
		return AuthResult{}, err
	}
	user, err := s.users.FindByID(ctx, tc.UserID)
	if err != nil {
		return AuthResult{}, err
	}
	fresh := tc
	fresh.Role = me.Role
	return s.result(fresh, user, me.Tenant, me.Subscription)
}

// Me returns the caller's user, tenant, subscription and current role. A
// deactivated membership or tenant is refused.
func (s *AuthService) Me(ctx context.Context, tc tenancy.TenantContext) (AuthResult, error) {
	if err := tc.Require(tenancy.RoleEmployee); err != nil {
		return AuthResult{}, err
	}
	m, err := s.memberships.FindByUser(ctx, tc.TenantID, tc.UserID)
	if errors.Is(err, tenancy.ErrMembershipNotFound) {
		return AuthResult{}, tenancy.ErrForbidden
	}
	if err != nil {
		return AuthResult{}, err
	}
	if !m.IsActive {
		return AuthResult{}, tenancy.ErrForbidden
	}
	tenant, err := s.tenants.FindByID(ctx, tc.TenantID)
	if err != nil {
		return AuthResult{}, err
	}
	if !tenant.IsActive {
		return AuthResult{}, tenancy.ErrTenantInactive
	}
	sub, err := s.subscriptions.FindByTenant(ctx, tc.TenantID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		User:         UserView{ID: m.UserID, Email: m.Email, FullName: m.FullName},
		Tenant:       tenant,
		Subscription: sub,
		Role:         m.Role,
	}, nil
}

// EnsureUser returns the user registered under email, creating it when
// absent. An existing account must be proven with its password and fails
// with ErrInvalidCredentials otherwise. It runs inside the caller's
// transaction.
func (s *AuthService) EnsureUser(ctx context.Context, rawEmail, fullName, password string) (uuid.UUID, error) {
	email, err := domain.NewEmail(rawEmail)
	if err != nil {
		return uuid.Nil, err
	}
	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		ok, err := s.hasher.Matches(existing.PasswordHash(), password)
		if err != nil {
			return uuid.Nil, err
		}
		if !ok {
			s.logger.WarnContext(ctx, "invitation identity check failed", "user_id", existing.ID())
			return uuid.Nil, domain.ErrInvalidCredentials
		}
		return existing.ID(), nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return uuid.Nil, err
	}

	verr := &shared.ValidationError{}
	name, err := domain.NewName(fullName)
	if err != nil {
		verr.Add("full_name", err.Error())
	}
	if err := domain.ValidatePassword(password); err != nil {
		verr.Add("password", err.Error())
	}
	if err := verr.OrNil(); err != nil {
		return uuid.Nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return uuid.Nil, err
	}

	user := domain.NewUser(email, name, hash, s.now())
	if err := s.users.Create(ctx, user); err != nil {
		return uuid.Nil, err
	}
	if err := sharedapp.PublishAggregateEvents(ctx, s.events, user, sharedapp.NewEventMetadata(ctx, 0, user.ID())); err != nil {
		return uuid.Nil, err
	}
	return user.ID(), nil
}

// IssueSession signs a credential for one tenant and role, carrying the
// tenant's current plan.
func (s *AuthService) IssueSession(ctx context.Context, userID uuid.UUID, email string, tenantID int64, role tenancy.Role) (tenancyapp.Session, error) {
	sub, err := s.subscriptions.FindByTenant(ctx, tenantID)
	if err != nil {
		return tenancyapp.Session{}, err
	}
	plan := planOf(sub)
	raw, expires, err := s.tokens.Issue(token.Subject{UserID: userID, Email: email, TenantID: tenantID, Role: role, Plan: string(plan)})
	if err != nil {
		return tenancyapp.Session{}, err
	}
	return tenancyapp.Session{Token: raw, ExpiresAt: expires, Plan: plan}, nil
}

func (s *AuthService) authenticate(ctx context.Context, rawEmail, password string) (*domain.User, error) {
	email, err := domain.NewEmail(rawEmail)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		_, _ = s.hasher.Matches(s.dummyHash, password)
		s.logger.WarnContext(ctx, "login failed", "reason", "unknown_email")
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	ok, err := s.hasher.Matches(user.PasswordHash(), password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.WarnContext(ctx, "login failed", "reason", "bad_password", "user_id", user.ID())
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) result(tc tenancy.TenantContext, user *domain.User, tenant *tenancy.Tenant, sub *billing.Subscription) (AuthResult, error) {
	raw, expires, err := s.tokens.Issue(token.Subject{
		UserID:   user.ID(),
		Email:    user.Email().String(),
		TenantID: tc.TenantID,
		Role:     tc.Role,
		Plan:     string(planOf(sub)),
	})
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		Token:        raw,
		ExpiresAt:    expires,
		User:         UserView{ID: user.ID(), Email: user.Email().String(), FullName: user.Name().String()},
		Tenant:       tenant,
		Subscription: sub,
		Role:         tc.Role,
	}, nil
}

func planOf(sub *billing.Subscription) billing.Plan {
	if sub == nil {
		return billing.PlanFree
	}
	return sub.Plan
}

var (
	_ tenancyapp.UserProvisioner = (*AuthService)(nil)
	_ tenancyapp.SessionIssuer   = (*AuthService)(nil)
)
