// Package app wires the planilla services from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	billingapp "github.com/vorluno/planilla/internal/billing/application"
	billing "github.com/vorluno/planilla/internal/billing/domain"
	billingdb "github.com/vorluno/planilla/internal/billing/infrastructure/persistence"
	"github.com/vorluno/planilla/internal/billing/infrastructure/stripe"
	identityapp "github.com/vorluno/planilla/internal/identity/application"
	"github.com/vorluno/planilla/internal/identity/infrastructure/password"
	identitydb "github.com/vorluno/planilla/internal/identity/infrastructure/persistence"
	"github.com/vorluno/planilla/internal/identity/infrastructure/token"
	payrollapp "github.com/vorluno/planilla/internal/payroll/application"
	payrolldb "github.com/vorluno/planilla/internal/payroll/infrastructure/persistence"
	sharedapp "github.com/vorluno/planilla/internal/shared/application"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	_ "github.com/vorluno/planilla/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/vorluno/planilla/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/vorluno/planilla/internal/shared/infrastructure/outbox"
	"github.com/vorluno/planilla/internal/shared/infrastructure/ratelimit"
	tenancyapp "github.com/vorluno/planilla/internal/tenancy/application"
	tenancydb "github.com/vorluno/planilla/internal/tenancy/infrastructure/persistence"
	"github.com/vorluno/planilla/pkg/config"
	"github.com/vorluno/planilla/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	DB       database.Connection
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Health   *observability.HealthRegistry

	UnitOfWork sharedapp.UnitOfWork
	OutboxRepo outbox.Repository
	Events     sharedapp.EventSink

	// Credentials and edge protection
	Tokens      *token.Manager
	Verifier    *stripe.Verifier
	AuthLimiter ratelimit.Limiter

	// Tenancy
	Resolver    *tenancyapp.Resolver
	Audit       *tenancyapp.AuditService
	Tenants     *tenancyapp.TenantAdmin
	Invitations *tenancyapp.InvitationService
	Memberships *tenancyapp.MembershipService

	// Billing
	Gatekeeper *billingapp.Gatekeeper
	Billing    *billingapp.BillingService
	Webhooks   *billingapp.WebhookProcessor

	// Identity
	Auth *identityapp.AuthService

	// Payroll
	Employees   *payrollapp.EmployeeService
	Departments *payrollapp.DepartmentService
	Positions   *payrollapp.PositionService
	Receipts    *payrollapp.ReceiptService
	Export      *payrollapp.ExportService
	Seeder      *payrolldb.Seeder

	closers []func() error
}

// Option customizes a container built by Wire.
type Option func(*options)

type options struct {
	provider    billingapp.Provider
	hasProvider bool
	bcryptCost  int
}

// WithBillingProvider replaces the Stripe client. A nil provider disables
// billing.
func WithBillingProvider(p billingapp.Provider) Option {
	return func(o *options) {
		o.provider = p
		o.hasProvider = true
	}
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(o *options) { o.bcryptCost = cost }
}

// NewContainer connects to the configured database and Redis and wires every
// service on top of them.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Container, error) {
	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.Driver(cfg.DatabaseDriver),
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
		MaxConns:   cfg.DatabaseMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("connected to database", "driver", conn.Driver().String())

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient = redis.NewClient(opt)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			if !cfg.IsDevelopment() {
				_ = redisClient.Close()
				_ = conn.Close()
				return nil, fmt.Errorf("failed to connect to Redis: %w", err)
			}
			logger.Warn("Redis not available, rate limits apply per process", "error", err)
		} else {
			logger.Info("connected to Redis")
		}
	}

	c, err := Wire(cfg, conn, redisClient, logger, opts...)
	if err != nil {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		_ = conn.Close()
		return nil, err
	}
	c.closers = append(c.closers, conn.Close)
	if redisClient != nil {
		c.closers = append(c.closers, redisClient.Close)
	}
	return c, nil
}

// Wire builds the services on an open connection. redisClient may be nil.
// The caller keeps ownership of conn and redisClient.
func Wire(cfg *config.Config, conn database.Connection, redisClient *redis.Client, logger *slog.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{bcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		DB:       conn,
		Redis:    redisClient,
		Registry: prometheus.NewRegistry(),
		Health:   observability.NewHealthRegistry(),
	}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = observability.NewMetrics(c.Registry)

	c.Health.Register("database", true, conn.Ping)
	if redisClient != nil {
		c.Health.Register("redis", false, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	tokens, err := token.NewManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create token manager: %w", err)
	}
	c.Tokens = tokens
	c.AuthLimiter = newAuthLimiter(cfg, redisClient, logger)

	c.UnitOfWork = database.NewUnitOfWork(conn)
	c.OutboxRepo = outbox.NewSQLRepository(conn)
	c.Events = outbox.NewWriter(c.OutboxRepo)

	// Repositories
	tenants := tenancydb.NewTenantRepository(conn)
	memberships := tenancydb.NewMembershipRepository(conn)
	directory := tenancydb.NewDirectory(conn)
	subscriptions := billingdb.NewSubscriptionRepository(conn)
	usage := billingdb.NewUsageCounter(conn)
	departments := payrolldb.NewDepartmentRepository(conn)
	positions := payrolldb.NewPositionRepository(conn)
	employees := payrolldb.NewEmployeeRepository(conn)

	// Tenancy and billing
	c.Resolver = tenancyapp.NewResolver(tenants, subscriptions)
	c.Audit = tenancyapp.NewAuditService(tenancydb.NewAuditRepository(conn), logger)
	c.Tenants = tenancyapp.NewTenantAdmin(c.UnitOfWork, tenants, c.Events, logger)
	c.Gatekeeper = billingapp.NewGatekeeper(tenants, subscriptions, usage, logger, c.Metrics)

	prices := billingapp.PriceTable{
		billing.PlanStarter:      cfg.StripePriceStarter,
		billing.PlanProfessional: cfg.StripePriceProfessional,
		billing.PlanEnterprise:   cfg.StripePriceEnterprise,
	}
	provider, err := c.billingProvider(o, logger)
	if err != nil {
		return nil, err
	}
	c.Billing = billingapp.NewBillingService(c.UnitOfWork, subscriptions, tenants, usage, provider, c.Audit, billingapp.ServiceConfig{
		Prices:          prices,
		SuccessURL:      cfg.BillingSuccessURL,
		CancelURL:       cfg.BillingCancelURL,
		PortalReturnURL: cfg.BillingPortalReturnURL,
		Timeout:         cfg.BillingProviderTimeout,
	}, logger, c.Metrics)
	c.Webhooks = billingapp.NewWebhookProcessor(c.UnitOfWork, billingdb.NewWebhookEventRepository(conn), subscriptions, tenants, prices, logger, c.Metrics)
	if cfg.StripeWebhookSecret != "" {
		c.Verifier = stripe.NewVerifier(cfg.StripeWebhookSecret)
	}

	// Identity
	c.Auth, err = identityapp.NewAuthService(identityapp.AuthDeps{
		UnitOfWork:    c.UnitOfWork,
		Users:         identitydb.NewUserRepository(conn),
		Hasher:        password.NewHasher(o.bcryptCost),
		Tokens:        tokens,
		Tenants:       tenants,
		Memberships:   memberships,
		Directory:     directory,
		Subscriptions: subscriptions,
		Audit:         c.Audit,
		Events:        c.Events,
		TrialDays:     cfg.TrialDays,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	c.Invitations = tenancyapp.NewInvitationService(tenancyapp.InvitationDeps{
		UnitOfWork:   c.UnitOfWork,
		Tenants:      tenants,
		Invitations:  tenancydb.NewInvitationRepository(conn),
		Directory:    directory,
		Memberships:  memberships,
		Entitlements: c.Gatekeeper,
		Users:        c.Auth,
		Sessions:     c.Auth,
		Audit:        c.Audit,
		Events:       c.Events,
		TTL:          cfg.InvitationTTL,
		Logger:       logger,
	})
	c.Memberships = tenancyapp.NewMembershipService(c.UnitOfWork, tenants, memberships, c.Audit, c.Events, logger)

	// Payroll
	c.Departments = payrollapp.NewDepartmentService(c.UnitOfWork, departments, logger)
	c.Positions = payrollapp.NewPositionService(c.UnitOfWork, positions, departments, logger)
	c.Employees = payrollapp.NewEmployeeService(payrollapp.EmployeeDeps{
		UnitOfWork:   c.UnitOfWork,
		Tenants:      tenants,
		Employees:    employees,
		Departments:  departments,
		Positions:    positions,
		Entitlements: c.Gatekeeper,
		Audit:        c.Audit,
		Events:       c.Events,
		Logger:       logger,
	})
	c.Receipts = payrollapp.NewReceiptService(c.UnitOfWork, payrolldb.NewReceiptRepository(conn), employees, c.Audit, logger)
	c.Export = payrollapp.NewExportService(employees, departments, positions, c.Gatekeeper, c.Audit, logger)
	c.Seeder = payrolldb.NewSeeder(conn, logger)

	return c, nil
}

func (c *Container) billingProvider(o options, logger *slog.Logger) (billingapp.Provider, error) {
	if o.hasProvider {
		return o.provider, nil
	}
	if !c.Config.BillingEnabled() {
		logger.Warn("billing provider not configured, subscription changes are disabled")
		return nil, nil
	}
	client, err := stripe.NewClient(c.Config.StripeAPIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing client: %w", err)
	}
	return client, nil
}

func newAuthLimiter(cfg *config.Config, redisClient *redis.Client, logger *slog.Logger) ratelimit.Limiter {
	local := ratelimit.NewMemoryLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)
	if redisClient == nil {
		return local
	}
	return &ratelimit.FallbackLimiter{
		Primary:  ratelimit.NewRedisLimiter(redisClient, "planilla:ratelimit:auth:", cfg.AuthRateLimit, cfg.AuthRateWindow),
		Fallback: local,
		OnError: func(err error) {
			logger.Warn("shared rate limiter unavailable, using local limits", "error", err)
		},
	}
}

// Close releases the resources opened by NewContainer.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("failed to close resource", "error", err)
		}
	}
	c.closers = nil
}
