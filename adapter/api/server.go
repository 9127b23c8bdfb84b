// Package api provides the HTTP API of planilla.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	billingapp "github.com/vorluno/planilla/internal/billing/application"
	billing "github.com/vorluno/planilla/internal/billing/domain"
	identityapp "github.com/vorluno/planilla/internal/identity/application"
	payrollapp "github.com/vorluno/planilla/internal/payroll/application"
	"github.com/vorluno/planilla/internal/shared/infrastructure/ratelimit"
	tenancyapp "github.com/vorluno/planilla/internal/tenancy/application"
	"github.com/vorluno/planilla/pkg/observability"
)

// TokenVerifier validates a bearer credential and returns its claims.
type TokenVerifier interface {
	Verify(raw string) (map[string]any, error)
}

// EventVerifier authenticates a billing provider webhook delivery.
type EventVerifier interface {
	Verify(payload []byte, signature string) (billing.ProviderEvent, error)
}

// Services are the application services behind the routes.
type Services struct {
	Auth        *identityapp.AuthService
	Resolver    *tenancyapp.Resolver
	Invitations *tenancyapp.InvitationService
	Memberships *tenancyapp.MembershipService
	Audit       *tenancyapp.AuditService
	Billing     *billingapp.BillingService
	Gatekeeper  *billingapp.Gatekeeper
	Webhooks    *billingapp.WebhookProcessor
	Employees   *payrollapp.EmployeeService
	Departments *payrollapp.DepartmentService
	Positions   *payrollapp.PositionService
	Receipts    *payrollapp.ReceiptService
	Export      *payrollapp.ExportService
}

// Deps groups what the server needs besides its configuration.
type Deps struct {
	Services

	Tokens TokenVerifier
	// Webhook is nil when no webhook secret is configured.
	Webhook EventVerifier
	// AuthLimiter throttles the public auth routes.
	AuthLimiter ratelimit.Limiter
	Metrics     *observability.Metrics
	Health      *observability.HealthRegistry
	Gatherer    prometheus.Gatherer
}

// Server is the HTTP API server.
type Server struct {
	cfg    ServerConfig
	deps   Deps
	router chi.Router
	server *http.Server
	logger *slog.Logger
	now    func() time.Time
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	// MaxBodyBytes bounds JSON and webhook request bodies.
	MaxBodyBytes int64
	CORSOrigins  []string
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           "0.0.0.0:8080",
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 25 * time.Second,
		MaxBodyBytes:   1 << 20,
		CORSOrigins:    []string{"http://localhost:5173"},
	}
}

// NewServer creates the API server.
func NewServer(cfg ServerConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultServerConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if deps.AuthLimiter == nil {
		deps.AuthLimiter = ratelimit.NewMemoryLimiter(10, time.Minute)
	}
	if deps.Health == nil {
		deps.Health = observability.NewHealthRegistry()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "api"),
		now:    time.Now,
	}
	s.router = s.routes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestContext)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Correlation-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))

		r.Post("/webhooks/stripe", s.handleStripeWebhook)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(s.rateLimit)
				r.Post("/register", s.handleRegister)
				r.Post("/login", s.handleLogin)
				r.Get("/validate-invite", s.handleValidateInvite)
				r.Post("/accept-invite", s.handleAcceptInvite)
			})
			r.Group(func(r chi.Router) {
				r.Use(s.authenticate)
				r.Get("/me", s.handleMe)
				r.Post("/refresh", s.handleRefresh)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			// Billing stays reachable for suspended subscriptions so they
			// can be renewed.
			r.Route("/subscription", func(r chi.Router) {
				r.Get("/", s.handleSubscription)
				r.Post("/checkout", s.handleCheckout)
				r.Post("/portal", s.handlePortal)
				r.Post("/cancel", s.handleCancel)
				r.Post("/change-plan", s.handleChangePlan)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.tenantGate)

				r.Route("/tenant", func(r chi.Router) {
					r.Get("/", s.handleCurrentTenant)
					r.Get("/usage", s.handleUsage)
					r.Get("/entitlements", s.handleEntitlements)
					r.Get("/audit", s.handleAudit)
					r.Get("/users", s.handleListMembers)
					r.Patch("/users/{id}", s.handleChangeRole)
					r.Delete("/users/{id}", s.handleRemoveMember)
					r.Post("/invite", s.handleInvite)
					r.Get("/invitations", s.handleListInvitations)
					r.Delete("/invitations/{id}", s.handleRevokeInvitation)
				})

				r.Route("/employees", func(r chi.Router) {
					r.Get("/", s.handleListEmployees)
					r.Post("/", s.handleCreateEmployee)
					r.Get("/export", s.handleExportEmployees)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetEmployee)
						r.Put("/", s.handleUpdateEmployee)
						r.Delete("/", s.handleDeactivateEmployee)
						r.Post("/reactivate", s.handleReactivateEmployee)
					})
				})

				r.Route("/departments", func(r chi.Router) {
					r.Get("/", s.handleListDepartments)
					r.Post("/", s.handleCreateDepartment)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetDepartment)
						r.Put("/", s.handleUpdateDepartment)
						r.Delete("/", s.handleDeactivateDepartment)
					})
				})

				r.Route("/positions", func(r chi.Router) {
					r.Get("/", s.handleListPositions)
					r.Post("/", s.handleCreatePosition)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetPosition)
						r.Put("/", s.handleUpdatePosition)
						r.Delete("/", s.handleDeactivatePosition)
					})
				})

				r.Route("/payroll/receipts", func(r chi.Router) {
					r.Get("/", s.handleListReceipts)
					r.Post("/", s.handleCreateReceipt)
					r.Get("/{id}", s.handleGetReceipt)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, &APIError{Code: "method_not_allowed", Message: "Method not allowed"})
	})
	return r
}

// handleHealth handles liveness requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

// handleReady runs the registered dependency checks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	report := s.deps.Health.Check(ctx)
	status := http.StatusOK
	if report.Status == observability.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		"addr", s.server.Addr,
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}
