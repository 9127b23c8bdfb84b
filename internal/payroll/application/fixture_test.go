package application

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	billingapp "github.com/vorluno/planilla/internal/billing/application"
	billing "github.com/vorluno/planilla/internal/billing/domain"
	billingdb "github.com/vorluno/planilla/internal/billing/infrastructure/persistence"
	"github.com/vorluno/planilla/internal/payroll/domain"
	"github.com/vorluno/planilla/internal/payroll/infrastructure/persistence"
	shared "github.com/vorluno/planilla/internal/shared/domain"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/testdb"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
	tenancydb "github.com/vorluno/planilla/internal/tenancy/infrastructure/persistence"
)

var testNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type recordingAudit struct {
	mu      sync.Mutex
	entries []tenancy.AuditEntry
}

func (a *recordingAudit) Record(ctx context.Context, tenantID int64, entry tenancy.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry.TenantID = tenantID
	a.entries = append(a.entries, entry)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type recordingSink struct {
	mu   sync.Mutex
	keys []string
}

func (s *recordingSink) Append(ctx context.Context, events ...shared.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.keys = append(s.keys, e.RoutingKey())
	}
	return nil
}

type fixture struct {
	conn        database.Connection
	tenants     *tenancydb.TenantRepository
	subs        *billingdb.SubscriptionRepository
	audit       *recordingAudit
	sink        *recordingSink
	employees   *EmployeeService
	departments *DepartmentService
	positions   *PositionService
	receipts    *ReceiptService
	export      *ExportService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testdb.Open(t)
	logger := testdb.Logger()
	uow := database.NewUnitOfWork(conn)

	f := &fixture{
		conn:    conn,
		tenants: tenancydb.NewTenantRepository(conn),
		subs:    billingdb.NewSubscriptionRepository(conn),
		audit:   &recordingAudit{},
		sink:    &recordingSink{},
	}
	gatekeeper := billingapp.NewGatekeeper(f.tenants, f.subs, billingdb.NewUsageCounter(conn), logger, nil)
	employees := persistence.NewEmployeeRepository(conn)
	departments := persistence.NewDepartmentRepository(conn)
	positions := persistence.NewPositionRepository(conn)

	f.employees = NewEmployeeService(EmployeeDeps{
		UnitOfWork:   uow,
		Tenants:      f.tenants,
		Employees:    employees,
		Departments:  departments,
		Positions:    positions,
		Entitlements: gatekeeper,
		Audit:        f.audit,
		Events:       f.sink,
		Logger:       logger,
	})
	f.departments = NewDepartmentService(uow, departments, logger)
	f.positions = NewPositionService(uow, positions, departments, logger)
	f.receipts = NewReceiptService(uow, persistence.NewReceiptRepository(conn), employees, f.audit, logger)
	f.export = NewExportService(employees, departments, positions, gatekeeper, f.audit, logger)
	return f
}

// tenant registers an active tenant on plan and returns an owner context.
func (f *fixture) tenant(t *testing.T, subdomain string, plan billing.Plan) tenancy.TenantContext {
	t.Helper()
	ctx := context.Background()
	tenant, err := tenancy.NewTenant(tenancy.TenantInput{Name: strings.ToUpper(subdomain), Subdomain: subdomain, RUC: subdomain, DV: "1"}, testNow)
	require.NoError(t, err)
	require.NoError(t, f.tenants.Create(ctx, tenant))

	sub := billing.NewTrial(tenant.ID, plan, 14, testNow)
	sub.Status = billing.StatusActive
	sub.TrialEndsAt = nil
	require.NoError(t, f.subs.Create(ctx, sub))

	return tenancy.TenantContext{TenantID: tenant.ID, Role: tenancy.RoleOwner, UserID: uuid.New(), Email: "owner@" + subdomain + ".test"}
}

func as(tc tenancy.TenantContext, role tenancy.Role) tenancy.TenantContext {
	tc.Role = role
	return tc
}

func employeeInput(nationalID string) domain.EmployeeInput {
	return domain.EmployeeInput{
		FirstName:       "Luis",
		LastName:        "Gómez",
		NationalID:      nationalID,
		BaseSalaryCents: 95000,
		HireDate:        testNow,
		PayFrequency:    domain.PayBiweekly,
	}
}
