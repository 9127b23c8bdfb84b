package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorluno/planilla/internal/payroll/domain"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/testdb"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func insertTenant(t *testing.T, conn database.Connection, subdomain string, active bool) int64 {
	t.Helper()
	d := conn.Driver()
	var id int64
	err := conn.QueryRow(context.Background(), d.Rebind(`
		INSERT INTO tenants (name, subdomain, ruc, dv, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		subdomain, subdomain, subdomain, "1", active, d.Time(testNow), d.Time(testNow)).Scan(&id)
	require.NoError(t, err)
	return id
}

func newEmployee(t *testing.T, tenantID int64, nationalID string) *domain.Employee {
	t.Helper()
	e, err := domain.NewEmployee(tenantID, domain.EmployeeInput{
		FirstName:       "Ana",
		LastName:        "Pérez",
		NationalID:      nationalID,
		BaseSalaryCents: 120000,
		HireDate:        testNow,
	}, testNow)
	require.NoError(t, err)
	return e
}

func TestEmployeeRepository_IsolatesTenants(t *testing.T) {
	ctx := context.Background()
	conn := testdb.Open(t)
	repo := NewEmployeeRepository(conn)
	a := insertTenant(t, conn, "alpha", true)
	b := insertTenant(t, conn, "beta", true)

	emp := newEmployee(t, a, "8-123-456")
	require.NoError(t, repo.Create(ctx, a, emp))
	assert.Positive(t, emp.ID)

	found, err := repo.FindByID(ctx, a, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, "8-123-456", found.NationalID)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), found.HireDate)
	assert.Nil(t, found.DepartmentID)
	assert.Equal(t, domain.PayBiweekly, found.PayFrequency)

	_, err = repo.FindByID(ctx, b, emp.ID)
	assert.ErrorIs(t, err, domain.ErrEmployeeNotFound)

	stolen := *found
	stolen.FirstName = "Mallory"
	assert.ErrorIs(t, repo.Update(ctx, b, &stolen), domain.ErrEmployeeNotFound)

	listB, err := repo.List(ctx, b, domain.EmployeeFilter{})
	require.NoError(t, err)
	assert.Empty(t, listB)

	again, err := repo.FindByID(ctx, a, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", again.FirstName)

	// National ids are unique per tenant only.
	assert.ErrorIs(t, repo.Create(ctx, a, newEmployee(t, a, "8-123-456")), domain.ErrNationalIDTaken)
	require.NoError(t, repo.Create(ctx, b, newEmployee(t, b, "8-123-456")))
}

func TestEmployeeRepository_ListFilters(t *testing.T) {
	ctx := context.Background()
	conn := testdb.Open(t)
	tenantID := insertTenant(t, conn, "acme", true)
	employees := NewEmployeeRepository(conn)
	departments := NewDepartmentRepository(conn)

	dep, err := domain.NewDepartment(tenantID, domain.DepartmentInput{Name: "Ventas", Code: "ven"}, testNow)
	require.NoError(t, err)
	require.NoError(t, departments.Create(ctx, tenantID, dep))
	assert.Equal(t, "VEN", dep.Code)

	inDep := newEmployee(t, tenantID, "1")
	inDep.DepartmentID = &dep.ID
	require.NoError(t, employees.Create(ctx, tenantID, inDep))

	inactive := newEmployee(t, tenantID, "2")
	require.NoError(t, employees.Create(ctx, tenantID, inactive))
	require.NoError(t, inactive.Deactivate(testNow))
	require.NoError(t, employees.Update(ctx, tenantID, inactive))

	all, err := employees.List(ctx, tenantID, domain.EmployeeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := employees.List(ctx, tenantID, domain.EmployeeFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, inDep.ID, active[0].ID)
	require.NotNil(t, active[0].DepartmentID)
	assert.Equal(t, dep.ID, *active[0].DepartmentID)

	byDep, err := employees.List(ctx, tenantID, domain.EmployeeFilter{DepartmentID: dep.ID})
	require.NoError(t, err)
	assert.Len(t, byDep, 1)
}

func TestPositionRepository_RequiresSameTenantDepartment(t *testing.T) {
	ctx := context.Background()
	conn := testdb.Open(t)
	a := insertTenant(t, conn, "alpha", true)
	b := insertTenant(t, conn, "beta", true)
	departments := NewDepartmentRepository(conn)
	positions := NewPositionRepository(conn)

	dep, err := domain.NewDepartment(a, domain.DepartmentInput{Name: "Ops", Code: "OPS"}, testNow)
	require.NoError(t, err)
	require.NoError(t, departments.Create(ctx, a, dep))
	assert.ErrorIs(t, departments.Create(ctx, a, &domain.Department{Name: "Dup", Code: "OPS", IsActive: true, CreatedAt: testNow, UpdatedAt: testNow}),
		domain.ErrDepartmentCodeUsed)

	pos, err := domain.NewPosition(a, domain.PositionInput{DepartmentID: dep.ID, Name: "Analyst", Code: "AN1", MinSalaryCents: 100000, MaxSalaryCents: 200000, RiskLevel: domain.RiskMedium}, testNow)
	require.NoError(t, err)
	require.NoError(t, positions.Create(ctx, a, pos))

	n, err := departments.CountActivePositions(ctx, a, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	foreign, err := domain.NewPosition(b, domain.PositionInput{DepartmentID: dep.ID, Name: "Spy", Code: "SPY"}, testNow)
	require.NoError(t, err)
	assert.Error(t, positions.Create(ctx, b, foreign))

	got, err := positions.FindByID(ctx, a, pos.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskMedium, got.RiskLevel)
	_, err = positions.FindByID(ctx, b, pos.ID)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func newReceipt(t *testing.T, tenantID, employeeID int64, start time.Time) *domain.PayrollReceipt {
	t.Helper()
	rc, err := domain.NewPayrollReceipt(tenantID, domain.ReceiptInput{
		EmployeeID:      employeeID,
		PeriodStart:     start,
		PeriodEnd:       start.AddDate(0, 0, 14),
		GrossCents:      60000,
		DeductionsCents: 5850,
	}, testNow)
	require.NoError(t, err)
	return rc
}

func TestReceiptRepository_IsolatesTenants(t *testing.T) {
	ctx := context.Background()
	conn := testdb.Open(t)
	a := insertTenant(t, conn, "alpha", true)
	b := insertTenant(t, conn, "beta", true)
	employees := NewEmployeeRepository(conn)
	receipts := NewReceiptRepository(conn)

	emp := newEmployee(t, a, "8-1-1")
	require.NoError(t, employees.Create(ctx, a, emp))
	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rc := newReceipt(t, a, emp.ID, march)
	require.NoError(t, receipts.Create(ctx, a, rc))
	assert.Positive(t, rc.ID)
	assert.ErrorIs(t, receipts.Create(ctx, a, newReceipt(t, a, emp.ID, march)), domain.ErrReceiptExists)

	found, err := receipts.FindByID(ctx, a, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, march, found.PeriodStart)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), found.PeriodEnd)
	assert.Equal(t, int64(54150), found.NetCents)

	_, err = receipts.FindByID(ctx, b, rc.ID)
	assert.ErrorIs(t, err, domain.ErrReceiptNotFound)
	listB, err := receipts.List(ctx, b, domain.ReceiptFilter{})
	require.NoError(t, err)
	assert.Empty(t, listB)

	// Tenant b cannot file a receipt against tenant a's employee.
	assert.Error(t, receipts.Create(ctx, b, newReceipt(t, b, emp.ID, march.AddDate(0, 1, 0))))

	require.NoError(t, receipts.Create(ctx, a, newReceipt(t, a, emp.ID, march.AddDate(0, 1, 0))))
	all, err := receipts.List(ctx, a, domain.ReceiptFilter{EmployeeID: emp.ID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, march.AddDate(0, 1, 0), all[0].PeriodStart)

	april, err := receipts.List(ctx, a, domain.ReceiptFilter{From: march.AddDate(0, 1, 0)})
	require.NoError(t, err)
	require.Len(t, april, 1)
	early, err := receipts.List(ctx, a, domain.ReceiptFilter{To: march.AddDate(0, 0, 20)})
	require.NoError(t, err)
	require.Len(t, early, 1)
	assert.Equal(t, rc.ID, early[0].ID)
}

func TestSeeder_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn := testdb.Open(t)
	a := insertTenant(t, conn, "alpha", true)
	insertTenant(t, conn, "beta", true)
	insertTenant(t, conn, "gone", false)

	seeder := NewSeeder(conn, testdb.Logger())
	seeder.now = func() time.Time { return testNow }

	first, err := seeder.SeedAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Tenants: 2, Created: 2}, first)

	second, err := seeder.SeedAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Tenants: 2, Skipped: 2}, second)

	cfg, err := NewTaxConfigurationRepository(conn).FindByYear(ctx, a, 2026)
	require.NoError(t, err)
	assert.Equal(t, "Configuración Panamá 2026", cfg.Description)
	assert.Equal(t, 975, cfg.CSSEmployeeRate)
	assert.Equal(t, 1225, cfg.CSSEmployerRate)
	assert.Equal(t, 125, cfg.EducationalEmployeeRate)
	assert.Equal(t, 150, cfg.EducationalEmployerRate)
	assert.Equal(t, int64(80000), cfg.DependentDeductionCents)
	assert.Equal(t, 5, cfg.MaxDependents)

	_, err = NewTaxConfigurationRepository(conn).FindByYear(ctx, a, 2025)
	assert.ErrorIs(t, err, domain.ErrTaxConfigNotFound)
}
