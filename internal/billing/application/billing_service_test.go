package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sync/errgroup"

	"github.com/vorluno/planilla/internal/billing/domain"
	billingdb "github.com/vorluno/planilla/internal/billing/infrastructure/persistence"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/testdb"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
	tenancydb "github.com/vorluno/planilla/internal/tenancy/infrastructure/persistence"
)

type fakeProvider struct {
	mu        sync.Mutex
	err       error
	customers int
	checkouts []CheckoutRequest
	canceled  []string
	changes   map[string]string
	lastMeta  map[string]string
}

func (f *fakeProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.customers++
	f.lastMeta = req.Metadata
	return "cus_new", nil
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.checkouts = append(f.checkouts, req)
	return "https://checkout.test/" + req.PriceID, nil
}

func (f *fakeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://portal.test/" + customerID, nil
}

func (f *fakeProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string, metadata map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.canceled = append(f.canceled, subscriptionID)
	return nil
}

func (f *fakeProvider) ChangePrice(ctx context.Context, subscriptionID, priceID string, metadata map[string]string) error {
	if f.err != nil {
		return f.err
	}
	if f.changes == nil {
		f.changes = map[string]string{}
	}
	f.changes[subscriptionID] = priceID
	return nil
}

// fakeUnitOfWork runs work without a transaction.
type fakeUnitOfWork struct{}

func (fakeUnitOfWork) Begin(ctx context.Context) (context.Context, error) { return ctx, nil }
func (fakeUnitOfWork) Commit(ctx context.Context) error                   { return nil }
func (fakeUnitOfWork) Rollback(ctx context.Context) error                 { return nil }

type fakeAudit struct {
	entries []tenancy.AuditEntry
}

func (f *fakeAudit) Record(ctx context.Context, tenantID int64, entry tenancy.AuditEntry) error {
	entry.TenantID = tenantID
	f.entries = append(f.entries, entry)
	return nil
}

var testPrices = PriceTable{
	domain.PlanStarter:      "price_starter",
	domain.PlanProfessional: "price_pro",
	domain.PlanEnterprise:   "price_ent",
}

func owner(tenantID int64) tenancy.TenantContext {
	return tenancy.TenantContext{TenantID: tenantID, Role: tenancy.RoleOwner, UserID: uuid.New(), Email: "owner@acme.test"}
}

func newTestBillingService(subs *fakeSubscriptions, provider Provider, audit AuditRecorder) *BillingService {
	tenants := activeTenants(1)
	tenants.tenants[1].Name = "Acme"
	tenants.tenants[1].RUC = "155-1"
	return NewBillingService(fakeUnitOfWork{}, subs, tenants, &fakeUsage{employees: 3, members: 2, pending: 1}, provider, audit, ServiceConfig{
		Prices:           testPrices,
		SuccessURL:       "https://app.test/ok",
		CancelURL:        "https://app.test/cancel",
		Timeout:          time.Second,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	}, testdb.Logger(), nil)
}

func TestBillingService_CreateCheckoutSession(t *testing.T) {
	ctx := context.Background()
	subs := newFakeSubscriptions(domain.NewTrial(1, domain.PlanProfessional, 14, time.Now()))
	provider := &fakeProvider{}
	audit := &fakeAudit{}
	svc := newTestBillingService(subs, provider, audit)

	url, err := svc.CreateCheckoutSession(ctx, owner(1), domain.PlanStarter)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.test/price_starter", url)
	assert.Equal(t, "cus_new", subs.byTenant[1].StripeCustomerID)
	assert.Equal(t, "1", provider.lastMeta[domain.MetadataTenantID])
	assert.Equal(t, "155-1", provider.lastMeta[domain.MetadataRUC])
	require.Len(t, provider.checkouts, 1)
	assert.Equal(t, "Starter", provider.checkouts[0].Metadata[domain.MetadataPlan])
	assert.Equal(t, "cus_new", provider.checkouts[0].CustomerID)

	_, err = svc.CreateCheckoutSession(ctx, owner(1), domain.PlanEnterprise)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.customers, "customer is reused")

	// Status stays as the webhook left it.
	assert.Equal(t, domain.StatusTrialing, subs.byTenant[1].Status)
	require.Len(t, audit.entries, 2)
	assert.Equal(t, tenancy.AuditCheckoutStarted, audit.entries[0].Action)
}

func TestBillingService_CheckoutRejections(t *testing.T) {
	ctx := context.Background()
	svc := newTestBillingService(newFakeSubscriptions(), &fakeProvider{}, nil)

	_, err := svc.CreateCheckoutSession(ctx, owner(1), domain.PlanFree)
	assert.ErrorIs(t, err, domain.ErrFreePlanCheckout)

	admin := owner(1)
	admin.Role = tenancy.RoleAdmin
	_, err = svc.CreateCheckoutSession(ctx, admin, domain.PlanStarter)
	assert.ErrorIs(t, err, tenancy.ErrForbidden)

	_, err = svc.CreateCheckoutSession(ctx, tenancy.TenantContext{}, domain.PlanStarter)
	assert.ErrorIs(t, err, tenancy.ErrUnauthenticated)

	disabled := newTestBillingService(newFakeSubscriptions(), nil, nil)
	_, err = disabled.CreateCheckoutSession(ctx, owner(1), domain.PlanStarter)
	assert.ErrorIs(t, err, domain.ErrBillingDisabled)
}

func TestBillingService_CheckoutCreatesMissingSubscription(t *testing.T) {
	subs := newFakeSubscriptions()
	svc := newTestBillingService(subs, &fakeProvider{}, nil)

	_, err := svc.CreateCheckoutSession(context.Background(), owner(1), domain.PlanStarter)
	require.NoError(t, err)
	require.NotNil(t, subs.byTenant[1])
	assert.Equal(t, domain.PlanFree, subs.byTenant[1].Plan)
	assert.Equal(t, "cus_new", subs.byTenant[1].StripeCustomerID)
}

func TestBillingService_ConcurrentCheckoutsCreateOneCustomer(t *testing.T) {
	ctx := context.Background()
	conn := testdb.Open(t)
	tenants := tenancydb.NewTenantRepository(conn)
	tenant, err := tenancy.NewTenant(tenancy.TenantInput{Name: "Acme", Subdomain: "acme", RUC: "155-1", DV: "12"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, tenants.Create(ctx, tenant))
	subs := billingdb.NewSubscriptionRepository(conn)
	require.NoError(t, subs.Create(ctx, domain.NewTrial(tenant.ID, domain.PlanProfessional, 14, time.Now())))

	provider := &fakeProvider{}
	svc := NewBillingService(database.NewUnitOfWork(conn), subs, tenants, billingdb.NewUsageCounter(conn), provider, nil,
		ServiceConfig{Prices: testPrices, Timeout: time.Second}, testdb.Logger(), nil)

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			_, err := svc.CreateCheckoutSession(ctx, owner(tenant.ID), domain.PlanStarter)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, provider.customers)
	assert.Len(t, provider.checkouts, 4)
	stored, err := subs.FindByTenant(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_new", stored.StripeCustomerID)
}

func TestBillingService_ProviderFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	sub := domain.NewTrial(1, domain.PlanProfessional, 14, time.Now())
	sub.StripeSubscriptionID = "sub_1"
	sub.StripeCustomerID = "cus_1"
	subs := newFakeSubscriptions(sub)
	provider := &fakeProvider{err: errors.New("stripe: connection reset")}
	audit := &fakeAudit{}
	svc := newTestBillingService(subs, provider, audit)

	err := svc.Cancel(ctx, owner(1))
	require.ErrorIs(t, err, domain.ErrBillingProvider)
	assert.NotContains(t, err.Error(), "connection reset")

	err = svc.ChangePlan(ctx, owner(1), domain.PlanEnterprise)
	require.ErrorIs(t, err, domain.ErrBillingProvider)

	// The breaker is open now; the provider is not called again.
	provider.err = nil
	err = svc.Cancel(ctx, owner(1))
	require.ErrorIs(t, err, domain.ErrBillingProvider)
	assert.Empty(t, provider.canceled)

	assert.Equal(t, domain.StatusTrialing, subs.byTenant[1].Status)
	assert.Equal(t, domain.PlanProfessional, subs.byTenant[1].Plan)
	assert.Empty(t, subs.updated)
	assert.Empty(t, audit.entries)
}

func TestBillingService_CancelAndChangePlan(t *testing.T) {
	ctx := context.Background()
	sub := &domain.Subscription{TenantID: 1, Plan: domain.PlanStarter, Status: domain.StatusActive, StripeSubscriptionID: "sub_1", StripeCustomerID: "cus_1"}
	subs := newFakeSubscriptions(sub)
	provider := &fakeProvider{}
	svc := newTestBillingService(subs, provider, &fakeAudit{})

	require.NoError(t, svc.Cancel(ctx, owner(1)))
	assert.Equal(t, []string{"sub_1"}, provider.canceled)
	assert.Equal(t, domain.StatusActive, subs.byTenant[1].Status)

	require.NoError(t, svc.ChangePlan(ctx, owner(1), domain.PlanProfessional))
	assert.Equal(t, "price_pro", provider.changes["sub_1"])
	assert.Equal(t, domain.PlanStarter, subs.byTenant[1].Plan)

	assert.ErrorIs(t, svc.ChangePlan(ctx, owner(1), domain.PlanFree), domain.ErrUnknownPlan)

	url, err := svc.CreatePortalSession(ctx, tenancy.TenantContext{TenantID: 1, Role: tenancy.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "https://portal.test/cus_1", url)

	_, err = svc.CreatePortalSession(ctx, tenancy.TenantContext{TenantID: 1, Role: tenancy.RoleManager})
	assert.ErrorIs(t, err, tenancy.ErrForbidden)
}

func TestBillingService_RequiresProviderSubscription(t *testing.T) {
	ctx := context.Background()
	svc := newTestBillingService(newFakeSubscriptions(domain.NewTrial(1, domain.PlanProfessional, 14, time.Now())), &fakeProvider{}, nil)

	assert.ErrorIs(t, svc.Cancel(ctx, owner(1)), domain.ErrNoBillingCustomer)
	_, err := svc.CreatePortalSession(ctx, owner(1))
	assert.ErrorIs(t, err, domain.ErrNoBillingCustomer)
}

func TestBillingService_StatusAndUsage(t *testing.T) {
	ctx := context.Background()
	employee := tenancy.TenantContext{TenantID: 1, Role: tenancy.RoleEmployee}

	empty := newTestBillingService(newFakeSubscriptions(), nil, nil)
	summary, err := empty.Status(ctx, employee)
	require.NoError(t, err)
	assert.False(t, summary.HasSubscription)
	assert.Equal(t, domain.PlanFree, summary.Plan)
	assert.Equal(t, 5, summary.MaxEmployees)

	sub := domain.NewTrial(1, domain.PlanProfessional, 14, time.Now())
	sub.CustomMaxUsers = 40
	svc := newTestBillingService(newFakeSubscriptions(sub), nil, nil)
	usage, err := svc.Usage(ctx, employee)
	require.NoError(t, err)
	assert.Equal(t, Usage{
		EmployeesCount:     3,
		MaxEmployees:       100,
		UsersCount:         2,
		MaxUsers:           40,
		PendingInvitations: 1,
		Plan:               domain.PlanProfessional,
		Status:             domain.StatusTrialing,
		TrialEndsAt:        sub.TrialEndsAt,
	}, usage)
}

func TestPriceTable(t *testing.T) {
	plan, ok := testPrices.PlanFor("price_pro")
	assert.True(t, ok)
	assert.Equal(t, domain.PlanProfessional, plan)

	_, ok = testPrices.PlanFor("")
	assert.False(t, ok)
	_, ok = testPrices.PriceFor(domain.PlanFree)
	assert.False(t, ok)
}
