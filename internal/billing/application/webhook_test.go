package application

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorluno/planilla/internal/billing/domain"
	billingdb "github.com/vorluno/planilla/internal/billing/infrastructure/persistence"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/testdb"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
	tenancydb "github.com/vorluno/planilla/internal/tenancy/infrastructure/persistence"
)

var webhookNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type webhookFixture struct {
	conn      database.Connection
	processor *WebhookProcessor
	subs      *billingdb.SubscriptionRepository
	events    *billingdb.WebhookEventRepository
	tenantID  int64
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	ctx := context.Background()
	conn := testdb.Open(t)

	tenants := tenancydb.NewTenantRepository(conn)
	tenant, err := tenancy.NewTenant(tenancy.TenantInput{Name: "Acme", Subdomain: "acme", RUC: "155-1", DV: "12"}, webhookNow)
	require.NoError(t, err)
	require.NoError(t, tenants.Create(ctx, tenant))

	subs := billingdb.NewSubscriptionRepository(conn)
	require.NoError(t, subs.Create(ctx, domain.NewTrial(tenant.ID, domain.PlanProfessional, 14, webhookNow)))

	events := billingdb.NewWebhookEventRepository(conn)
	processor := NewWebhookProcessor(database.NewUnitOfWork(conn), events, subs, tenants, testPrices, testdb.Logger(), nil)
	processor.now = func() time.Time { return webhookNow }

	return &webhookFixture{conn: conn, processor: processor, subs: subs, events: events, tenantID: tenant.ID}
}

func (f *webhookFixture) metadata() map[string]string {
	return map[string]string{domain.MetadataTenantID: itoa(f.tenantID)}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestWebhookProcessor_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	periodEnd := webhookNow.AddDate(0, 1, 0)

	ev := domain.ProviderEvent{
		ID:      "evt_sub_updated",
		Type:    domain.EventSubscriptionUpdated,
		Payload: []byte(`{"id":"evt_sub_updated"}`),
		Subscription: &domain.SubscriptionSnapshot{
			ID:               "sub_1",
			CustomerID:       "cus_1",
			Status:           "active",
			PriceID:          "price_starter",
			Metadata:         f.metadata(),
			CurrentPeriodEnd: &periodEnd,
		},
	}

	first, err := f.processor.Process(ctx, ev)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	require.NotNil(t, first.TenantID)
	assert.Equal(t, f.tenantID, *first.TenantID)

	afterFirst, err := f.subs.FindByTenant(ctx, f.tenantID)
	require.NoError(t, err)

	second, err := f.processor.Process(ctx, ev)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	var rows int
	require.NoError(t, f.conn.QueryRow(ctx, `SELECT COUNT(*) FROM stripe_webhook_events`).Scan(&rows))
	assert.Equal(t, 1, rows)

	stored, err := f.events.Find(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookProcessed, stored.Status)

	final, err := f.subs.FindByTenant(ctx, f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, afterFirst, final)
	assert.Equal(t, domain.PlanStarter, final.Plan)
	assert.Equal(t, domain.StatusActive, final.Status)
	assert.Equal(t, int64(2900), final.MonthlyPriceCents)
	assert.Equal(t, "sub_1", final.StripeSubscriptionID)
	require.NotNil(t, final.NextBillingDate)
	assert.Equal(t, periodEnd, *final.NextBillingDate)
	assert.Nil(t, final.TrialEndsAt)
}

func TestWebhookProcessor_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)

	_, err := f.processor.Process(ctx, domain.ProviderEvent{
		ID:   "evt_checkout",
		Type: domain.EventCheckoutCompleted,
		Checkout: &domain.CheckoutSnapshot{
			SessionID:      "cs_1",
			CustomerID:     "cus_1",
			SubscriptionID: "sub_1",
			Metadata:       map[string]string{domain.MetadataTenantID: itoa(f.tenantID), domain.MetadataPlan: "Enterprise"},
		},
	})
	require.NoError(t, err)
	sub, err := f.subs.FindByTenant(ctx, f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanEnterprise, sub.Plan)
	assert.Equal(t, domain.StatusActive, sub.Status)
	assert.Nil(t, sub.TrialEndsAt)

	// Invoice events carry no metadata and resolve by subscription id.
	_, err = f.processor.Process(ctx, domain.ProviderEvent{
		ID:      "evt_failed",
		Type:    domain.EventInvoicePaymentFailed,
		Invoice: &domain.InvoiceSnapshot{SubscriptionID: "sub_1"},
	})
	require.NoError(t, err)
	sub, err = f.subs.FindByTenant(ctx, f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPastDue, sub.Status)

	_, err = f.processor.Process(ctx, domain.ProviderEvent{
		ID:      "evt_paid",
		Type:    domain.EventInvoicePaid,
		Invoice: &domain.InvoiceSnapshot{CustomerID: "cus_1"},
	})
	require.NoError(t, err)
	sub, err = f.subs.FindByTenant(ctx, f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, sub.Status)

	_, err = f.processor.Process(ctx, domain.ProviderEvent{
		ID:           "evt_deleted",
		Type:         domain.EventSubscriptionDeleted,
		Subscription: &domain.SubscriptionSnapshot{ID: "sub_1", CustomerID: "cus_1", Status: "canceled"},
	})
	require.NoError(t, err)
	sub, err = f.subs.FindByTenant(ctx, f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, sub.Status)
	require.NotNil(t, sub.CanceledAt)
	assert.Equal(t, webhookNow, *sub.CanceledAt)

	ignored, err := f.processor.Process(ctx, domain.ProviderEvent{ID: "evt_other", Type: "customer.created"})
	require.NoError(t, err)
	assert.True(t, ignored.Ignored)
	stored, err := f.events.Find(ctx, "evt_other")
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookProcessed, stored.Status)
}

func TestWebhookProcessor_FailureIsRecordedAndRetried(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)

	ev := domain.ProviderEvent{
		ID:      "evt_orphan",
		Type:    domain.EventInvoicePaymentFailed,
		Invoice: &domain.InvoiceSnapshot{CustomerID: "cus_later"},
	}
	_, err := f.processor.Process(ctx, ev)
	require.ErrorIs(t, err, domain.ErrWebhookTenantUnknown)

	stored, err := f.events.Find(ctx, ev.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.WebhookFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorMessage)

	sub, err := f.subs.FindByTenant(ctx, f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTrialing, sub.Status)

	require.NoError(t, f.subs.SetStripeCustomer(ctx, f.tenantID, "cus_later", webhookNow))

	res, err := f.processor.Process(ctx, ev)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	stored, err = f.events.Find(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookProcessed, stored.Status)

	sub, err = f.subs.FindByTenant(ctx, f.tenantID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPastDue, sub.Status)
}

func TestWebhookProcessor_UnknownTenantMetadata(t *testing.T) {
	f := newWebhookFixture(t)
	_, err := f.processor.Process(context.Background(), domain.ProviderEvent{
		ID:       "evt_x",
		Type:     domain.EventCheckoutCompleted,
		Checkout: &domain.CheckoutSnapshot{Metadata: map[string]string{domain.MetadataTenantID: "999"}},
	})
	assert.ErrorIs(t, err, domain.ErrWebhookTenantUnknown)

	_, err = f.processor.Process(context.Background(), domain.ProviderEvent{})
	assert.Error(t, err)
}
