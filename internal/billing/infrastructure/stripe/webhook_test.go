package stripe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/vorluno/planilla/internal/billing/domain"
)

const testSecret = "whsec_test"

func signed(t *testing.T, payload string) ([]byte, string) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return sp.Payload, sp.Header
}

func envelope(id, typ, object string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
		id, stripeapi.APIVersion, typ, object)
}

func TestVerifier_SubscriptionUpdated(t *testing.T) {
	payload, header := signed(t, envelope("evt_1", domain.EventSubscriptionUpdated, `{
		"id": "sub_1",
		"object": "subscription",
		"customer": "cus_1",
		"status": "active",
		"cancel_at_period_end": true,
		"trial_end": 0,
		"metadata": {"tenant_id": "7", "plan": "Starter"},
		"items": {"object": "list", "data": [{"id": "si_1", "object": "subscription_item", "current_period_end": 1775000000, "price": {"id": "price_starter", "object": "price"}}]}
	}`))

	ev, err := NewVerifier(testSecret).Verify(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, domain.EventSubscriptionUpdated, ev.Type)
	require.NotNil(t, ev.Subscription)
	snap := ev.Subscription
	assert.Equal(t, "sub_1", snap.ID)
	assert.Equal(t, "cus_1", snap.CustomerID)
	assert.Equal(t, "price_starter", snap.PriceID)
	assert.True(t, snap.CancelAtPeriodEnd)
	assert.Nil(t, snap.TrialEnd)
	require.NotNil(t, snap.CurrentPeriodEnd)
	assert.Equal(t, time.Unix(1775000000, 0).UTC(), *snap.CurrentPeriodEnd)
	assert.Equal(t, domain.StatusCanceledAtPeriodEnd, domain.StatusFromProvider(snap.Status, snap.CancelAtPeriodEnd))

	id, ok := domain.TenantIDFromMetadata(snap.Metadata)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestVerifier_CheckoutAndInvoice(t *testing.T) {
	v := NewVerifier(testSecret)

	payload, header := signed(t, envelope("evt_2", domain.EventCheckoutCompleted, `{
		"id": "cs_1", "object": "checkout.session", "customer": "cus_1", "subscription": "sub_1",
		"metadata": {"tenant_id": "7", "plan": "Professional"}
	}`))
	ev, err := v.Verify(payload, header)
	require.NoError(t, err)
	require.NotNil(t, ev.Checkout)
	assert.Equal(t, domain.CheckoutSnapshot{
		SessionID:      "cs_1",
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Metadata:       map[string]string{"tenant_id": "7", "plan": "Professional"},
	}, *ev.Checkout)

	payload, header = signed(t, envelope("evt_3", domain.EventInvoicePaymentFailed, `{
		"id": "in_1", "object": "invoice", "customer": "cus_1",
		"parent": {"type": "subscription_details", "subscription_details": {"subscription": "sub_1", "metadata": {"tenant_id": "7"}}}
	}`))
	ev, err = v.Verify(payload, header)
	require.NoError(t, err)
	require.NotNil(t, ev.Invoice)
	assert.Equal(t, "sub_1", ev.Invoice.SubscriptionID)
	assert.Equal(t, "cus_1", ev.Invoice.CustomerID)
	assert.Equal(t, "7", ev.Invoice.Metadata["tenant_id"])
}

func TestVerifier_UnhandledTypeKeepsPayload(t *testing.T) {
	payload, header := signed(t, envelope("evt_4", "customer.created", `{"id": "cus_1", "object": "customer"}`))
	ev, err := NewVerifier(testSecret).Verify(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "customer.created", ev.Type)
	assert.Nil(t, ev.Subscription)
	assert.Equal(t, payload, ev.Payload)
}

func TestVerifier_RejectsBadSignature(t *testing.T) {
	payload, header := signed(t, envelope("evt_5", domain.EventInvoicePaid, `{"id": "in_1", "object": "invoice"}`))

	_, err := NewVerifier("whsec_other").Verify(payload, header)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = NewVerifier(testSecret).Verify(append(payload, ' '), header)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = NewVerifier(testSecret).Verify(payload, "")
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = NewVerifier("").Verify(payload, header)
	assert.ErrorIs(t, err, domain.ErrBillingDisabled)
}
