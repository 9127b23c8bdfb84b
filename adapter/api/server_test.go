package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"golang.org/x/crypto/bcrypt"

	"github.com/vorluno/planilla/internal/app"
	billingapp "github.com/vorluno/planilla/internal/billing/application"
	billing "github.com/vorluno/planilla/internal/billing/domain"
	billingdb "github.com/vorluno/planilla/internal/billing/infrastructure/persistence"
	"github.com/vorluno/planilla/internal/shared/infrastructure/ratelimit"
	"github.com/vorluno/planilla/internal/shared/infrastructure/testdb"
	"github.com/vorluno/planilla/pkg/config"
)

const webhookSecret = "whsec_api_test"

type fakeProvider struct{}

func (fakeProvider) CreateCustomer(context.Context, billingapp.CustomerRequest) (string, error) {
	return "cus_test", nil
}

func (fakeProvider) CreateCheckoutSession(context.Context, billingapp.CheckoutRequest) (string, error) {
	return "https://checkout.test/session", nil
}

func (fakeProvider) CreatePortalSession(context.Context, string, string) (string, error) {
	return "https://billing.test/portal", nil
}

func (fakeProvider) CancelAtPeriodEnd(context.Context, string, map[string]string) error { return nil }

func (fakeProvider) ChangePrice(context.Context, string, string, map[string]string) error { return nil }

type testAPI struct {
	t         *testing.T
	container *app.Container
	handler   http.Handler
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "test",
		JWTSecret:               "test-secret-that-is-long-enough-for-hs256",
		JWTIssuer:               "planilla",
		JWTTTL:                  time.Hour,
		InvitationTTL:           72 * time.Hour,
		TrialDays:               14,
		AuthRateLimit:           100,
		AuthRateWindow:          time.Minute,
		StripeWebhookSecret:     webhookSecret,
		StripePriceStarter:      "price_starter",
		StripePriceProfessional: "price_professional",
		StripePriceEnterprise:   "price_enterprise",
		BillingSuccessURL:       "https://app.test/billing/success",
		BillingCancelURL:        "https://app.test/billing/cancel",
		BillingPortalReturnURL:  "https://app.test/billing",
		BillingProviderTimeout:  time.Second,
	}
}

func newTestAPI(t *testing.T, limiter ratelimit.Limiter) *testAPI {
	t.Helper()
	c, err := app.Wire(testConfig(), testdb.Open(t), nil, testdb.Logger(),
		app.WithBcryptCost(bcrypt.MinCost),
		app.WithBillingProvider(fakeProvider{}),
	)
	require.NoError(t, err)
	deps := DepsFromContainer(c)
	if limiter != nil {
		deps.AuthLimiter = limiter
	}
	srv := NewServer(DefaultServerConfig(), deps, testdb.Logger())
	return &testAPI{t: t, container: c, handler: srv.Handler()}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

type registered struct {
	token    string
	tenantID int64
}

func (a *testAPI) register(subdomain string) registered {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":        "owner@" + subdomain + ".test",
		"full_name":    "Owner " + subdomain,
		"password":     "correct-horse",
		"company_name": "Empresa " + subdomain,
		"subdomain":    subdomain,
		"ruc":          "155-1234-" + subdomain,
		"dv":           "42",
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	var res struct {
		Token  string `json:"token"`
		Tenant struct {
			ID int64 `json:"id"`
		} `json:"tenant"`
	}
	decodeBody(a.t, rec, &res)
	require.NotEmpty(a.t, res.Token)
	return registered{token: res.Token, tenantID: res.Tenant.ID}
}

func (a *testAPI) setSubscription(tenantID int64, plan billing.Plan, status billing.SubscriptionStatus) {
	a.t.Helper()
	repo := billingdb.NewSubscriptionRepository(a.container.DB)
	ctx := context.Background()
	sub, err := repo.FindByTenant(ctx, tenantID)
	require.NoError(a.t, err)
	require.NotNil(a.t, sub)
	sub.Plan = plan
	sub.Status = status
	sub.TrialEndsAt = nil
	require.NoError(a.t, repo.Update(ctx, sub))
}

func employeeBody(n int) map[string]any {
	return map[string]any{
		"first_name":        "Ana",
		"last_name":         fmt.Sprintf("Pérez %d", n),
		"national_id":       fmt.Sprintf("8-100-%d", n),
		"base_salary_cents": 120000,
		"hire_date":         "2024-03-01",
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestServer_HealthReadyMetrics(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "database")

	a.register("acme")
	rec = a.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/auth/register"`)

	rec = a.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_RegisterAndMe(t *testing.T) {
	a := newTestAPI(t, nil)
	owner := a.register("acme")

	rec := a.do(http.MethodGet, "/api/auth/me", owner.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me struct {
		Role         string `json:"role"`
		Subscription struct {
			Plan   string `json:"plan"`
			Status string `json:"status"`
		} `json:"subscription"`
	}
	decodeBody(t, rec, &me)
	assert.Equal(t, "Owner", me.Role)
	assert.Equal(t, "Professional", me.Subscription.Plan)
	assert.Equal(t, "Trialing", me.Subscription.Status)

	rec = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "owner@acme.test", "password": "correct-horse"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "owner@acme.test", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/api/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_RegisterValidation(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "bad"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body APIError
	decodeBody(t, rec, &body)
	assert.Equal(t, "validation_failed", body.Code)
	assert.Contains(t, body.Fields, "subdomain")
	assert.Contains(t, body.Fields, "password")

	rec = a.do(http.MethodPost, "/api/auth/register", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_InvitationFlow(t *testing.T) {
	a := newTestAPI(t, nil)
	owner := a.register("acme")

	rec := a.do(http.MethodPost, "/api/tenant/invite", owner.token, map[string]string{"email": "manager@acme.test", "role": "Manager"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv struct {
		Token string `json:"token"`
		State string `json:"state"`
	}
	decodeBody(t, rec, &inv)
	require.NotEmpty(t, inv.Token)
	assert.Equal(t, "Pending", inv.State)

	rec = a.do(http.MethodGet, "/api/auth/validate-invite?token="+inv.Token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Empresa acme")

	rec = a.do(http.MethodPost, "/api/auth/accept-invite", "", map[string]string{
		"token": inv.Token, "full_name": "María Gerente", "password": "manager-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var accepted struct {
		Token    string `json:"token"`
		Role     string `json:"role"`
		TenantID int64  `json:"tenant_id"`
	}
	decodeBody(t, rec, &accepted)
	assert.Equal(t, "Manager", accepted.Role)
	assert.Equal(t, owner.tenantID, accepted.TenantID)

	// Managers cannot invite but can manage employees.
	rec = a.do(http.MethodPost, "/api/tenant/invite", accepted.Token, map[string]string{"email": "x@acme.test", "role": "Employee"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(http.MethodPost, "/api/employees", accepted.Token, employeeBody(1))
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/auth/accept-invite", "", map[string]string{"token": inv.Token, "password": "manager-pass"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/api/tenant/users", owner.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var members []memberResponse
	decodeBody(t, rec, &members)
	assert.Len(t, members, 2)
}

func TestServer_EmployeeLimit(t *testing.T) {
	a := newTestAPI(t, nil)
	owner := a.register("acme")
	a.setSubscription(owner.tenantID, billing.PlanFree, billing.StatusActive)

	for i := 1; i <= 5; i++ {
		rec := a.do(http.MethodPost, "/api/employees", owner.token, employeeBody(i))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := a.do(http.MethodPost, "/api/employees", owner.token, employeeBody(6))
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var body APIError
	decodeBody(t, rec, &body)
	assert.Equal(t, "limit_reached", body.Code)
	require.NotNil(t, body.Decision)
	assert.Equal(t, billing.PlanStarter, body.Decision.SuggestedPlan)
	assert.Equal(t, 5, body.Decision.CurrentCount)
	assert.Equal(t, 5, body.Decision.Limit)

	// Free does not include exports.
	rec = a.do(http.MethodGet, "/api/employees/export", owner.token, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestServer_Entitlements(t *testing.T) {
	a := newTestAPI(t, nil)
	owner := a.register("acme")
	a.setSubscription(owner.tenantID, billing.PlanStarter, billing.StatusActive)

	rec := a.do(http.MethodGet, "/api/tenant/entitlements", owner.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var decisions map[string]billing.Decision
	decodeBody(t, rec, &decisions)

	assert.True(t, decisions["create_employee"].Allowed)
	assert.True(t, decisions["invite_user"].Allowed)
	assert.True(t, decisions["export_reports"].Allowed)
	assert.False(t, decisions["use_api"].Allowed)
	assert.Equal(t, billing.DenyFeatureUnavailable, decisions["use_api"].Code)

	rec = a.do(http.MethodGet, "/api/tenant/entitlements", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_TenantGate(t *testing.T) {
	a := newTestAPI(t, nil)
	owner := a.register("acme")
	a.setSubscription(owner.tenantID, billing.PlanStarter, billing.StatusPastDue)

	rec := a.do(http.MethodGet, "/api/employees", owner.token, nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "subscription_inactive")

	rec = a.do(http.MethodGet, "/api/subscription", owner.token, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	a.setSubscription(owner.tenantID, billing.PlanStarter, billing.StatusActive)
	require.NoError(t, a.container.Tenants.SetActive(context.Background(), owner.tenantID, false))
	rec = a.do(http.MethodGet, "/api/employees", owner.token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestServer_TenantIsolation(t *testing.T) {
	a := newTestAPI(t, nil)
	tenantA := a.register("alpha")
	tenantB := a.register("bravo")

	rec := a.do(http.MethodPost, "/api/employees", tenantA.token, employeeBody(1))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var emp employeeResponse
	decodeBody(t, rec, &emp)

	path := fmt.Sprintf("/api/employees/%d", emp.ID)
	rec = a.do(http.MethodGet, path, tenantB.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(http.MethodDelete, path, tenantB.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodGet, "/api/employees", tenantB.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []employeeResponse
	decodeBody(t, rec, &list)
	assert.Empty(t, list)

	rec = a.do(http.MethodGet, path, tenantA.token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/api/employees/abc", tenantA.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_PayrollReceipts(t *testing.T) {
	a := newTestAPI(t, nil)
	tenantA := a.register("alpha")
	tenantB := a.register("bravo")

	rec := a.do(http.MethodPost, "/api/employees", tenantA.token, employeeBody(1))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var emp employeeResponse
	decodeBody(t, rec, &emp)

	receipt := map[string]any{
		"employee_id":      emp.ID,
		"period_start":     "2026-04-01",
		"period_end":       "2026-04-15",
		"gross_cents":      60000,
		"deductions_cents": 5850,
	}
	rec = a.do(http.MethodPost, "/api/payroll/receipts", tenantA.token, receipt)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created receiptResponse
	decodeBody(t, rec, &created)
	assert.Equal(t, int64(54150), created.NetCents)
	assert.Equal(t, "2026-04-15", created.PeriodEnd)

	rec = a.do(http.MethodPost, "/api/payroll/receipts", tenantA.token, receipt)
	assert.Equal(t, http.StatusConflict, rec.Code)

	path := fmt.Sprintf("/api/payroll/receipts/%d", created.ID)
	rec = a.do(http.MethodGet, path, tenantA.token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodGet, fmt.Sprintf("/api/payroll/receipts?employee_id=%d&from=2026-04-01", emp.ID), tenantA.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []receiptResponse
	decodeBody(t, rec, &list)
	assert.Len(t, list, 1)

	// Tenant b sees none of it and cannot reference a's employee.
	rec = a.do(http.MethodGet, path, tenantB.token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(http.MethodPost, "/api/payroll/receipts", tenantB.token, receipt)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(http.MethodGet, "/api/payroll/receipts", tenantB.token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &list)
	assert.Empty(t, list)

	bad := map[string]any{"employee_id": emp.ID, "period_start": "01/04/2026"}
	rec = a.do(http.MethodPost, "/api/payroll/receipts", tenantA.token, bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body APIError
	decodeBody(t, rec, &body)
	assert.Contains(t, body.Fields, "period_start")
}

func TestServer_EmployeeValidation(t *testing.T) {
	a := newTestAPI(t, nil)
	owner := a.register("acme")

	rec := a.do(http.MethodPost, "/api/employees", owner.token, map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body APIError
	decodeBody(t, rec, &body)
	assert.Equal(t, "validation_failed", body.Code)
	assert.Contains(t, body.Fields, "first_name")
	assert.Contains(t, body.Fields, "hire_date")

	bad := employeeBody(1)
	bad["hire_date"] = "01/03/2024"
	rec = a.do(http.MethodPost, "/api/employees", owner.token, bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	decodeBody(t, rec, &body)
	assert.Contains(t, body.Fields, "hire_date")
}

func TestServer_ExportCSV(t *testing.T) {
	a := newTestAPI(t, nil)
	owner := a.register("acme")
	rec := a.do(http.MethodPost, "/api/employees", owner.token, employeeBody(1))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodGet, "/api/employees/export", owner.token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "empleados-")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[1], "8-100-1")
}

func TestServer_AuthRateLimit(t *testing.T) {
	a := newTestAPI(t, ratelimit.NewMemoryLimiter(2, time.Minute))
	creds := map[string]string{"email": "nobody@acme.test", "password": "whatever-pass"}

	for i := 0; i < 2; i++ {
		rec := a.do(http.MethodPost, "/api/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := a.do(http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func signedWebhook(t *testing.T, id, typ, object string) ([]byte, string) {
	t.Helper()
	payload := fmt.Sprintf(`{"id":%q,"object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
		id, stripeapi.APIVersion, typ, object)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	return sp.Payload, sp.Header
}

func (a *testAPI) postWebhook(payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_StripeWebhook(t *testing.T) {
	a := newTestAPI(t, nil)
	owner := a.register("acme")

	rec := a.postWebhook([]byte(`{"id":"evt_x"}`), "t=1,v1=deadbeef")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	object := fmt.Sprintf(`{
		"id": "sub_1", "object": "subscription", "customer": "cus_1", "status": "past_due",
		"metadata": {"tenant_id": "%d", "plan": "Starter"},
		"items": {"object": "list", "data": [{"id": "si_1", "object": "subscription_item", "price": {"id": "price_starter", "object": "price"}}]}
	}`, owner.tenantID)
	payload, sig := signedWebhook(t, "evt_1", billing.EventSubscriptionUpdated, object)

	rec = a.postWebhook(payload, sig)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"received":true}`, rec.Body.String())

	rec = a.postWebhook(payload, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"duplicate":true}`, rec.Body.String())

	rec = a.do(http.MethodGet, "/api/employees", owner.token, nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	unknown, sig := signedWebhook(t, "evt_2", billing.EventSubscriptionUpdated,
		`{"id":"sub_9","object":"subscription","customer":"cus_9","status":"active","metadata":{}}`)
	rec = a.postWebhook(unknown, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"ignored":true}`, rec.Body.String())
}

func TestServer_BillingEndpoints(t *testing.T) {
	a := newTestAPI(t, nil)
	owner := a.register("acme")

	rec := a.do(http.MethodPost, "/api/subscription/checkout", owner.token, map[string]string{"plan": "Starter"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"url":"https://checkout.test/session"}`, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/subscription/checkout", owner.token, map[string]string{"plan": "Gold"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
