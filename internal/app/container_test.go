package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	identityapp "github.com/vorluno/planilla/internal/identity/application"
	"github.com/vorluno/planilla/internal/shared/infrastructure/eventbus"
	"github.com/vorluno/planilla/internal/shared/infrastructure/outbox"
	"github.com/vorluno/planilla/internal/shared/infrastructure/ratelimit"
	"github.com/vorluno/planilla/internal/shared/infrastructure/testdb"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
	"github.com/vorluno/planilla/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:              "test",
		EventBusDriver:      "noop",
		OutboxPollInterval:  10 * time.Millisecond,
		OutboxBatchSize:     10,
		OutboxMaxRetries:    3,
		OutboxRetentionDays: 7,
		JWTSecret:           "test-secret-that-is-long-enough-for-hs256",
		JWTIssuer:           "planilla",
		JWTTTL:              time.Hour,
		InvitationTTL:       72 * time.Hour,
		TrialDays:           14,
		AuthRateLimit:       10,
		AuthRateWindow:      time.Minute,
	}
}

func wire(t *testing.T, cfg *config.Config, redisClient *redis.Client) *Container {
	t.Helper()
	c, err := Wire(cfg, testdb.Open(t), redisClient, testdb.Logger(), WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	return c
}

func TestWire(t *testing.T) {
	c := wire(t, testConfig(), nil)

	assert.NotNil(t, c.Auth)
	assert.NotNil(t, c.Employees)
	assert.Nil(t, c.Verifier, "no webhook secret configured")
	assert.IsType(t, &ratelimit.MemoryLimiter{}, c.AuthLimiter)
	assert.Equal(t, []string{"database"}, c.Health.Names())
}

func TestWire_InvalidJWTSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWTSecret = ""
	_, err := Wire(cfg, testdb.Open(t), nil, testdb.Logger())
	assert.Error(t, err)
}

func TestWire_RedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	cfg.StripeWebhookSecret = "whsec_test"
	c := wire(t, cfg, client)

	assert.IsType(t, &ratelimit.FallbackLimiter{}, c.AuthLimiter)
	assert.NotNil(t, c.Verifier)
	assert.ElementsMatch(t, []string{"database", "redis"}, c.Health.Names())

	d, err := c.AuthLimiter.Allow(context.Background(), "127.0.0.1:/api/auth/login")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestNewPublisher(t *testing.T) {
	c := wire(t, testConfig(), nil)
	p, err := c.NewPublisher()
	require.NoError(t, err)
	assert.IsType(t, &eventbus.NoopPublisher{}, p)

	c.Config.EventBusDriver = "nats"
	c.Config.NATSURL = "nats://127.0.0.1:1"
	p, err = c.NewPublisher()
	require.NoError(t, err)
	assert.IsType(t, &eventbus.NoopPublisher{}, p)

	c.Config.AppEnv = "production"
	_, err = c.NewPublisher()
	assert.Error(t, err)
}

func TestRunWorker_RelaysOutbox(t *testing.T) {
	c := wire(t, testConfig(), nil)
	ctx := context.Background()

	_, err := c.Auth.Register(ctx, identityapp.RegisterInput{
		Email:       "owner@acme.test",
		FullName:    "Owner",
		Password:    "correct-horse",
		CompanyName: "Acme",
		Subdomain:   "acme",
		RUC:         "155-1",
		DV:          "42",
	})
	require.NoError(t, err)

	pending, err := c.OutboxRepo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	publisher := eventbus.NewRecordingPublisher(nil)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.RunWorker(runCtx, publisher) }()

	require.Eventually(t, func() bool {
		return len(publisher.Envelopes()) >= len(pending)
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	keys := make([]string, 0, len(pending))
	for _, env := range publisher.Envelopes() {
		keys = append(keys, env.RoutingKey)
	}
	assert.Contains(t, keys, tenancy.RoutingKeyTenantRegistered)
}

func TestWorkerMux(t *testing.T) {
	c := wire(t, testConfig(), nil)
	processor := outbox.NewProcessor(c.OutboxRepo, eventbus.NewNoopPublisher(nil), outbox.DefaultProcessorConfig(), testdb.Logger())
	mux := c.workerMux(processor)

	for _, tc := range []struct {
		path string
		want string
	}{
		{"/healthz", `"status":"ok"`},
		{"/readyz", `"database"`},
		{"/metrics", "go_goroutines"},
	} {
		t.Run(tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.want)
		})
	}
}

func TestEvery_BlocksWithoutInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		every(ctx, 0, func() { t.Error("fn must not run") })
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("every did not return after cancel")
	}
}
