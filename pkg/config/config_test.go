package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"APP_ENV", "LOG_LEVEL", "LOG_FORMAT", "HTTP_ADDR",
	"DATABASE_URL", "DATABASE_DRIVER", "SQLITE_PATH", "DATABASE_MAX_CONNS",
	"REDIS_URL", "EVENTBUS_DRIVER", "RABBITMQ_URL", "NATS_URL",
	"OUTBOX_POLL_INTERVAL", "OUTBOX_BATCH_SIZE", "OUTBOX_MAX_RETRIES",
	"OUTBOX_STATS_INTERVAL", "OUTBOX_RETENTION_DAYS", "OUTBOX_CLEANUP_INTERVAL",
	"OUTBOX_PROCESSOR_ENABLED", "WORKER_HEALTH_ADDR",
	"JWT_SECRET", "JWT_ISSUER", "JWT_TTL", "INVITATION_TTL", "TRIAL_DAYS",
	"AUTH_RATE_LIMIT", "AUTH_RATE_WINDOW", "CORS_ORIGINS",
	"STRIPE_API_KEY", "STRIPE_WEBHOOK_SECRET",
	"STRIPE_PRICE_STARTER", "STRIPE_PRICE_PROFESSIONAL", "STRIPE_PRICE_ENTERPRISE",
	"BILLING_SUCCESS_URL", "BILLING_CANCEL_URL", "BILLING_PORTAL_RETURN_URL",
	"BILLING_PROVIDER_TIMEOUT",
}

// clearEnv blanks every planilla variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr)

	// Without DATABASE_URL the service runs on SQLite.
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "planilla.db", cfg.SQLitePath)

	assert.Equal(t, "noop", cfg.EventBusDriver)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 5, cfg.OutboxMaxRetries)
	assert.Equal(t, 14, cfg.OutboxRetentionDays)
	assert.True(t, cfg.OutboxProcessorEnabled)

	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.InvitationTTL)
	assert.Equal(t, 14, cfg.TrialDays)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)

	assert.False(t, cfg.BillingEnabled())
	assert.Equal(t, 10*time.Second, cfg.BillingProviderTimeout)
	assert.True(t, cfg.IsDevelopment())
	require.NoError(t, cfg.Validate())
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://planilla@db:5432/planilla")
	t.Setenv("EVENTBUS_DRIVER", "NATS")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("TRIAL_DAYS", "30")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://admin.example.com,")
	t.Setenv("OUTBOX_PROCESSOR_ENABLED", "false")
	t.Setenv("STRIPE_API_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "nats", cfg.EventBusDriver)
	assert.Equal(t, 2*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 30, cfg.TrialDays)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSOrigins)
	assert.False(t, cfg.OutboxProcessorEnabled)
	assert.True(t, cfg.BillingEnabled())
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("OUTBOX_BATCH_SIZE", "lots")
	t.Setenv("JWT_TTL", "forever")
	t.Setenv("OUTBOX_PROCESSOR_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.OutboxBatchSize)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.True(t, cfg.OutboxProcessorEnabled)
}

func TestValidate(t *testing.T) {
	t.Run("production requires a jwt secret", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("APP_ENV", "production")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Empty(t, cfg.JWTSecret)
		assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET is required")
	})

	t.Run("short production secret", func(t *testing.T) {
		cfg := &Config{AppEnv: "production", DatabaseDriver: "sqlite", EventBusDriver: "noop",
			JWTSecret: "short", JWTTTL: time.Hour, InvitationTTL: time.Hour}
		assert.ErrorContains(t, cfg.Validate(), "at least 32 bytes")
	})

	t.Run("postgres without url", func(t *testing.T) {
		cfg := &Config{DatabaseDriver: "postgres", EventBusDriver: "noop",
			JWTSecret: "secret", JWTTTL: time.Hour, InvitationTTL: time.Hour}
		assert.ErrorContains(t, cfg.Validate(), "DATABASE_URL is required")
	})

	t.Run("unknown drivers", func(t *testing.T) {
		cfg := &Config{DatabaseDriver: "mysql", EventBusDriver: "kafka",
			JWTSecret: "secret", JWTTTL: time.Hour, InvitationTTL: time.Hour}
		err := cfg.Validate()
		assert.ErrorContains(t, err, `unsupported DATABASE_DRIVER "mysql"`)
		assert.ErrorContains(t, err, `unsupported EVENTBUS_DRIVER "kafka"`)
	})
}
