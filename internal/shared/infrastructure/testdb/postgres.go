//go:build integration

package testdb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	_ "github.com/vorluno/planilla/internal/shared/infrastructure/database/postgres"
	"github.com/vorluno/planilla/internal/shared/infrastructure/migrations"
)

// OpenPostgres starts a disposable PostgreSQL container and returns a
// migrated connection to it. The container is removed when the test ends.
func OpenPostgres(t testing.TB) database.Connection {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-based test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "planilla",
				"POSTGRES_PASSWORD": "planilla",
				"POSTGRES_DB":       "planilla",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	conn, err := database.NewConnection(ctx, database.Config{
		Driver:   database.DriverPostgres,
		URL:      fmt.Sprintf("postgres://planilla:planilla@%s:%s/planilla?sslmode=disable", host, port.Port()),
		MaxConns: 10,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = migrations.Run(ctx, conn, Logger())
	require.NoError(t, err)
	return conn
}
