// Package testdb opens migrated SQLite databases for package tests.
package testdb

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	_ "github.com/vorluno/planilla/internal/shared/infrastructure/database/sqlite"
	"github.com/vorluno/planilla/internal/shared/infrastructure/migrations"
)

// Open returns a fresh, fully migrated SQLite database that is closed when
// the test ends.
func Open(t testing.TB) database.Connection {
	t.Helper()

	ctx := context.Background()
	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "planilla.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = migrations.Run(ctx, conn, Logger())
	require.NoError(t, err)
	return conn
}

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
