// Package migrations applies the embedded schema migrations for each driver.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Migration is a single numbered schema change.
type Migration struct {
	Version string
	SQL     string
}

// Load returns the up migrations for a driver in version order.
func Load(driver database.Driver) ([]Migration, error) {
	dir := driver.String()
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s migrations: %w", dir, err)
	}

	var out []Migration
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		body, err := fs.ReadFile(files, dir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		out = append(out, Migration{Version: strings.TrimSuffix(name, ".up.sql"), SQL: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Run applies every migration not yet recorded in schema_migrations. Each
// migration runs in its own transaction together with its bookkeeping row.
func Run(ctx context.Context, conn database.Connection, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver := conn.Driver()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return 0, err
	}

	migrations, err := Load(driver)
	if err != nil {
		return 0, err
	}

	count := 0
	uow := database.NewUnitOfWork(conn)
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		txCtx, err := uow.Begin(ctx)
		if err != nil {
			return count, err
		}
		exec := database.ExecutorFromContext(txCtx, conn)
		if _, err := exec.Exec(txCtx, m.SQL); err != nil {
			_ = uow.Rollback(txCtx)
			return count, fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
		if _, err := exec.Exec(txCtx,
			driver.Rebind(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`),
			m.Version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = uow.Rollback(txCtx)
			return count, fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		if err := uow.Commit(txCtx); err != nil {
			return count, err
		}
		logger.Info("applied migration", "version", m.Version, "driver", driver)
		count++
	}
	return count, nil
}

func appliedVersions(ctx context.Context, conn database.Connection) (map[string]bool, error) {
	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}
	versions, err := database.ScanAll(rows, func(r database.Row) (string, error) {
		var v string
		return v, r.Scan(&v)
	})
	if err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}
