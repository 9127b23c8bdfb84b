package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vorluno/planilla/internal/payroll/domain"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/isolation"
	"github.com/vorluno/planilla/pkg/observability"
)

// SeedReport summarizes one seeding run.
type SeedReport struct {
	Tenants int
	Created int
	Skipped int
}

// Seeder creates reference payroll data for every active tenant. It is the
// only payroll code that walks across tenants and runs from operator
// tooling, never from a request.
type Seeder struct {
	conn   database.Connection
	taxes  *TaxConfigurationRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewSeeder creates a seeder.
func NewSeeder(conn database.Connection, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		conn:   conn,
		taxes:  NewTaxConfigurationRepository(conn),
		logger: logger.With("component", "seeder"),
		now:    time.Now,
	}
}

// SeedAll creates the current year's tax configuration for each active
// tenant that lacks one. Running it twice changes nothing.
func (s *Seeder) SeedAll(ctx context.Context) (SeedReport, error) {
	now := s.now().UTC()
	exec := isolation.CrossTenant(s.conn, "seed tax configurations", s.logger)

	rows, err := exec.Query(ctx, `SELECT id FROM tenants WHERE is_active = ? ORDER BY id`, true)
	if err != nil {
		return SeedReport{}, fmt.Errorf("list tenants: %w", err)
	}
	ids, err := database.ScanAll(rows, func(row database.Row) (int64, error) {
		var id int64
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return SeedReport{}, fmt.Errorf("list tenants: %w", err)
	}

	report := SeedReport{Tenants: len(ids)}
	for _, tenantID := range ids {
		created, err := s.taxes.CreateIfAbsent(ctx, tenantID, domain.DefaultTaxConfiguration(tenantID, now.Year(), now))
		if err != nil {
			return report, fmt.Errorf("seed tenant %d: %w", tenantID, err)
		}
		if created {
			report.Created++
			s.logger.InfoContext(ctx, "tax configuration seeded", observability.TenantIDKey, tenantID, "year", now.Year())
		} else {
			report.Skipped++
		}
	}
	if len(ids) == 0 {
		s.logger.WarnContext(ctx, "no active tenants to seed")
	}
	return report, nil
}
