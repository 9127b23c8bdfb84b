package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/isolation"
	"github.com/vorluno/planilla/internal/tenancy/domain"
)

// AuditRepository implements domain.AuditRepository.
type AuditRepository struct {
	conn database.Connection
}

// NewAuditRepository creates an audit repository.
func NewAuditRepository(conn database.Connection) *AuditRepository {
	return &AuditRepository{conn: conn}
}

// Append writes one entry in the caller's transaction.
func (r *AuditRepository) Append(ctx context.Context, tenantID int64, e *domain.AuditEntry) error {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return err
	}
	err = s.QueryRow(ctx, `
		INSERT INTO audit_logs (tenant_id, actor_user_id, actor_email, action, entity_type, entity_id, details, ip_address, created_at)
		VALUES (:tenant_id, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		e.ActorUserID, e.ActorEmail, e.Action, e.EntityType, e.EntityID, e.Details, e.IPAddress,
		s.Driver().Time(e.CreatedAt),
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	e.TenantID = tenantID
	return nil
}

// List returns one page of entries matching filter, newest first.
func (r *AuditRepository) List(ctx context.Context, tenantID int64, filter domain.AuditFilter) (domain.AuditPage, error) {
	s, err := isolation.Scope(r.conn, tenantID)
	if err != nil {
		return domain.AuditPage{}, err
	}
	filter = filter.Normalize()

	var (
		where []string
		args  []any
	)
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.ActorUserID.Valid {
		where = append(where, "actor_user_id = ?")
		args = append(args, filter.ActorUserID.UUID)
	}
	if filter.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, s.Driver().Time(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, s.Driver().Time(*filter.To))
	}
	var clause string
	if len(where) > 0 {
		clause = " AND " + strings.Join(where, " AND ")
	}

	page := domain.AuditPage{Page: filter.Page, PageSize: filter.PageSize}
	if err := s.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs WHERE tenant_id = :tenant_id"+clause, args...).Scan(&page.Total); err != nil {
		return domain.AuditPage{}, fmt.Errorf("count audit entries: %w", err)
	}

	rows, err := s.Query(ctx, `
		SELECT id, tenant_id, actor_user_id, actor_email, action, entity_type, entity_id, details, ip_address, created_at
		FROM audit_logs
		WHERE tenant_id = :tenant_id`+clause+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, filter.PageSize, filter.Offset())...)
	if err != nil {
		return domain.AuditPage{}, fmt.Errorf("list audit entries: %w", err)
	}
	items, err := database.ScanAll(rows, scanAuditEntry)
	if err != nil {
		return domain.AuditPage{}, err
	}
	page.Items = items
	return page, nil
}

func scanAuditEntry(row database.Row) (domain.AuditEntry, error) {
	var (
		e         domain.AuditEntry
		createdAt database.NullTime
	)
	if err := row.Scan(&e.ID, &e.TenantID, &e.ActorUserID, &e.ActorEmail, &e.Action, &e.EntityType,
		&e.EntityID, &e.Details, &e.IPAddress, &createdAt); err != nil {
		return domain.AuditEntry{}, err
	}
	e.CreatedAt = createdAt.Time
	return e, nil
}
