package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vorluno/planilla/internal/billing/domain"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
)

// WebhookEventRepository implements domain.WebhookEventRepository.
type WebhookEventRepository struct {
	conn database.Connection
}

// NewWebhookEventRepository creates a webhook event repository.
func NewWebhookEventRepository(conn database.Connection) *WebhookEventRepository {
	return &WebhookEventRepository{conn: conn}
}

func (r *WebhookEventRepository) getDB(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

// Insert records e as Pending. A duplicate external id inserts nothing.
func (r *WebhookEventRepository) Insert(ctx context.Context, e *domain.WebhookEvent) (bool, error) {
	d := r.conn.Driver()
	res, err := r.getDB(ctx).Exec(ctx, d.Rebind(`
		INSERT INTO stripe_webhook_events (external_event_id, type, tenant_id, status, received_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_event_id) DO NOTHING`),
		e.ExternalEventID, e.Type, e.TenantID, string(domain.WebhookPending), d.Time(e.ReceivedAt), string(e.Payload))
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	e.Status = domain.WebhookPending
	return n == 1, nil
}

// MarkProcessed transitions a Pending event to Processed.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, externalID string, tenantID *int64, at time.Time) error {
	d := r.conn.Driver()
	_, err := r.getDB(ctx).Exec(ctx, d.Rebind(`
		UPDATE stripe_webhook_events
		SET status = ?, processed_at = ?, tenant_id = COALESCE(?, tenant_id)
		WHERE external_event_id = ? AND status = ?`),
		string(domain.WebhookProcessed), d.Time(at), tenantID, externalID, string(domain.WebhookPending))
	if err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	return nil
}

// MarkFailed transitions a Pending event to Failed.
func (r *WebhookEventRepository) MarkFailed(ctx context.Context, externalID, message string, at time.Time) error {
	d := r.conn.Driver()
	_, err := r.getDB(ctx).Exec(ctx, d.Rebind(`
		UPDATE stripe_webhook_events
		SET status = ?, processed_at = ?, error_message = ?
		WHERE external_event_id = ? AND status = ?`),
		string(domain.WebhookFailed), d.Time(at), message, externalID, string(domain.WebhookPending))
	if err != nil {
		return fmt.Errorf("mark webhook failed: %w", err)
	}
	return nil
}

// Retry moves a Failed event back to Pending for reprocessing.
func (r *WebhookEventRepository) Retry(ctx context.Context, externalID string) (bool, error) {
	res, err := r.getDB(ctx).Exec(ctx, r.conn.Driver().Rebind(`
		UPDATE stripe_webhook_events
		SET status = ?, processed_at = NULL, error_message = ''
		WHERE external_event_id = ? AND status = ?`),
		string(domain.WebhookPending), externalID, string(domain.WebhookFailed))
	if err != nil {
		return false, fmt.Errorf("retry webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Find returns the recorded event or nil.
func (r *WebhookEventRepository) Find(ctx context.Context, externalID string) (*domain.WebhookEvent, error) {
	var (
		e           domain.WebhookEvent
		tenantID    sql.NullInt64
		status      string
		payload     string
		received    database.NullTime
		processedAt database.NullTime
	)
	err := r.getDB(ctx).QueryRow(ctx, r.conn.Driver().Rebind(`
		SELECT id, external_event_id, type, tenant_id, status, received_at, processed_at, error_message, payload
		FROM stripe_webhook_events WHERE external_event_id = ?`), externalID).
		Scan(&e.ID, &e.ExternalEventID, &e.Type, &tenantID, &status, &received, &processedAt, &e.ErrorMessage, &payload)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load webhook event: %w", err)
	}
	if tenantID.Valid {
		id := tenantID.Int64
		e.TenantID = &id
	}
	e.Status = domain.WebhookStatus(status)
	e.ReceivedAt = received.Time
	e.ProcessedAt = processedAt.Ptr()
	e.Payload = []byte(payload)
	return &e, nil
}
