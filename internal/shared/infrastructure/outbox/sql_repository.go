package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vorluno/planilla/internal/shared/application"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
)

const selectColumns = `
	SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
	       payload, metadata, created_at, published_at, next_retry_at, retry_count,
	       last_error, dead_lettered_at, dead_letter_reason
	FROM outbox`

// SQLRepository implements Repository on either database driver.
type SQLRepository struct {
	conn database.Connection
	uow  application.UnitOfWork
	now  func() time.Time
}

// NewSQLRepository creates an outbox repository over conn.
func NewSQLRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{conn: conn, uow: database.NewUnitOfWork(conn), now: time.Now}
}

func (r *SQLRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *SQLRepository) q(query string) string {
	return r.conn.Driver().Rebind(query)
}

// Save stores a new outbox message.
func (r *SQLRepository) Save(ctx context.Context, msg *Message) error {
	d := r.conn.Driver()
	return r.exec(ctx).QueryRow(ctx, r.q(`
		INSERT INTO outbox (
			event_id, aggregate_type, aggregate_id, event_type, routing_key,
			payload, metadata, created_at, retry_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		RETURNING id`),
		msg.EventID.String(),
		msg.AggregateType,
		msg.AggregateID,
		msg.EventType,
		msg.RoutingKey,
		[]byte(msg.Payload),
		[]byte(msg.Metadata),
		d.Time(msg.CreatedAt),
	).Scan(&msg.ID)
}

// SaveBatch stores multiple outbox messages atomically.
func (r *SQLRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return application.WithUnitOfWork(ctx, r.uow, func(ctx context.Context) error {
		for _, msg := range msgs {
			if err := r.Save(ctx, msg); err != nil {
				return fmt.Errorf("save outbox message %s: %w", msg.EventID, err)
			}
		}
		return nil
	})
}

// GetUnpublished retrieves messages due for publishing, oldest first.
func (r *SQLRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.exec(ctx).Query(ctx, r.q(selectColumns+`
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY id
		LIMIT ?`), r.conn.Driver().Time(r.now()), limit)
	if err != nil {
		return nil, err
	}
	return database.ScanAll(rows, scanMessage)
}

// MarkPublished marks a message as successfully published.
func (r *SQLRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.exec(ctx).Exec(ctx, r.q(`UPDATE outbox SET published_at = ?, next_retry_at = NULL WHERE id = ?`),
		r.conn.Driver().Time(r.now()), id)
	return err
}

// MarkFailed records a publish failure with error message.
func (r *SQLRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	_, err := r.exec(ctx).Exec(ctx, r.q(`
		UPDATE outbox
		SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ?
		WHERE id = ?`), errMsg, r.conn.Driver().Time(nextRetryAt), id)
	return err
}

// MarkDead marks a message as dead-lettered.
func (r *SQLRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.exec(ctx).Exec(ctx, r.q(`
		UPDATE outbox
		SET retry_count = retry_count + 1, dead_lettered_at = ?, dead_letter_reason = ?
		WHERE id = ?`), r.conn.Driver().Time(r.now()), reason, id)
	return err
}

// Pending counts messages waiting to be published.
func (r *SQLRepository) Pending(ctx context.Context) (int64, error) {
	var n int64
	err := r.exec(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE published_at IS NULL AND dead_lettered_at IS NULL`).Scan(&n)
	return n, err
}

// DeleteOld removes published messages older than the retention period.
func (r *SQLRepository) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := r.now().AddDate(0, 0, -olderThanDays)
	result, err := r.exec(ctx).Exec(ctx, r.q(`
		DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`),
		r.conn.Driver().Time(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanMessage(row database.Row) (*Message, error) {
	var (
		msg                              Message
		eventID                          string
		payload, metadata                []byte
		createdAt                        database.NullTime
		publishedAt, nextRetryAt, deadAt database.NullTime
		lastError, deadReason            sql.NullString
	)
	err := row.Scan(
		&msg.ID,
		&eventID,
		&msg.AggregateType,
		&msg.AggregateID,
		&msg.EventType,
		&msg.RoutingKey,
		&payload,
		&metadata,
		&createdAt,
		&publishedAt,
		&nextRetryAt,
		&msg.RetryCount,
		&lastError,
		&deadAt,
		&deadReason,
	)
	if err != nil {
		return nil, err
	}
	if err := msg.EventID.UnmarshalText([]byte(eventID)); err != nil {
		return nil, fmt.Errorf("outbox message %d: %w", msg.ID, err)
	}
	msg.Payload = payload
	msg.Metadata = metadata
	msg.CreatedAt = createdAt.Time
	msg.PublishedAt = publishedAt.Ptr()
	msg.NextRetryAt = nextRetryAt.Ptr()
	msg.DeadLetteredAt = deadAt.Ptr()
	if lastError.Valid {
		msg.LastError = &lastError.String
	}
	if deadReason.Valid {
		msg.DeadLetterReason = &deadReason.String
	}
	return &msg, nil
}
