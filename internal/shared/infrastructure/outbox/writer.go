package outbox

import (
	"context"
	"fmt"

	"github.com/vorluno/planilla/internal/shared/domain"
)

// Writer appends domain events to the outbox in the caller's transaction so
// that events are only published for committed state changes.
type Writer struct {
	repo Repository
}

// NewWriter creates an event sink backed by repo.
func NewWriter(repo Repository) *Writer {
	return &Writer{repo: repo}
}

// Append implements application.EventSink.
func (w *Writer) Append(ctx context.Context, events ...domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]*Message, 0, len(events))
	for _, event := range events {
		msg, err := NewMessage(event)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", event.RoutingKey(), err)
		}
		msgs = append(msgs, msg)
	}
	return w.repo.SaveBatch(ctx, msgs)
}
