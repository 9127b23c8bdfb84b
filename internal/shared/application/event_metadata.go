package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/vorluno/planilla/internal/shared/domain"
	"github.com/vorluno/planilla/pkg/observability"
)

// EventSink persists domain events for asynchronous publication. It is
// implemented by the transactional outbox and must be called with the
// unit-of-work context so events commit together with the state change.
type EventSink interface {
	Append(ctx context.Context, events ...domain.DomainEvent) error
}

type metadataSetter interface {
	SetMetadata(metadata domain.EventMetadata)
}

// NewEventMetadata builds event metadata from the request context.
func NewEventMetadata(ctx context.Context, tenantID int64, actorID uuid.UUID) domain.EventMetadata {
	return domain.EventMetadata{
		CorrelationID: observability.CorrelationIDFromContext(ctx),
		RequestID:     observability.RequestIDFromContext(ctx),
		TenantID:      tenantID,
		ActorID:       actorID,
	}
}

// ApplyEventMetadata sets metadata on all events that support it.
func ApplyEventMetadata(events []domain.DomainEvent, metadata domain.EventMetadata) {
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
}

// PublishAggregateEvents stamps and appends the aggregate's pending events,
// then clears them.
func PublishAggregateEvents(ctx context.Context, sink EventSink, agg domain.AggregateRoot, metadata domain.EventMetadata) error {
	events := agg.DomainEvents()
	if len(events) == 0 || sink == nil {
		return nil
	}
	for _, event := range events {
		if setter, ok := event.(metadataSetter); ok {
			setter.SetMetadata(metadata)
		}
	}
	if err := sink.Append(ctx, events...); err != nil {
		return err
	}
	agg.ClearDomainEvents()
	return nil
}
