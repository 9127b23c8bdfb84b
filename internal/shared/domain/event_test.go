package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/vorluno/planilla/internal/shared/domain"
)

type testAggregate struct {
	domain.BaseAggregateRoot
}

type testEvent struct {
	domain.BaseEvent
	Data string `json:"data"`
}

func TestNewBaseEvent(t *testing.T) {
	before := time.Now().UTC()
	event := domain.NewBaseEvent("42", "Tenant", "tenancy.tenant.registered")
	after := time.Now().UTC()

	assert.NotEqual(t, uuid.Nil, event.EventID())
	assert.Equal(t, "42", event.AggregateID())
	assert.Equal(t, "Tenant", event.AggregateType())
	assert.Equal(t, "tenancy.tenant.registered", event.RoutingKey())
	assert.False(t, event.OccurredAt().Before(before))
	assert.False(t, event.OccurredAt().After(after))
}

func TestBaseEvent_SetMetadata(t *testing.T) {
	actor := uuid.New()
	event := testEvent{BaseEvent: domain.NewBaseEvent("7", "Invitation", "tenancy.invitation.issued")}
	event.SetMetadata(domain.EventMetadata{CorrelationID: "corr", TenantID: 3, ActorID: actor})

	meta := event.Metadata()
	assert.Equal(t, "corr", meta.CorrelationID)
	assert.Equal(t, int64(3), meta.TenantID)
	assert.Equal(t, actor, meta.ActorID)
}

func TestBaseAggregateRoot_RecordsEvents(t *testing.T) {
	agg := &testAggregate{}
	assert.Empty(t, agg.DomainEvents())

	agg.AddDomainEvent(testEvent{BaseEvent: domain.NewBaseEvent("1", "Test", "test.created")})
	agg.AddDomainEvent(testEvent{BaseEvent: domain.NewBaseEvent("1", "Test", "test.updated")})
	assert.Len(t, agg.DomainEvents(), 2)

	agg.ClearDomainEvents()
	assert.Empty(t, agg.DomainEvents())
}
