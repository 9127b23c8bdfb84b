// Package eventbus publishes domain events relayed from the outbox to a
// message broker.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Envelope is one event ready for the broker.
type Envelope struct {
	EventID    string
	RoutingKey string
	TenantID   int64
	OccurredAt time.Time
	Body       []byte
}

// Publisher defines the interface for publishing events to a message broker.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// NoopPublisher drops events after logging them. It is used when no broker
// is configured.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a publisher that does nothing.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

// Publish logs the envelope.
func (p *NoopPublisher) Publish(ctx context.Context, env Envelope) error {
	p.logger.DebugContext(ctx, "noop publish",
		"routing_key", env.RoutingKey,
		"event_id", env.EventID,
		"size", len(env.Body),
	)
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error {
	return nil
}

// RecordingPublisher keeps published envelopes in memory.
type RecordingPublisher struct {
	mu        sync.Mutex
	envelopes []Envelope
	err       error
}

// NewRecordingPublisher creates a publisher that records envelopes. When err
// is non-nil every publish fails with it.
func NewRecordingPublisher(err error) *RecordingPublisher {
	return &RecordingPublisher{err: err}
}

// Publish records env or returns the configured error.
func (p *RecordingPublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.envelopes = append(p.envelopes, env)
	return nil
}

// Envelopes returns a copy of the recorded envelopes.
func (p *RecordingPublisher) Envelopes() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Envelope(nil), p.envelopes...)
}

// Close is a no-op.
func (p *RecordingPublisher) Close() error {
	return nil
}
