package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors recorded by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequests         *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	EntitlementDecisions *prometheus.CounterVec
	WebhookEvents        *prometheus.CounterVec
	OutboxMessages       *prometheus.CounterVec
	BillingProviderCalls *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planilla",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "planilla",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		EntitlementDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planilla",
			Name:      "entitlement_decisions_total",
			Help:      "Entitlement gatekeeper decisions by check and outcome.",
		}, []string{"check", "outcome"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planilla",
			Name:      "billing_webhook_events_total",
			Help:      "Billing provider webhook deliveries by type and result.",
		}, []string{"type", "result"}),
		OutboxMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planilla",
			Name:      "outbox_messages_total",
			Help:      "Outbox messages by publish result.",
		}, []string{"result"}),
		BillingProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planilla",
			Name:      "billing_provider_calls_total",
			Help:      "Outbound billing provider calls by operation and result.",
		}, []string{"operation", "result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.HTTPRequests,
			m.HTTPRequestDuration,
			m.EntitlementDecisions,
			m.WebhookEvents,
			m.OutboxMessages,
			m.BillingProviderCalls,
		)
	}
	return m
}

// EntitlementDecision records a gatekeeper outcome.
func (m *Metrics) EntitlementDecision(check string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.EntitlementDecisions.WithLabelValues(check, outcome).Inc()
}

// WebhookEvent records a webhook delivery outcome.
func (m *Metrics) WebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(eventType, result).Inc()
}

// OutboxMessage records an outbox publish outcome.
func (m *Metrics) OutboxMessage(result string) {
	if m == nil {
		return
	}
	m.OutboxMessages.WithLabelValues(result).Inc()
}

// BillingProviderCall records an outbound billing call outcome.
func (m *Metrics) BillingProviderCall(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BillingProviderCalls.WithLabelValues(operation, result).Inc()
}

// HTTPRequest records a served request by route pattern.
func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
