package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vorluno/planilla/internal/billing/domain"
	sharedapp "github.com/vorluno/planilla/internal/shared/application"
	shared "github.com/vorluno/planilla/internal/shared/domain"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
	"github.com/vorluno/planilla/pkg/observability"
)

// WebhookResult describes how a provider event was handled.
type WebhookResult struct {
	Duplicate bool
	Ignored   bool
	TenantID  *int64
}

// WebhookProcessor applies verified provider events to local subscription
// state exactly once per event id.
type WebhookProcessor struct {
	uow           sharedapp.UnitOfWork
	events        domain.WebhookEventRepository
	subscriptions domain.SubscriptionRepository
	tenants       TenantReader
	prices        PriceTable
	logger        *slog.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

// NewWebhookProcessor creates a webhook processor.
func NewWebhookProcessor(
	uow sharedapp.UnitOfWork,
	events domain.WebhookEventRepository,
	subscriptions domain.SubscriptionRepository,
	tenants TenantReader,
	prices PriceTable,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *WebhookProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookProcessor{
		uow:           uow,
		events:        events,
		subscriptions: subscriptions,
		tenants:       tenants,
		prices:        prices,
		logger:        logger.With("component", "webhook"),
		metrics:       metrics,
		now:           time.Now,
	}
}

// Process records ev and applies it in one transaction. A redelivered event
// that was already processed is reported as a duplicate with no side
// effects. A failed event is recorded as Failed and is retried when the
// provider delivers it again.
func (p *WebhookProcessor) Process(ctx context.Context, ev domain.ProviderEvent) (WebhookResult, error) {
	if ev.ID == "" || ev.Type == "" {
		return WebhookResult{}, shared.NewValidationError("event", "event id and type are required")
	}
	logger := observability.LogOperation(p.logger, "process_webhook", "event_id", ev.ID, "event_type", ev.Type)
	now := p.now().UTC()

	var result WebhookResult
	err := sharedapp.WithUnitOfWork(ctx, p.uow, func(ctx context.Context) error {
		result = WebhookResult{}
		inserted, err := p.events.Insert(ctx, &domain.WebhookEvent{
			ExternalEventID: ev.ID,
			Type:            ev.Type,
			ReceivedAt:      now,
			Payload:         ev.Payload,
		})
		if err != nil {
			return err
		}
		if !inserted {
			retried, err := p.events.Retry(ctx, ev.ID)
			if err != nil {
				return err
			}
			if !retried {
				result.Duplicate = true
				return nil
			}
			logger.InfoContext(ctx, "retrying failed webhook event")
		}

		tenantID, handled, err := p.apply(ctx, ev, now)
		if err != nil {
			return err
		}
		result.TenantID = tenantID
		result.Ignored = !handled
		return p.events.MarkProcessed(ctx, ev.ID, tenantID, now)
	})
	if err != nil {
		p.metrics.WebhookEvent(ev.Type, "failed")
		logger.ErrorContext(ctx, "webhook event failed", observability.ErrorKey, err)
		p.recordFailure(ctx, ev, err, now)
		return WebhookResult{}, err
	}

	switch {
	case result.Duplicate:
		p.metrics.WebhookEvent(ev.Type, "duplicate")
		logger.InfoContext(ctx, "duplicate webhook event ignored")
	case result.Ignored:
		p.metrics.WebhookEvent(ev.Type, "ignored")
		logger.DebugContext(ctx, "webhook event type not handled")
	default:
		p.metrics.WebhookEvent(ev.Type, "processed")
		logger.InfoContext(ctx, "webhook event processed", observability.TenantIDKey, *result.TenantID)
	}
	return result, nil
}

// recordFailure writes the Failed row outside the rolled back transaction.
func (p *WebhookProcessor) recordFailure(ctx context.Context, ev domain.ProviderEvent, cause error, now time.Time) {
	err := sharedapp.WithUnitOfWork(ctx, p.uow, func(ctx context.Context) error {
		inserted, err := p.events.Insert(ctx, &domain.WebhookEvent{
			ExternalEventID: ev.ID,
			Type:            ev.Type,
			ReceivedAt:      now,
			Payload:         ev.Payload,
		})
		if err != nil {
			return err
		}
		if !inserted {
			if _, err := p.events.Retry(ctx, ev.ID); err != nil {
				return err
			}
		}
		return p.events.MarkFailed(ctx, ev.ID, cause.Error(), now)
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "could not record webhook failure", "event_id", ev.ID, observability.ErrorKey, err)
	}
}

// apply mutates the subscription the event refers to. It reports false for
// event types that carry no state change.
func (p *WebhookProcessor) apply(ctx context.Context, ev domain.ProviderEvent, now time.Time) (*int64, bool, error) {
	var (
		sub *domain.Subscription
		err error
	)

	switch ev.Type {
	case domain.EventCheckoutCompleted:
		snap := ev.Checkout
		if snap == nil {
			return nil, false, fmt.Errorf("%s: missing checkout session", ev.Type)
		}
		sub, err = p.resolve(ctx, snap.Metadata, snap.SubscriptionID, snap.CustomerID, now)
		if err != nil {
			return nil, false, err
		}
		if snap.CustomerID != "" {
			sub.StripeCustomerID = snap.CustomerID
		}
		if snap.SubscriptionID != "" {
			sub.StripeSubscriptionID = snap.SubscriptionID
		}
		if plan, ok := paidPlan(snap.Metadata[domain.MetadataPlan]); ok {
			sub.Plan = plan
		}
		sub.Status = domain.StatusActive
		sub.TrialEndsAt = nil
		sub.CanceledAt = nil

	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		snap := ev.Subscription
		if snap == nil {
			return nil, false, fmt.Errorf("%s: missing subscription", ev.Type)
		}
		sub, err = p.resolve(ctx, snap.Metadata, snap.ID, snap.CustomerID, now)
		if err != nil {
			return nil, false, err
		}
		if snap.ID != "" {
			sub.StripeSubscriptionID = snap.ID
		}
		if snap.CustomerID != "" {
			sub.StripeCustomerID = snap.CustomerID
		}
		if ev.Type == domain.EventSubscriptionDeleted {
			sub.Status = domain.StatusCanceled
			sub.NextBillingDate = nil
			sub.CanceledAt = snap.CanceledAt
			if sub.CanceledAt == nil {
				at := now
				sub.CanceledAt = &at
			}
			break
		}
		if plan, ok := p.prices.PlanFor(snap.PriceID); ok {
			sub.Plan = plan
		} else if plan, ok := paidPlan(snap.Metadata[domain.MetadataPlan]); ok {
			sub.Plan = plan
		}
		sub.Status = domain.StatusFromProvider(snap.Status, snap.CancelAtPeriodEnd)
		sub.TrialEndsAt = snap.TrialEnd
		sub.NextBillingDate = snap.CurrentPeriodEnd
		sub.CanceledAt = snap.CanceledAt

	case domain.EventInvoicePaymentFailed, domain.EventInvoicePaid:
		snap := ev.Invoice
		if snap == nil {
			return nil, false, fmt.Errorf("%s: missing invoice", ev.Type)
		}
		sub, err = p.resolve(ctx, snap.Metadata, snap.SubscriptionID, snap.CustomerID, now)
		if err != nil {
			return nil, false, err
		}
		if ev.Type == domain.EventInvoicePaymentFailed {
			sub.Status = domain.StatusPastDue
		} else if sub.Status == domain.StatusPastDue {
			sub.Status = domain.StatusActive
		}

	default:
		return nil, false, nil
	}

	sub.MonthlyPriceCents = sub.Plan.Limits().MonthlyPriceCents
	sub.UpdatedAt = now
	if err := p.subscriptions.Update(ctx, sub); err != nil {
		return nil, false, err
	}
	tenantID := sub.TenantID
	return &tenantID, true, nil
}

// resolve finds the subscription an event refers to: by tenant metadata
// first, then by provider subscription id, then by customer id. A known
// tenant without a subscription row gets a Free one.
func (p *WebhookProcessor) resolve(ctx context.Context, md map[string]string, subscriptionID, customerID string, now time.Time) (*domain.Subscription, error) {
	if tenantID, ok := domain.TenantIDFromMetadata(md); ok {
		if _, err := p.tenants.FindByID(ctx, tenantID); err != nil {
			if errors.Is(err, tenancy.ErrTenantNotFound) {
				return nil, fmt.Errorf("tenant %d: %w", tenantID, domain.ErrWebhookTenantUnknown)
			}
			return nil, err
		}
		sub, err := p.subscriptions.FindByTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			return sub, nil
		}
		sub = &domain.Subscription{TenantID: tenantID, Plan: domain.PlanFree, Status: domain.StatusActive, CreatedAt: now, UpdatedAt: now}
		if err := p.subscriptions.Create(ctx, sub); err != nil {
			return nil, err
		}
		return sub, nil
	}

	if subscriptionID != "" {
		sub, err := p.subscriptions.FindByStripeSubscriptionID(ctx, subscriptionID)
		if err != nil || sub != nil {
			return sub, err
		}
	}
	if customerID != "" {
		sub, err := p.subscriptions.FindByStripeCustomerID(ctx, customerID)
		if err != nil || sub != nil {
			return sub, err
		}
	}
	return nil, domain.ErrWebhookTenantUnknown
}

func paidPlan(raw string) (domain.Plan, bool) {
	plan, err := domain.ParsePlan(raw)
	if err != nil || plan == domain.PlanFree {
		return "", false
	}
	return plan, true
}
