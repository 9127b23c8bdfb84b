// Package persistence stores billing state on PostgreSQL or SQLite.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/vorluno/planilla/internal/billing/domain"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
)

const subscriptionColumns = `
	SELECT id, tenant_id, plan, status, trial_ends_at, next_billing_date,
	       stripe_customer_id, stripe_subscription_id, monthly_price_cents,
	       custom_max_employees, custom_max_users, canceled_at, created_at, updated_at
	FROM subscriptions`

// SubscriptionRepository implements domain.SubscriptionRepository.
type SubscriptionRepository struct {
	conn database.Connection
}

// NewSubscriptionRepository creates a subscription repository.
func NewSubscriptionRepository(conn database.Connection) *SubscriptionRepository {
	return &SubscriptionRepository{conn: conn}
}

// getDB returns the transaction from ctx, or the connection.
func (r *SubscriptionRepository) getDB(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

// Create inserts a subscription.
func (r *SubscriptionRepository) Create(ctx context.Context, s *domain.Subscription) error {
	d := r.conn.Driver()
	err := r.getDB(ctx).QueryRow(ctx, d.Rebind(`
		INSERT INTO subscriptions (
			tenant_id, plan, status, trial_ends_at, next_billing_date,
			stripe_customer_id, stripe_subscription_id, monthly_price_cents,
			custom_max_employees, custom_max_users, canceled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		s.TenantID, string(s.Plan), string(s.Status), d.NullTime(s.TrialEndsAt), d.NullTime(s.NextBillingDate),
		s.StripeCustomerID, s.StripeSubscriptionID, s.MonthlyPriceCents,
		s.CustomMaxEmployees, s.CustomMaxUsers, d.NullTime(s.CanceledAt), d.Time(s.CreatedAt), d.Time(s.UpdatedAt),
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// FindByTenant returns the tenant's subscription, or nil when it has none.
func (r *SubscriptionRepository) FindByTenant(ctx context.Context, tenantID int64) (*domain.Subscription, error) {
	return r.findOne(ctx, subscriptionColumns+` WHERE tenant_id = ?`, tenantID)
}

// FindByStripeSubscriptionID looks a subscription up by provider id.
func (r *SubscriptionRepository) FindByStripeSubscriptionID(ctx context.Context, id string) (*domain.Subscription, error) {
	if id == "" {
		return nil, nil
	}
	return r.findOne(ctx, subscriptionColumns+` WHERE stripe_subscription_id = ?`, id)
}

// FindByStripeCustomerID looks a subscription up by provider customer id.
func (r *SubscriptionRepository) FindByStripeCustomerID(ctx context.Context, id string) (*domain.Subscription, error) {
	if id == "" {
		return nil, nil
	}
	return r.findOne(ctx, subscriptionColumns+` WHERE stripe_customer_id = ? ORDER BY id LIMIT 1`, id)
}

func (r *SubscriptionRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Subscription, error) {
	s, err := scanSubscription(r.getDB(ctx).QueryRow(ctx, r.conn.Driver().Rebind(query), args...))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return s, nil
}

// Update writes the plan, status and limit columns. Provider ids are only
// written when set on s, so a copy read before SetStripeCustomer cannot
// clear the stored customer.
func (r *SubscriptionRepository) Update(ctx context.Context, s *domain.Subscription) error {
	d := r.conn.Driver()
	res, err := r.getDB(ctx).Exec(ctx, d.Rebind(`
		UPDATE subscriptions SET
			plan = ?, status = ?, trial_ends_at = ?, next_billing_date = ?,
			stripe_customer_id = COALESCE(NULLIF(?, ''), stripe_customer_id),
			stripe_subscription_id = COALESCE(NULLIF(?, ''), stripe_subscription_id),
			monthly_price_cents = ?,
			custom_max_employees = ?, custom_max_users = ?, canceled_at = ?, updated_at = ?
		WHERE tenant_id = ?`),
		string(s.Plan), string(s.Status), d.NullTime(s.TrialEndsAt), d.NullTime(s.NextBillingDate),
		s.StripeCustomerID, s.StripeSubscriptionID, s.MonthlyPriceCents,
		s.CustomMaxEmployees, s.CustomMaxUsers, d.NullTime(s.CanceledAt), d.Time(s.UpdatedAt),
		s.TenantID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// SetStripeCustomer stores the provider customer id.
func (r *SubscriptionRepository) SetStripeCustomer(ctx context.Context, tenantID int64, customerID string, at time.Time) error {
	d := r.conn.Driver()
	res, err := r.getDB(ctx).Exec(ctx, d.Rebind(`
		UPDATE subscriptions SET stripe_customer_id = ?, updated_at = ? WHERE tenant_id = ?`),
		customerID, d.Time(at), tenantID)
	if err != nil {
		return fmt.Errorf("store billing customer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func scanSubscription(row database.Row) (*domain.Subscription, error) {
	var (
		s                                  domain.Subscription
		plan, status                       string
		trialEnds, nextBilling, canceledAt database.NullTime
		createdAt, updatedAt               database.NullTime
	)
	err := row.Scan(&s.ID, &s.TenantID, &plan, &status, &trialEnds, &nextBilling,
		&s.StripeCustomerID, &s.StripeSubscriptionID, &s.MonthlyPriceCents,
		&s.CustomMaxEmployees, &s.CustomMaxUsers, &canceledAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.Plan = domain.Plan(plan)
	s.Status = domain.SubscriptionStatus(status)
	s.TrialEndsAt = trialEnds.Ptr()
	s.NextBillingDate = nextBilling.Ptr()
	s.CanceledAt = canceledAt.Ptr()
	s.CreatedAt = createdAt.Time
	s.UpdatedAt = updatedAt.Time
	return &s, nil
}

var _ domain.SubscriptionRepository = (*SubscriptionRepository)(nil)
