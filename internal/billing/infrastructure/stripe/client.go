// Package stripe adapts the Stripe API to the billing application's
// Provider and verifies Stripe webhook deliveries.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	stripeapi "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"

	"github.com/vorluno/planilla/internal/billing/application"
)

// Client implements application.Provider with the Stripe API.
type Client struct {
	logger *slog.Logger
}

// NewClient configures the Stripe key and returns a provider.
func NewClient(apiKey string, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("stripe api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	stripeapi.Key = apiKey
	return &Client{logger: logger.With("component", "stripe")}, nil
}

// CreateCustomer creates a customer and returns its id.
func (c *Client) CreateCustomer(ctx context.Context, req application.CustomerRequest) (string, error) {
	params := &stripeapi.CustomerParams{
		Email:    stripeapi.String(req.Email),
		Name:     stripeapi.String(req.Name),
		Metadata: req.Metadata,
	}
	params.Context = ctx

	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	c.logger.InfoContext(ctx, "stripe customer created", "customer_id", cust.ID)
	return cust.ID, nil
}

// CreateCheckoutSession creates a subscription-mode checkout session. The
// metadata is set on the session and on the subscription it creates.
func (c *Client) CreateCheckoutSession(ctx context.Context, req application.CheckoutRequest) (string, error) {
	params := &stripeapi.CheckoutSessionParams{
		Customer:   stripeapi.String(req.CustomerID),
		Mode:       stripeapi.String(string(stripeapi.CheckoutSessionModeSubscription)),
		SuccessURL: stripeapi.String(req.SuccessURL),
		CancelURL:  stripeapi.String(req.CancelURL),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{Price: stripeapi.String(req.PriceID), Quantity: stripeapi.Int64(1)},
		},
		Metadata: req.Metadata,
		SubscriptionData: &stripeapi.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

// CreatePortalSession returns a customer portal URL.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripeapi.BillingPortalSessionParams{
		Customer:  stripeapi.String(customerID),
		ReturnURL: stripeapi.String(returnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return sess.URL, nil
}

// CancelAtPeriodEnd schedules the subscription to end with its period.
func (c *Client) CancelAtPeriodEnd(ctx context.Context, subscriptionID string, metadata map[string]string) error {
	params := &stripeapi.SubscriptionParams{
		CancelAtPeriodEnd: stripeapi.Bool(true),
		Metadata:          metadata,
	}
	params.Context = ctx

	if _, err := subscription.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

// ChangePrice replaces the price of the subscription's first item and
// prorates the difference.
func (c *Client) ChangePrice(ctx context.Context, subscriptionID, priceID string, metadata map[string]string) error {
	get := &stripeapi.SubscriptionParams{}
	get.Context = ctx
	sub, err := subscription.Get(subscriptionID, get)
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return fmt.Errorf("subscription %s has no items", subscriptionID)
	}

	params := &stripeapi.SubscriptionParams{
		Items: []*stripeapi.SubscriptionItemsParams{
			{ID: stripeapi.String(sub.Items.Data[0].ID), Price: stripeapi.String(priceID)},
		},
		ProrationBehavior: stripeapi.String("create_prorations"),
		Metadata:          metadata,
	}
	params.Context = ctx

	if _, err := subscription.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("change subscription price: %w", err)
	}
	return nil
}

var _ application.Provider = (*Client)(nil)
