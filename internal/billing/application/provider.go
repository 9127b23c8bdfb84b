package application

import (
	"context"

	"github.com/vorluno/planilla/internal/billing/domain"
)

// CustomerRequest describes a billing customer to create.
type CustomerRequest struct {
	Email    string
	Name     string
	Metadata map[string]string
}

// CheckoutRequest describes a subscription-mode checkout session.
type CheckoutRequest struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	// Metadata is attached to both the session and the subscription it
	// creates.
	Metadata map[string]string
}

// Provider is the outbound billing provider.
type Provider interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string, metadata map[string]string) error
	// ChangePrice swaps the subscription's first item to priceID with
	// prorations.
	ChangePrice(ctx context.Context, subscriptionID, priceID string, metadata map[string]string) error
}

// PriceTable maps paid plans to provider price ids.
type PriceTable map[domain.Plan]string

// PriceFor returns the price id of plan.
func (t PriceTable) PriceFor(plan domain.Plan) (string, bool) {
	id, ok := t[plan]
	return id, ok && id != ""
}

// PlanFor returns the plan sold under priceID.
func (t PriceTable) PlanFor(priceID string) (domain.Plan, bool) {
	if priceID == "" {
		return "", false
	}
	for plan, id := range t {
		if id == priceID {
			return plan, true
		}
	}
	return "", false
}
