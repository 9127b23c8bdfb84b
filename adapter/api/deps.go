package api

import "github.com/vorluno/planilla/internal/app"

// DepsFromContainer collects the server dependencies from a wired
// container.
func DepsFromContainer(c *app.Container) Deps {
	deps := Deps{
		Services: Services{
			Auth:        c.Auth,
			Resolver:    c.Resolver,
			Invitations: c.Invitations,
			Memberships: c.Memberships,
			Audit:       c.Audit,
			Billing:     c.Billing,
			Gatekeeper:  c.Gatekeeper,
			Webhooks:    c.Webhooks,
			Employees:   c.Employees,
			Departments: c.Departments,
			Positions:   c.Positions,
			Receipts:    c.Receipts,
			Export:      c.Export,
		},
		Tokens:      c.Tokens,
		AuthLimiter: c.AuthLimiter,
		Metrics:     c.Metrics,
		Health:      c.Health,
		Gatherer:    c.Registry,
	}
	// A nil *stripe.Verifier must stay a nil interface.
	if c.Verifier != nil {
		deps.Webhook = c.Verifier
	}
	return deps
}
