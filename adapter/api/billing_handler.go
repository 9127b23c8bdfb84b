package api

import (
	"errors"
	"io"
	"net/http"

	billing "github.com/vorluno/planilla/internal/billing/domain"
	shared "github.com/vorluno/planilla/internal/shared/domain"
)

type urlResponse struct {
	URL string `json:"url"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Billing.Status(r.Context(), tenantContext(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	plan, err := s.decodePlan(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	url, err := s.deps.Billing.CreateCheckoutSession(r.Context(), tenantContext(r), plan)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

func (s *Server) handlePortal(w http.ResponseWriter, r *http.Request) {
	url, err := s.deps.Billing.CreatePortalSession(r.Context(), tenantContext(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

// handleCancel and handleChangePlan only ask the provider; the local
// subscription changes when its webhook arrives.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Billing.Cancel(r.Context(), tenantContext(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "cancel_requested"})
}

func (s *Server) handleChangePlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.decodePlan(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Billing.ChangePlan(r.Context(), tenantContext(r), plan); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "plan_change_requested"})
}

func (s *Server) decodePlan(w http.ResponseWriter, r *http.Request) (billing.Plan, error) {
	var req planRequest
	if err := s.decode(w, r, &req); err != nil {
		return "", err
	}
	plan, err := billing.ParsePlan(req.Plan)
	if err != nil {
		return "", shared.NewValidationError("plan", "must be one of Free, Starter, Professional, Enterprise")
	}
	return plan, nil
}

type webhookResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
	Ignored   bool `json:"ignored,omitempty"`
}

// handleStripeWebhook authenticates a delivery and applies it. Deliveries
// that cannot be tied to a tenant are acknowledged so the provider stops
// retrying them; other failures return 500 so it retries.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if s.deps.Webhook == nil {
		s.fail(w, r, billing.ErrBillingDisabled)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, &APIError{Code: "body_too_large", Message: "request body is too large"})
		return
	}
	ev, err := s.deps.Webhook.Verify(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.logger.WarnContext(r.Context(), "webhook signature rejected", "error", err)
		writeJSON(w, http.StatusBadRequest, &APIError{Code: "invalid_signature", Message: "invalid webhook signature"})
		return
	}

	res, err := s.deps.Webhooks.Process(r.Context(), ev)
	switch {
	case errors.Is(err, billing.ErrWebhookTenantUnknown):
		s.logger.WarnContext(r.Context(), "webhook for unknown tenant acknowledged", "event_id", ev.ID, "type", ev.Type)
		writeJSON(w, http.StatusOK, webhookResponse{Received: true, Ignored: true})
	case err != nil:
		s.logger.ErrorContext(r.Context(), "webhook processing failed", "event_id", ev.ID, "type", ev.Type, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrInternalServer)
	default:
		writeJSON(w, http.StatusOK, webhookResponse{Received: true, Duplicate: res.Duplicate, Ignored: res.Ignored})
	}
}
