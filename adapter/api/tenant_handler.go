package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	shared "github.com/vorluno/planilla/internal/shared/domain"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
)

type currentTenantResponse struct {
	Tenant       *tenantResponse       `json:"tenant"`
	Subscription *subscriptionResponse `json:"subscription,omitempty"`
	Role         tenancy.Role          `json:"role"`
}

func (s *Server) handleCurrentTenant(w http.ResponseWriter, r *http.Request) {
	current, err := s.deps.Resolver.CurrentTenant(r.Context(), tenantContext(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, currentTenantResponse{
		Tenant:       newTenantResponse(current.Tenant),
		Subscription: newSubscriptionResponse(current.Subscription),
		Role:         current.Role,
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.deps.Billing.Usage(r.Context(), tenantContext(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (s *Server) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	decisions, err := s.deps.Gatekeeper.Overview(r.Context(), tenantContext(r).TenantID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decisions)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.deps.Memberships.List(r.Context(), tenantContext(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, newMemberResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req roleRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	role, err := parseRole(req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.deps.Memberships.ChangeRole(r.Context(), tenantContext(r), id, role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMemberResponse(*m))
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Memberships.Remove(r.Context(), tenantContext(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	role, err := parseRole(req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	inv, err := s.deps.Invitations.Issue(r.Context(), tenantContext(r), req.Email, role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := newInvitationResponse(*inv, s.now())
	out.Token = inv.Token
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	invitations, err := s.deps.Invitations.List(r.Context(), tenantContext(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	now := s.now()
	out := make([]invitationResponse, 0, len(invitations))
	for _, inv := range invitations {
		out = append(out, newInvitationResponse(inv, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Invitations.Revoke(r.Context(), tenantContext(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.deps.Audit.List(r.Context(), tenantContext(r), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuditPageResponse(page))
}

func auditFilter(r *http.Request) (tenancy.AuditFilter, error) {
	q := r.URL.Query()
	verr := &shared.ValidationError{}
	filter := tenancy.AuditFilter{
		Page:       queryInt(q.Get("page")),
		PageSize:   queryInt(q.Get("page_size")),
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
	}
	if raw := q.Get("actor_user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			verr.Add("actor_user_id", "must be a UUID")
		} else {
			filter.ActorUserID = uuid.NullUUID{UUID: id, Valid: true}
		}
	}
	filter.From = queryTime(verr, q.Get("from"), "from")
	filter.To = queryTime(verr, q.Get("to"), "to")
	return filter, verr.OrNil()
}

func queryInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func queryTime(verr *shared.ValidationError, raw, field string) *time.Time {
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return &t
	}
	verr.Add(field, "must be an RFC 3339 timestamp or a YYYY-MM-DD date")
	return nil
}

func parseRole(raw string) (tenancy.Role, error) {
	role, err := tenancy.ParseRole(raw)
	if err != nil {
		return 0, shared.NewValidationError("role", "must be one of Owner, Admin, Manager, Accountant, Employee")
	}
	return role, nil
}
