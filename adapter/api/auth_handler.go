package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	billing "github.com/vorluno/planilla/internal/billing/domain"
	identityapp "github.com/vorluno/planilla/internal/identity/application"
	tenancyapp "github.com/vorluno/planilla/internal/tenancy/application"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Auth.Register(r.Context(), identityapp.RegisterInput{
		Email:        req.Email,
		FullName:     req.FullName,
		Password:     req.Password,
		CompanyName:  req.CompanyName,
		Subdomain:    req.Subdomain,
		RUC:          req.RUC,
		DV:           req.DV,
		Address:      req.Address,
		Phone:        req.Phone,
		CompanyEmail: req.CompanyEmail,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAuthResponse(res))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Auth.Me(r.Context(), tenantContext(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Auth.Refresh(r.Context(), tenantContext(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthResponse(res))
}

func (s *Server) handleValidateInvite(w http.ResponseWriter, r *http.Request) {
	preview, err := s.deps.Invitations.Validate(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

type acceptInviteResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Plan      billing.Plan `json:"plan"`
	TenantID  int64        `json:"tenant_id"`
	UserID    uuid.UUID    `json:"user_id"`
	Email     string       `json:"email"`
	Role      tenancy.Role `json:"role"`
}

func (s *Server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req acceptInviteRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Invitations.Accept(r.Context(), req.Token, tenancyapp.AcceptInput{
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acceptInviteResponse{
		Token:     res.Session.Token,
		ExpiresAt: res.Session.ExpiresAt,
		Plan:      res.Session.Plan,
		TenantID:  res.TenantID,
		UserID:    res.UserID,
		Email:     res.Email,
		Role:      res.Role,
	})
}
