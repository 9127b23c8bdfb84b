package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	billing "github.com/vorluno/planilla/internal/billing/domain"
	identityapp "github.com/vorluno/planilla/internal/identity/application"
	payroll "github.com/vorluno/planilla/internal/payroll/domain"
	shared "github.com/vorluno/planilla/internal/shared/domain"
	tenancy "github.com/vorluno/planilla/internal/tenancy/domain"
)

const dateLayout = "2006-01-02"

// Responses

type tenantResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	RUC       string    `json:"ruc"`
	DV        string    `json:"dv"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func newTenantResponse(t *tenancy.Tenant) *tenantResponse {
	if t == nil {
		return nil
	}
	return &tenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		Subdomain: t.Subdomain,
		RUC:       t.RUC,
		DV:        t.DV,
		Address:   t.Address,
		Phone:     t.Phone,
		Email:     t.Email,
		IsActive:  t.IsActive,
		CreatedAt: t.CreatedAt,
	}
}

type subscriptionResponse struct {
	Plan              billing.Plan               `json:"plan"`
	Status            billing.SubscriptionStatus `json:"status"`
	TrialEndsAt       *time.Time                 `json:"trial_ends_at,omitempty"`
	NextBillingDate   *time.Time                 `json:"next_billing_date,omitempty"`
	MonthlyPriceCents int64                      `json:"monthly_price_cents"`
	MaxEmployees      int                        `json:"max_employees"`
	MaxUsers          int                        `json:"max_users"`
}

func newSubscriptionResponse(s *billing.Subscription) *subscriptionResponse {
	if s == nil {
		return nil
	}
	return &subscriptionResponse{
		Plan:              s.Plan,
		Status:            s.Status,
		TrialEndsAt:       s.TrialEndsAt,
		NextBillingDate:   s.NextBillingDate,
		MonthlyPriceCents: s.MonthlyPriceCents,
		MaxEmployees:      s.EffectiveMaxEmployees(),
		MaxUsers:          s.EffectiveMaxUsers(),
	}
}

type authResponse struct {
	Token        string                `json:"token,omitempty"`
	ExpiresAt    *time.Time            `json:"expires_at,omitempty"`
	User         identityapp.UserView  `json:"user"`
	Tenant       *tenantResponse       `json:"tenant"`
	Subscription *subscriptionResponse `json:"subscription,omitempty"`
	Role         tenancy.Role          `json:"role"`
}

func newAuthResponse(res identityapp.AuthResult) authResponse {
	out := authResponse{
		Token:        res.Token,
		User:         res.User,
		Tenant:       newTenantResponse(res.Tenant),
		Subscription: newSubscriptionResponse(res.Subscription),
		Role:         res.Role,
	}
	if !res.ExpiresAt.IsZero() {
		out.ExpiresAt = &res.ExpiresAt
	}
	return out
}

type memberResponse struct {
	ID          int64        `json:"id"`
	UserID      uuid.UUID    `json:"user_id"`
	Email       string       `json:"email"`
	FullName    string       `json:"full_name"`
	Role        tenancy.Role `json:"role"`
	IsActive    bool         `json:"is_active"`
	JoinedAt    time.Time    `json:"joined_at"`
	LastLoginAt *time.Time   `json:"last_login_at,omitempty"`
}

func newMemberResponse(m tenancy.Membership) memberResponse {
	return memberResponse{
		ID:          m.ID,
		UserID:      m.UserID,
		Email:       m.Email,
		FullName:    m.FullName,
		Role:        m.Role,
		IsActive:    m.IsActive,
		JoinedAt:    m.JoinedAt,
		LastLoginAt: m.LastLoginAt,
	}
}

type invitationResponse struct {
	ID        int64                   `json:"id"`
	Email     string                  `json:"email"`
	Role      tenancy.Role            `json:"role"`
	State     tenancy.InvitationState `json:"state"`
	ExpiresAt time.Time               `json:"expires_at"`
	CreatedAt time.Time               `json:"created_at"`
	// Token is only returned when the invitation is issued.
	Token string `json:"token,omitempty"`
}

func newInvitationResponse(inv tenancy.Invitation, now time.Time) invitationResponse {
	return invitationResponse{
		ID:        inv.ID,
		Email:     inv.Email,
		Role:      inv.Role,
		State:     inv.State(now),
		ExpiresAt: inv.ExpiresAt,
		CreatedAt: inv.CreatedAt,
	}
}

type auditEntryResponse struct {
	ID          int64      `json:"id"`
	ActorUserID *uuid.UUID `json:"actor_user_id,omitempty"`
	ActorEmail  string     `json:"actor_email,omitempty"`
	Action      string     `json:"action"`
	EntityType  string     `json:"entity_type"`
	EntityID    string     `json:"entity_id,omitempty"`
	Details     string     `json:"details,omitempty"`
	IPAddress   string     `json:"ip_address,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type auditPageResponse struct {
	Items    []auditEntryResponse `json:"items"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

func newAuditPageResponse(page tenancy.AuditPage) auditPageResponse {
	items := make([]auditEntryResponse, 0, len(page.Items))
	for _, e := range page.Items {
		item := auditEntryResponse{
			ID:         e.ID,
			ActorEmail: e.ActorEmail,
			Action:     e.Action,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Details:    e.Details,
			IPAddress:  e.IPAddress,
			CreatedAt:  e.CreatedAt,
		}
		if e.ActorUserID.Valid {
			id := e.ActorUserID.UUID
			item.ActorUserID = &id
		}
		items = append(items, item)
	}
	return auditPageResponse{Items: items, Total: page.Total, Page: page.Page, PageSize: page.PageSize}
}

type employeeResponse struct {
	ID              int64                `json:"id"`
	FirstName       string               `json:"first_name"`
	LastName        string               `json:"last_name"`
	FullName        string               `json:"full_name"`
	NationalID      string               `json:"national_id"`
	BaseSalaryCents int64                `json:"base_salary_cents"`
	HireDate        string               `json:"hire_date"`
	DepartmentID    *int64               `json:"department_id,omitempty"`
	PositionID      *int64               `json:"position_id,omitempty"`
	PayFrequency    payroll.PayFrequency `json:"pay_frequency"`
	IsActive        bool                 `json:"is_active"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func newEmployeeResponse(e *payroll.Employee) employeeResponse {
	return employeeResponse{
		ID:              e.ID,
		FirstName:       e.FirstName,
		LastName:        e.LastName,
		FullName:        e.FullName(),
		NationalID:      e.NationalID,
		BaseSalaryCents: e.BaseSalaryCents,
		HireDate:        e.HireDate.Format(dateLayout),
		DepartmentID:    e.DepartmentID,
		PositionID:      e.PositionID,
		PayFrequency:    e.PayFrequency,
		IsActive:        e.IsActive,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

type departmentResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newDepartmentResponse(d *payroll.Department) departmentResponse {
	return departmentResponse{
		ID:          d.ID,
		Name:        d.Name,
		Code:        d.Code,
		Description: d.Description,
		IsActive:    d.IsActive,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type positionResponse struct {
	ID             int64             `json:"id"`
	DepartmentID   int64             `json:"department_id"`
	Name           string            `json:"name"`
	Code           string            `json:"code"`
	MinSalaryCents int64             `json:"min_salary_cents"`
	MaxSalaryCents int64             `json:"max_salary_cents"`
	RiskLevel      payroll.RiskLevel `json:"risk_level"`
	IsActive       bool              `json:"is_active"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func newPositionResponse(p *payroll.Position) positionResponse {
	return positionResponse{
		ID:             p.ID,
		DepartmentID:   p.DepartmentID,
		Name:           p.Name,
		Code:           p.Code,
		MinSalaryCents: p.MinSalaryCents,
		MaxSalaryCents: p.MaxSalaryCents,
		RiskLevel:      p.RiskLevel,
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

type receiptResponse struct {
	ID              int64     `json:"id"`
	EmployeeID      int64     `json:"employee_id"`
	PeriodStart     string    `json:"period_start"`
	PeriodEnd       string    `json:"period_end"`
	GrossCents      int64     `json:"gross_cents"`
	DeductionsCents int64     `json:"deductions_cents"`
	NetCents        int64     `json:"net_cents"`
	GeneratedAt     time.Time `json:"generated_at"`
}

func newReceiptResponse(rc *payroll.PayrollReceipt) receiptResponse {
	return receiptResponse{
		ID:              rc.ID,
		EmployeeID:      rc.EmployeeID,
		PeriodStart:     rc.PeriodStart.Format(dateLayout),
		PeriodEnd:       rc.PeriodEnd.Format(dateLayout),
		GrossCents:      rc.GrossCents,
		DeductionsCents: rc.DeductionsCents,
		NetCents:        rc.NetCents,
		GeneratedAt:     rc.GeneratedAt,
	}
}

// Requests

type registerRequest struct {
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	Password     string `json:"password"`
	CompanyName  string `json:"company_name"`
	Subdomain    string `json:"subdomain"`
	RUC          string `json:"ruc"`
	DV           string `json:"dv"`
	Address      string `json:"address"`
	Phone        string `json:"phone"`
	CompanyEmail string `json:"company_email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type acceptInviteRequest struct {
	Token    string `json:"token"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type planRequest struct {
	Plan string `json:"plan"`
}

type employeeRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	NationalID      string `json:"national_id"`
	BaseSalaryCents int64  `json:"base_salary_cents"`
	HireDate        string `json:"hire_date"`
	DepartmentID    *int64 `json:"department_id"`
	PositionID      *int64 `json:"position_id"`
	PayFrequency    string `json:"pay_frequency"`
}

func (req employeeRequest) input() (payroll.EmployeeInput, error) {
	in := payroll.EmployeeInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		NationalID:      req.NationalID,
		BaseSalaryCents: req.BaseSalaryCents,
		DepartmentID:    req.DepartmentID,
		PositionID:      req.PositionID,
		PayFrequency:    payroll.PayFrequency(req.PayFrequency),
	}
	if req.HireDate == "" {
		return in, nil
	}
	hired, err := time.Parse(dateLayout, req.HireDate)
	if err != nil {
		return in, shared.NewValidationError("hire_date", "must be a date formatted as YYYY-MM-DD")
	}
	in.HireDate = hired
	return in, nil
}

type departmentRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (req departmentRequest) input() payroll.DepartmentInput {
	return payroll.DepartmentInput{Name: req.Name, Code: req.Code, Description: req.Description}
}

type positionRequest struct {
	DepartmentID   int64  `json:"department_id"`
	Name           string `json:"name"`
	Code           string `json:"code"`
	MinSalaryCents int64  `json:"min_salary_cents"`
	MaxSalaryCents int64  `json:"max_salary_cents"`
	RiskLevel      string `json:"risk_level"`
}

func (req positionRequest) input() payroll.PositionInput {
	return payroll.PositionInput{
		DepartmentID:   req.DepartmentID,
		Name:           req.Name,
		Code:           req.Code,
		MinSalaryCents: req.MinSalaryCents,
		MaxSalaryCents: req.MaxSalaryCents,
		RiskLevel:      payroll.RiskLevel(req.RiskLevel),
	}
}

type receiptRequest struct {
	EmployeeID      int64  `json:"employee_id"`
	PeriodStart     string `json:"period_start"`
	PeriodEnd       string `json:"period_end"`
	GrossCents      int64  `json:"gross_cents"`
	DeductionsCents int64  `json:"deductions_cents"`
}

func (req receiptRequest) input() (payroll.ReceiptInput, error) {
	in := payroll.ReceiptInput{
		EmployeeID:      req.EmployeeID,
		GrossCents:      req.GrossCents,
		DeductionsCents: req.DeductionsCents,
	}
	verr := &shared.ValidationError{}
	in.PeriodStart = parseDate(verr, "period_start", req.PeriodStart)
	in.PeriodEnd = parseDate(verr, "period_end", req.PeriodEnd)
	return in, verr.OrNil()
}

// parseDate reads an optional YYYY-MM-DD value. An empty value stays zero
// and is left to domain validation.
func parseDate(verr *shared.ValidationError, field, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		verr.Add(field, "must be a date formatted as YYYY-MM-DD")
	}
	return t
}

// decode reads a JSON body of at most MaxBodyBytes into dst.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &APIError{Status: http.StatusBadRequest, Code: "bad_request", Message: "request body is required"}
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &APIError{Status: http.StatusRequestEntityTooLarge, Code: "body_too_large", Message: "request body is too large"}
		}
		return &APIError{Status: http.StatusBadRequest, Code: "bad_request", Message: "request body is not valid JSON"}
	}
	return nil
}

// pathID parses the {id} route parameter. Malformed ids are reported as
// missing resources.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrNotFound
	}
	return id, nil
}

// queryBool reads a boolean query parameter, defaulting to def.
func queryBool(r *http.Request, key string, def bool) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
