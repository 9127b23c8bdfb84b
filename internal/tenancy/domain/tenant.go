package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	shared "github.com/vorluno/planilla/internal/shared/domain"
)

var (
	subdomainPattern = regexp.MustCompile(`^[a-z0-9-]{3,63}$`)
	rucPattern       = regexp.MustCompile(`^[0-9A-Za-z-]{1,20}$`)
	dvPattern        = regexp.MustCompile(`^[0-9]{1,2}$`)
)

// Tenant is a subscribing company. Tenants are deactivated, never deleted.
type Tenant struct {
	shared.BaseAggregateRoot

	ID        int64
	Name      string
	Subdomain string
	RUC       string
	DV        string
	Address   string
	Phone     string
	Email     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantInput carries the registration fields of a company.
type TenantInput struct {
	Name      string
	Subdomain string
	RUC       string
	DV        string
	Address   string
	Phone     string
	Email     string
}

// NewTenant validates input and returns an active tenant not yet persisted.
func NewTenant(in TenantInput, now time.Time) (*Tenant, error) {
	verr := &shared.ValidationError{}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		verr.Add("company_name", "is required")
	} else if len(name) > 200 {
		verr.Add("company_name", "must be at most 200 characters")
	}

	subdomain := strings.ToLower(strings.TrimSpace(in.Subdomain))
	if !subdomainPattern.MatchString(subdomain) {
		verr.Add("subdomain", "must be 3-63 lowercase letters, digits or hyphens")
	}

	ruc := strings.TrimSpace(in.RUC)
	if !rucPattern.MatchString(ruc) {
		verr.Add("ruc", "is required and must be at most 20 characters")
	}
	dv := strings.TrimSpace(in.DV)
	if !dvPattern.MatchString(dv) {
		verr.Add("dv", "must be one or two digits")
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	return &Tenant{
		Name:      name,
		Subdomain: subdomain,
		RUC:       ruc,
		DV:        dv,
		Address:   strings.TrimSpace(in.Address),
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		IsActive:  true,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Registered records the registration event once the tenant has an id.
func (t *Tenant) Registered(owner Membership) {
	t.AddDomainEvent(&TenantRegistered{
		BaseEvent: shared.NewBaseEvent(strconv.FormatInt(t.ID, 10), AggregateTenant, RoutingKeyTenantRegistered),
		TenantID:  t.ID,
		Name:      t.Name,
		Subdomain: t.Subdomain,
		OwnerID:   owner.UserID.String(),
	})
}

// Deactivate blocks all access to the tenant.
func (t *Tenant) Deactivate(now time.Time) {
	if !t.IsActive {
		return
	}
	t.IsActive = false
	t.UpdatedAt = now.UTC()
	t.AddDomainEvent(&TenantStatusChanged{
		BaseEvent: shared.NewBaseEvent(strconv.FormatInt(t.ID, 10), AggregateTenant, RoutingKeyTenantDeactivated),
		TenantID:  t.ID,
		Active:    false,
	})
}

// Activate restores access to the tenant.
func (t *Tenant) Activate(now time.Time) {
	if t.IsActive {
		return
	}
	t.IsActive = true
	t.UpdatedAt = now.UTC()
	t.AddDomainEvent(&TenantStatusChanged{
		BaseEvent: shared.NewBaseEvent(strconv.FormatInt(t.ID, 10), AggregateTenant, RoutingKeyTenantActivated),
		TenantID:  t.ID,
		Active:    true,
	})
}
