package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shared "github.com/vorluno/planilla/internal/shared/domain"
)

func validTenantInput() TenantInput {
	return TenantInput{
		Name:      "Acme Panamá",
		Subdomain: "Acme-PA",
		RUC:       "155-1234-56",
		DV:        "07",
		Email:     "RRHH@Acme.com",
	}
}

func TestNewTenant(t *testing.T) {
	now := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	tenant, err := NewTenant(validTenantInput(), now)
	require.NoError(t, err)

	assert.Equal(t, "acme-pa", tenant.Subdomain)
	assert.Equal(t, "rrhh@acme.com", tenant.Email)
	assert.True(t, tenant.IsActive)
	assert.Equal(t, now, tenant.CreatedAt)
}

func TestNewTenantValidation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*TenantInput)
		field string
	}{
		{"missing name", func(in *TenantInput) { in.Name = " " }, "company_name"},
		{"short subdomain", func(in *TenantInput) { in.Subdomain = "ab" }, "subdomain"},
		{"subdomain with dot", func(in *TenantInput) { in.Subdomain = "acme.pa" }, "subdomain"},
		{"missing ruc", func(in *TenantInput) { in.RUC = "" }, "ruc"},
		{"letters in dv", func(in *TenantInput) { in.DV = "x" }, "dv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validTenantInput()
			tt.edit(&in)
			_, err := NewTenant(in, time.Now())

			var verr *shared.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
			assert.Equal(t, shared.KindValidation, shared.KindOf(err))
		})
	}
}

func TestTenantActivation(t *testing.T) {
	tenant, err := NewTenant(validTenantInput(), time.Now())
	require.NoError(t, err)
	tenant.ID = 4

	tenant.Activate(time.Now())
	assert.Empty(t, tenant.DomainEvents())

	tenant.Deactivate(time.Now())
	assert.False(t, tenant.IsActive)
	require.Len(t, tenant.DomainEvents(), 1)
	assert.Equal(t, RoutingKeyTenantDeactivated, tenant.DomainEvents()[0].RoutingKey())

	tenant.Activate(time.Now())
	assert.True(t, tenant.IsActive)
	assert.Len(t, tenant.DomainEvents(), 2)
}

func TestMembershipLifecycle(t *testing.T) {
	m := NewMembership(2, uuid.New(), RoleOwner, time.Now())
	assert.True(t, m.IsActiveOwner())

	m.ChangeRole(RoleAdmin)
	assert.False(t, m.IsActiveOwner())
	require.Len(t, m.DomainEvents(), 1)

	m.ChangeRole(RoleAdmin)
	assert.Len(t, m.DomainEvents(), 1)

	m.Deactivate()
	assert.False(t, m.IsActive)
	m.Deactivate()
	assert.Len(t, m.DomainEvents(), 2)

	m.Reactivate(RoleEmployee, time.Now())
	assert.True(t, m.IsActive)
	assert.Equal(t, RoleEmployee, m.Role)
}

func TestAuditFilterNormalize(t *testing.T) {
	f := AuditFilter{Page: 0, PageSize: 500}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, MaxAuditPageSize, f.PageSize)
	assert.Equal(t, 0, f.Offset())

	f = AuditFilter{Page: 3}.Normalize()
	assert.Equal(t, 20, f.PageSize)
	assert.Equal(t, 40, f.Offset())
}
