package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions.
const (
	AuditTenantRegistered    = "tenant.registered"
	AuditUserLogin           = "user.login"
	AuditInvitationIssued    = "invitation.issued"
	AuditInvitationAccepted  = "invitation.accepted"
	AuditInvitationRevoked   = "invitation.revoked"
	AuditMemberRoleChanged   = "member.role_changed"
	AuditMemberRemoved       = "member.removed"
	AuditEmployeeCreated     = "employee.created"
	AuditEmployeeUpdated     = "employee.updated"
	AuditEmployeeDeactivated = "employee.deactivated"
	AuditEmployeeReactivated = "employee.reactivated"
	AuditEmployeesExported   = "employees.exported"
	AuditReceiptGenerated    = "payroll_receipt.generated"
	AuditCheckoutStarted     = "subscription.checkout_started"
	AuditSubscriptionCancel  = "subscription.cancel_requested"
	AuditPlanChangeRequest   = "subscription.plan_change_requested"
)

// AuditEntry is one row of a tenant's audit trail.
type AuditEntry struct {
	ID          int64
	TenantID    int64
	ActorUserID uuid.NullUUID
	ActorEmail  string
	Action      string
	EntityType  string
	EntityID    string
	Details     string
	IPAddress   string
	CreatedAt   time.Time
}

// MaxAuditPageSize bounds audit listings.
const MaxAuditPageSize = 100

// AuditFilter narrows an audit listing.
type AuditFilter struct {
	Page        int
	PageSize    int
	Action      string
	EntityType  string
	ActorUserID uuid.NullUUID
	From        *time.Time
	To          *time.Time
}

// Normalize applies paging defaults and bounds.
func (f AuditFilter) Normalize() AuditFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > MaxAuditPageSize {
		f.PageSize = MaxAuditPageSize
	}
	return f
}

// Offset returns the row offset of the filter's page.
func (f AuditFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// AuditPage is one page of audit entries.
type AuditPage struct {
	Items    []AuditEntry
	Total    int
	Page     int
	PageSize int
}
