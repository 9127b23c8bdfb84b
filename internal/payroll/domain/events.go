package domain

import shared "github.com/vorluno/planilla/internal/shared/domain"

const AggregateEmployee = "Employee"

const (
	RoutingKeyEmployeeCreated     = "payroll.employee.created"
	RoutingKeyEmployeeDeactivated = "payroll.employee.deactivated"
	RoutingKeyEmployeeReactivated = "payroll.employee.reactivated"
)

// EmployeeChanged is published when an employee joins or leaves the
// payroll. The routing key tells which.
type EmployeeChanged struct {
	shared.BaseEvent
	TenantID   int64 `json:"tenant_id"`
	EmployeeID int64 `json:"employee_id"`
	IsActive   bool  `json:"is_active"`
}
