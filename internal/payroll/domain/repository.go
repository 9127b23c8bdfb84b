package domain

import "context"

// EmployeeFilter narrows an employee listing.
type EmployeeFilter struct {
	ActiveOnly   bool
	DepartmentID int64
}

// EmployeeRepository persists employees of one tenant at a time.
type EmployeeRepository interface {
	// Create assigns the ID. A duplicate national id returns
	// ErrNationalIDTaken.
	Create(ctx context.Context, tenantID int64, e *Employee) error
	FindByID(ctx context.Context, tenantID, id int64) (*Employee, error)
	List(ctx context.Context, tenantID int64, filter EmployeeFilter) ([]Employee, error)
	Update(ctx context.Context, tenantID int64, e *Employee) error
}

// DepartmentRepository persists departments of one tenant at a time.
type DepartmentRepository interface {
	Create(ctx context.Context, tenantID int64, d *Department) error
	FindByID(ctx context.Context, tenantID, id int64) (*Department, error)
	List(ctx context.Context, tenantID int64, activeOnly bool) ([]Department, error)
	Update(ctx context.Context, tenantID int64, d *Department) error
	CountActivePositions(ctx context.Context, tenantID, departmentID int64) (int, error)
}

// PositionRepository persists positions of one tenant at a time.
type PositionRepository interface {
	Create(ctx context.Context, tenantID int64, p *Position) error
	FindByID(ctx context.Context, tenantID, id int64) (*Position, error)
	List(ctx context.Context, tenantID int64, activeOnly bool) ([]Position, error)
	Update(ctx context.Context, tenantID int64, p *Position) error
}

// ReceiptRepository persists payroll receipts of one tenant at a time.
type ReceiptRepository interface {
	// Create assigns the ID. A second receipt for the same employee and
	// period returns ErrReceiptExists.
	Create(ctx context.Context, tenantID int64, r *PayrollReceipt) error
	FindByID(ctx context.Context, tenantID, id int64) (*PayrollReceipt, error)
	List(ctx context.Context, tenantID int64, filter ReceiptFilter) ([]PayrollReceipt, error)
}

// TaxConfigurationRepository persists yearly tax settings.
type TaxConfigurationRepository interface {
	// CreateIfAbsent inserts c unless the tenant already has a
	// configuration for c.Year, and reports whether it inserted.
	CreateIfAbsent(ctx context.Context, tenantID int64, c *TaxConfiguration) (bool, error)
	FindByYear(ctx context.Context, tenantID int64, year int) (*TaxConfiguration, error)
}
