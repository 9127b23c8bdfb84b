package domain

import (
	"time"

	shared "github.com/vorluno/planilla/internal/shared/domain"
)

// PayrollReceipt is an employee's payslip for one pay period. Amounts are
// computed by the payroll run that issues it; the receipt only records them.
type PayrollReceipt struct {
	ID              int64
	TenantID        int64
	EmployeeID      int64
	PeriodStart     time.Time
	PeriodEnd       time.Time
	GrossCents      int64
	DeductionsCents int64
	NetCents        int64
	GeneratedAt     time.Time
}

// ReceiptInput carries the figures of a new receipt.
type ReceiptInput struct {
	EmployeeID      int64
	PeriodStart     time.Time
	PeriodEnd       time.Time
	GrossCents      int64
	DeductionsCents int64
}

// ReceiptFilter narrows a receipt listing. Zero values match everything.
type ReceiptFilter struct {
	EmployeeID int64
	From       time.Time
	To         time.Time
}

// NewPayrollReceipt validates in and returns a receipt whose net is gross
// less deductions.
func NewPayrollReceipt(tenantID int64, in ReceiptInput, now time.Time) (*PayrollReceipt, error) {
	verr := &shared.ValidationError{}
	if in.EmployeeID <= 0 {
		verr.Add("employee_id", "is required")
	}
	start, end := dateOnly(in.PeriodStart), dateOnly(in.PeriodEnd)
	switch {
	case start.IsZero():
		verr.Add("period_start", "is required")
	case end.IsZero():
		verr.Add("period_end", "is required")
	case end.Before(start):
		verr.Add("period_end", "must not be before the period start")
	}
	if in.GrossCents < 0 {
		verr.Add("gross", "must not be negative")
	}
	if in.DeductionsCents < 0 {
		verr.Add("deductions", "must not be negative")
	} else if in.DeductionsCents > in.GrossCents {
		verr.Add("deductions", "must not exceed the gross amount")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return &PayrollReceipt{
		TenantID:        tenantID,
		EmployeeID:      in.EmployeeID,
		PeriodStart:     start,
		PeriodEnd:       end,
		GrossCents:      in.GrossCents,
		DeductionsCents: in.DeductionsCents,
		NetCents:        in.GrossCents - in.DeductionsCents,
		GeneratedAt:     now.UTC(),
	}, nil
}
