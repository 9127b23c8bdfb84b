package domain

import shared "github.com/vorluno/planilla/internal/shared/domain"

var (
	ErrEmployeeNotFound   = shared.NewError(shared.KindNotFound, "employee not found")
	ErrDepartmentNotFound = shared.NewError(shared.KindNotFound, "department not found")
	ErrPositionNotFound   = shared.NewError(shared.KindNotFound, "position not found")
	ErrTaxConfigNotFound  = shared.NewError(shared.KindNotFound, "tax configuration not found")
	ErrReceiptNotFound    = shared.NewError(shared.KindNotFound, "payroll receipt not found")

	ErrNationalIDTaken    = shared.NewError(shared.KindConflict, "an employee with this national id already exists")
	ErrDepartmentCodeUsed = shared.NewError(shared.KindConflict, "department code already in use")
	ErrPositionCodeUsed   = shared.NewError(shared.KindConflict, "position code already in use")
	ErrReceiptExists      = shared.NewError(shared.KindConflict, "a receipt for this employee and period already exists")
	// ErrDepartmentInUse is returned when deactivating a department that
	// still has active positions.
	ErrDepartmentInUse = shared.NewError(shared.KindConflict, "department still has active positions")

	ErrEmployeeInactive = shared.NewError(shared.KindConflict, "employee is inactive")
	ErrEmployeeActive   = shared.NewError(shared.KindConflict, "employee is already active")
)
