package domain

import (
	"fmt"
	"time"
)

// TaxConfiguration holds a tenant's statutory payroll rates for one year.
// Rates are basis points (975 = 9.75%).
type TaxConfiguration struct {
	ID                      int64
	TenantID                int64
	Year                    int
	Description             string
	CSSEmployeeRate         int
	CSSEmployerRate         int
	EducationalEmployeeRate int
	EducationalEmployerRate int
	DependentDeductionCents int64
	MaxDependents           int
	CreatedAt               time.Time
}

// DefaultTaxConfiguration returns the Panamanian defaults for year.
func DefaultTaxConfiguration(tenantID int64, year int, now time.Time) *TaxConfiguration {
	return &TaxConfiguration{
		TenantID:                tenantID,
		Year:                    year,
		Description:             fmt.Sprintf("Configuración Panamá %d", year),
		CSSEmployeeRate:         975,
		CSSEmployerRate:         1225,
		EducationalEmployeeRate: 125,
		EducationalEmployerRate: 150,
		DependentDeductionCents: 80000,
		MaxDependents:           5,
		CreatedAt:               now.UTC(),
	}
}
