package domain

import (
	"fmt"
	"math"
	"strings"
)

// Plan is a subscription tier.
type Plan string

const (
	PlanFree         Plan = "Free"
	PlanStarter      Plan = "Starter"
	PlanProfessional Plan = "Professional"
	PlanEnterprise   Plan = "Enterprise"
)

// Unlimited is the limit used by tiers without a practical cap.
const Unlimited = math.MaxInt32

// PlanLimits are the resource limits and feature flags of a plan.
type PlanLimits struct {
	Plan              Plan   `json:"plan"`
	DisplayName       string `json:"display_name"`
	MonthlyPriceCents int64  `json:"monthly_price_cents"`
	MaxEmployees      int    `json:"max_employees"`
	MaxUsers          int    `json:"max_users"`
	CanExportExcel    bool   `json:"can_export_excel"`
	CanExportPDF      bool   `json:"can_export_pdf"`
	CanUseAPI         bool   `json:"can_use_api"`
	PrioritySupport   bool   `json:"priority_support"`
}

// CanExport reports whether the plan includes any report export.
func (l PlanLimits) CanExport() bool {
	return l.CanExportExcel || l.CanExportPDF
}

var catalog = map[Plan]PlanLimits{
	PlanFree: {
		Plan: PlanFree, DisplayName: "Free",
		MaxEmployees: 5, MaxUsers: 2,
	},
	PlanStarter: {
		Plan: PlanStarter, DisplayName: "Starter", MonthlyPriceCents: 2900,
		MaxEmployees: 25, MaxUsers: 5,
		CanExportExcel: true,
	},
	PlanProfessional: {
		Plan: PlanProfessional, DisplayName: "Professional", MonthlyPriceCents: 7900,
		MaxEmployees: 100, MaxUsers: 15,
		CanExportExcel: true, CanExportPDF: true, CanUseAPI: true,
	},
	PlanEnterprise: {
		Plan: PlanEnterprise, DisplayName: "Enterprise", MonthlyPriceCents: 19900,
		MaxEmployees: Unlimited, MaxUsers: Unlimited,
		CanExportExcel: true, CanExportPDF: true, CanUseAPI: true, PrioritySupport: true,
	},
}

var planOrder = []Plan{PlanFree, PlanStarter, PlanProfessional, PlanEnterprise}

// Plans returns the catalog in upgrade order.
func Plans() []PlanLimits {
	out := make([]PlanLimits, 0, len(planOrder))
	for _, p := range planOrder {
		out = append(out, catalog[p])
	}
	return out
}

// IsValid reports whether p is in the catalog.
func (p Plan) IsValid() bool {
	_, ok := catalog[p]
	return ok
}

// Limits returns the plan's limits. Unknown plans get Free limits.
func (p Plan) Limits() PlanLimits {
	if l, ok := catalog[p]; ok {
		return l
	}
	return catalog[PlanFree]
}

// Next returns the upgrade suggested for p. Enterprise has none.
func (p Plan) Next() (Plan, bool) {
	for i, candidate := range planOrder {
		if candidate == p && i+1 < len(planOrder) {
			return planOrder[i+1], true
		}
	}
	return "", false
}

// ParsePlan matches a plan name case-insensitively.
func ParsePlan(s string) (Plan, error) {
	for _, p := range planOrder {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlan, s)
}
