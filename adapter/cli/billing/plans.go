// Package billing holds the plan catalog command.
package billing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vorluno/planilla/internal/billing/domain"
)

// Cmd prints the plan catalog. It needs no database.
var Cmd = &cobra.Command{
	Use:   "plans",
	Short: "Show subscription plans and their limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-14s %10s %10s %8s  %s\n", "PLAN", "PRICE/MO", "EMPLOYEES", "USERS", "FEATURES")
		for _, p := range domain.Plans() {
			fmt.Fprintf(out, "%-14s %10s %10s %8s  %s\n",
				p.DisplayName, price(p.MonthlyPriceCents), limit(p.MaxEmployees), limit(p.MaxUsers), features(p))
		}
		return nil
	},
}

func price(cents int64) string {
	if cents == 0 {
		return "free"
	}
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func limit(n int) string {
	if n >= domain.Unlimited {
		return "unlimited"
	}
	return strconv.Itoa(n)
}

func features(p domain.PlanLimits) string {
	var names []string
	if p.CanExportExcel {
		names = append(names, "excel")
	}
	if p.CanExportPDF {
		names = append(names, "pdf")
	}
	if p.CanUseAPI {
		names = append(names, "api")
	}
	if p.PrioritySupport {
		names = append(names, "priority support")
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}
