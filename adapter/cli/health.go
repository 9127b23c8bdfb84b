package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/vorluno/planilla/pkg/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database and Redis connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := RequireContainer()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		report := c.Health.Check(ctx)
		names := make([]string, 0, len(report.Checks))
		for name := range report.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		out := cmd.OutOrStdout()
		for _, name := range names {
			res := report.Checks[name]
			fmt.Fprintf(out, "%-10s %-9s %dms %s\n", name, res.Status, res.DurationMS, res.Message)
		}
		fmt.Fprintf(out, "overall: %s\n", report.Status)
		if report.Status == observability.HealthStatusUnhealthy {
			return fmt.Errorf("unhealthy")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
