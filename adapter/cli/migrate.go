package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vorluno/planilla/internal/shared/infrastructure/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := RequireContainer()
		if err != nil {
			return err
		}
		applied, err := migrations.Run(cmd.Context(), c.DB, Logger())
		if err != nil {
			return err
		}
		if applied == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) on %s.\n", applied, c.DB.Driver())
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed reference payroll data for every active tenant",
	Long: `Create the current year's tax configuration for each active tenant that
lacks one. Running it again changes nothing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := RequireContainer()
		if err != nil {
			return err
		}
		report, err := c.Seeder.SeedAll(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d tenant(s): %d created, %d already present.\n",
			report.Tenants, report.Created, report.Skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}
