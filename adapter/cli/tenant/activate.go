package tenant

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vorluno/planilla/adapter/cli"
)

var activateCmd = &cobra.Command{
	Use:   "activate <tenant-id>",
	Short: "Reactivate a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], true)
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <tenant-id>",
	Short: "Deactivate a tenant",
	Long: `Deactivate a tenant. Its users can still sign in but every tenant route
answers 403 until the tenant is activated again. No data is deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, args[0], false)
	},
}

func setActive(cmd *cobra.Command, rawID string, active bool) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid tenant id %q", rawID)
	}
	c, err := cli.RequireContainer()
	if err != nil {
		return err
	}
	if err := c.Tenants.SetActive(cmd.Context(), id, active); err != nil {
		return err
	}
	state := "deactivated"
	if active {
		state = "activated"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Tenant %d %s.\n", id, state)
	return nil
}
