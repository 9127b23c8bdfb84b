// Package tenant holds the operator commands that administer tenants.
package tenant

import "github.com/spf13/cobra"

// Cmd is the tenant command group.
var Cmd = &cobra.Command{
	Use:     "tenants",
	Aliases: []string{"tenant"},
	Short:   "Administer tenants",
	Long: `List tenants and switch them on or off. These commands act across
tenants and are meant for operators, not for the API.`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(activateCmd)
	Cmd.AddCommand(deactivateCmd)
}
