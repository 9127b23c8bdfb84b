package tenant

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vorluno/planilla/adapter/cli"
)

var showInactive bool

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List tenants",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cli.RequireContainer()
		if err != nil {
			return err
		}
		tenants, err := c.Tenants.List(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		shown := 0
		for _, t := range tenants {
			if !t.IsActive && !showInactive {
				continue
			}
			status := "active"
			if !t.IsActive {
				status = "inactive"
			}
			fmt.Fprintf(out, "%6d  %-24s %-30s %-8s %s\n", t.ID, t.Subdomain, t.Name, status, t.CreatedAt.Format("2006-01-02"))
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(out, "No tenants found.")
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVarP(&showInactive, "all", "a", false, "include inactive tenants")
}
