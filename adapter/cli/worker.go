package cli

import (
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Relay outbox events to the message broker",
	Long: `Relay committed domain events from the outbox to the broker selected by
EVENTBUS_DRIVER (rabbitmq, nats or noop) until interrupted. Published
messages older than OUTBOX_RETENTION_DAYS are pruned.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := RequireContainer()
		if err != nil {
			return err
		}
		publisher, err := c.NewPublisher()
		if err != nil {
			return err
		}
		defer publisher.Close()

		Logger().Info("starting outbox worker", "driver", c.Config.EventBusDriver)
		return c.RunWorker(cmd.Context(), publisher)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
