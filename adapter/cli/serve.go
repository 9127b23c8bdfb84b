package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vorluno/planilla/adapter/api"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
	"github.com/vorluno/planilla/internal/shared/infrastructure/eventbus"
	"github.com/vorluno/planilla/internal/shared/infrastructure/migrations"
)

var (
	serveAddr       string
	serveWithWorker bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the multi-tenant HTTP API until interrupted.

The outbox relay runs in the same process when OUTBOX_PROCESSOR_ENABLED is
set or --with-worker is given. Disable it to run "planilla worker"
separately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := RequireContainer()
		if err != nil {
			return err
		}
		cfg := c.Config

		// The local SQLite database is migrated on start; PostgreSQL is
		// migrated explicitly with "planilla migrate".
		if c.DB.Driver() == database.DriverSQLite {
			if _, err := migrations.Run(cmd.Context(), c.DB, Logger()); err != nil {
				return err
			}
		}

		serverCfg := api.DefaultServerConfig()
		serverCfg.Addr = cfg.HTTPAddr
		if serveAddr != "" {
			serverCfg.Addr = serveAddr
		}
		if len(cfg.CORSOrigins) > 0 {
			serverCfg.CORSOrigins = cfg.CORSOrigins
		}
		srv := api.NewServer(serverCfg, api.DepsFromContainer(c), Logger())

		withWorker := cfg.OutboxProcessorEnabled
		if cmd.Flags().Changed("with-worker") {
			withWorker = serveWithWorker
		}
		var publisher eventbus.Publisher
		if withWorker {
			publisher, err = c.NewPublisher()
			if err != nil {
				return err
			}
			defer publisher.Close()
			// The API already exposes health and metrics.
			cfg.WorkerHealthAddr = ""
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		if publisher != nil {
			g.Go(func() error { return c.RunWorker(ctx, publisher) })
		}
		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "run the outbox relay in process (defaults to OUTBOX_PROCESSOR_ENABLED)")
	rootCmd.AddCommand(serveCmd)
}
