package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vorluno/planilla/internal/shared/infrastructure/eventbus"
	"github.com/vorluno/planilla/internal/shared/infrastructure/outbox"
	"github.com/vorluno/planilla/pkg/observability"
)

// NewPublisher connects the broker selected by EVENTBUS_DRIVER. Outside
// production an unreachable broker degrades to the noop publisher.
func (c *Container) NewPublisher() (eventbus.Publisher, error) {
	var (
		publisher eventbus.Publisher
		err       error
	)
	switch c.Config.EventBusDriver {
	case "rabbitmq":
		publisher, err = eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
	case "nats":
		publisher, err = eventbus.NewNATSPublisher(c.Config.NATSURL, c.Logger)
	default:
		return eventbus.NewNoopPublisher(c.Logger), nil
	}
	if err != nil {
		if c.Config.IsProduction() {
			return nil, fmt.Errorf("failed to connect to %s: %w", c.Config.EventBusDriver, err)
		}
		c.Logger.Warn("event broker not available, using noop publisher", "driver", c.Config.EventBusDriver, "error", err)
		return eventbus.NewNoopPublisher(c.Logger), nil
	}
	return publisher, nil
}

// RunWorker relays the outbox to publisher until ctx is canceled. It also
// prunes published messages, logs processor stats and, when configured,
// serves health and metrics endpoints.
func (c *Container) RunWorker(ctx context.Context, publisher eventbus.Publisher) error {
	cfg := c.Config
	logger := c.Logger.With("component", "worker")

	processorConfig := outbox.DefaultProcessorConfig()
	processorConfig.PollInterval = cfg.OutboxPollInterval
	processorConfig.BatchSize = cfg.OutboxBatchSize
	processorConfig.MaxRetries = cfg.OutboxMaxRetries
	processor := outbox.NewProcessor(c.OutboxRepo, publisher, processorConfig, logger).WithMetrics(c.Metrics)

	if err := processor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start outbox processor: %w", err)
	}
	defer processor.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		every(gctx, cfg.OutboxCleanupInterval, func() {
			deleted, err := c.OutboxRepo.DeleteOld(gctx, cfg.OutboxRetentionDays)
			if err != nil {
				logger.Error("outbox cleanup failed", "error", err)
				return
			}
			if deleted > 0 {
				logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
			}
		})
		return nil
	})
	g.Go(func() error {
		every(gctx, cfg.OutboxStatsInterval, func() {
			stats := processor.GetStats()
			logger.Info("outbox stats",
				"running", stats.IsRunning,
				"published", stats.PublishedCount,
				"failed", stats.FailedCount,
				"dead", stats.DeadCount,
				"lag_seconds", stats.LagSeconds,
			)
		})
		return nil
	})

	if cfg.WorkerHealthAddr != "" {
		srv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           c.workerMux(processor),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func (c *Container) workerMux(processor *outbox.Processor) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		stats := processor.GetStats()
		writeWorkerJSON(w, http.StatusOK, map[string]any{
			"status":            "ok",
			"running":           stats.IsRunning,
			"published":         stats.PublishedCount,
			"failed":            stats.FailedCount,
			"dead":              stats.DeadCount,
			"last_processed_at": stats.LastProcessedAt,
			"last_error_at":     stats.LastErrorAt,
			"last_error":        stats.LastError,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		report := c.Health.Check(ctx)
		status := http.StatusOK
		if report.Status == observability.HealthStatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeWorkerJSON(w, status, report)
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{}))
	return mux
}

func every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func writeWorkerJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
