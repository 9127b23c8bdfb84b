package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vorluno/planilla/adapter/cli"
	clibilling "github.com/vorluno/planilla/adapter/cli/billing"
	"github.com/vorluno/planilla/adapter/cli/tenant"
	"github.com/vorluno/planilla/internal/app"
	"github.com/vorluno/planilla/pkg/config"
	"github.com/vorluno/planilla/pkg/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logCfg := observability.ConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat)
	logCfg.ServiceVersion = cli.Version
	logger := observability.NewLogger(logCfg)
	slog.SetDefault(logger)
	cli.SetLogger(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Commands that only print, like "plans" and "version", still work when
	// the database is down in development.
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		if !cfg.IsDevelopment() {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
		logger.Warn("failed to initialize container, running in limited mode", "error", err)
	} else {
		defer container.Close()
	}
	cli.SetApp(&cli.App{Config: cfg, Logger: logger, Container: container})

	cli.AddCommand(tenant.Cmd)
	cli.AddCommand(clibilling.Cmd)

	cli.Execute(ctx)
}
