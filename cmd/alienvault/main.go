package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tdr0/connectors/internal/config"
	"github.com/tdr0/connectors/internal/importer"
	"github.com/tdr0/connectors/internal/journal"
	"github.com/tdr0/connectors/internal/logging"
	"github.com/tdr0/connectors/internal/metrics"
	"github.com/tdr0/connectors/internal/opencti"
	"github.com/tdr0/connectors/internal/otx"
	"github.com/tdr0/connectors/internal/scheduler"
	"github.com/tdr0/connectors/internal/server"
	"log/slog"
)

func main() {
	bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		bootstrap.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Connector.SlogLevel(), "json")
	if err != nil {
		bootstrap.Error("failed to init logger", "error", err)
		os.Exit(1)
	}

	logger.Info("starting AlienVault connector",
		"connector_id", cfg.Connector.ID,
		"scope", cfg.Connector.Scope,
		"interval", cfg.AlienVault.Interval(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector, err := metrics.NewCollector()
	if err != nil {
		logger.Error("failed to init metrics", "error", err)
		os.Exit(1)
	}

	// The run journal is optional: without a database URL runs are not audited.
	var jnl journal.Journal = journal.Nop{}
	var pg *journal.Postgres
	if cfg.Journal.DatabaseURL != "" {
		pg, err = journal.OpenPostgres(ctx, cfg.Journal.DatabaseURL)
		if err != nil {
			logger.Warn("run journal unavailable, continuing without it", "error", err)
		} else {
			jnl = pg
			defer pg.Close()
			logger.Info("run journal enabled")
		}
	}

	platform := opencti.NewClient(
		cfg.OpenCTI.URL,
		cfg.OpenCTI.Token,
		cfg.Connector.ID,
		cfg.Connector.Name,
		cfg.Connector.Type,
		cfg.Connector.Scope,
		logger,
	)

	registration, err := platform.RegisterConnector(ctx)
	if err != nil {
		logger.Error("failed to register connector", "error", err)
		os.Exit(1)
	}
	logger.Info("connector registered", "connector_id", registration.ID)

	pusher := opencti.NewPusher(registration.Broker, cfg.Connector.ID, logger)
	if err := pusher.Connect(); err != nil {
		logger.Error("failed to connect to platform broker", "error", err)
		os.Exit(1)
	}
	defer pusher.Close()

	feed := otx.NewClient(cfg.AlienVault.BaseURL, cfg.AlienVault.APIKey, logger)

	imp := importer.New(cfg, feed, platform, pusher, jnl, collector, logger)
	imp.SetInitialState(registration.State)

	checks := map[string]server.HealthFunc{
		"opencti": platform.HealthCheck,
		"otx":     feed.HealthCheck,
	}
	if pg != nil {
		checks["journal"] = pg.HealthCheck
	}

	srv := server.New(cfg.Metrics, logger, server.NewMux(collector.Handler(), checks, jnl))
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("health server failed", "error", err)
			stop()
		}
	}()

	sched := scheduler.NewImportScheduler(imp, cfg.AlienVault.Interval(), logger)
	schedDone := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(schedDone)
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	sched.Stop()
	<-schedDone

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("health server shutdown failed", "error", err)
	}

	logger.Info("connector stopped")
}
