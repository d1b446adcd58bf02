package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/levenlabs/go-lflag"
	"go.uber.org/zap"

	"sun_harvester/internal/app"
	"sun_harvester/internal/config"
	"sun_harvester/internal/logging"
	"sun_harvester/internal/metrics"
	"sun_harvester/internal/ws"
)

func main() {
	configPath := lflag.String("config", "", "path to the YAML simulation config; built-in defaults when empty")
	listen := lflag.String("listen", "", "HTTP listen address, overrides server.listen from the config")
	dev := lflag.Bool("dev", false, "human readable console logging")
	autostart := lflag.Bool("autostart", false, "start the paced run without waiting for a client")
	summaryInterval := lflag.Duration("summary-interval", time.Minute, "simulation time between harvester summary broadcasts")
	archivePath := lflag.String("archive", "", "SQLite file the recorded traces are saved to on shutdown")
	sampleGap := lflag.Duration("sample-gap", 10*time.Second, "minimum simulation time between two broadcast samples of one series")

	lflag.Configure()

	logger, err := logging.Configured(*dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath, logger)
		if err != nil {
			logger.Fatal("loading config", zap.Error(err))
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	hub := ws.NewHub(logger)
	bridge := ws.NewBridge(hub, app.StartDate(cfg), *sampleGap, logger)
	m := metrics.New()

	sim, err := app.New(cfg, app.Options{
		Callback: bridge,
		Metrics:  m,
		Attach:   attachBridge(bridge),
	}, logger)
	if err != nil {
		logger.Fatal("assembling simulation", zap.Error(err))
	}
	defer sim.Dispose()

	srv := newServer(sim, hub, bridge, m, logger)
	srv.scheduleSummaries(*summaryInterval)

	sim.Prepare()
	if *autostart {
		sim.Engine.Start()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Run(ctx, cfg.Listen); err != nil {
		logger.Error("server failed", zap.Error(err))
		os.Exit(1)
	}
	if *archivePath != "" {
		if err := srv.archive(*archivePath); err != nil {
			logger.Error("archiving traces", zap.Error(err))
		}
	}
	logger.Info("server exited cleanly")
}
