package main

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"deckd/internal/app"
	"deckd/internal/infra/launcher"
	"deckd/internal/infra/store"
	"deckd/internal/infra/telemetry"
)

func initLogger(opts *cliOptions) error {
	logger, err := app.NewLogger(opts.logLevel)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	opts.logger = logger
	return nil
}

func loadConfig(opts *cliOptions) (app.Config, error) {
	cfg, err := app.LoadConfig(opts.configPath)
	if err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

// withCoordinator builds a fully wired coordinator, runs fn, and tears
// everything down. The coordinator's Close also closes the store and
// stops any runtime the launcher started.
func withCoordinator(opts *cliOptions, fn func(*app.Coordinator, app.Config) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	serverStore, err := store.Open(cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open server store: %w", err)
	}
	runtime := launcher.New(launcher.Options{
		BinaryPath: cfg.AgentBinary,
		Port:       cfg.LocalPort,
		MinVersion: cfg.MinRuntimeVersion,
		Logger:     opts.logger,
	})
	coordinator := app.NewCoordinator(app.CoordinatorOptions{
		Store:          serverStore,
		Runtime:        runtime,
		Metrics:        telemetry.NewMetrics(prometheus.DefaultRegisterer),
		Logger:         opts.logger,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
	})
	defer coordinator.Close()
	return fn(coordinator, cfg)
}
