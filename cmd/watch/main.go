package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"notez-go/internal/bootstrap"
	"notez-go/internal/config"
	"notez-go/internal/logger"
	"notez-go/internal/watcher"
)

func main() {
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithOptions(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build services")
	}
	go app.Sweep(ctx, cfg.Storage.Retention, cfg.Storage.SweepInterval, log)

	proc, err := watcher.NewProcessor(app.Intake, app.Pipeline, app.Publisher, cfg.Watch.Outbox, log)
	if err != nil {
		log.WithError(err).Fatal("failed to prepare outbox")
	}
	w, err := watcher.New(cfg.Watch.Inbox, proc.Handle, cfg.Watch.MaxConcurrent, log)
	if err != nil {
		log.WithError(err).Fatal("failed to create watcher")
	}
	defer w.Stop()

	log.WithField("inbox", cfg.Watch.Inbox).WithField("outbox", cfg.Watch.Outbox).Info("watch mode ready, press Ctrl+C to stop")
	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("watcher stopped")
		os.Exit(1)
	}
	log.Info("watcher stopped")
}
