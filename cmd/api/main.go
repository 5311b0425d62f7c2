package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"notez-go/internal/api"
	"notez-go/internal/bootstrap"
	"notez-go/internal/config"
	"notez-go/internal/logger"
)

func main() {
	cfg, err := config.Load(envOr("CONFIG_PATH", "config.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithOptions(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.WithField("service", "notez-go").Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build services")
	}
	log.WithField("work_dir", cfg.Storage.WorkDir).
		WithField("transcription", cfg.Transcription.Provider).
		WithField("summarization", cfg.Summarization.Provider).
		Info("services ready")

	go app.Sweep(ctx, cfg.Storage.Retention, cfg.Storage.SweepInterval, log)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Services{
		Intake:    app.Intake,
		Pipeline:  app.Pipeline,
		Publisher: app.Publisher,
		Artifacts: app.Workspace,
		Stats:     app.Stats,
	}, api.Options{
		FrontendURL:    cfg.Server.FrontendURL,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
	}, log)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Fatal("server terminated")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	log.Info("server stopped")
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
