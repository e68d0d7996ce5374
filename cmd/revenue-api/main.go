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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/revenue-engine/api/routes"
	"github.com/angelmondragon/revenue-engine/internal/engine"
	"github.com/angelmondragon/revenue-engine/pkg/config"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "revenue-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	if cfg.JWT.Secret == "" {
		requireResource(context.Background(), logg, "jwt", fmt.Errorf("%s is required", config.EnvJWTSecret))
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "revenue-api",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(runCtx, engine.Params{
		Config:     cfg,
		Logger:     logg,
		Registerer: prometheus.DefaultRegisterer,
	})
	requireResource(runCtx, logg, "engine", err)
	defer func() {
		if err := eng.Close(); err != nil {
			logg.Error(context.Background(), "error closing engine", err)
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.API.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(runCtx, map[string]any{
		"addr": addr,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Deps{
			Health:    eng,
			Settings:  eng.Settings,
			Syncer:    eng.Orchestrator,
			Analytics: eng.Analytics,
			Counter:   eng.RateCounter(),
			Gatherer:  prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting revenue api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "revenue api server stopped")
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
