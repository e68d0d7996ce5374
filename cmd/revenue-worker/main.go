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

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/revenue-engine/api/controllers"
	"github.com/angelmondragon/revenue-engine/internal/engine"
	"github.com/angelmondragon/revenue-engine/internal/syncworker"
	"github.com/angelmondragon/revenue-engine/pkg/config"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
	"github.com/angelmondragon/revenue-engine/pkg/pubsub"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "revenue-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "revenue-worker"

	logg = logger.New(logger.Options{
		ServiceName: "revenue-worker",
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
	requireResource(ctx, logg, "engine", err)
	defer func() {
		if err := eng.Close(); err != nil {
			logg.Error(ctx, "failed to close engine", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(runCtx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.SyncRequestsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "sync requests subscription", errors.New("subscription not configured"))
	}

	service, err := syncworker.NewService(subscription, eng.Orchestrator, logg)
	requireResource(ctx, logg, "sync worker service", err)

	runCtx = logg.WithFields(runCtx, map[string]any{
		"serviceKind": cfg.Service.Kind,
	})

	ops := opsServer(cfg, eng, logg)
	go func() {
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "ops server stopped unexpectedly", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ops.Shutdown(shutdownCtx)
	}()

	logg.Info(runCtx, "revenue worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "revenue worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "revenue worker stopped")
}

// opsServer exposes metrics and health checks for the worker process.
func opsServer(cfg *config.Config, eng *engine.Engine, logg *logger.Logger) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(cfg, eng, logg))
	return &http.Server{
		Addr:              ":" + cfg.App.MetricsPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
