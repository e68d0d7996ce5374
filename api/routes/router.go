package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/revenue-engine/api/controllers"
	revenuecontrollers "github.com/angelmondragon/revenue-engine/api/controllers/revenue"
	"github.com/angelmondragon/revenue-engine/api/middleware"
	"github.com/angelmondragon/revenue-engine/pkg/config"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
	"github.com/angelmondragon/revenue-engine/pkg/redis"
)

// Deps are the services the HTTP surface delegates to.
type Deps struct {
	Health    controllers.Pinger
	Settings  revenuecontrollers.SettingsService
	Syncer    revenuecontrollers.Syncer
	Analytics revenuecontrollers.AnalyticsService
	// Counter backs the sync trigger limiter; nil leaves it unlimited.
	Counter  redis.Counter
	Gatherer prometheus.Gatherer
}

// syncTimeout bounds the inline sync triggered over HTTP.
const syncTimeout = 5 * time.Minute

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.API.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Health, logg))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	syncPolicy := middleware.NewRateLimitPolicy("sync_trigger", cfg.API.SyncTriggerWindow, cfg.API.SyncTriggerLimit)

	r.Route("/api/v1/revenue", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/stats", revenuecontrollers.Stats(deps.Analytics, logg))
		r.Get("/chart", revenuecontrollers.Chart(deps.Analytics, logg))
		r.Get("/transactions", revenuecontrollers.Transactions(deps.Analytics, logg))
		r.Get("/breakdown", revenuecontrollers.Breakdown(deps.Analytics, logg))
		r.Get("/providers", revenuecontrollers.ListProviders(deps.Settings, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireManager(logg))
			r.Put("/providers/{provider}", revenuecontrollers.ConnectProvider(deps.Settings, logg))
			r.Delete("/providers/{provider}", revenuecontrollers.DisconnectProvider(deps.Settings, logg))
			r.Put("/currency", revenuecontrollers.ChangeCurrency(deps.Settings, logg))
			r.With(
				middleware.TenantRateLimit(syncPolicy, deps.Counter, logg),
				middleware.Timeout(syncTimeout),
			).Post("/sync/{provider}", revenuecontrollers.TriggerSync(deps.Syncer, logg))
		})
	})

	return r
}
