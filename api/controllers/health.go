package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/revenue-engine/api/responses"
	"github.com/angelmondragon/revenue-engine/pkg/config"
	pkgerrors "github.com/angelmondragon/revenue-engine/pkg/errors"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
)

const readinessTimeout = 3 * time.Second

// Pinger is satisfied by the engine; it checks every opened backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Revenue-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, deps Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Revenue-Env", cfg.App.Env)
		if deps != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			defer cancel()
			if err := deps.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dependency check failed"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
