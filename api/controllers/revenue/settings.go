package revenue

import (
	"context"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/angelmondragon/revenue-engine/api/middleware"
	"github.com/angelmondragon/revenue-engine/api/responses"
	"github.com/angelmondragon/revenue-engine/api/validators"
	"github.com/angelmondragon/revenue-engine/internal/settings"
	"github.com/angelmondragon/revenue-engine/pkg/db/models"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/revenue-engine/pkg/errors"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
)

// SettingsService is the provider-credential surface exposed over HTTP.
type SettingsService interface {
	Connect(ctx context.Context, in settings.ConnectInput) (*models.RevenueSetting, error)
	List(ctx context.Context, tenantID string) ([]models.RevenueSetting, error)
	Disconnect(ctx context.Context, tenantID string, provider enums.RevenueProvider) error
	ChangeCurrency(ctx context.Context, tenantID, currency string) (int, error)
}

// ProviderView is the public shape of a stored setting. The secret never leaves the service.
type ProviderView struct {
	Provider           string     `json:"provider"`
	ReportingCurrency  string     `json:"reporting_currency"`
	LastSyncStatus     string     `json:"last_sync_status"`
	LastSyncWatermark  *time.Time `json:"last_sync_watermark,omitempty"`
	LastSyncError      *string    `json:"last_sync_error,omitempty"`
	LastSyncCount      int        `json:"last_sync_count"`
	LastSyncFinishedAt *time.Time `json:"last_sync_finished_at,omitempty"`
	ConnectedAt        time.Time  `json:"connected_at"`
}

func toProviderView(s models.RevenueSetting) ProviderView {
	return ProviderView{
		Provider:           s.Provider.String(),
		ReportingCurrency:  s.ReportingCurrency,
		LastSyncStatus:     s.LastSyncStatus,
		LastSyncWatermark:  s.LastSyncWatermark,
		LastSyncError:      s.LastSyncError,
		LastSyncCount:      s.LastSyncCount,
		LastSyncFinishedAt: s.LastSyncFinishedAt,
		ConnectedAt:        s.CreatedAt,
	}
}

type connectRequest struct {
	Secret            string `json:"secret" validate:"required"`
	ReportingCurrency string `json:"reporting_currency" validate:"omitempty,len=3"`
}

type currencyRequest struct {
	Currency string `json:"currency" validate:"required,len=3"`
}

func ConnectProvider(svc SettingsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, ok := requireTenant(w, r, logg)
		if !ok {
			return
		}
		provider, err := providerParam(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var body connectRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		setting, err := svc.Connect(ctx, settings.ConnectInput{
			TenantID:          tenantID,
			Provider:          provider.String(),
			Secret:            body.Secret,
			ReportingCurrency: body.ReportingCurrency,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toProviderView(*setting))
	}
}

func ListProviders(svc SettingsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r, logg)
		if !ok {
			return
		}
		rows, err := svc.List(r.Context(), tenantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lo.Map(rows, func(s models.RevenueSetting, _ int) ProviderView {
			return toProviderView(s)
		}))
	}
}

func DisconnectProvider(svc SettingsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r, logg)
		if !ok {
			return
		}
		provider, err := providerParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Disconnect(r.Context(), tenantID, provider); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ChangeCurrency(svc SettingsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r, logg)
		if !ok {
			return
		}
		var body currencyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		updated, err := svc.ChangeCurrency(r.Context(), tenantID, body.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"providers_reset": updated})
	}
}

func requireTenant(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (string, bool) {
	tenantID := middleware.TenantIDFromContext(r.Context())
	if tenantID == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing"))
		return "", false
	}
	return tenantID, true
}
