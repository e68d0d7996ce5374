package revenue

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/revenue-engine/api/responses"
	"github.com/angelmondragon/revenue-engine/api/validators"
	"github.com/angelmondragon/revenue-engine/internal/analytics"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
	"github.com/angelmondragon/revenue-engine/pkg/pagination"
)

// AnalyticsService answers the dashboard queries over the resolved view.
type AnalyticsService interface {
	Stats(ctx context.Context, req analytics.StatsRequest) (*analytics.Stats, error)
	Chart(ctx context.Context, req analytics.ChartRequest) (*analytics.Chart, error)
	Transactions(ctx context.Context, req analytics.TransactionsRequest) (*analytics.TransactionsPage, error)
	Breakdown(ctx context.Context, req analytics.BreakdownRequest) (*analytics.Breakdown, error)
}

func Stats(svc AnalyticsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, ok := requireTenant(w, r, logg)
		if !ok {
			return
		}
		start, end, err := resolveRange(r, timeNowUTC())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Stats(ctx, analytics.StatsRequest{TenantID: tenantID, Start: start, End: end})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Chart(svc AnalyticsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, ok := requireTenant(w, r, logg)
		if !ok {
			return
		}
		start, end, err := resolveRange(r, timeNowUTC())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Chart(ctx, analytics.ChartRequest{
			TenantID:    tenantID,
			Start:       start,
			End:         end,
			Granularity: strings.ToLower(validators.ParseQueryString(r, "granularity", "day")),
			Timezone:    validators.ParseQueryString(r, "timezone", "UTC"),
			Labels:      labelsParam(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Transactions(svc AnalyticsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, ok := requireTenant(w, r, logg)
		if !ok {
			return
		}
		start, end, err := resolveOptionalRange(r, timeNowUTC())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		take, err := validators.ParseQueryInt(r, "take", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		skip, err := validators.ParseQueryInt(r, "skip", 0, 0, 1<<30)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Transactions(ctx, analytics.TransactionsRequest{
			TenantID: tenantID,
			Start:    start,
			End:      end,
			Type:     validators.ParseQueryString(r, "type", ""),
			Status:   validators.ParseQueryString(r, "status", ""),
			Take:     take,
			Skip:     skip,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func Breakdown(svc AnalyticsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tenantID, ok := requireTenant(w, r, logg)
		if !ok {
			return
		}
		start, end, err := resolveRange(r, timeNowUTC())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Breakdown(ctx, analytics.BreakdownRequest{TenantID: tenantID, Start: start, End: end})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
