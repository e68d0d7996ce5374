package revenue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/revenue-engine/api/middleware"
	"github.com/angelmondragon/revenue-engine/internal/analytics"
	"github.com/angelmondragon/revenue-engine/internal/settings"
	revsync "github.com/angelmondragon/revenue-engine/internal/sync"
	"github.com/angelmondragon/revenue-engine/pkg/db/models"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
)

type fakeSettings struct {
	connectIn   settings.ConnectInput
	connectErr  error
	listed      []models.RevenueSetting
	disconnects []enums.RevenueProvider
	currency    string
	currencyErr error
}

func (f *fakeSettings) Connect(ctx context.Context, in settings.ConnectInput) (*models.RevenueSetting, error) {
	f.connectIn = in
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return &models.RevenueSetting{
		TenantID:          in.TenantID,
		Provider:          enums.RevenueProvider(in.Provider),
		EncryptedSecret:   "ciphertext",
		ReportingCurrency: "USD",
		LastSyncStatus:    "idle",
	}, nil
}

func (f *fakeSettings) List(ctx context.Context, tenantID string) ([]models.RevenueSetting, error) {
	return f.listed, nil
}

func (f *fakeSettings) Disconnect(ctx context.Context, tenantID string, provider enums.RevenueProvider) error {
	f.disconnects = append(f.disconnects, provider)
	return nil
}

func (f *fakeSettings) ChangeCurrency(ctx context.Context, tenantID, currency string) (int, error) {
	f.currency = currency
	if f.currencyErr != nil {
		return 0, f.currencyErr
	}
	return 2, nil
}

type fakeSyncer struct {
	tenant   string
	provider enums.RevenueProvider
	result   *revsync.Result
	err      error
}

func (f *fakeSyncer) Sync(ctx context.Context, tenantID string, provider enums.RevenueProvider) (*revsync.Result, error) {
	f.tenant = tenantID
	f.provider = provider
	return f.result, f.err
}

type fakeAnalytics struct {
	stats        analytics.StatsRequest
	chart        analytics.ChartRequest
	transactions analytics.TransactionsRequest
	breakdown    analytics.BreakdownRequest
	err          error
}

func (f *fakeAnalytics) Stats(ctx context.Context, req analytics.StatsRequest) (*analytics.Stats, error) {
	f.stats = req
	return &analytics.Stats{SalesCount: 1}, f.err
}

func (f *fakeAnalytics) Chart(ctx context.Context, req analytics.ChartRequest) (*analytics.Chart, error) {
	f.chart = req
	return &analytics.Chart{Labels: req.Labels}, f.err
}

func (f *fakeAnalytics) Transactions(ctx context.Context, req analytics.TransactionsRequest) (*analytics.TransactionsPage, error) {
	f.transactions = req
	return &analytics.TransactionsPage{Take: req.Take, Skip: req.Skip}, f.err
}

func (f *fakeAnalytics) Breakdown(ctx context.Context, req analytics.BreakdownRequest) (*analytics.Breakdown, error) {
	f.breakdown = req
	return &analytics.Breakdown{}, f.err
}

// serve routes one request through a chi mux so URL params resolve, with the
// tenant already authenticated.
func serve(pattern, method, target, body string, handler http.HandlerFunc) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Method(method, pattern, handler)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithTenantID(req.Context(), "tenant-1"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func fixedNow(t time.Time) func() {
	prev := timeNowUTC
	timeNowUTC = func() time.Time { return t }
	return func() { timeNowUTC = prev }
}
