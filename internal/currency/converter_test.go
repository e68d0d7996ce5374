package currency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/revenue-engine/pkg/redis"
	"github.com/shopspring/decimal"
)

type stubSource struct {
	table *RateTable
	err   error
	calls atomic.Int32
}

func (s *stubSource) Fetch(context.Context) (*RateTable, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	copied := *s.table
	return &copied, nil
}

func usdTable(fetchedAt time.Time) *RateTable {
	return &RateTable{
		Base: "USD",
		Rates: map[string]decimal.Decimal{
			"EUR": decimal.RequireFromString("0.925925925925926"),
			"GBP": decimal.RequireFromString("0.79"),
			"JPY": decimal.RequireFromString("151.2"),
		},
		FetchedAt: fetchedAt,
	}
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func TestConvertIdentitySkipsLookup(t *testing.T) {
	src := &stubSource{err: errors.New("must not be called")}
	conv := NewConverter(src)

	amount := decimal.RequireFromString("42.4242")
	got, err := conv.ConvertStrict(context.Background(), amount, "eur", "EUR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(amount) {
		t.Fatalf("expected identity, got %s", got)
	}
	if src.calls.Load() != 0 {
		t.Fatalf("identity conversion fetched rates")
	}
}

func TestConvertEURToUSD(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	src := &stubSource{table: usdTable(clock.now)}
	conv := NewConverter(src, WithClock(clock.Now))

	got := conv.Convert(context.Background(), decimal.RequireFromString("19.99"), "EUR", "USD")
	if got.Round(2).String() != "21.59" {
		t.Fatalf("expected 21.59, got %s", got.Round(2))
	}
}

func TestConvertDirectRateFromBase(t *testing.T) {
	src := &stubSource{table: &RateTable{
		Base:      "EUR",
		Rates:     map[string]decimal.Decimal{"USD": decimal.RequireFromString("1.08")},
		FetchedAt: time.Now(),
	}}
	conv := NewConverter(src)

	got, err := conv.ConvertStrict(context.Background(), decimal.RequireFromString("19.99"), "EUR", "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("21.5892")) {
		t.Fatalf("expected 21.5892, got %s", got)
	}
}

func TestPivotConversionConsistency(t *testing.T) {
	src := &stubSource{table: usdTable(time.Now())}
	conv := NewConverter(src)
	ctx := context.Background()
	one := decimal.NewFromInt(1)

	viaPivot, err := conv.ConvertStrict(ctx, one, "EUR", "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	viaPivot, err = conv.ConvertStrict(ctx, viaPivot, "USD", "GBP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	direct, err := conv.ConvertStrict(ctx, one, "EUR", "GBP")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := viaPivot.Sub(direct).Abs(); diff.GreaterThan(decimal.RequireFromString("0.000000001")) {
		t.Fatalf("pivot mismatch: %s vs %s", viaPivot, direct)
	}
}

func TestConvertFallsBackToIdentityWhenRatesUnavailable(t *testing.T) {
	src := &stubSource{err: errors.New("dns failure")}
	conv := NewConverter(src)
	ctx := context.Background()
	amount := decimal.RequireFromString("10.50")

	if _, err := conv.ConvertStrict(ctx, amount, "EUR", "USD"); !errors.Is(err, ErrRatesUnavailable) {
		t.Fatalf("expected ErrRatesUnavailable, got %v", err)
	}
	if got := conv.Convert(ctx, amount, "EUR", "USD"); !got.Equal(amount) {
		t.Fatalf("expected 1:1 fallback, got %s", got)
	}
}

func TestConvertUnknownCurrency(t *testing.T) {
	conv := NewConverter(&stubSource{table: usdTable(time.Now())})
	ctx := context.Background()

	if _, err := conv.ConvertStrict(ctx, decimal.NewFromInt(1), "XTS", "USD"); !errors.Is(err, ErrRateNotFound) {
		t.Fatalf("expected ErrRateNotFound, got %v", err)
	}
	if got := conv.Convert(ctx, decimal.NewFromInt(3), "XTS", "USD"); !got.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 1:1 fallback, got %s", got)
	}
}

func TestTableIsCachedUntilTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	src := &stubSource{table: usdTable(clock.now)}
	conv := NewConverter(src, WithClock(clock.Now), WithTTL(time.Hour))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		conv.Convert(ctx, decimal.NewFromInt(1), "EUR", "USD")
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("expected 1 fetch within ttl, got %d", got)
	}

	clock.now = clock.now.Add(2 * time.Hour)
	src.table = usdTable(clock.now)
	conv.Convert(ctx, decimal.NewFromInt(1), "EUR", "USD")
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("expected refetch after ttl, got %d", got)
	}
}

func TestStaleTablePreferredOverIdentity(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	src := &stubSource{table: usdTable(clock.now)}
	conv := NewConverter(src, WithClock(clock.Now), WithTTL(time.Hour))
	ctx := context.Background()

	first := conv.Convert(ctx, decimal.NewFromInt(100), "USD", "EUR")

	clock.now = clock.now.Add(3 * time.Hour)
	src.err = errors.New("upstream down")

	second, err := conv.ConvertStrict(ctx, decimal.NewFromInt(100), "USD", "EUR")
	if err != nil {
		t.Fatalf("expected stale table to serve, got %v", err)
	}
	if !second.Equal(first) {
		t.Fatalf("expected stale rate %s, got %s", first, second)
	}
}

func TestFailedRefreshWaitsForRetryBackoff(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	src := &stubSource{err: errors.New("upstream down")}
	conv := NewConverter(src, WithClock(clock.Now), WithRetryBackoff(time.Minute))
	ctx := context.Background()
	amount := decimal.NewFromInt(25)

	for i := 0; i < 50; i++ {
		if got := conv.Convert(ctx, amount, "EUR", "USD"); !got.Equal(amount) {
			t.Fatalf("expected 1:1 fallback, got %s", got)
		}
	}
	if _, err := conv.ConvertStrict(ctx, amount, "EUR", "USD"); !errors.Is(err, ErrRatesUnavailable) {
		t.Fatalf("expected ErrRatesUnavailable inside the backoff, got %v", err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("expected a single fetch inside the backoff, got %d", got)
	}

	clock.now = clock.now.Add(2 * time.Minute)
	src.table = usdTable(clock.now)
	src.err = nil
	got, err := conv.ConvertStrict(ctx, decimal.RequireFromString("19.99"), "EUR", "USD")
	if err != nil {
		t.Fatalf("expected refresh after the backoff, got %v", err)
	}
	if got.Round(2).String() != "21.59" {
		t.Fatalf("expected 21.59, got %s", got.Round(2))
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("expected a second fetch after the backoff, got %d", got)
	}
}

func TestStaleTableServedWithoutRefetchDuringBackoff(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	src := &stubSource{table: usdTable(clock.now)}
	conv := NewConverter(src, WithClock(clock.Now), WithTTL(time.Hour), WithRetryBackoff(10*time.Minute))
	ctx := context.Background()

	first := conv.Convert(ctx, decimal.NewFromInt(100), "USD", "EUR")
	clock.now = clock.now.Add(2 * time.Hour)
	src.err = errors.New("upstream down")

	for i := 0; i < 20; i++ {
		if got := conv.Convert(ctx, decimal.NewFromInt(100), "USD", "EUR"); !got.Equal(first) {
			t.Fatalf("expected stale rate %s, got %s", first, got)
		}
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("expected one failed refetch, got %d fetches", got)
	}
}

type memoryKV struct {
	data map[string]string
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryKV) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.data[key] = value.(string)
	return nil
}

func (m *memoryKV) RatesKey(base string) string {
	return "rev:fx_rates:" + base
}

func TestSharedCacheAvoidsSecondRemoteFetch(t *testing.T) {
	kv := &memoryKV{data: map[string]string{}}
	now := time.Now()

	firstSrc := &stubSource{table: usdTable(now)}
	first := NewConverter(firstSrc, WithCache(NewRedisCache(kv, "usd")))
	first.Convert(context.Background(), decimal.NewFromInt(1), "EUR", "USD")
	if _, ok := kv.data["rev:fx_rates:USD"]; !ok {
		t.Fatalf("expected rate table written to shared cache")
	}

	secondSrc := &stubSource{err: errors.New("must not be called")}
	second := NewConverter(secondSrc, WithCache(NewRedisCache(kv, "USD")))
	got, err := second.ConvertStrict(context.Background(), decimal.RequireFromString("19.99"), "EUR", "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Round(2).String() != "21.59" {
		t.Fatalf("expected 21.59 from cached table, got %s", got.Round(2))
	}
	if secondSrc.calls.Load() != 0 {
		t.Fatalf("expected cache hit without remote fetch")
	}
}

func TestHTTPSourceParsesBothShapes(t *testing.T) {
	bodies := []string{
		`{"result":"success","base_code":"usd","rates":{"EUR":0.92,"usd":1}}`,
		`{"base":"USD","rates":{"EUR":"0.92","BAD":0}}`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}))

		src, err := NewHTTPSource(srv.URL, time.Second, srv.Client())
		if err != nil {
			t.Fatalf("new source: %v", err)
		}
		table, err := src.Fetch(context.Background())
		srv.Close()
		if err != nil {
			t.Fatalf("fetch %s: %v", body, err)
		}
		if table.Base != "USD" {
			t.Fatalf("expected USD base, got %s", table.Base)
		}
		if !table.Rates["EUR"].Equal(decimal.RequireFromString("0.92")) {
			t.Fatalf("unexpected EUR rate %s", table.Rates["EUR"])
		}
		if _, ok := table.Rates["BAD"]; ok {
			t.Fatalf("non-positive rates must be dropped")
		}
	}
}

func TestHTTPSourceRejectsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/error" {
			_, _ = w.Write([]byte(`{"result":"error"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	for _, path := range []string{"/down", "/error"} {
		src, _ := NewHTTPSource(srv.URL+path, time.Second, srv.Client())
		if _, err := src.Fetch(context.Background()); err == nil {
			t.Fatalf("expected error for %s", path)
		}
	}
}
