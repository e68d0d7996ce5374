package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/revenue-engine/internal/providers"
	"github.com/angelmondragon/revenue-engine/internal/revenue/types"
	"github.com/angelmondragon/revenue-engine/pkg/config"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	"github.com/shopspring/decimal"
)

type memorySink struct {
	rows []types.Transaction
}

func (s *memorySink) Insert(_ context.Context, txs ...types.Transaction) error {
	s.rows = append(s.rows, txs...)
	return nil
}

type identityConverter struct{}

func (identityConverter) Convert(_ context.Context, amount decimal.Decimal, _, _ string) decimal.Decimal {
	return amount
}

func newTestAdapter(t *testing.T, srv *httptest.Server, timeout time.Duration) (*Adapter, *memorySink) {
	t.Helper()
	sink := &memorySink{}
	ingestor, err := providers.NewIngestor(sink, identityConverter{})
	if err != nil {
		t.Fatalf("new ingestor: %v", err)
	}
	adapter, err := New(config.StripeConfig{BaseURL: srv.URL, RequestTimeout: timeout}, ingestor, nil, srv.Client())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter, sink
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func intentPage(from, count int, hasMore bool) map[string]any {
	data := make([]map[string]any, 0, count)
	for i := from; i < from+count; i++ {
		data = append(data, map[string]any{
			"id":              fmt.Sprintf("pi_%03d", i),
			"amount":          1000,
			"amount_received": 1000,
			"currency":        "usd",
			"status":          "succeeded",
			"created":         1767225600 + int64(i),
			"metadata":        map[string]string{},
		})
	}
	return map[string]any{"object": "list", "data": data, "has_more": hasMore}
}

func emptyList() map[string]any {
	return map[string]any{"object": "list", "data": []any{}, "has_more": false}
}

func TestSyncFollowsPagination(t *testing.T) {
	var intentCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("authorization = %q", got)
		}
		if r.Header.Get("Stripe-Version") == "" {
			t.Error("stripe-go must pin an api version")
		}
		switch r.URL.Path {
		case paymentIntentsPath:
			intentCalls.Add(1)
			if r.URL.Query().Get("limit") != "100" {
				t.Errorf("limit = %q", r.URL.Query().Get("limit"))
			}
			switch r.URL.Query().Get("starting_after") {
			case "":
				writeJSON(t, w, intentPage(0, 50, true))
			case "pi_049":
				writeJSON(t, w, intentPage(50, 50, true))
			case "pi_099":
				writeJSON(t, w, intentPage(100, 20, false))
			default:
				t.Errorf("unexpected cursor %q", r.URL.Query().Get("starting_after"))
				w.WriteHeader(http.StatusBadRequest)
			}
		case refundsPath, invoicesPath:
			writeJSON(t, w, emptyList())
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	adapter, sink := newTestAdapter(t, srv, time.Second)
	written, err := adapter.SyncTransactions(context.Background(), providers.SyncRequest{TenantID: "t1", Secret: "sk_test", ReportingCurrency: "USD"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if written != 120 || len(sink.rows) != 120 {
		t.Fatalf("written = %d rows = %d, want 120", written, len(sink.rows))
	}
	if got := intentCalls.Load(); got != 3 {
		t.Fatalf("payment intent requests = %d, want 3", got)
	}
	first := sink.rows[0]
	if first.Provider != enums.RevenueProviderStripe || first.Type != enums.TransactionTypeSale {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if !first.Amount.Equal(decimal.RequireFromString("10")) || first.Currency != "USD" {
		t.Fatalf("amount = %s %s", first.Amount, first.Currency)
	}
}

func TestSyncSendsCreatedFilter(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := since.Unix()
		if r.URL.Path == invoicesPath {
			want = since.Add(-invoiceLookback).Unix()
			if got := r.URL.Query().Get("status"); got != "paid" {
				t.Errorf("invoice status = %q", got)
			}
		}
		if got := r.URL.Query().Get("created[gte]"); got != fmt.Sprint(want) {
			t.Errorf("%s created[gte] = %q, want %d", r.URL.Path, got, want)
		}
		writeJSON(t, w, emptyList())
	}))
	defer srv.Close()

	adapter, _ := newTestAdapter(t, srv, time.Second)
	if _, err := adapter.SyncTransactions(context.Background(), providers.SyncRequest{TenantID: "t1", Secret: "sk", Since: &since}); err != nil {
		t.Fatalf("sync: %v", err)
	}
}

func TestSyncClassifiesAndAttributes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case invoicesPath:
			writeJSON(t, w, map[string]any{
				"object":   "list",
				"has_more": false,
				"data": []map[string]any{
					{
						"id": "in_1", "status": "paid",
						"parent": map[string]any{
							"type":                 "subscription_details",
							"subscription_details": map[string]any{"subscription": "sub_1", "metadata": map[string]string{}},
						},
						"lines": map[string]any{"object": "list", "data": []map[string]any{{
							"id": "il_1", "description": "Pro plan",
							"pricing": map[string]any{"type": "price_details", "price_details": map[string]any{"price": "price_1", "product": "prod_pro"}},
						}}},
						"payments": map[string]any{"object": "list", "data": []map[string]any{{
							"id": "inpay_1", "payment": map[string]any{"type": "payment_intent", "payment_intent": "pi_sub"},
						}}},
					},
					{
						"id": "in_2", "status": "paid",
						"metadata": map[string]string{"analytics_session_id": "sess_inv"},
						"lines": map[string]any{"object": "list", "data": []map[string]any{{
							"id": "il_2", "subscription": "sub_2",
							"parent": map[string]any{
								"type":                      "subscription_item_details",
								"subscription_item_details": map[string]any{"subscription": "sub_2", "subscription_item": "si_2"},
							},
							"pricing": map[string]any{"type": "price_details", "price_details": map[string]any{"price": "price_2", "product": "prod_x"}},
						}}},
						"payments": map[string]any{"object": "list", "data": []map[string]any{{
							"id": "inpay_2", "payment": map[string]any{"type": "payment_intent", "payment_intent": "pi_recurring_line"},
						}}},
					},
				},
			})
		case paymentIntentsPath:
			writeJSON(t, w, map[string]any{
				"object":   "list",
				"has_more": false,
				"data": []map[string]any{
					{
						"id": "pi_sub", "amount": 2500, "amount_received": 2500, "currency": "eur",
						"status": "succeeded", "created": 1767225600,
						"metadata":      map[string]string{"analytics_profile_id": "prof_1"},
						"latest_charge": map[string]any{"id": "ch_1", "metadata": map[string]string{"analytics_session_id": "sess_1"}},
					},
					{
						"id": "pi_recurring_line", "amount": 900, "amount_received": 0, "currency": "usd",
						"status": "succeeded", "created": 1767225601,
					},
					{
						"id": "pi_sale", "amount": 1500, "amount_received": 1500, "currency": "jpy",
						"status": "succeeded", "created": 1767225602,
					},
					{"id": "pi_pending", "amount": 100, "currency": "usd", "status": "processing", "created": 1767225603},
				},
			})
		case refundsPath:
			writeJSON(t, w, map[string]any{
				"object":   "list",
				"has_more": false,
				"data": []map[string]any{
					{
						"id": "re_1", "amount": 500, "currency": "usd", "status": "succeeded", "created": 1767225700,
						"payment_intent": "pi_sale",
						"charge":         map[string]any{"id": "ch_9", "metadata": map[string]string{"analytics_profile_id": "prof_9"}},
					},
					{
						"id": "re_2", "amount": 250, "currency": "usd", "status": "succeeded", "created": 1767225702,
						"payment_intent": "pi_recurring_line",
					},
					{"id": "re_failed", "amount": 500, "currency": "usd", "status": "failed", "created": 1767225701},
				},
			})
		}
	}))
	defer srv.Close()

	adapter, sink := newTestAdapter(t, srv, time.Second)
	written, err := adapter.SyncTransactions(context.Background(), providers.SyncRequest{TenantID: "t1", Secret: "sk"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if written != 5 {
		t.Fatalf("written = %d, want 5", written)
	}

	byID := map[string]types.Transaction{}
	for _, row := range sink.rows {
		byID[row.TransactionID] = row
	}

	sub := byID["pi_sub"]
	if sub.Type != enums.TransactionTypeSubscription {
		t.Fatalf("pi_sub type = %s", sub.Type)
	}
	if sub.ProfileID == nil || *sub.ProfileID != "prof_1" || sub.SessionID == nil || *sub.SessionID != "sess_1" {
		t.Fatalf("pi_sub attribution = %v %v", sub.ProfileID, sub.SessionID)
	}
	if sub.ProductID == nil || *sub.ProductID != "prod_pro" || sub.ProductName == nil || *sub.ProductName != "Pro plan" {
		t.Fatalf("pi_sub product = %v %v", sub.ProductID, sub.ProductName)
	}
	if !sub.OriginalAmount.Equal(decimal.RequireFromString("25")) || sub.OriginalCurrency != "EUR" {
		t.Fatalf("pi_sub original = %s %s", sub.OriginalAmount, sub.OriginalCurrency)
	}

	line := byID["pi_recurring_line"]
	if line.Type != enums.TransactionTypeSubscription {
		t.Fatalf("recurring line type = %s", line.Type)
	}
	if !line.OriginalAmount.Equal(decimal.RequireFromString("9")) {
		t.Fatalf("amount fallback = %s", line.OriginalAmount)
	}
	if line.ProductID == nil || *line.ProductID != "prod_x" || line.SessionID == nil || *line.SessionID != "sess_inv" {
		t.Fatalf("invoice attribution = %v %v", line.ProductID, line.SessionID)
	}

	sale := byID["pi_sale"]
	if sale.Type != enums.TransactionTypeSale || !sale.OriginalAmount.Equal(decimal.RequireFromString("1500")) {
		t.Fatalf("pi_sale = %s %s", sale.Type, sale.OriginalAmount)
	}
	if _, ok := byID["pi_pending"]; ok {
		t.Fatal("non-succeeded intent was ingested")
	}

	re := byID["re_1"]
	if re.Type != enums.TransactionTypeRefund || re.Status != enums.TransactionStatusRefunded {
		t.Fatalf("refund = %s %s", re.Type, re.Status)
	}
	if !re.OriginalAmount.Equal(decimal.RequireFromString("-5")) {
		t.Fatalf("refund amount = %s, want -5.00", re.OriginalAmount)
	}
	if re.ProfileID == nil || *re.ProfileID != "prof_9" {
		t.Fatalf("refund attribution = %v", re.ProfileID)
	}
	if re.Metadata["payment_intent"] != "pi_sale" {
		t.Fatalf("refund metadata = %v", re.Metadata)
	}

	re2 := byID["re_2"]
	if re2.ProductID == nil || *re2.ProductID != "prod_x" {
		t.Fatalf("refund should inherit the invoice product, got %v", re2.ProductID)
	}
}

func TestSyncTimeoutReportsPartialCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == invoicesPath {
			writeJSON(t, w, emptyList())
			return
		}
		if r.URL.Query().Get("starting_after") == "" {
			writeJSON(t, w, intentPage(0, 3, true))
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	adapter, sink := newTestAdapter(t, srv, 50*time.Millisecond)
	written, err := adapter.SyncTransactions(context.Background(), providers.SyncRequest{TenantID: "t1", Secret: "sk"})
	if !errors.Is(err, providers.ErrProviderTimeout) {
		t.Fatalf("expected provider timeout, got %v", err)
	}
	if written != 3 || len(sink.rows) != 3 {
		t.Fatalf("written = %d rows = %d, want 3", written, len(sink.rows))
	}
}

func TestSyncAPIErrorOnRefunds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case refundsPath:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid API Key provided"}}`))
		case invoicesPath:
			writeJSON(t, w, emptyList())
		default:
			writeJSON(t, w, intentPage(0, 2, false))
		}
	}))
	defer srv.Close()

	adapter, _ := newTestAdapter(t, srv, time.Second)
	written, err := adapter.SyncTransactions(context.Background(), providers.SyncRequest{TenantID: "t1", Secret: "sk"})
	var apiErr *providers.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api error, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "Invalid API Key provided" {
		t.Fatalf("api error = %+v", apiErr)
	}
	if written != 2 {
		t.Fatalf("written = %d, want 2", written)
	}
}

func TestValidateCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk_good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(t, w, emptyList())
	}))
	defer srv.Close()

	adapter, _ := newTestAdapter(t, srv, time.Second)
	if !adapter.ValidateCredential(context.Background(), "sk_good") {
		t.Fatal("expected valid credential")
	}
	if adapter.ValidateCredential(context.Background(), "sk_bad") {
		t.Fatal("expected invalid credential")
	}
	if adapter.ValidateCredential(context.Background(), "") {
		t.Fatal("empty credential must be invalid")
	}
}

func TestSyncRateLimitIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"Too many requests"}}`))
	}))
	defer srv.Close()

	adapter, sink := newTestAdapter(t, srv, time.Second)
	written, err := adapter.SyncTransactions(context.Background(), providers.SyncRequest{TenantID: "t1", Secret: "sk"})
	if got := providers.StatusOf(err); got != http.StatusTooManyRequests {
		t.Fatalf("status = %d (%v)", got, err)
	}
	if written != 0 || len(sink.rows) != 0 {
		t.Fatalf("written = %d rows = %d, want nothing", written, len(sink.rows))
	}
}
