package paddle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
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

type eurToUSD struct{}

func (eurToUSD) Convert(_ context.Context, amount decimal.Decimal, from, to string) decimal.Decimal {
	if from == "EUR" && to == "USD" {
		return amount.Mul(decimal.RequireFromString("1.08"))
	}
	return amount
}

func newTestAdapter(t *testing.T, srv *httptest.Server, timeout time.Duration) (*Adapter, *memorySink) {
	t.Helper()
	sink := &memorySink{}
	ingestor, err := providers.NewIngestor(sink, eurToUSD{})
	if err != nil {
		t.Fatalf("new ingestor: %v", err)
	}
	adapter, err := New(config.PaddleConfig{BaseURL: srv.URL, RequestTimeout: timeout}, ingestor, nil, srv.Client())
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

func page(data any, next string) map[string]any {
	return map[string]any{
		"data": data,
		"meta": map[string]any{
			"request_id": "req",
			"pagination": map[string]any{"per_page": 100, "next": next, "has_more": next != ""},
		},
	}
}

func TestSyncMapsTransactionsAndRefunds(t *testing.T) {
	var srv *httptest.Server
	transactionCalls := 0
	var lookups []string
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer pdl_key" {
			t.Errorf("authorization = %q", got)
		}
		query := r.URL.Query()
		switch r.URL.Path {
		case transactionsPath:
			if ids := query["id"]; len(ids) > 0 {
				lookups = append(lookups, strings.Join(ids, ","))
				writeJSON(t, w, page([]map[string]any{{
					"id": "txn_older", "status": "completed", "currency_code": "USD",
					"custom_data": map[string]any{"analytics_profile_id": "prof_old"},
					"details":     map[string]any{"totals": map[string]any{"grand_total": "800"}},
					"created_at":  "2025-11-05T10:00:00Z", "updated_at": "2025-11-05T10:00:00Z",
				}}, ""))
				return
			}
			transactionCalls++
			if query.Get("after") == "" {
				if got := strings.Join(query["status"], ","); got != "paid,completed" {
					t.Errorf("status filter = %q", got)
				}
				if got := query.Get("per_page"); got != "30" {
					t.Errorf("per_page = %q", got)
				}
				if got := query.Get("order_by"); got != "updated_at[DESC]" {
					t.Errorf("order_by = %q", got)
				}
				writeJSON(t, w, page([]map[string]any{{
					"id": "txn_sub", "status": "completed", "currency_code": "EUR", "subscription_id": "sub_1",
					"custom_data": map[string]any{"analytics_profile_id": "prof_1", "analytics_session_id": "sess_1", "plan": 3},
					"details":     map[string]any{"totals": map[string]any{"grand_total": "1999"}, "line_items": []map[string]any{{"product": map[string]any{"id": "pro_1", "name": "Pro"}}}},
					"created_at":  "2026-01-05T10:00:00Z",
					"updated_at":  "2026-01-06T12:00:00Z",
					"billed_at":   "2026-01-05T10:01:00Z",
				}}, srv.URL+transactionsPath+"?after=txn_sub"))
				return
			}
			writeJSON(t, w, page([]map[string]any{{
				"id": "txn_sale", "status": "paid", "currency_code": "JPY",
				"items":      []map[string]any{{"quantity": 1, "price": map[string]any{"id": "pri_1", "product_id": "pro_2", "name": "Sticker"}}},
				"details":    map[string]any{"totals": map[string]any{"grand_total": "1500"}},
				"created_at": "2026-01-06T10:00:00Z",
				"updated_at": "2026-01-06T10:00:00Z",
			}}, ""))
		case adjustmentsPath:
			if got := query.Get("action"); got != "refund" {
				t.Errorf("action = %q", got)
			}
			if got := query.Get("status"); got != "approved" {
				t.Errorf("adjustment status = %q", got)
			}
			writeJSON(t, w, page([]map[string]any{
				{
					"id": "adj_1", "action": "refund", "transaction_id": "txn_sub", "status": "approved", "reason": "duplicate",
					"currency_code": "EUR", "totals": map[string]any{"total": "500"},
					"created_at": "2026-01-07T10:00:00Z", "updated_at": "2026-01-07T10:00:00Z",
				},
				{
					"id": "adj_2", "action": "refund", "transaction_id": "txn_older", "status": "approved",
					"currency_code": "USD", "totals": map[string]any{"total": "300"},
					"created_at": "2026-01-08T10:00:00Z", "updated_at": "2026-01-08T10:00:00Z",
				},
				{
					"id": "adj_old", "action": "refund", "transaction_id": "txn_x", "status": "approved",
					"currency_code": "EUR", "totals": map[string]any{"total": "100"},
					"created_at": "2025-06-01T10:00:00Z", "updated_at": "2025-06-01T10:00:00Z",
				},
			}, ""))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	adapter, sink := newTestAdapter(t, srv, time.Second)
	written, err := adapter.SyncTransactions(context.Background(), providers.SyncRequest{
		TenantID: "t1", Secret: "pdl_key", ReportingCurrency: "USD", Since: &since,
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if written != 4 || transactionCalls != 2 {
		t.Fatalf("written = %d transaction calls = %d", written, transactionCalls)
	}
	if len(lookups) != 1 || lookups[0] != "txn_older" {
		t.Fatalf("origin lookups = %v, want only the unseen transaction", lookups)
	}

	byID := map[string]types.Transaction{}
	for _, row := range sink.rows {
		byID[row.TransactionID] = row
	}

	sub := byID["txn_sub"]
	if sub.Type != enums.TransactionTypeSubscription {
		t.Fatalf("txn_sub type = %s", sub.Type)
	}
	if !sub.OriginalAmount.Equal(decimal.RequireFromString("19.99")) || sub.OriginalCurrency != "EUR" {
		t.Fatalf("txn_sub original = %s %s", sub.OriginalAmount, sub.OriginalCurrency)
	}
	if got := sub.Amount.Round(2); !got.Equal(decimal.RequireFromString("21.59")) || sub.Currency != "USD" {
		t.Fatalf("txn_sub converted = %s %s", got, sub.Currency)
	}
	if !sub.Created.Equal(time.Date(2026, 1, 5, 10, 1, 0, 0, time.UTC)) {
		t.Fatalf("txn_sub created = %s", sub.Created)
	}
	if sub.ProductName == nil || *sub.ProductName != "Pro" || sub.Metadata["subscription_id"] != "sub_1" {
		t.Fatalf("txn_sub product/metadata = %v %v", sub.ProductName, sub.Metadata)
	}
	if _, ok := sub.Metadata["plan"]; ok {
		t.Fatal("non-string custom data should be dropped")
	}

	sale := byID["txn_sale"]
	if sale.Type != enums.TransactionTypeSale || !sale.OriginalAmount.Equal(decimal.RequireFromString("1500")) {
		t.Fatalf("txn_sale = %s %s", sale.Type, sale.OriginalAmount)
	}
	if sale.ProductID == nil || *sale.ProductID != "pro_2" || sale.ProductName == nil || *sale.ProductName != "Sticker" {
		t.Fatalf("txn_sale product = %v %v", sale.ProductID, sale.ProductName)
	}

	refund := byID["adj_1"]
	if refund.Type != enums.TransactionTypeRefund || refund.Status != enums.TransactionStatusRefunded {
		t.Fatalf("refund = %s %s", refund.Type, refund.Status)
	}
	if !refund.OriginalAmount.Equal(decimal.RequireFromString("-5")) || refund.Amount.Sign() >= 0 {
		t.Fatalf("refund amounts = %s %s", refund.OriginalAmount, refund.Amount)
	}
	if refund.ProfileID == nil || *refund.ProfileID != "prof_1" || refund.SessionID == nil || *refund.SessionID != "sess_1" {
		t.Fatalf("refund attribution = %v %v", refund.ProfileID, refund.SessionID)
	}
	if refund.Metadata["reason"] != "duplicate" || refund.Metadata["transaction_id"] != "txn_sub" {
		t.Fatalf("refund metadata = %v", refund.Metadata)
	}

	looked := byID["adj_2"]
	if looked.ProfileID == nil || *looked.ProfileID != "prof_old" {
		t.Fatalf("refund of an unlisted transaction should carry its attribution, got %v", looked.ProfileID)
	}
	if _, ok := byID["adj_old"]; ok {
		t.Fatal("adjustment before the watermark was ingested")
	}
}

func TestSyncStopsAtWatermark(t *testing.T) {
	since := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	var srv *httptest.Server
	transactionCalls := 0
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != transactionsPath {
			writeJSON(t, w, page([]any{}, ""))
			return
		}
		transactionCalls++
		writeJSON(t, w, page([]map[string]any{
			{
				"id": "txn_new", "status": "paid", "currency_code": "USD",
				"details":    map[string]any{"totals": map[string]any{"grand_total": "1000"}},
				"created_at": "2026-02-01T08:00:00Z", "updated_at": "2026-02-01T08:30:00Z",
			},
			{
				"id": "txn_stale", "status": "completed", "currency_code": "USD",
				"details":    map[string]any{"totals": map[string]any{"grand_total": "1000"}},
				"created_at": "2026-01-20T08:00:00Z", "updated_at": "2026-02-01T08:29:59Z",
			},
		}, srv.URL+transactionsPath+"?after=txn_stale"))
	}))
	defer srv.Close()

	adapter, sink := newTestAdapter(t, srv, time.Second)
	written, err := adapter.SyncTransactions(context.Background(), providers.SyncRequest{TenantID: "t1", Secret: "k", Since: &since})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if written != 1 || len(sink.rows) != 1 || sink.rows[0].TransactionID != "txn_new" {
		t.Fatalf("written = %d rows = %+v", written, sink.rows)
	}
	if transactionCalls != 1 {
		t.Fatalf("transaction calls = %d, the next page is older than the watermark", transactionCalls)
	}
}

func TestSyncPaginationExhaustion(t *testing.T) {
	var srv *httptest.Server
	calls := 0
	batch := func(from, count int) []map[string]any {
		out := make([]map[string]any, 0, count)
		for i := from; i < from+count; i++ {
			out = append(out, map[string]any{
				"id": fmt.Sprintf("txn_%03d", i), "status": "completed", "currency_code": "USD",
				"details":    map[string]any{"totals": map[string]any{"grand_total": "1000"}},
				"created_at": "2026-01-05T10:00:00Z",
			})
		}
		return out
	}
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == adjustmentsPath {
			writeJSON(t, w, page([]any{}, ""))
			return
		}
		calls++
		switch r.URL.Query().Get("after") {
		case "":
			writeJSON(t, w, page(batch(0, 50), srv.URL+transactionsPath+"?after=txn_049"))
		case "txn_049":
			writeJSON(t, w, page(batch(50, 50), srv.URL+transactionsPath+"?after=txn_099"))
		default:
			writeJSON(t, w, page(batch(100, 20), ""))
		}
	}))
	defer srv.Close()

	adapter, sink := newTestAdapter(t, srv, time.Second)
	written, err := adapter.SyncTransactions(context.Background(), providers.SyncRequest{TenantID: "t1", Secret: "k"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if written != 120 || len(sink.rows) != 120 || calls != 3 {
		t.Fatalf("written = %d rows = %d calls = %d", written, len(sink.rows), calls)
	}
}

func TestSyncAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"type":"request_error","code":"forbidden","detail":"You aren't permitted"}}`))
	}))
	defer srv.Close()

	adapter, _ := newTestAdapter(t, srv, time.Second)
	written, err := adapter.SyncTransactions(context.Background(), providers.SyncRequest{TenantID: "t1", Secret: "k"})
	var apiErr *providers.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden || apiErr.Message != "You aren't permitted" {
		t.Fatalf("expected api error, got %v", err)
	}
	if written != 0 {
		t.Fatalf("written = %d", written)
	}
}

func TestSyncTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	adapter, _ := newTestAdapter(t, srv, 50*time.Millisecond)
	if _, err := adapter.SyncTransactions(context.Background(), providers.SyncRequest{TenantID: "t1", Secret: "k"}); !providers.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestMalformedAmountAbortsPass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, page([]map[string]any{{
			"id": "txn_bad", "status": "paid", "currency_code": "USD",
			"details": map[string]any{"totals": map[string]any{"grand_total": "12.5x"}},
		}}, ""))
	}))
	defer srv.Close()

	adapter, _ := newTestAdapter(t, srv, time.Second)
	if _, err := adapter.SyncTransactions(context.Background(), providers.SyncRequest{TenantID: "t1", Secret: "k"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != eventTypesPath || r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(t, w, page([]any{}, ""))
	}))
	defer srv.Close()

	adapter, _ := newTestAdapter(t, srv, time.Second)
	if !adapter.ValidateCredential(context.Background(), "good") {
		t.Fatal("expected valid")
	}
	if adapter.ValidateCredential(context.Background(), "bad") {
		t.Fatal("expected invalid")
	}
}

func TestSyncNonJSONErrorKeepsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter, _ := newTestAdapter(t, srv, time.Second)
	_, err := adapter.SyncTransactions(context.Background(), providers.SyncRequest{TenantID: "t1", Secret: "k"})
	if got := providers.StatusOf(err); got != http.StatusServiceUnavailable {
		t.Fatalf("status = %d (%v)", got, err)
	}
}
