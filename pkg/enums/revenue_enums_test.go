package enums

import (
	"testing"
	"time"
)

func TestParseRevenueProvider(t *testing.T) {
	got, err := ParseRevenueProvider(" Stripe ")
	if err != nil || got != RevenueProviderStripe {
		t.Fatalf("expected stripe, got %q err=%v", got, err)
	}
	if _, err := ParseRevenueProvider("square"); err == nil {
		t.Fatal("expected square to be rejected")
	}
}

func TestTransactionTypeIsRevenue(t *testing.T) {
	if !TransactionTypeSale.IsRevenue() || !TransactionTypeSubscription.IsRevenue() {
		t.Fatal("sale and subscription count as revenue")
	}
	if TransactionTypeRefund.IsRevenue() {
		t.Fatal("refunds do not count as revenue")
	}
}

func TestGranularityLabels(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	cases := map[Granularity]string{
		GranularityMinute: "2026-03-14 09:26",
		GranularityHour:   "2026-03-14 09:00",
		GranularityDay:    "2026-03-14",
		GranularityMonth:  "2026-03",
		GranularityYear:   "2026",
	}
	for g, want := range cases {
		if got := g.Label(ts); got != want {
			t.Fatalf("%s: expected %q, got %q", g, want, got)
		}
	}
	if _, err := ParseGranularity("week"); err == nil {
		t.Fatal("week is not a supported granularity")
	}
}
