package currency

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RateTable holds exchange rates quoted against Base: 1 Base = Rates[X] X.
type RateTable struct {
	Base      string                     `json:"base"`
	Rates     map[string]decimal.Decimal `json:"rates"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// Expired reports whether the table is older than ttl at now.
func (t *RateTable) Expired(now time.Time, ttl time.Duration) bool {
	if t == nil || t.FetchedAt.IsZero() {
		return true
	}
	return ttl > 0 && now.Sub(t.FetchedAt) >= ttl
}

// quote returns the number of units of code per one Base.
func (t *RateTable) quote(code string) (decimal.Decimal, bool) {
	if t == nil {
		return decimal.Decimal{}, false
	}
	if code == t.Base {
		return decimal.NewFromInt(1), true
	}
	rate, ok := t.Rates[code]
	if !ok || !rate.IsPositive() {
		return decimal.Decimal{}, false
	}
	return rate, true
}

// convert applies the direct rate when from is the base, otherwise goes
// through the base as pivot: 1 from = 1/rate[from] base = rate[to]/rate[from] to.
func (t *RateTable) convert(amount decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	if from == t.Base {
		rate, ok := t.quote(to)
		if !ok {
			return decimal.Decimal{}, false
		}
		return amount.Mul(rate), true
	}

	fromRate, ok := t.quote(from)
	if !ok {
		return decimal.Decimal{}, false
	}
	toRate, ok := t.quote(to)
	if !ok {
		return decimal.Decimal{}, false
	}
	return amount.Div(fromRate).Mul(toRate), true
}

// NormalizeCode upper-cases and trims an ISO 4217 code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
