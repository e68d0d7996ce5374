package providers

import (
	"context"
	"time"

	"github.com/angelmondragon/revenue-engine/internal/revenue/types"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	"github.com/shopspring/decimal"
)

// PageSize is the number of items requested per provider page.
const PageSize = 100

// Adapter pulls transactions from one payment provider.
type Adapter interface {
	Provider() enums.RevenueProvider
	// ValidateCredential makes a cheap authenticated call. It reports false on
	// any non-2xx response or timeout and never returns an error.
	ValidateCredential(ctx context.Context, secret string) bool
	// SyncTransactions writes every successful sale/subscription and approved
	// refund updated at or after req.Since, and returns how many records were
	// durably written. On failure the count reflects the rows the sink
	// accepted before it.
	SyncTransactions(ctx context.Context, req SyncRequest) (int, error)
}

// SyncRequest carries the inputs of one sync pass.
type SyncRequest struct {
	TenantID          string
	Secret            string
	ReportingCurrency string
	// Since is the effective watermark; nil means all time.
	Since *time.Time
}

// Sink appends canonical transactions. A failed Insert persists none of txs.
type Sink interface {
	Insert(ctx context.Context, txs ...types.Transaction) error
}

// Converter converts amounts into the reporting currency, degrading to 1:1.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) decimal.Decimal
}
