package analytics

import (
	"time"

	"github.com/angelmondragon/revenue-engine/internal/revenue/types"
	"github.com/shopspring/decimal"
)

// StatsRequest selects the period [Start, End).
type StatsRequest struct {
	TenantID string    `json:"tenant_id" validate:"required"`
	Start    time.Time `json:"start" validate:"required"`
	End      time.Time `json:"end" validate:"required,gtfield=Start"`
}

// Stats summarizes a period. Money is in the tenant's reporting currency,
// rounded to 2 places.
type Stats struct {
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	SalesCount        int             `json:"salesCount"`
	RefundsCount      int             `json:"refundsCount"`
	RefundsAmount     decimal.Decimal `json:"refundsAmount"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
	// MRR sums subscription revenue inside the period. It does not normalize
	// for period length or active subscribers.
	MRR decimal.Decimal `json:"mrr"`
	// RevenueChange is the percentage change against the preceding period of
	// equal length.
	RevenueChange decimal.Decimal `json:"revenueChange"`
}

type ChartRequest struct {
	TenantID    string    `json:"tenant_id" validate:"required"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required,gtfield=Start"`
	Granularity string    `json:"granularity" validate:"required,granularity"`
	Timezone    string    `json:"timezone" validate:"required,timezone"`
	// Labels is the x-axis; buckets not in it are dropped.
	Labels []string `json:"labels" validate:"required,min=1"`
}

// Chart holds series parallel to Labels.
type Chart struct {
	Labels       []string          `json:"labels"`
	Revenue      []decimal.Decimal `json:"revenue"`
	Refunds      []decimal.Decimal `json:"refunds"`
	Transactions []int             `json:"transactions"`
}

type TransactionsRequest struct {
	TenantID string    `json:"tenant_id" validate:"required"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end" validate:"omitempty,gtfield=Start"`
	Type     string    `json:"type" validate:"omitempty,transaction_type"`
	Status   string    `json:"status" validate:"omitempty,transaction_status"`
	Take     int       `json:"take" validate:"min=0,max=100"`
	Skip     int       `json:"skip" validate:"min=0"`
}

type TransactionsPage struct {
	Items []types.Transaction `json:"items"`
	Total int                 `json:"total"`
	Take  int                 `json:"take"`
	Skip  int                 `json:"skip"`
}

type BreakdownRequest struct {
	TenantID string    `json:"tenant_id" validate:"required"`
	Start    time.Time `json:"start" validate:"required"`
	End      time.Time `json:"end" validate:"required,gtfield=Start"`
}

// BreakdownEntry is one group of sale-type revenue.
type BreakdownEntry struct {
	Name    string          `json:"name"`
	Revenue decimal.Decimal `json:"revenue"`
	Count   int             `json:"count"`
}

// Breakdown groups are ordered by revenue, highest first.
type Breakdown struct {
	Sources   []BreakdownEntry `json:"sources"`
	Countries []BreakdownEntry `json:"countries"`
	Products  []BreakdownEntry `json:"products"`
}
