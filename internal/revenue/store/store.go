package store

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/angelmondragon/revenue-engine/internal/revenue/types"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	"github.com/angelmondragon/revenue-engine/pkg/pagination"
)

// Sink appends one physical row per ingested transaction. It never checks
// for an existing row; readers resolve duplicates. A failed Insert leaves
// nothing behind.
type Sink interface {
	Insert(ctx context.Context, txs ...types.Transaction) error
}

// Reader serves the resolved view: one row per (tenant, transaction) with the
// greatest SyncedAt, filtered after resolution.
type Reader interface {
	Resolved(ctx context.Context, f Filter) ([]types.Transaction, error)
	Page(ctx context.Context, f Filter, page pagination.Params) ([]types.Transaction, int, error)
}

// Store is a Sink that can also be read back.
type Store interface {
	Sink
	Reader
}

// Filter narrows the resolved view. Zero values mean unbounded.
type Filter struct {
	TenantID string
	// Start is inclusive, End exclusive; both compare against Created.
	Start  time.Time
	End    time.Time
	Types  []enums.TransactionType
	Status enums.TransactionStatus
}

func (f Filter) Match(tx types.Transaction) bool {
	if tx.TenantID != f.TenantID {
		return false
	}
	if !f.Start.IsZero() && tx.Created.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && !tx.Created.Before(f.End) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, tx.Type) {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	return true
}

// Resolve keeps the row with the greatest SyncedAt for each key. On equal
// SyncedAt the row appended last wins.
func Resolve(rows []types.Transaction) []types.Transaction {
	latest := make(map[types.Key]int, len(rows))
	for i, row := range rows {
		if j, ok := latest[row.Key()]; !ok || !rows[j].Newer(row) {
			latest[row.Key()] = i
		}
	}
	out := make([]types.Transaction, 0, len(latest))
	for i, row := range rows {
		if latest[row.Key()] == i {
			out = append(out, row)
		}
	}
	return out
}

// SortNewestFirst orders by Created descending, then TransactionID descending
// so pages are stable.
func SortNewestFirst(rows []types.Transaction) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Created.Equal(rows[j].Created) {
			return rows[i].Created.After(rows[j].Created)
		}
		return rows[i].TransactionID > rows[j].TransactionID
	})
}
