package store

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/angelmondragon/revenue-engine/internal/revenue/types"
	"github.com/angelmondragon/revenue-engine/pkg/pagination"
)

// Memory is a process-local append-only store for development and tests.
type Memory struct {
	mu   sync.RWMutex
	rows []types.Transaction
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Insert(ctx context.Context, txs ...types.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := make([]types.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.TenantID == "" || tx.TransactionID == "" {
			return errors.New("transaction key is required")
		}
		tx.Metadata = maps.Clone(tx.Metadata)
		rows = append(rows, tx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
	return nil
}

// Len returns the number of physical rows, duplicates included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func (m *Memory) Resolved(ctx context.Context, f Filter) ([]types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	tenantRows := make([]types.Transaction, 0, len(m.rows))
	for _, row := range m.rows {
		if row.TenantID == f.TenantID {
			tenantRows = append(tenantRows, row)
		}
	}
	m.mu.RUnlock()

	resolved := Resolve(tenantRows)
	out := resolved[:0]
	for _, row := range resolved {
		if f.Match(row) {
			out = append(out, row)
		}
	}
	SortNewestFirst(out)
	return out, nil
}

func (m *Memory) Page(ctx context.Context, f Filter, page pagination.Params) ([]types.Transaction, int, error) {
	rows, err := m.Resolved(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total := len(rows)
	start, end := page.Window(total)
	return rows[start:end], total, nil
}
