package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/angelmondragon/revenue-engine/internal/revenue/types"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// WriterConfig controls the BigQuery sink.
type WriterConfig struct {
	Table       string
	RetryPolicy RetryPolicy
}

// RetryPolicy bounds the exponential backoff used for transient insert failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(defaultMaximumBackoff, p.InitialBackoff)
	}
	return p
}

func (p RetryPolicy) options() []backoff.RetryOption {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialBackoff
	exp.MaxInterval = p.MaximumBackoff
	return []backoff.RetryOption{
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
	}
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter appends transaction rows to the streaming table. It holds no
// rows between calls: each Insert is one InsertRows request, retried on
// transient failures and abandoned on permanent ones.
type BigQueryWriter struct {
	client tableInserter
	table  string
	retry  RetryPolicy
}

var _ Sink = (*BigQueryWriter)(nil)

func NewBigQueryWriter(client tableInserter, cfg WriterConfig) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, errors.New("transactions table is required")
	}
	return &BigQueryWriter{
		client: client,
		table:  table,
		retry:  cfg.RetryPolicy.withDefaults(),
	}, nil
}

// Insert writes txs in a single request. Either every row is accepted or the
// call fails and nothing is retained for a later call.
func (w *BigQueryWriter) Insert(ctx context.Context, txs ...types.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	rows := make([]any, 0, len(txs))
	for _, tx := range txs {
		row, err := newTransactionRow(tx)
		if err != nil {
			return fmt.Errorf("encode transaction %s: %w", tx.TransactionID, err)
		}
		rows = append(rows, row)
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := w.client.InsertRows(ctx, w.table, rows)
		if err != nil && !isRetryableBigQueryError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, w.retry.options()...)
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), w.table, err)
	}
	return nil
}
