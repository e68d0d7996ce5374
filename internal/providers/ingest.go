package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/revenue-engine/internal/revenue/types"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// Draft is a provider event mapped to canonical fields but not yet converted.
type Draft struct {
	TransactionID    string
	Type             enums.TransactionType
	Status           enums.TransactionStatus
	OriginalAmount   decimal.Decimal
	OriginalCurrency string
	Attribution      Attribution
	Metadata         map[string]string
	Created          time.Time
}

// DefaultBatchSize is the number of rows a pass hands the sink at once.
const DefaultBatchSize = 1

// Ingestor converts drafts into canonical transactions and writes them.
type Ingestor struct {
	sink      Sink
	converter Converter
	now       func() time.Time
	batchSize int
}

type IngestorOption func(*Ingestor)

// WithClock overrides the source of synced_at stamps.
func WithClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) {
		if now != nil {
			i.now = now
		}
	}
}

// WithBatchSize sets how many rows a pass buffers before writing them in one
// sink call.
func WithBatchSize(n int) IngestorOption {
	return func(i *Ingestor) {
		i.batchSize = max(n, DefaultBatchSize)
	}
}

// NewIngestor wires the shared ingest path used by every adapter.
func NewIngestor(sink Sink, converter Converter, opts ...IngestorOption) (*Ingestor, error) {
	if sink == nil {
		return nil, errors.New("revenue sink is required")
	}
	if converter == nil {
		return nil, errors.New("currency converter is required")
	}
	i := &Ingestor{sink: sink, converter: converter, now: time.Now, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Begin starts the ingest bookkeeping of one sync pass.
func (i *Ingestor) Begin(provider enums.RevenueProvider, req SyncRequest) *Pass {
	return &Pass{
		ingestor: i,
		provider: provider,
		tenantID: req.TenantID,
		currency: strings.ToUpper(strings.TrimSpace(req.ReportingCurrency)),
	}
}

// Pass writes the records of one sync pass and counts them. Its buffer is
// private to the pass, so a rejected batch never leaks into another tenant's
// sync.
type Pass struct {
	ingestor *Ingestor
	provider enums.RevenueProvider
	tenantID string
	currency string
	buffer   []types.Transaction
	written  int
	lastSync time.Time
}

// Write converts one record and writes the buffer once it is full.
func (p *Pass) Write(ctx context.Context, d Draft) error {
	p.buffer = append(p.buffer, p.build(ctx, d))
	if len(p.buffer) < p.ingestor.batchSize {
		return nil
	}
	return p.flush(ctx)
}

// Finish writes whatever is buffered and returns the durable count together
// with cause and any write failure.
func (p *Pass) Finish(ctx context.Context, cause error) (int, error) {
	err := multierr.Append(cause, p.flush(ctx))
	return p.written, err
}

// Written returns the number of records the sink has accepted so far.
func (p *Pass) Written() int {
	return p.written
}

// flush drops the buffer whether or not the sink accepts it.
func (p *Pass) flush(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}
	rows := p.buffer
	p.buffer = nil
	if err := p.ingestor.sink.Insert(ctx, rows...); err != nil {
		return fmt.Errorf("insert %d %s transactions from %s: %w", len(rows), p.provider, rows[0].TransactionID, err)
	}
	p.written += len(rows)
	return nil
}

func (p *Pass) build(ctx context.Context, d Draft) types.Transaction {
	original := d.OriginalAmount
	if d.Type == enums.TransactionTypeRefund {
		original = original.Abs().Neg()
	}
	originalCurrency := strings.ToUpper(strings.TrimSpace(d.OriginalCurrency))

	reportingCurrency := p.currency
	if reportingCurrency == "" {
		reportingCurrency = originalCurrency
	}
	amount := p.ingestor.converter.Convert(ctx, original, originalCurrency, reportingCurrency)
	if d.Type == enums.TransactionTypeRefund {
		amount = amount.Abs().Neg()
	}

	metadata := d.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	return types.Transaction{
		TenantID:         p.tenantID,
		TransactionID:    d.TransactionID,
		Provider:         p.provider,
		Type:             d.Type,
		Status:           d.Status,
		Amount:           amount,
		Currency:         reportingCurrency,
		OriginalAmount:   original,
		OriginalCurrency: originalCurrency,
		ProfileID:        d.Attribution.ProfileID,
		SessionID:        d.Attribution.SessionID,
		ProductID:        d.Attribution.ProductID,
		ProductName:      d.Attribution.ProductName,
		Metadata:         metadata,
		Created:          d.Created.UTC(),
		SyncedAt:         p.nextSyncedAt(),
	}
}

// nextSyncedAt is strictly increasing within a pass at microsecond resolution,
// the precision of the analytical store.
func (p *Pass) nextSyncedAt() time.Time {
	now := p.ingestor.now().UTC().Truncate(time.Microsecond)
	if !now.After(p.lastSync) {
		now = p.lastSync.Add(time.Microsecond)
	}
	p.lastSync = now
	return now
}

// Since reports whether t is at or after the watermark; a nil watermark admits everything.
func Since(watermark *time.Time, t time.Time) bool {
	return watermark == nil || !t.Before(*watermark)
}
