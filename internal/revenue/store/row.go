package store

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/angelmondragon/revenue-engine/internal/revenue/types"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// numericScale is the fractional precision of BigQuery NUMERIC.
const numericScale = 9

var insertIDNamespace = uuid.MustParse("2f1d3c4e-8a47-4b0e-9a53-7d1f5c0e6b21")

// transactionRow is the wire shape of revenue_transactions.
type transactionRow struct {
	TenantID         string              `bigquery:"tenant_id"`
	TransactionID    string              `bigquery:"transaction_id"`
	Provider         string              `bigquery:"provider"`
	Type             string              `bigquery:"type"`
	Status           string              `bigquery:"status"`
	Amount           *big.Rat            `bigquery:"amount"`
	Currency         string              `bigquery:"currency"`
	OriginalAmount   *big.Rat            `bigquery:"original_amount"`
	OriginalCurrency string              `bigquery:"original_currency"`
	ProfileID        bigquery.NullString `bigquery:"profile_id"`
	SessionID        bigquery.NullString `bigquery:"session_id"`
	ProductID        bigquery.NullString `bigquery:"product_id"`
	ProductName      bigquery.NullString `bigquery:"product_name"`
	Metadata         bigquery.NullString `bigquery:"metadata"`
	Created          time.Time           `bigquery:"created"`
	SyncedAt         time.Time           `bigquery:"synced_at"`
}

var _ bigquery.ValueSaver = (*transactionRow)(nil)

// TransactionsSchema is the table layout, partitioned by day on created and
// clustered by tenant.
func TransactionsSchema() *bigquery.TableMetadata {
	return &bigquery.TableMetadata{
		Schema: bigquery.Schema{
			{Name: "tenant_id", Type: bigquery.StringFieldType, Required: true},
			{Name: "transaction_id", Type: bigquery.StringFieldType, Required: true},
			{Name: "provider", Type: bigquery.StringFieldType, Required: true},
			{Name: "type", Type: bigquery.StringFieldType, Required: true},
			{Name: "status", Type: bigquery.StringFieldType, Required: true},
			{Name: "amount", Type: bigquery.NumericFieldType, Required: true},
			{Name: "currency", Type: bigquery.StringFieldType, Required: true},
			{Name: "original_amount", Type: bigquery.NumericFieldType, Required: true},
			{Name: "original_currency", Type: bigquery.StringFieldType, Required: true},
			{Name: "profile_id", Type: bigquery.StringFieldType},
			{Name: "session_id", Type: bigquery.StringFieldType},
			{Name: "product_id", Type: bigquery.StringFieldType},
			{Name: "product_name", Type: bigquery.StringFieldType},
			{Name: "metadata", Type: bigquery.StringFieldType},
			{Name: "created", Type: bigquery.TimestampFieldType, Required: true},
			{Name: "synced_at", Type: bigquery.TimestampFieldType, Required: true},
		},
		TimePartitioning: &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: "created"},
		Clustering:       &bigquery.Clustering{Fields: []string{"tenant_id", "transaction_id"}},
	}
}

func newTransactionRow(tx types.Transaction) (*transactionRow, error) {
	amount, err := toNumeric(tx.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	original, err := toNumeric(tx.OriginalAmount)
	if err != nil {
		return nil, fmt.Errorf("original amount: %w", err)
	}

	row := &transactionRow{
		TenantID:         tx.TenantID,
		TransactionID:    tx.TransactionID,
		Provider:         tx.Provider.String(),
		Type:             string(tx.Type),
		Status:           string(tx.Status),
		Amount:           amount,
		Currency:         tx.Currency,
		OriginalAmount:   original,
		OriginalCurrency: tx.OriginalCurrency,
		ProfileID:        nullString(tx.ProfileID),
		SessionID:        nullString(tx.SessionID),
		ProductID:        nullString(tx.ProductID),
		ProductName:      nullString(tx.ProductName),
		Created:          tx.Created.UTC(),
		SyncedAt:         tx.SyncedAt.UTC(),
	}
	if len(tx.Metadata) > 0 {
		raw, err := json.Marshal(tx.Metadata)
		if err != nil {
			return nil, fmt.Errorf("metadata: %w", err)
		}
		row.Metadata = bigquery.NullString{StringVal: string(raw), Valid: true}
	}
	return row, nil
}

// Save implements bigquery.ValueSaver. The insert id is stable per physical
// row so streaming retries do not duplicate it, while a later sync of the
// same transaction still lands as a new row.
func (r *transactionRow) Save() (map[string]bigquery.Value, string, error) {
	values := map[string]bigquery.Value{
		"tenant_id":         r.TenantID,
		"transaction_id":    r.TransactionID,
		"provider":          r.Provider,
		"type":              r.Type,
		"status":            r.Status,
		"amount":            r.Amount,
		"currency":          r.Currency,
		"original_amount":   r.OriginalAmount,
		"original_currency": r.OriginalCurrency,
		"profile_id":        r.ProfileID,
		"session_id":        r.SessionID,
		"product_id":        r.ProductID,
		"product_name":      r.ProductName,
		"metadata":          r.Metadata,
		"created":           r.Created,
		"synced_at":         r.SyncedAt,
	}
	return values, r.insertID(), nil
}

func (r *transactionRow) insertID() string {
	name := r.TenantID + "\x00" + r.TransactionID + "\x00" + r.SyncedAt.Format(time.RFC3339Nano)
	return uuid.NewSHA1(insertIDNamespace, []byte(name)).String()
}

func (r *transactionRow) transaction() (types.Transaction, error) {
	amount, err := fromNumeric(r.Amount)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("amount: %w", err)
	}
	original, err := fromNumeric(r.OriginalAmount)
	if err != nil {
		return types.Transaction{}, fmt.Errorf("original amount: %w", err)
	}

	tx := types.Transaction{
		TenantID:         r.TenantID,
		TransactionID:    r.TransactionID,
		Provider:         enums.RevenueProvider(r.Provider),
		Type:             enums.TransactionType(r.Type),
		Status:           enums.TransactionStatus(r.Status),
		Amount:           amount,
		Currency:         r.Currency,
		OriginalAmount:   original,
		OriginalCurrency: r.OriginalCurrency,
		ProfileID:        stringPtr(r.ProfileID),
		SessionID:        stringPtr(r.SessionID),
		ProductID:        stringPtr(r.ProductID),
		ProductName:      stringPtr(r.ProductName),
		Metadata:         map[string]string{},
		Created:          r.Created.UTC(),
		SyncedAt:         r.SyncedAt.UTC(),
	}
	if r.Metadata.Valid && r.Metadata.StringVal != "" {
		if err := json.Unmarshal([]byte(r.Metadata.StringVal), &tx.Metadata); err != nil {
			return types.Transaction{}, fmt.Errorf("metadata: %w", err)
		}
	}
	return tx, nil
}

func toNumeric(d decimal.Decimal) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(d.Round(numericScale).String())
	if !ok {
		return nil, fmt.Errorf("invalid decimal %q", d.String())
	}
	return r, nil
}

func fromNumeric(r *big.Rat) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(r.FloatString(numericScale))
}

func nullString(v *string) bigquery.NullString {
	if v == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *v, Valid: true}
}

func stringPtr(v bigquery.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.StringVal
	return &s
}
