package types

import (
	"time"

	"github.com/angelmondragon/revenue-engine/pkg/enums"
	"github.com/shopspring/decimal"
)

// Metadata keys read from provider payloads for attribution.
const (
	MetadataProfileID   = "analytics_profile_id"
	MetadataSessionID   = "analytics_session_id"
	MetadataProductID   = "product_id"
	MetadataProductName = "product_name"
)

// Transaction is the canonical, provider-independent revenue record.
// (TenantID, TransactionID) is the logical identity; the physical row with the
// greatest SyncedAt wins.
type Transaction struct {
	TenantID      string                  `json:"-"`
	TransactionID string                  `json:"id"`
	Provider      enums.RevenueProvider   `json:"provider"`
	Type          enums.TransactionType   `json:"type"`
	Status        enums.TransactionStatus `json:"status"`

	// Amount is expressed in Currency, the tenant's reporting currency at sync time.
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	// OriginalAmount is the provider value in major units before conversion.
	OriginalAmount   decimal.Decimal `json:"originalAmount"`
	OriginalCurrency string          `json:"originalCurrency"`

	ProfileID   *string           `json:"profileId,omitempty"`
	SessionID   *string           `json:"sessionId,omitempty"`
	ProductID   *string           `json:"productId,omitempty"`
	ProductName *string           `json:"productName,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	Created  time.Time `json:"created"`
	SyncedAt time.Time `json:"syncedAt"`
}

// Key identifies the logical transaction.
type Key struct {
	TenantID      string
	TransactionID string
}

// Key returns the logical identity of t.
func (t Transaction) Key() Key {
	return Key{TenantID: t.TenantID, TransactionID: t.TransactionID}
}

// IsRevenue reports whether t counts toward revenue totals.
func (t Transaction) IsRevenue() bool {
	return t.Type.IsRevenue()
}

// IsRefund reports whether t is a refund.
func (t Transaction) IsRefund() bool {
	return t.Type == enums.TransactionTypeRefund
}

// Newer reports whether t supersedes other for the same key.
func (t Transaction) Newer(other Transaction) bool {
	return t.SyncedAt.After(other.SyncedAt)
}
