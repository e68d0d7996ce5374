package paddle

import (
	"fmt"
	"time"

	paddlesdk "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/samber/lo"

	"github.com/angelmondragon/revenue-engine/internal/providers"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
)

func saleDraft(txn *paddlesdk.Transaction) (providers.Draft, error) {
	currency := lo.CoalesceOrEmpty(string(txn.CurrencyCode), string(txn.Details.Totals.CurrencyCode))
	amount, err := providers.ParseMinorUnits(txn.Details.Totals.GrandTotal, currency)
	if err != nil {
		return providers.Draft{}, fmt.Errorf("paddle transaction %s: %w", txn.ID, err)
	}
	created, err := parseTime(lo.CoalesceOrEmpty(lo.FromPtr(txn.BilledAt), txn.CreatedAt))
	if err != nil {
		return providers.Draft{}, fmt.Errorf("paddle transaction %s: created: %w", txn.ID, err)
	}

	txType := enums.TransactionTypeSale
	if isSubscription(txn) {
		txType = enums.TransactionTypeSubscription
	}
	metadata := transactionMetadata(txn)

	return providers.Draft{
		TransactionID:    txn.ID,
		Type:             txType,
		Status:           enums.TransactionStatusCompleted,
		OriginalAmount:   amount,
		OriginalCurrency: currency,
		Attribution:      attributionOf(txn, metadata),
		Metadata:         metadata,
		Created:          created,
	}, nil
}

func refundDraft(adj *paddlesdk.Adjustment, origin providers.Attribution) (providers.Draft, error) {
	currency := lo.CoalesceOrEmpty(string(adj.CurrencyCode), string(adj.Totals.CurrencyCode))
	amount, err := providers.ParseMinorUnits(adj.Totals.Total, currency)
	if err != nil {
		return providers.Draft{}, fmt.Errorf("paddle adjustment %s: %w", adj.ID, err)
	}
	created, err := parseTime(adj.CreatedAt)
	if err != nil {
		return providers.Draft{}, fmt.Errorf("paddle adjustment %s: created: %w", adj.ID, err)
	}

	metadata := map[string]string{"transaction_id": adj.TransactionID}
	if adj.Reason != "" {
		metadata["reason"] = adj.Reason
	}

	return providers.Draft{
		TransactionID:    adj.ID,
		Type:             enums.TransactionTypeRefund,
		Status:           enums.TransactionStatusRefunded,
		OriginalAmount:   amount,
		OriginalCurrency: currency,
		Attribution:      origin,
		Metadata:         metadata,
		Created:          created,
	}, nil
}

func transactionMetadata(txn *paddlesdk.Transaction) map[string]string {
	metadata := providers.StringMetadata(txn.CustomData)
	if id := lo.FromPtr(txn.CustomerID); id != "" {
		metadata["customer_id"] = id
	}
	if id := lo.FromPtr(txn.SubscriptionID); id != "" {
		metadata["subscription_id"] = id
	}
	return metadata
}

func attributionOf(txn *paddlesdk.Transaction, metadata map[string]string) providers.Attribution {
	return providers.AttributionFrom(metadata).Or(firstProduct(txn))
}

func isSubscription(txn *paddlesdk.Transaction) bool {
	if lo.FromPtr(txn.SubscriptionID) != "" || txn.BillingPeriod != nil {
		return true
	}
	return lo.ContainsBy(txn.Items, func(item paddlesdk.TransactionItem) bool {
		return item.Price.BillingCycle != nil
	})
}

func firstProduct(txn *paddlesdk.Transaction) providers.Attribution {
	if len(txn.Details.LineItems) > 0 {
		p := txn.Details.LineItems[0].Product
		if p.ID != "" {
			return providers.Attribution{ProductID: lo.EmptyableToPtr(p.ID), ProductName: lo.EmptyableToPtr(p.Name)}
		}
	}
	if len(txn.Items) > 0 {
		price := txn.Items[0].Price
		return providers.Attribution{ProductID: lo.EmptyableToPtr(price.ProductID), ProductName: lo.EmptyableToPtr(lo.FromPtr(price.Name))}
	}
	return providers.Attribution{}
}

// parseTime reads an RFC 3339 timestamp. An empty value is the zero time.
func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}
