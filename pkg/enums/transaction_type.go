package enums

import "fmt"

// TransactionType classifies a canonical revenue transaction.
type TransactionType string

const (
	TransactionTypeSale         TransactionType = "sale"
	TransactionTypeSubscription TransactionType = "subscription"
	TransactionTypeRefund       TransactionType = "refund"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeSale,
	TransactionTypeSubscription,
	TransactionTypeRefund,
}

// String implements fmt.Stringer.
func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionType.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsRevenue reports whether the type counts toward revenue totals.
func (t TransactionType) IsRevenue() bool {
	return t == TransactionTypeSale || t == TransactionTypeSubscription
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
