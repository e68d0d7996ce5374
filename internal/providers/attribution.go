package providers

import (
	"strings"

	"github.com/angelmondragon/revenue-engine/internal/revenue/types"
	"github.com/samber/lo"
)

// Attribution links a transaction to analytics visitors and products.
type Attribution struct {
	ProfileID   *string
	SessionID   *string
	ProductID   *string
	ProductName *string
}

// AttributionFrom reads the well-known attribution keys from metadata.
func AttributionFrom(metadata map[string]string) Attribution {
	return Attribution{
		ProfileID:   metaPtr(metadata, types.MetadataProfileID),
		SessionID:   metaPtr(metadata, types.MetadataSessionID),
		ProductID:   metaPtr(metadata, types.MetadataProductID),
		ProductName: metaPtr(metadata, types.MetadataProductName),
	}
}

// Or fills every unset field of a from fallback.
func (a Attribution) Or(fallback Attribution) Attribution {
	return Attribution{
		ProfileID:   firstPtr(a.ProfileID, fallback.ProfileID),
		SessionID:   firstPtr(a.SessionID, fallback.SessionID),
		ProductID:   firstPtr(a.ProductID, fallback.ProductID),
		ProductName: firstPtr(a.ProductName, fallback.ProductName),
	}
}

// StringMetadata flattens an arbitrary JSON metadata object into strings.
// Non-string values are dropped.
func StringMetadata(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func metaPtr(metadata map[string]string, key string) *string {
	return lo.EmptyableToPtr(strings.TrimSpace(metadata[key]))
}

func firstPtr(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
