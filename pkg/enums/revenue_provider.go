package enums

import (
	"fmt"
	"strings"
)

// RevenueProvider names a payment provider the engine can pull transactions from.
type RevenueProvider string

const (
	RevenueProviderStripe RevenueProvider = "stripe"
	RevenueProviderPaddle RevenueProvider = "paddle"
)

var validRevenueProviders = []RevenueProvider{
	RevenueProviderStripe,
	RevenueProviderPaddle,
}

// String implements fmt.Stringer.
func (p RevenueProvider) String() string {
	return string(p)
}

// IsValid reports whether the provider is supported.
func (p RevenueProvider) IsValid() bool {
	for _, candidate := range validRevenueProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseRevenueProvider converts raw input into a RevenueProvider, case-insensitively.
func ParseRevenueProvider(value string) (RevenueProvider, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validRevenueProviders {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid revenue provider %q", value)
}
