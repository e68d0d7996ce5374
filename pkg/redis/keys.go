package redis

import "strings"

const (
	keyNamespace = "rev"
	ratesPrefix  = "fx_rates"
	lockPrefix   = "sync_lock"
	limitPrefix  = "rate_limit"
)

// Keyspace builds namespaced keys; blank segments are skipped.
type Keyspace struct{}

// RatesKey names the cached exchange-rate table for a base currency.
func (Keyspace) RatesKey(base string) string {
	return buildKey(ratesPrefix, strings.ToUpper(base))
}

// SyncLockKey names the lock guarding one tenant/provider sync pass.
func (Keyspace) SyncLockKey(tenantID, provider string) string {
	return buildKey(lockPrefix, tenantID, provider)
}

// RateLimitKey names the counter of one limiter scope.
func (Keyspace) RateLimitKey(scope, id string) string {
	return buildKey(limitPrefix, scope, id)
}

func buildKey(parts ...string) string {
	var sb strings.Builder
	sb.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			sb.WriteByte(':')
			sb.WriteString(part)
		}
	}
	return sb.String()
}
