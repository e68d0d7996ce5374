package providers

import (
	"errors"

	"github.com/angelmondragon/revenue-engine/pkg/enums"
)

// ErrProviderNotFound is returned for providers without a registered adapter.
var ErrProviderNotFound = errors.New("revenue provider not supported")

// Registry resolves adapters by provider name.
type Registry struct {
	adapters map[enums.RevenueProvider]Adapter
}

// NewRegistry indexes the given adapters; nil entries are skipped.
func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: map[enums.RevenueProvider]Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		registry.adapters[adapter.Provider()] = adapter
	}
	return registry
}

// Get returns the adapter for provider.
func (r *Registry) Get(provider enums.RevenueProvider) (Adapter, error) {
	if r == nil {
		return nil, ErrProviderNotFound
	}
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return adapter, nil
}

// Providers lists the registered provider names.
func (r *Registry) Providers() []enums.RevenueProvider {
	if r == nil {
		return nil
	}
	out := make([]enums.RevenueProvider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}
