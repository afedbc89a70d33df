package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/payflow/payflow/internal/shared"
)

// Registry resolves provider ids to live adapters. Populated at startup,
// read-heavy afterwards.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ProviderID]Adapter
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[ProviderID]Adapter)}
}

// Register installs an adapter under its own id. Later registrations replace
// earlier ones.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	r.adapters[adapter.ID()] = adapter
	r.mu.Unlock()
}

// Get returns the live adapter for the provider. An adapter failing its
// liveness probe is treated as not found, never returned silently.
func (r *Registry) Get(ctx context.Context, id ProviderID) (Adapter, error) {
	r.mu.RLock()
	adapter, ok := r.adapters[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnsupportedGateway, id)
	}
	if !adapter.IsAvailable(ctx) {
		return nil, fmt.Errorf("%w: %s unavailable", shared.ErrUnsupportedGateway, id)
	}
	return adapter, nil
}

// Lookup returns the adapter without a liveness probe. Webhook verification
// must work even while the provider API is flapping.
func (r *Registry) Lookup(id ProviderID) (Adapter, error) {
	r.mu.RLock()
	adapter, ok := r.adapters[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnsupportedGateway, id)
	}
	return adapter, nil
}

// Providers lists the registered provider ids.
func (r *Registry) Providers() []ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProviderID, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	return out
}
