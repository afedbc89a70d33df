package permissions

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Wildcard grants unrestricted access within one fact category.
const Wildcard = "*"

// Facts are the per-principal permission/ownership/entity-access sets loaded
// from the identity collaborator.
type Facts struct {
	Permissions        map[string]struct{}
	OwnedResources     map[string]struct{}
	AccessibleEntities map[string]struct{}
}

// NewFacts builds a Facts value from plain slices.
func NewFacts(perms, owned, entities []string) Facts {
	toSet := func(values []string) map[string]struct{} {
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		return set
	}
	return Facts{
		Permissions:        toSet(perms),
		OwnedResources:     toSet(owned),
		AccessibleEntities: toSet(entities),
	}
}

// Loader fetches facts for a principal from the backing collaborator.
type Loader interface {
	LoadFacts(ctx context.Context, principalID string) (Facts, error)
}

type cacheEntry struct {
	facts    Facts
	loadedAt time.Time
}

// Store caches facts per principal. Loads for the same principal are coalesced
// so concurrent misses trigger a single backend lookup. Entries stay until
// invalidated or until the optional TTL elapses.
type Store struct {
	loader Loader
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

// NewStore constructs the store. A zero ttl disables expiry.
func NewStore(loader Loader, ttl time.Duration) *Store {
	return &Store{
		loader:  loader,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (s *Store) lookup(principalID string) (Facts, bool) {
	s.mu.RLock()
	entry, ok := s.entries[principalID]
	s.mu.RUnlock()
	if !ok {
		return Facts{}, false
	}
	if s.ttl > 0 && time.Since(entry.loadedAt) > s.ttl {
		return Facts{}, false
	}
	return entry.facts, true
}

func (s *Store) facts(ctx context.Context, principalID string) (Facts, error) {
	if facts, ok := s.lookup(principalID); ok {
		return facts, nil
	}
	result, err, _ := s.group.Do(principalID, func() (interface{}, error) {
		// Double-check under the flight: another caller may have loaded
		// between the miss and the flight start.
		if facts, ok := s.lookup(principalID); ok {
			return facts, nil
		}
		facts, err := s.loader.LoadFacts(ctx, principalID)
		if err != nil {
			return Facts{}, err
		}
		s.mu.Lock()
		s.entries[principalID] = cacheEntry{facts: facts, loadedAt: time.Now()}
		s.mu.Unlock()
		return facts, nil
	})
	if err != nil {
		return Facts{}, err
	}
	return result.(Facts), nil
}

// HasPermission reports whether the principal holds the named permission.
func (s *Store) HasPermission(ctx context.Context, principalID, permName string) (bool, error) {
	facts, err := s.facts(ctx, principalID)
	if err != nil {
		return false, err
	}
	if _, ok := facts.Permissions[Wildcard]; ok {
		return true, nil
	}
	_, ok := facts.Permissions[permName]
	return ok, nil
}

// IsOwner reports whether the principal owns the transaction.
func (s *Store) IsOwner(ctx context.Context, principalID, transactionID string) (bool, error) {
	facts, err := s.facts(ctx, principalID)
	if err != nil {
		return false, err
	}
	if _, ok := facts.OwnedResources[Wildcard]; ok {
		return true, nil
	}
	_, ok := facts.OwnedResources[transactionID]
	return ok, nil
}

// HasEntityAccess reports whether the principal may access the entity.
func (s *Store) HasEntityAccess(ctx context.Context, principalID, entityID string) (bool, error) {
	facts, err := s.facts(ctx, principalID)
	if err != nil {
		return false, err
	}
	if _, ok := facts.AccessibleEntities[Wildcard]; ok {
		return true, nil
	}
	_, ok := facts.AccessibleEntities[entityID]
	return ok, nil
}

// ClearPrincipal drops the cached facts for one principal.
func (s *Store) ClearPrincipal(principalID string) {
	s.mu.Lock()
	delete(s.entries, principalID)
	s.mu.Unlock()
}

// ClearAll drops every cached entry.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.entries = make(map[string]cacheEntry)
	s.mu.Unlock()
}
