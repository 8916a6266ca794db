package lookup

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// Registry holds one cache per lookup type. Caches are swapped whole.
type Registry struct {
	mu     sync.RWMutex
	caches map[reflect.Type]any
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{caches: map[reflect.Type]any{}}
}

func checkEntity[E any, L Lookup[E]]() error {
	lookupType := reflect.TypeFor[L]()
	entity, ok := ReferencedEntity(lookupType)
	if ok && entity != reflect.TypeFor[E]() {
		return fmt.Errorf("%w: %s references %s, not %s", ErrEntityMismatch, lookupType, entity, reflect.TypeFor[E]())
	}
	return nil
}

// Register stores cache for L. It fails when a cache is already registered.
func Register[E any, L Lookup[E]](r *Registry, cache *Cache[E, L]) error {
	if err := checkEntity[E, L](); err != nil {
		return err
	}
	key := reflect.TypeFor[L]()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.caches[key]; exists {
		return fmt.Errorf("lookup: cache for %s already registered", key)
	}
	r.caches[key] = cache
	return nil
}

// Replace swaps the cache for L, registering it when absent.
func Replace[E any, L Lookup[E]](r *Registry, cache *Cache[E, L]) error {
	if err := checkEntity[E, L](); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caches[reflect.TypeFor[L]()] = cache
	return nil
}

// Get returns the cache registered for L.
func Get[E any, L Lookup[E]](r *Registry) (*Cache[E, L], error) {
	key := reflect.TypeFor[L]()
	r.mu.RLock()
	stored, ok := r.caches[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, key)
	}
	cache, ok := stored.(*Cache[E, L])
	if !ok {
		return nil, fmt.Errorf("%w: %s holds %T", ErrEntityMismatch, key, stored)
	}
	return cache, nil
}

// Refresh loads lookups and replaces the cache for L. The previous cache stays
// in place when loading or indexing fails.
func Refresh[E any, L Lookup[E]](ctx context.Context, r *Registry, load func(context.Context) ([]L, error)) (*Cache[E, L], error) {
	items, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("lookup: refresh %s: %w", reflect.TypeFor[L](), err)
	}
	cache, err := NewCache[E, L](items)
	if err != nil {
		return nil, err
	}
	if err := Replace(r, cache); err != nil {
		return nil, err
	}
	return cache, nil
}

// Len returns the number of registered caches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caches)
}
