package lookup

import (
	"fmt"
	"iter"
	"reflect"

	domain "github.com/goliatone/go-domain"
)

// Cache is an immutable snapshot of lookups indexed by identity. Replace the
// whole cache to refresh it.
type Cache[E any, L Lookup[E]] struct {
	items []L
	index map[domain.Identity[E]]int
}

// NewCache indexes items. Items without an identity fail with ErrNilIdentity
// and repeated identities with ErrDuplicateIdentity.
func NewCache[E any, L Lookup[E]](items []L) (*Cache[E, L], error) {
	cache := &Cache[E, L]{
		items: make([]L, 0, len(items)),
		index: make(map[domain.Identity[E]]int, len(items)),
	}
	for i, item := range items {
		if isNilLookup(item) {
			return nil, fmt.Errorf("%w: item %d is nil", ErrNilIdentity, i)
		}
		id := item.LookupID()
		if id == nil || id.IsZero() {
			return nil, fmt.Errorf("%w: item %d", ErrNilIdentity, i)
		}
		if previous, dup := cache.index[*id]; dup {
			return nil, fmt.Errorf("%w: %q at items %d and %d", ErrDuplicateIdentity, id.Key(), previous, i)
		}
		cache.index[*id] = len(cache.items)
		cache.items = append(cache.items, item)
	}
	return cache, nil
}

func isNilLookup(item any) bool {
	if item == nil {
		return true
	}
	value := reflect.ValueOf(item)
	switch value.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return value.IsNil()
	}
	return false
}

// FindByID returns the lookup for id or ErrNotFound.
func (c *Cache[E, L]) FindByID(id domain.Identity[E]) (L, error) {
	item, ok := c.TryGetByID(id)
	if !ok {
		return item, fmt.Errorf("%w: %q", ErrNotFound, id.Key())
	}
	return item, nil
}

// TryGetByID returns the lookup for id and whether it exists.
func (c *Cache[E, L]) TryGetByID(id domain.Identity[E]) (L, bool) {
	var zero L
	if c == nil {
		return zero, false
	}
	i, ok := c.index[id]
	if !ok {
		return zero, false
	}
	return c.items[i], true
}

// FindByKey normalizes key and looks it up.
func (c *Cache[E, L]) FindByKey(key string) (L, bool) {
	id, err := domain.NewIdentity[E](key)
	if err != nil {
		var zero L
		return zero, false
	}
	return c.TryGetByID(id)
}

// Contains reports whether id is cached.
func (c *Cache[E, L]) Contains(id domain.Identity[E]) bool {
	_, ok := c.TryGetByID(id)
	return ok
}

// Count returns the number of cached lookups.
func (c *Cache[E, L]) Count() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// GetAll returns the lookups in their original order.
func (c *Cache[E, L]) GetAll() []L {
	if c == nil {
		return nil
	}
	out := make([]L, len(c.items))
	copy(out, c.items)
	return out
}

// All iterates the lookups in their original order.
func (c *Cache[E, L]) All() iter.Seq2[int, L] {
	return func(yield func(int, L) bool) {
		if c == nil {
			return
		}
		for i, item := range c.items {
			if !yield(i, item) {
				return
			}
		}
	}
}
