// Package lookup holds read-only reference objects ("lookups") and immutable
// identity-keyed caches over them.
package lookup

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	domain "github.com/goliatone/go-domain"
)

var (
	// ErrNilIdentity reports a lookup without an identity.
	ErrNilIdentity = errors.New("lookup: nil identity")
	// ErrDuplicateIdentity reports two lookups sharing an identity.
	ErrDuplicateIdentity = errors.New("lookup: duplicate identity")
	// ErrNotFound reports a missing identity.
	ErrNotFound = errors.New("lookup: not found")
	// ErrEntityMismatch reports a lookup type that references another entity.
	ErrEntityMismatch = errors.New("lookup: lookup references a different entity")
	// ErrNotRegistered reports a registry miss.
	ErrNotRegistered = errors.New("lookup: cache not registered")
)

// Lookup is a lightweight reference to an entity of type E.
type Lookup[E any] interface {
	LookupID() *domain.Identity[E]
}

// LookupOf is the embeddable base of a lookup type referencing entity E.
//
//	type CustomerLookup struct {
//		lookup.LookupOf[Customer]
//		Country string `json:"country"`
//	}
type LookupOf[E any] struct {
	ID   *domain.Identity[E] `json:"id"`
	Name string              `json:"name,omitempty"`
}

// NewLookupOf builds a base for key.
func NewLookupOf[E any](key, name string) (LookupOf[E], error) {
	id, err := domain.IdentityOf[E](key)
	if err != nil {
		return LookupOf[E]{}, err
	}
	return LookupOf[E]{ID: id, Name: name}, nil
}

// LookupID implements Lookup.
func (l LookupOf[E]) LookupID() *domain.Identity[E] {
	return l.ID
}

func (l LookupOf[E]) referencedEntity() reflect.Type {
	return reflect.TypeFor[E]()
}

type entityReferencer interface {
	referencedEntity() reflect.Type
}

var (
	referencerType = reflect.TypeFor[entityReferencer]()
	basePrefix     = reflect.TypeFor[LookupOf[struct{}]]().PkgPath() + ".LookupOf["
	referenced     sync.Map // reflect.Type -> resolvedEntity
)

type resolvedEntity struct {
	typ reflect.Type
}

// ReferencedEntity resolves the entity type a lookup type references by
// walking its embedded fields down to a LookupOf base. Results are cached per
// lookup type.
func ReferencedEntity(lookupType reflect.Type) (reflect.Type, bool) {
	if lookupType == nil {
		return nil, false
	}
	if cached, ok := referenced.Load(lookupType); ok {
		entry := cached.(resolvedEntity)
		return entry.typ, entry.typ != nil
	}
	actual, _ := referenced.LoadOrStore(lookupType, resolvedEntity{typ: resolveEntity(lookupType, 0)})
	entry := actual.(resolvedEntity)
	return entry.typ, entry.typ != nil
}

// ReferencedEntityOf is ReferencedEntity for a value.
func ReferencedEntityOf(lookup any) (reflect.Type, bool) {
	return ReferencedEntity(reflect.TypeOf(lookup))
}

func resolveEntity(t reflect.Type, depth int) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || depth > 8 {
		return nil
	}
	if isLookupBase(t) {
		return reflect.Zero(t).Interface().(entityReferencer).referencedEntity()
	}
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.Anonymous {
			continue
		}
		if entity := resolveEntity(field.Type, depth+1); entity != nil {
			return entity
		}
	}
	return nil
}

func isLookupBase(t reflect.Type) bool {
	return t.Implements(referencerType) && strings.HasPrefix(t.PkgPath()+"."+t.Name(), basePrefix)
}
