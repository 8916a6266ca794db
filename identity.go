package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Identity identifies one instance of entity type T. The key is normalized at
// construction (trimmed, lower-cased) and hashed once. T is a phantom
// parameter: identities of different entity types are different Go types and
// never compare equal.
//
// Identity values are comparable and may be used directly as map keys.
type Identity[T any] struct {
	key  string
	hash uint64
}

// NormalizeKey applies the identity normalization rules to key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// NewIdentity builds an identity for key. Empty or whitespace-only keys are
// rejected with ErrInvalidIdentity.
func NewIdentity[T any](key string) (Identity[T], error) {
	normalized := NormalizeKey(key)
	if normalized == "" {
		return Identity[T]{}, fmt.Errorf("%w: key %q", ErrInvalidIdentity, key)
	}
	return Identity[T]{key: normalized, hash: xxhash.Sum64String(normalized)}, nil
}

// MustIdentity is like NewIdentity but panics on an invalid key. Intended for
// constants and tests.
func MustIdentity[T any](key string) Identity[T] {
	id, err := NewIdentity[T](key)
	if err != nil {
		panic(err)
	}
	return id
}

// IdentityOf returns a pointer to a fresh identity, the form stored on entities.
func IdentityOf[T any](key string) (*Identity[T], error) {
	id, err := NewIdentity[T](key)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// Key returns the normalized key.
func (id Identity[T]) Key() string {
	return id.key
}

// Hash returns the precomputed hash of the normalized key.
func (id Identity[T]) Hash() uint64 {
	return id.hash
}

// IsZero reports whether id was never constructed.
func (id Identity[T]) IsZero() bool {
	return id.key == ""
}

// Equal compares two identities of the same entity type.
func (id Identity[T]) Equal(other Identity[T]) bool {
	if id.hash != other.hash {
		return false
	}
	return id.key == other.key
}

func (id Identity[T]) String() string {
	return id.key
}

// MarshalJSON encodes the identity as its normalized key.
func (id Identity[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.key)
}

// UnmarshalJSON decodes and re-normalizes a key.
func (id *Identity[T]) UnmarshalJSON(data []byte) error {
	var key string
	if err := json.Unmarshal(data, &key); err != nil {
		return fmt.Errorf("domain: decode identity: %w", err)
	}
	parsed, err := NewIdentity[T](key)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// SameIdentity compares two optional identities. Two absent identities are
// never the same: each represents a distinct unsaved entity.
func SameIdentity[T any](a, b *Identity[T]) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Equal(*b)
}
