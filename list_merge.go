package domain

import (
	"fmt"

	"github.com/goliatone/go-domain/internal/hydrate"
)

// MergeSpec tells Merge how to reconcile a list against external items.
type MergeSpec[T Item, E any] struct {
	// Key extracts the identity key of an external item. An empty key marks
	// an addition.
	Key func(E) string
	// LocalKey extracts the key of a local item. Defaults to the entity
	// identity key; items without a key are left untouched.
	LocalKey func(T) string
	// Merge copies external data onto a local item.
	Merge func(T, E) error
	// New creates the local item for an external addition. Defaults to the
	// list factory.
	New func(E) (T, error)
}

// MergeResult reports what Merge did, by normalized key. Skipped holds the
// external additions dropped because the list does not allow new items.
type MergeResult struct {
	Added   []string
	Updated []string
	Removed []string
	Skipped []string
}

// Changed reports whether the merge touched the list.
func (r MergeResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Updated) > 0 || len(r.Removed) > 0
}

// Merge reconciles l against external, keyed by identity. Local items whose
// key is absent externally are removed when the list allows removal; matches
// are updated in place; external-only items are created and merged when the
// list allows new items and skipped otherwise. When a merge func fails the
// list keeps its items: nothing is removed or added.
func Merge[T Item, E any](l *List[T], external []E, spec MergeSpec[T, E]) (MergeResult, error) {
	var result MergeResult
	if l == nil {
		return result, fmt.Errorf("%w: list", ErrMissingDependency)
	}
	if spec.Key == nil || spec.Merge == nil {
		return result, fmt.Errorf("%w: merge key and merge func", ErrMissingDependency)
	}
	if l.denyEdit {
		return result, ErrEditNotAllowed
	}
	localKey := spec.LocalKey
	if localKey == nil {
		localKey = entityKey[T]
	}

	incoming := make(map[string]E, len(external))
	for _, item := range external {
		key := NormalizeKey(spec.Key(item))
		if key == "" {
			continue
		}
		if _, dup := incoming[key]; dup {
			return result, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
		incoming[key] = item
	}

	var removals []T
	if !l.denyRemove {
		for _, item := range l.Items() {
			key := NormalizeKey(localKey(item))
			if key == "" {
				continue
			}
			if _, keep := incoming[key]; !keep {
				removals = append(removals, item)
			}
		}
	}

	matched := make(map[string]struct{}, len(incoming))
	for _, item := range l.Items() {
		key := NormalizeKey(localKey(item))
		ext, ok := incoming[key]
		if key == "" || !ok {
			continue
		}
		if err := spec.Merge(item, ext); err != nil {
			return result, fmt.Errorf("domain: merge %s: %w", key, err)
		}
		matched[key] = struct{}{}
		result.Updated = append(result.Updated, key)
	}

	type addition struct {
		key  string
		item T
	}
	var additions []addition
	for _, ext := range external {
		key := NormalizeKey(spec.Key(ext))
		if key != "" {
			if _, done := matched[key]; done {
				continue
			}
		}
		if l.denyNew {
			result.Skipped = append(result.Skipped, key)
			continue
		}
		item, err := newMergeItem(l, spec, ext)
		if err != nil {
			return result, err
		}
		if err := spec.Merge(item, ext); err != nil {
			return result, fmt.Errorf("domain: merge new item %s: %w", key, err)
		}
		additions = append(additions, addition{key: key, item: item})
	}

	// Structural changes are applied only once every merge succeeded.
	for _, item := range removals {
		if _, err := l.Remove(item); err != nil {
			return result, err
		}
		result.Removed = append(result.Removed, NormalizeKey(localKey(item)))
	}
	for _, add := range additions {
		if err := l.Add(add.item); err != nil {
			return result, err
		}
		result.Added = append(result.Added, add.key)
	}
	return result, nil
}

func newMergeItem[T Item, E any](l *List[T], spec MergeSpec[T, E], ext E) (T, error) {
	if spec.New != nil {
		return spec.New(ext)
	}
	var zero T
	if l.factory == nil {
		return zero, ErrNoFactory
	}
	return l.factory()
}

func entityKey[T Item](item T) string {
	if keyed, ok := any(item).(interface{ IdentityKey() string }); ok {
		return keyed.IdentityKey()
	}
	return ""
}

// PayloadOption adjusts how MergePayloads decodes external payloads.
type PayloadOption[E any] func(*payloadConfig[E])

type payloadConfig[E any] struct {
	lenient bool
	hooks   []hydrate.DecoderOption[E]
}

// AllowUnknownFields accepts payload keys that E does not declare.
func AllowUnknownFields[E any]() PayloadOption[E] {
	return func(c *payloadConfig[E]) { c.lenient = true }
}

// WithPayloadNormalizer rewrites each raw payload before it is decoded, for
// example to coerce textual numbers. index is the payload position.
func WithPayloadNormalizer[E any](fn func(index int, payload map[string]any) (map[string]any, error)) PayloadOption[E] {
	return func(c *payloadConfig[E]) {
		if fn == nil {
			return
		}
		c.hooks = append(c.hooks, hydrate.WithPreHook[E](func(ctx hydrate.Context, payload map[string]any) (map[string]any, error) {
			return fn(ctx.Index, payload)
		}))
	}
}

// WithPayloadCheck validates each decoded item before anything is merged.
func WithPayloadCheck[E any](fn func(index int, item *E) error) PayloadOption[E] {
	return func(c *payloadConfig[E]) {
		if fn == nil {
			return
		}
		c.hooks = append(c.hooks, hydrate.WithPostHook[E](func(ctx hydrate.Context, item *E) error {
			return fn(ctx.Index, item)
		}))
	}
}

// MergePayloads decodes untrusted payloads into E, then merges them into l.
// Unknown fields are rejected unless AllowUnknownFields is given. A payload
// that fails to decode leaves the list untouched.
func MergePayloads[T Item, E any](l *List[T], payloads []map[string]any, spec MergeSpec[T, E], opts ...PayloadOption[E]) (MergeResult, error) {
	var cfg payloadConfig[E]
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	decoderOpts := cfg.hooks
	if !cfg.lenient {
		decoderOpts = append(decoderOpts, hydrate.WithDisallowUnknownFields[E]())
	}

	var owner string
	if l != nil {
		owner = TypeName(l.parent)
	}
	var zero T
	decoder := hydrate.NewDecoder[E](decoderOpts...)
	external, err := decoder.DecodeAll(hydrate.Context{Entity: owner, Field: TypeName(zero)}, payloads)
	if err != nil {
		return MergeResult{}, err
	}
	return Merge(l, external, spec)
}
