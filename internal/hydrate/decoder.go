package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Context locates a payload inside a graph: the owning entity type, the
// child field and the item position within that field.
type Context struct {
	Entity string
	Field  string
	Index  int
}

func (c Context) String() string {
	label := c.Entity
	if c.Field != "" {
		label += "." + c.Field
	}
	return fmt.Sprintf("%s[%d]", label, c.Index)
}

// PreHook rewrites a raw payload before it is decoded. Returning nil keeps
// the payload as is.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook checks or completes a decoded item.
type PostHook[T any] func(Context, *T) error

// DecoderOption configures a Decoder.
type DecoderOption[T any] func(*Decoder[T])

// Decoder turns untrusted map payloads into typed items. Payloads are
// copied first, so hooks never see the caller's maps.
type Decoder[T any] struct {
	pre    []PreHook
	post   []PostHook[T]
	strict bool
}

// WithPreHook appends hook to the pre-decode chain.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.pre = append(d.pre, hook)
		}
	}
}

// WithPostHook appends hook to the post-decode chain.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		if hook != nil {
			d.post = append(d.post, hook)
		}
	}
}

// WithDisallowUnknownFields rejects payload keys with no matching field.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) { d.strict = true }
}

// NewDecoder builds a decoder applying opts.
func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode runs the pre hooks, decodes into T and runs the post hooks.
func (d *Decoder[T]) Decode(ctx Context, payload map[string]any) (T, error) {
	var zero T
	if payload == nil {
		return zero, fmt.Errorf("hydrate: payload is nil for %s", ctx)
	}
	current, err := d.normalize(ctx, payload)
	if err != nil {
		return zero, err
	}
	item, err := d.unmarshal(current)
	if err != nil {
		return zero, fmt.Errorf("hydrate: decode %s: %w", ctx, err)
	}
	for _, hook := range d.post {
		if err := hook(ctx, &item); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for %s failed: %w", ctx, err)
		}
	}
	return item, nil
}

// DecodeAll decodes payloads in order, stamping each item's index on ctx.
// It stops at the first failure.
func (d *Decoder[T]) DecodeAll(ctx Context, payloads []map[string]any) ([]T, error) {
	out := make([]T, 0, len(payloads))
	for i, payload := range payloads {
		ctx.Index = i
		item, err := d.Decode(ctx, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (d *Decoder[T]) normalize(ctx Context, payload map[string]any) (map[string]any, error) {
	current, err := deepCopy(payload)
	if err != nil {
		return nil, fmt.Errorf("hydrate: copy payload for %s: %w", ctx, err)
	}
	for _, hook := range d.pre {
		next, err := hook(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("hydrate: pre-hook for %s failed: %w", ctx, err)
		}
		if next != nil {
			current = next
		}
	}
	return current, nil
}

func (d *Decoder[T]) unmarshal(payload map[string]any) (T, error) {
	var item T
	raw, err := json.Marshal(payload)
	if err != nil {
		return item, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if d.strict {
		dec.DisallowUnknownFields()
	}
	err = dec.Decode(&item)
	return item, err
}

func deepCopy(payload map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
