package domain

import (
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// SetOption tunes the equality policy and post-processing of one setter call.
type SetOption func(*setConfig)

type setConfig struct {
	ignoreCase  bool
	ignoreSpace bool
	precision   int
	dateOnly    bool
	post        func(property string)
}

// IgnoreCase compares strings case-insensitively.
func IgnoreCase() SetOption {
	return func(cfg *setConfig) { cfg.ignoreCase = true }
}

// IgnoreSpace compares strings after trimming surrounding whitespace.
func IgnoreSpace() SetOption {
	return func(cfg *setConfig) { cfg.ignoreSpace = true }
}

// Precision compares floats rounded to digits significant digits.
func Precision(digits int) SetOption {
	return func(cfg *setConfig) { cfg.precision = digits }
}

// DateOnly compares times by calendar date.
func DateOnly() SetOption {
	return func(cfg *setConfig) { cfg.dateOnly = true }
}

// WithPostProcess replaces the default "mark dirty and check rules" step.
// Only the property itself is announced as changed afterwards.
func WithPostProcess(fn func(property string)) SetOption {
	return func(cfg *setConfig) { cfg.post = fn }
}

func newSetConfig(opts []SetOption) setConfig {
	var cfg setConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// SetProperty assigns value to *field when it differs, following the setter
// protocol: veto, changing, assign, mark dirty and check rules, changed.
// It reports whether the field changed.
func SetProperty[V comparable](h Holder, property string, field *V, value V, opts ...SetOption) bool {
	return setValue(h, property, field, value, func(a, b V) bool { return a == b }, newSetConfig(opts), nil)
}

// SetString is SetProperty with the IgnoreCase and IgnoreSpace policies.
func SetString(h Holder, property string, field *string, value string, opts ...SetOption) bool {
	cfg := newSetConfig(opts)
	return setValue(h, property, field, value, func(a, b string) bool {
		if cfg.ignoreSpace {
			a, b = strings.TrimSpace(a), strings.TrimSpace(b)
		}
		if cfg.ignoreCase {
			return strings.EqualFold(a, b)
		}
		return a == b
	}, cfg, nil)
}

// SetFloat is SetProperty with the Precision policy.
func SetFloat(h Holder, property string, field *float64, value float64, opts ...SetOption) bool {
	cfg := newSetConfig(opts)
	return setValue(h, property, field, value, func(a, b float64) bool {
		return floatEqual(a, b, cfg.precision)
	}, cfg, nil)
}

func floatEqual(a, b float64, digits int) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	if digits <= 0 {
		return a == b
	}
	return strconv.FormatFloat(a, 'g', digits, 64) == strconv.FormatFloat(b, 'g', digits, 64)
}

// SetTime is SetProperty with the DateOnly policy. Instants are compared with
// time.Time.Equal.
func SetTime(h Holder, property string, field *time.Time, value time.Time, opts ...SetOption) bool {
	cfg := newSetConfig(opts)
	return setValue(h, property, field, value, func(a, b time.Time) bool {
		if cfg.dateOnly {
			ay, am, ad := a.Date()
			by, bm, bd := b.Date()
			return ay == by && am == bm && ad == bd
		}
		return a.Equal(b)
	}, cfg, nil)
}

// SetNullable assigns an optional value. Two nil pointers, or two pointers to
// equal values, are equal.
func SetNullable[V comparable](h Holder, property string, field **V, value *V, opts ...SetOption) bool {
	return setValue(h, property, field, value, func(a, b *V) bool {
		if a == nil || b == nil {
			return a == nil && b == nil
		}
		return *a == *b
	}, newSetConfig(opts), nil)
}

// SetChild assigns a child-typed field declared through DeclareChildren. The
// old value is unhooked and loses its parent; the new value is hooked and
// gets the owner as parent.
func SetChild[C comparable](h Holder, property string, field *C, value C, opts ...SetOption) bool {
	return setValue(h, property, field, value, func(a, b C) bool { return a == b }, newSetConfig(opts), func(assign func()) {
		manager := h.domainObject().children
		manager.UnregisterChildValueFor(property)
		assign()
		manager.RegisterChildValueFor(property)
	})
}

func setValue[V any](h Holder, property string, field *V, value V, equal func(a, b V) bool, cfg setConfig, swap func(assign func())) bool {
	if h == nil || field == nil || isNilHolder(h) {
		return false
	}
	o := h.domainObject()
	if equal(*field, value) {
		return false
	}
	if !o.CanWriteProperty(property) {
		o.notifier.NotifyChanged(property)
		return false
	}
	o.notifier.NotifyChanging(property)
	assign := func() { *field = value }
	if swap != nil {
		swap(assign)
	} else {
		assign()
	}
	if cfg.post != nil {
		cfg.post(property)
		o.notifier.NotifyChanged(property)
		return true
	}
	o.MarkDirty(true)
	affected := o.rules.Check(property)
	o.notifier.NotifyChanged(changedProperties(property, affected)...)
	return true
}

func changedProperties(property string, affected []string) []string {
	out := make([]string, 0, len(affected)+1)
	out = append(out, property)
	for _, name := range affected {
		if name == "" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func isNilHolder(h Holder) bool {
	v := reflect.ValueOf(h)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
