package domain

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Capability is the closed classification of what a child field's declared
// type can notify. It is computed once when a type's children are indexed.
type Capability uint8

const (
	// CapPropertyChanged marks values raising property notifications.
	CapPropertyChanged Capability = 1 << iota
	// CapListChanged marks values raising list notifications.
	CapListChanged
	// CapCollectionChanged marks values raising collection notifications.
	CapCollectionChanged
	// CapChildChanged marks values bubbling child notifications.
	CapChildChanged
	// CapStateful marks values participating in state aggregation.
	CapStateful
)

// Has reports whether every flag in flags is set.
func (c Capability) Has(flags Capability) bool {
	return c&flags == flags
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	names := []struct {
		flag Capability
		name string
	}{
		{CapPropertyChanged, "property"},
		{CapListChanged, "list"},
		{CapCollectionChanged, "collection"},
		{CapChildChanged, "child"},
		{CapStateful, "stateful"},
	}
	parts := make([]string, 0, len(names))
	for _, entry := range names {
		if c.Has(entry.flag) {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, "|")
}

var (
	propertyNotifierType   = reflect.TypeFor[PropertyNotifier]()
	listNotifierType       = reflect.TypeFor[ListNotifier]()
	collectionNotifierType = reflect.TypeFor[CollectionNotifier]()
	childNotifierType      = reflect.TypeFor[ChildNotifier]()
	nodeType               = reflect.TypeFor[Node]()
)

func classify(t reflect.Type) Capability {
	var caps Capability
	if t.Implements(propertyNotifierType) {
		caps |= CapPropertyChanged
	}
	if t.Implements(listNotifierType) {
		caps |= CapListChanged
	}
	if t.Implements(collectionNotifierType) {
		caps |= CapCollectionChanged
	}
	if t.Implements(childNotifierType) {
		caps |= CapChildChanged
	}
	if t.Implements(nodeType) {
		caps |= CapStateful
	}
	return caps
}

// ChildFieldInfo describes one child-bearing field of an owner type.
type ChildFieldInfo struct {
	Name         string
	Type         reflect.Type
	Capabilities Capability

	get func(owner any) any
}

// Value returns the field's current value on owner, or false when it is nil.
func (f ChildFieldInfo) Value(owner any) (any, bool) {
	if f.get == nil || owner == nil {
		return nil, false
	}
	value := f.get(owner)
	if value == nil {
		return nil, false
	}
	return value, true
}

// ChildrenInfo is the cached child field index for one concrete owner type.
// It is shared read-only by every instance of that type.
type ChildrenInfo struct {
	Type   reflect.Type
	fields []ChildFieldInfo
	byName map[string]int
}

// Fields returns the declared child fields in declaration order.
func (c *ChildrenInfo) Fields() []ChildFieldInfo {
	if c == nil {
		return nil
	}
	out := make([]ChildFieldInfo, len(c.fields))
	copy(out, c.fields)
	return out
}

// Field looks up a child field by name.
func (c *ChildrenInfo) Field(name string) (ChildFieldInfo, bool) {
	if c == nil {
		return ChildFieldInfo{}, false
	}
	i, ok := c.byName[name]
	if !ok {
		return ChildFieldInfo{}, false
	}
	return c.fields[i], true
}

// Len returns the number of declared child fields.
func (c *ChildrenInfo) Len() int {
	if c == nil {
		return 0
	}
	return len(c.fields)
}

// ChildDeclarer is implemented by owners that have child fields. It is called
// at most once per concrete type.
type ChildDeclarer interface {
	DeclareChildren(b *ChildrenBuilder)
}

// ChildrenBuilder collects child field declarations for one owner type.
type ChildrenBuilder struct {
	owner  reflect.Type
	fields []ChildFieldInfo
	seen   map[string]struct{}
	err    error
}

// Child declares a child field named name whose value is read by get. The
// capabilities of C are classified here, once per owner type.
func Child[O any, C any](b *ChildrenBuilder, name string, get func(O) C) {
	if b == nil || b.err != nil {
		return
	}
	if name == "" || get == nil {
		b.err = fmt.Errorf("domain: child field on %v needs a name and accessor", b.owner)
		return
	}
	if _, ok := b.seen[name]; ok {
		b.err = fmt.Errorf("%w: %v.%s", ErrDuplicateChild, b.owner, name)
		return
	}
	b.seen[name] = struct{}{}
	fieldType := reflect.TypeFor[C]()
	nilable := isNilableKind(fieldType.Kind())
	b.fields = append(b.fields, ChildFieldInfo{
		Name:         name,
		Type:         fieldType,
		Capabilities: classify(fieldType),
		get: func(owner any) any {
			typed, ok := owner.(O)
			if !ok {
				return nil
			}
			value := any(get(typed))
			if value == nil || (nilable && reflect.ValueOf(value).IsNil()) {
				return nil
			}
			return value
		},
	})
}

func isNilableKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	default:
		return false
	}
}

var childrenIndex sync.Map // reflect.Type -> *ChildrenInfo

// ChildrenInfoFor returns the child field index for owner's concrete type,
// building it on first use. Entries are never invalidated.
func ChildrenInfoFor(owner any) (*ChildrenInfo, error) {
	if owner == nil {
		return nil, fmt.Errorf("%w: owner", ErrMissingDependency)
	}
	t := reflect.TypeOf(owner)
	if cached, ok := childrenIndex.Load(t); ok {
		return cached.(*ChildrenInfo), nil
	}
	info, err := buildChildrenInfo(t, owner)
	if err != nil {
		return nil, err
	}
	actual, _ := childrenIndex.LoadOrStore(t, info)
	return actual.(*ChildrenInfo), nil
}

func buildChildrenInfo(t reflect.Type, owner any) (*ChildrenInfo, error) {
	info := &ChildrenInfo{Type: t, byName: map[string]int{}}
	declarer, ok := owner.(ChildDeclarer)
	if !ok {
		return info, nil
	}
	builder := &ChildrenBuilder{owner: t, seen: map[string]struct{}{}}
	declarer.DeclareChildren(builder)
	if builder.err != nil {
		return nil, builder.err
	}
	info.fields = builder.fields
	for i, field := range info.fields {
		info.byName[field.Name] = i
	}
	return info, nil
}
